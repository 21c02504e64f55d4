package relay

import (
	"context"
	"strings"
	"time"
)

// Backend is the relay gateway as seen from the operator side. Failures are
// reported as *TransportError or *ApplicationError.
type Backend interface {
	Targets(ctx context.Context) ([]Target, error)
	Polish(ctx context.Context, text, tone string) (string, error)
	SendRoom(ctx context.Context, roomID, text, mode string) (SendResult, error)
	SendDirect(ctx context.Context, agentID, text string) (SendResult, error)
	RequestReply(ctx context.Context, roomID, agentID, contextText string) (SendResult, error)
	StartLoop(ctx context.Context, req LoopRequest) (string, error)
	StopLoop(ctx context.Context, roomID string) (string, error)
}

// SendResult is the gateway's answer to a send or reply request.
type SendResult struct {
	Sent   string `json:"sent,omitempty"`
	Reply  string `json:"reply,omitempty"`
	From   string `json:"from,omitempty"`
	Status string `json:"status,omitempty"`
	Parts  int    `json:"parts,omitempty"`
}

// Chunked reports whether the gateway split the message.
func (r SendResult) Chunked() bool {
	return r.Parts > 1 || strings.Contains(strings.ToLower(r.Status), "chunk")
}

// LoopRequest starts a gateway-run conversation loop.
type LoopRequest struct {
	RoomID   string        `json:"roomId"`
	AgentID  string        `json:"agentId,omitempty"`
	Prompt   string        `json:"prompt"`
	Mode     string        `json:"mode,omitempty"`
	Duration time.Duration `json:"-"`
}
