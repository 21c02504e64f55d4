package gateway

import (
	"time"

	"github.com/zulandar/switchboard/internal/models"
)

// Wire types shared by the server handlers and Client.

type textBody struct {
	Text string `json:"text"`
}

// TargetInfo is one entry of GET /api/targets.
type TargetInfo struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Kind        string   `json:"kind"` // "agent" or "room"
	Members     []string `json:"members,omitempty"`
}

type targetsResponse struct {
	Targets []TargetInfo `json:"targets"`
}

type polishRequest struct {
	Text string `json:"text"`
	Mode string `json:"mode"`
}

type polishResponse struct {
	PolishedText string `json:"polishedText"`
}

type sendRequest struct {
	Text string `json:"text"`
	Mode string `json:"mode,omitempty"`
}

type sendResponse struct {
	Sent   *textBody `json:"sent,omitempty"`
	Reply  *textBody `json:"reply,omitempty"`
	From   string    `json:"from,omitempty"`
	Status string    `json:"status,omitempty"`
	Parts  int       `json:"parts,omitempty"`
}

type replyRequest struct {
	AgentID     string `json:"agentId"`
	ContextText string `json:"contextText"`
}

type loopRequest struct {
	AgentID         string `json:"agentId"`
	StartPrompt     string `json:"startPrompt"`
	DurationSeconds int    `json:"durationSeconds"`
	Mode            string `json:"mode"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// LoopInfo is one entry of GET /api/loops.
type LoopInfo struct {
	ID          uint       `json:"id"`
	RoomID      string     `json:"roomId"`
	AgentID     string     `json:"agentId"`
	Mode        string     `json:"mode,omitempty"`
	Status      string     `json:"status"`
	Turns       int        `json:"turns"`
	DurationSec int        `json:"durationSeconds"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
}

func loopInfo(s models.LoopSession) LoopInfo {
	return LoopInfo{
		ID:          s.ID,
		RoomID:      s.RoomID,
		AgentID:     s.AgentID,
		Mode:        s.Mode,
		Status:      s.Status,
		Turns:       s.Turns,
		DurationSec: s.DurationSec,
		ExpiresAt:   s.ExpiresAt,
		EndedAt:     s.EndedAt,
		LastError:   s.LastError,
	}
}

type loopsResponse struct {
	Loops []LoopInfo `json:"loops"`
}

// CreateRoomRequest is the body of POST /api/rooms.
type CreateRoomRequest struct {
	Name           string   `json:"name"`
	Note           string   `json:"note,omitempty"`
	Backchanneling *bool    `json:"backchanneling,omitempty"` // defaults to true
	AgentIDs       []string `json:"agentIds"`
}

type errorResponse struct {
	Error string `json:"error"`
}
