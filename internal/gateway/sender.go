package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/zulandar/switchboard/internal/agentapi"
	"github.com/zulandar/switchboard/internal/chunk"
	"github.com/zulandar/switchboard/internal/fetch"
)

// AgentAPI abstracts the upstream companion-agent API for testability.
type AgentAPI interface {
	ListAgents(ctx context.Context) ([]agentapi.Agent, error)
	ListRooms(ctx context.Context) ([]agentapi.Room, error)
	CreateRoom(ctx context.Context, req agentapi.CreateRoomRequest) (*agentapi.Room, error)
	DeleteRoom(ctx context.Context, roomID string) error
	SendRoom(ctx context.Context, roomID, text string) (*agentapi.ChatResponse, error)
	SendDirect(ctx context.Context, agentID, text string) (*agentapi.ChatResponse, error)
	RequestReply(ctx context.Context, roomID, agentID string) (*agentapi.ChatResponse, error)
}

// Fetcher resolves url and code sends into message text.
type Fetcher interface {
	Page(ctx context.Context, rawURL string) (string, error)
	GitHubFile(ctx context.Context, ref fetch.GitHubRef) (string, error)
}

// Send modes accepted for room sends.
const (
	ModePlaintext = "plaintext"
	ModeCode      = "code"
	ModeURL       = "url"
)

// Result is the outcome of one logical send, chunked or not.
type Result struct {
	Sent   string
	Reply  string
	Status string
	Parts  int
}

// SenderOpts holds parameters for creating a Sender.
type SenderOpts struct {
	API            AgentAPI
	Fetcher        Fetcher // optional; code refs and url sends fail without it
	MaxLen         int
	MaxRetries     int
	InitialBackoff time.Duration
	Jitter         time.Duration
}

// Sender delivers messages upstream, splitting anything over the per-message
// limit into labeled chunks sent strictly in order with retries.
type Sender struct {
	api        AgentAPI
	fetcher    Fetcher
	maxLen     int
	maxRetries int
	backoff    time.Duration
	jitter     time.Duration

	sleep  func(ctx context.Context, d time.Duration) error
	random func() float64
}

// NewSender creates a Sender.
func NewSender(opts SenderOpts) (*Sender, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("gateway: sender: api is required")
	}
	s := &Sender{
		api:        opts.API,
		fetcher:    opts.Fetcher,
		maxLen:     opts.MaxLen,
		maxRetries: opts.MaxRetries,
		backoff:    opts.InitialBackoff,
		jitter:     opts.Jitter,
		sleep:      sleepCtx,
		random:     rand.Float64,
	}
	if s.maxLen <= 0 {
		s.maxLen = chunk.DefaultMaxLen
	}
	if s.maxRetries <= 0 {
		s.maxRetries = 1
	}
	return s, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SendRoom sends text to a room in the given mode.
func (s *Sender) SendRoom(ctx context.Context, roomID, text, mode string) (Result, error) {
	body, kind, err := s.prepare(ctx, text, mode)
	if err != nil {
		return Result{}, err
	}
	send := func(ctx context.Context, msg string) (*agentapi.ChatResponse, error) {
		return s.api.SendRoom(ctx, roomID, msg)
	}
	return s.deliver(ctx, "room "+roomID, kind, body, send)
}

// SendDirect sends text to a single agent. Long messages go out as
// DIRECT chunks and the reply to the last chunk is returned.
func (s *Sender) SendDirect(ctx context.Context, agentID, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, badRequest("text is required")
	}
	send := func(ctx context.Context, msg string) (*agentapi.ChatResponse, error) {
		return s.api.SendDirect(ctx, agentID, msg)
	}
	return s.deliver(ctx, "agent "+agentID, chunk.Direct, text, send)
}

// prepare turns operator text into the body to deliver and picks the chunk
// kind for it.
func (s *Sender) prepare(ctx context.Context, text, mode string) (string, chunk.Kind, error) {
	if strings.TrimSpace(text) == "" {
		return "", "", badRequest("text is required")
	}
	switch strings.ToLower(mode) {
	case "", ModePlaintext:
		return text, chunk.Text, nil

	case ModeCode:
		ref, ok := fetch.ParseGitHubRef(text)
		if !ok {
			return text, chunk.Code, nil
		}
		if s.fetcher == nil {
			return "", "", badRequest("repository fetching is not configured")
		}
		code, err := s.fetcher.GitHubFile(ctx, ref)
		if err != nil {
			return "", "", badGateway(err.Error())
		}
		return code, chunk.Code, nil

	case ModeURL:
		if s.fetcher == nil {
			return "", "", badRequest("url fetching is not configured")
		}
		page, err := s.fetcher.Page(ctx, text)
		if err != nil {
			return "", "", badRequest("Failed to fetch URL content: " + err.Error())
		}
		if chunk.Len(page) <= s.maxLen {
			return page, chunk.Text, nil
		}
		encoded, err := fetch.Encode(page)
		if err != nil {
			return "", "", err
		}
		return encoded, chunk.Encoded, nil

	default:
		return "", "", badRequest(fmt.Sprintf("unknown mode %q", mode))
	}
}

type sendFunc func(ctx context.Context, msg string) (*agentapi.ChatResponse, error)

// deliver sends body as one message when it fits, else as labeled chunks.
func (s *Sender) deliver(ctx context.Context, dest string, kind chunk.Kind, body string, send sendFunc) (Result, error) {
	if chunk.Len(body) <= s.maxLen {
		resp, err := s.withRetry(ctx, dest, send, body)
		if err != nil {
			return Result{}, err
		}
		res := Result{Sent: body, Reply: resp.ReplyText(), Parts: 1}
		if resp.SentMessage != nil && resp.SentMessage.Text != "" {
			res.Sent = resp.SentMessage.Text
		}
		return res, nil
	}

	parts := chunk.Labeled(kind, body, s.maxLen)
	last, err := s.sendChunks(ctx, dest, parts, send)
	if err != nil {
		return Result{}, err
	}
	log.Printf("gateway: sent %d %s chunks to %s", len(parts), kind, dest)
	return Result{
		Reply:  last.ReplyText(),
		Status: "sent in chunks",
		Parts:  len(parts),
	}, nil
}

// sendChunks sends parts one at a time; part i+1 is not sent until part i
// has been accepted. It stops at the first part that exhausts its retries.
func (s *Sender) sendChunks(ctx context.Context, dest string, parts []string, send sendFunc) (*agentapi.ChatResponse, error) {
	var last *agentapi.ChatResponse
	for i, part := range parts {
		resp, err := s.withRetry(ctx, dest, send, part)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(parts), err)
		}
		last = resp
	}
	return last, nil
}

// withRetry calls send until it succeeds, fails permanently, or maxRetries
// attempts are used. The delay before attempt n is backoff*2^n plus or
// minus up to jitter.
func (s *Sender) withRetry(ctx context.Context, dest string, send sendFunc, msg string) (*agentapi.ChatResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		resp, err := send(ctx, msg)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable(err) || attempt == s.maxRetries {
			break
		}
		delay := s.delay(attempt)
		log.Printf("gateway: send to %s failed (attempt %d/%d), retrying in %s: %v",
			dest, attempt, s.maxRetries, delay.Round(time.Millisecond), err)
		if err := s.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (s *Sender) delay(attempt int) time.Duration {
	d := s.backoff * time.Duration(1<<attempt)
	if s.jitter > 0 {
		d += time.Duration((s.random()*2 - 1) * float64(s.jitter))
	}
	if d < 0 {
		d = 0
	}
	return d
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *agentapi.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return true
}
