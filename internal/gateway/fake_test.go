package gateway

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/switchboard/internal/agentapi"
	"github.com/zulandar/switchboard/internal/fetch"
	"github.com/zulandar/switchboard/internal/store"
	"gorm.io/gorm"
)

const (
	testRoomID  = "9f6f3c1e-0a3b-4c41-8a0e-111111111111"
	testAgentID = "2d3b8d8e-5b6f-4f0e-9a55-8a4c3a1f0b11"
)

// fakeAPI is a scripted AgentAPI. Errors in sendErrs are returned by
// successive send calls (room or direct) before sends start succeeding.
type fakeAPI struct {
	mu sync.Mutex

	agents   []agentapi.Agent
	rooms    []agentapi.Room
	reply    string
	sendErrs []error
	replyErr error
	listErr  error
	created  *agentapi.CreateRoomRequest
	deleted  []string

	roomSends   []string
	directSends []string
	replyCalls  int
}

func (f *fakeAPI) ListAgents(ctx context.Context) ([]agentapi.Agent, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.agents, nil
}

func (f *fakeAPI) ListRooms(ctx context.Context) ([]agentapi.Room, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.rooms, nil
}

func (f *fakeAPI) CreateRoom(ctx context.Context, req agentapi.CreateRoomRequest) (*agentapi.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = &req
	return &agentapi.Room{UUID: testRoomID, Name: req.Name, Note: req.Note, BackchannelingEnabled: req.BackchannelingEnabled}, nil
}

func (f *fakeAPI) DeleteRoom(ctx context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if roomID == "missing" {
		return &agentapi.APIError{StatusCode: 404, Body: `{"error":"RoomNotFound"}`}
	}
	f.deleted = append(f.deleted, roomID)
	return nil
}

func (f *fakeAPI) nextErr() error {
	if len(f.sendErrs) == 0 {
		return nil
	}
	err := f.sendErrs[0]
	f.sendErrs = f.sendErrs[1:]
	return err
}

func (f *fakeAPI) SendRoom(ctx context.Context, roomID, text string) (*agentapi.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	f.roomSends = append(f.roomSends, text)
	return &agentapi.ChatResponse{SentMessage: &agentapi.Message{Text: text}}, nil
}

func (f *fakeAPI) SendDirect(ctx context.Context, agentID, text string) (*agentapi.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	f.directSends = append(f.directSends, text)
	resp := &agentapi.ChatResponse{SentMessage: &agentapi.Message{Text: text}}
	if f.reply != "" {
		resp.ReplyMessage = &agentapi.Message{Text: f.reply}
	}
	return resp, nil
}

func (f *fakeAPI) RequestReply(ctx context.Context, roomID, agentID string) (*agentapi.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replyCalls++
	if f.replyErr != nil {
		return nil, f.replyErr
	}
	if f.reply == "" {
		return &agentapi.ChatResponse{}, nil
	}
	return &agentapi.ChatResponse{ReplyMessage: &agentapi.Message{Text: f.reply}}, nil
}

func (f *fakeAPI) sentToRoom() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.roomSends...)
}

func (f *fakeAPI) sentDirect() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.directSends...)
}

type fakePolisher struct {
	err error
}

func (p *fakePolisher) Polish(ctx context.Context, text, mode string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return fmt.Sprintf("[%s] %s", mode, text), nil
}

type fakeFetcher struct {
	page  string
	file  string
	err   error
	asked []string
}

func (f *fakeFetcher) Page(ctx context.Context, rawURL string) (string, error) {
	f.asked = append(f.asked, rawURL)
	return f.page, f.err
}

func (f *fakeFetcher) GitHubFile(ctx context.Context, ref fetch.GitHubRef) (string, error) {
	f.asked = append(f.asked, ref.Owner+"/"+ref.Repo+"/"+ref.Path)
	return f.file, f.err
}

// newTestSender returns a Sender that never sleeps and records the delays
// it would have waited.
func newTestSender(t *testing.T, api AgentAPI, fetcher Fetcher) (*Sender, *[]time.Duration) {
	t.Helper()
	s, err := NewSender(SenderOpts{
		API:            api,
		Fetcher:        fetcher,
		MaxLen:         450,
		MaxRetries:     5,
		InitialBackoff: time.Second,
		Jitter:         500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	var delays []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	s.random = func() float64 { return 0.5 }
	return s, &delays
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := store.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	return db
}
