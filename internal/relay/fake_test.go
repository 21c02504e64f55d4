package relay

import (
	"context"
	"sync"
)

// fakeBackend is a scripted Backend that records every call.
type fakeBackend struct {
	mu sync.Mutex

	targets   []Target
	polished  string
	polishErr error
	result    SendResult
	sendErr   error
	loopErr   error
	status    string

	// block, when set, holds send calls until it is closed.
	block chan struct{}

	polishCalls []string
	roomSends   []sentCall
	directSends []sentCall
	replyCalls  []sentCall
	loopStarts  []LoopRequest
	loopStops   []string
}

type sentCall struct {
	ID   string
	Text string
	Mode string
}

func (f *fakeBackend) Targets(ctx context.Context) ([]Target, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.targets, nil
}

func (f *fakeBackend) Polish(ctx context.Context, text, tone string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polishCalls = append(f.polishCalls, text)
	return f.polished, f.polishErr
}

func (f *fakeBackend) wait() {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
}

func (f *fakeBackend) SendRoom(ctx context.Context, roomID, text, mode string) (SendResult, error) {
	f.mu.Lock()
	f.roomSends = append(f.roomSends, sentCall{ID: roomID, Text: text, Mode: mode})
	f.mu.Unlock()
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.sendErr
}

func (f *fakeBackend) SendDirect(ctx context.Context, agentID, text string) (SendResult, error) {
	f.mu.Lock()
	f.directSends = append(f.directSends, sentCall{ID: agentID, Text: text})
	f.mu.Unlock()
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.sendErr
}

func (f *fakeBackend) RequestReply(ctx context.Context, roomID, agentID, contextText string) (SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replyCalls = append(f.replyCalls, sentCall{ID: roomID, Text: contextText, Mode: agentID})
	return f.result, f.sendErr
}

func (f *fakeBackend) StartLoop(ctx context.Context, req LoopRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loopStarts = append(f.loopStarts, req)
	return f.status, f.loopErr
}

func (f *fakeBackend) StopLoop(ctx context.Context, roomID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loopStops = append(f.loopStops, roomID)
	return f.status, f.loopErr
}

func (f *fakeBackend) networkCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.polishCalls) + len(f.roomSends) + len(f.directSends) +
		len(f.replyCalls) + len(f.loopStarts) + len(f.loopStops)
}

// fakeRecognizer hands out a channel the test feeds directly.
type fakeRecognizer struct {
	mu      sync.Mutex
	ch      chan RecognitionEvent
	starts  int
	stops   int
	stopped bool
}

func (r *fakeRecognizer) Start(ctx context.Context) (<-chan RecognitionEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	r.stopped = false
	r.ch = make(chan RecognitionEvent, 16)
	return r.ch, nil
}

func (r *fakeRecognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	if !r.stopped && r.ch != nil {
		close(r.ch)
		r.stopped = true
	}
	return nil
}

func (r *fakeRecognizer) send(ev RecognitionEvent) {
	r.mu.Lock()
	ch := r.ch
	r.mu.Unlock()
	ch <- ev
}

// captureRenderer records rendered messages.
type captureRenderer struct {
	mu   sync.Mutex
	msgs []ChatMessage
}

func (c *captureRenderer) Render(msg ChatMessage) {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
}

func (c *captureRenderer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

var (
	testRoom  = Target{Kind: KindRoom, ID: "room-1", Name: "Lounge", Members: []string{"agent-1"}}
	testAgent = Target{Kind: KindAgent, ID: "agent-1", Name: "Ava"}
)
