package relay

import (
	"sync"
	"time"
)

// Role classifies a transcript entry.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
	RoleError  Role = "system-error"
)

// ChatMessage is an immutable transcript entry.
type ChatMessage struct {
	Sender string    `json:"sender"`
	Text   string    `json:"text"`
	Role   Role      `json:"role"`
	At     time.Time `json:"at"`
}

// Renderer receives every message appended to a transcript, in order.
// Implementations must not block.
type Renderer interface {
	Render(msg ChatMessage)
}

// Transcript is the append-only conversation history of one operator
// session, plus transient placeholders for requests in flight.
type Transcript struct {
	mu        sync.Mutex
	msgs      []ChatMessage
	pending   map[int]string
	nextID    int
	renderers []Renderer
	now       func() time.Time
}

// NewTranscript creates an empty transcript that forwards to renderers.
func NewTranscript(renderers ...Renderer) *Transcript {
	return &Transcript{
		pending:   make(map[int]string),
		renderers: renderers,
		now:       time.Now,
	}
}

// Append adds a message. A zero At is stamped with the current time.
func (t *Transcript) Append(msg ChatMessage) {
	t.mu.Lock()
	if msg.At.IsZero() {
		msg.At = t.now()
	}
	t.msgs = append(t.msgs, msg)
	renderers := t.renderers
	t.mu.Unlock()

	for _, r := range renderers {
		r.Render(msg)
	}
}

// Messages returns a copy of the history.
func (t *Transcript) Messages() []ChatMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ChatMessage, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.msgs)
}

// Begin shows a placeholder (e.g. "Sending...") and returns its handle.
func (t *Transcript) Begin(label string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	t.pending[t.nextID] = label
	return t.nextID
}

// Settle removes a placeholder. Settling twice is a no-op.
func (t *Transcript) Settle(id int) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

// Placeholders returns the labels of unsettled placeholders, oldest first.
func (t *Transcript) Placeholders() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for id := 1; id <= t.nextID; id++ {
		if label, ok := t.pending[id]; ok {
			out = append(out, label)
		}
	}
	return out
}
