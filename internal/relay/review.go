package relay

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ReviewState is the lifecycle of a polished draft.
type ReviewState string

const (
	ReviewAwaiting  ReviewState = "awaiting"
	ReviewApproved  ReviewState = "approved"
	ReviewDiscarded ReviewState = "discarded"
)

// PendingReview holds a polished candidate until the operator decides.
type PendingReview struct {
	ID        string
	Original  string
	Polished  string
	Tone      string
	Mode      string // room send mode in effect at submit
	Target    Target
	State     ReviewState
	CreatedAt time.Time
}

// Polisher is the part of Backend the review gate needs.
type Polisher interface {
	Polish(ctx context.Context, text, tone string) (string, error)
}

// ReviewGate interposes human approval between polishing and dispatch. At
// most one review is awaiting a decision, and a candidate is released for
// dispatch at most once.
type ReviewGate struct {
	polisher   Polisher
	dispatcher *Dispatcher

	mu        sync.Mutex
	pending   *PendingReview
	polishing bool
	seq       int
	now       func() time.Time
}

// NewReviewGate creates a ReviewGate. d sends approved text; it may be nil
// when the caller only uses Release.
func NewReviewGate(p Polisher, d *Dispatcher) *ReviewGate {
	return &ReviewGate{polisher: p, dispatcher: d, now: time.Now}
}

// Busy reports whether a polish is in flight or a review awaits a decision.
func (g *ReviewGate) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.polishing || g.pending != nil
}

// Submit polishes text and holds the result for review. The send mode and
// target are captured now; later changes do not affect the review.
func (g *ReviewGate) Submit(ctx context.Context, text, tone, mode string, target Target) (*PendingReview, error) {
	if strings.TrimSpace(text) == "" {
		return nil, invalid("draft", "Nothing to polish.")
	}
	if err := target.validate(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	if g.pending != nil {
		g.mu.Unlock()
		return nil, invalid("review", "Approve or discard the polished draft first.")
	}
	if g.polishing {
		g.mu.Unlock()
		return nil, ErrBusy
	}
	g.polishing = true
	g.mu.Unlock()

	polished, err := g.polisher.Polish(ctx, text, tone)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.polishing = false
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(polished) == "" {
		return nil, &ApplicationError{Op: "polish", Message: "the polisher returned no text"}
	}

	g.seq++
	g.pending = &PendingReview{
		ID:        fmt.Sprintf("review-%d", g.seq),
		Original:  text,
		Polished:  polished,
		Tone:      tone,
		Mode:      mode,
		Target:    target,
		State:     ReviewAwaiting,
		CreatedAt: g.now(),
	}
	pr := *g.pending
	return &pr, nil
}

// Pending returns the review awaiting a decision, if any.
func (g *ReviewGate) Pending() (PendingReview, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return PendingReview{}, false
	}
	return *g.pending, true
}

// Approve removes the review with id and dispatches its polished text once.
// The review is gone whatever the dispatch outcome.
func (g *ReviewGate) Approve(ctx context.Context, id string) (Outcome, error) {
	if g.dispatcher == nil {
		return Outcome{}, fmt.Errorf("relay: review gate has no dispatcher")
	}
	pr, err := g.Release(id)
	if err != nil {
		return Outcome{}, err
	}
	return g.dispatcher.Dispatch(ctx, DispatchRequest{Target: pr.Target, Text: pr.Polished, Mode: pr.Mode})
}

// Release removes the review with id and hands it to the caller for
// dispatch. A second release of the same id fails.
func (g *ReviewGate) Release(id string) (PendingReview, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil || g.pending.ID != id {
		return PendingReview{}, invalid("review", "There is no polished draft awaiting approval.")
	}
	pr := *g.pending
	pr.State = ReviewApproved
	g.pending = nil
	return pr, nil
}

// Discard drops the review with id without sending anything.
func (g *ReviewGate) Discard(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil || g.pending.ID != id {
		return invalid("review", "There is no polished draft to discard.")
	}
	g.pending = nil
	return nil
}
