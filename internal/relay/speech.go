package relay

import (
	"context"
	"strings"
	"sync"
)

// RecognitionEvent is one result from a speech recognizer. A final event
// commits its transcript; an interim event replaces the previous interim.
// An event with Err set ends the session.
type RecognitionEvent struct {
	Final      bool
	Transcript string
	Err        error
}

// Recognizer produces recognition events for one capture session at a time.
// The channel closes when the session ends.
type Recognizer interface {
	Start(ctx context.Context) (<-chan RecognitionEvent, error)
	Stop() error
}

// Accumulator folds recognition events into the draft as
// final-text-so-far followed by the latest interim text.
type Accumulator struct {
	draft     *Draft
	available bool

	mu        sync.Mutex
	recording bool
	session   uint64
	final     strings.Builder
	interim   string
}

// NewAccumulator creates an Accumulator writing into draft. available is
// false when no recognizer exists in this environment.
func NewAccumulator(draft *Draft, available bool) *Accumulator {
	return &Accumulator{draft: draft, available: available}
}

// Available reports whether capture can start.
func (a *Accumulator) Available() bool {
	return a.available
}

// Recording reports whether a capture session is active.
func (a *Accumulator) Recording() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recording
}

// Start begins a new session: accumulated text is reset and the draft is
// cleared. It returns the session number events must carry.
func (a *Accumulator) Start() (uint64, error) {
	if !a.available {
		return 0, ErrCapabilityUnavailable
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session++
	a.recording = true
	a.final.Reset()
	a.interim = ""
	a.draft.Clear()
	return a.session, nil
}

// Handle applies ev if it belongs to the active session. Events that
// arrive after Stop, or from an older session, are discarded.
func (a *Accumulator) Handle(session uint64, ev RecognitionEvent) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.recording || session != a.session {
		return false
	}
	if ev.Final {
		if ev.Transcript != "" {
			a.final.WriteString(ev.Transcript)
		}
		a.interim = ""
	} else {
		a.interim = ev.Transcript
	}
	a.draft.Set(a.final.String() + a.interim)
	return true
}

// End marks session as finished, e.g. when the recognizer stops on its own
// or reports an error. It reports whether the session was the active one.
func (a *Accumulator) End(session uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.recording || session != a.session {
		return false
	}
	a.recording = false
	return true
}

// Active reports whether session is the one currently recording.
func (a *Accumulator) Active(session uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recording && session == a.session
}

// Stop ends the active session on operator request. Later events for it
// are discarded. Stop is idempotent.
func (a *Accumulator) Stop() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	was := a.recording
	a.recording = false
	a.session++
	return was
}
