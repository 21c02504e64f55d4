package relay

import "sync"

// State is the operator's foreground activity.
type State string

const (
	StateIdle           State = "idle"
	StateCapturing      State = "capturing"
	StateAwaitingReview State = "awaitingReview"
	StateDispatching    State = "dispatching"
	StateLoopRunning    State = "loopRunning"
)

// Event drives a State transition.
type Event string

const (
	EvCaptureStart    Event = "captureStart"
	EvCaptureEnd      Event = "captureEnd"
	EvReviewReady     Event = "reviewReady"
	EvReviewClosed    Event = "reviewClosed"
	EvDispatchStart   Event = "dispatchStart"
	EvDispatchSettled Event = "dispatchSettled"
	EvLoopStarted     Event = "loopStarted"
	EvLoopEnded       Event = "loopEnded"
)

// AllStates lists every State.
var AllStates = []State{StateIdle, StateCapturing, StateAwaitingReview, StateDispatching, StateLoopRunning}

// AllEvents lists every Event.
var AllEvents = []Event{
	EvCaptureStart, EvCaptureEnd,
	EvReviewReady, EvReviewClosed,
	EvDispatchStart, EvDispatchSettled,
	EvLoopStarted, EvLoopEnded,
}

// transitions lists the events that change state. Any pair not listed
// leaves the state unchanged.
var transitions = map[State]map[Event]State{
	StateIdle: {
		EvCaptureStart:  StateCapturing,
		EvReviewReady:   StateAwaitingReview,
		EvDispatchStart: StateDispatching,
		EvLoopStarted:   StateLoopRunning,
	},
	StateCapturing: {
		EvCaptureEnd:    StateIdle,
		EvReviewReady:   StateAwaitingReview,
		EvDispatchStart: StateDispatching,
		EvLoopStarted:   StateLoopRunning,
	},
	StateAwaitingReview: {
		EvReviewClosed:  StateIdle,
		EvDispatchStart: StateDispatching,
	},
	StateDispatching: {
		EvDispatchSettled: StateIdle,
	},
	StateLoopRunning: {
		EvLoopEnded:     StateIdle,
		EvCaptureStart:  StateCapturing,
		EvReviewReady:   StateAwaitingReview,
		EvDispatchStart: StateDispatching,
	},
}

// Next returns the state reached from s on ev. It is defined for every
// pair; unlisted pairs return s.
func Next(s State, ev Event) State {
	if to, ok := transitions[s][ev]; ok {
		return to
	}
	return s
}

// Machine holds the current State.
type Machine struct {
	mu    sync.Mutex
	state State
}

// NewMachine starts in StateIdle.
func NewMachine() *Machine {
	return &Machine{state: StateIdle}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Fire applies ev and returns the new state.
func (m *Machine) Fire(ev Event) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Next(m.state, ev)
	return m.state
}
