package relay

import (
	"sort"
	"sync"
	"time"
)

// LoopPhase is the operator-side view of a loop's lifecycle.
type LoopPhase string

const (
	LoopStarting LoopPhase = "starting"
	LoopRunning  LoopPhase = "running"
	LoopStopping LoopPhase = "stopping"
)

// LoopSession is the operator-side record of a loop in one room.
type LoopSession struct {
	Target      Target
	AgentID     string
	StartPrompt string
	Mode        string
	Duration    time.Duration
	Phase       LoopPhase
	StartedAt   time.Time
}

// ExpiresAt returns when the loop's requested duration elapses.
func (s LoopSession) ExpiresAt() time.Time {
	return s.StartedAt.Add(s.Duration)
}

// TargetState is the per-target record held by the Store. A record exists
// only while something is in flight or a loop is live for the target.
type TargetState struct {
	Target      Target
	Dispatching bool
	Loop        *LoopSession
}

// Store holds per-target state for one operator process. Records are created
// on first use and destroyed once idle.
type Store struct {
	mu     sync.Mutex
	states map[string]*TargetState
	now    func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{states: make(map[string]*TargetState), now: time.Now}
}

func (s *Store) get(t Target) *TargetState {
	st, ok := s.states[t.Key()]
	if !ok {
		st = &TargetState{Target: t}
		s.states[t.Key()] = st
	}
	return st
}

// gc drops the record for key once nothing is live on it.
func (s *Store) gc(key string) {
	if st, ok := s.states[key]; ok && !st.Dispatching && st.Loop == nil {
		delete(s.states, key)
	}
}

// expire drops loops whose duration has elapsed.
func (s *Store) expire(st *TargetState) {
	if st.Loop != nil && st.Loop.Phase == LoopRunning && !s.now().Before(st.Loop.ExpiresAt()) {
		st.Loop = nil
	}
}

// BeginDispatch marks t busy. It fails with ErrBusy if t is already busy.
func (s *Store) BeginDispatch(t Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(t)
	if st.Dispatching {
		return ErrBusy
	}
	st.Dispatching = true
	return nil
}

// EndDispatch clears the busy mark on t.
func (s *Store) EndDispatch(t Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[t.Key()]; ok {
		st.Dispatching = false
		s.gc(t.Key())
	}
}

// Busy reports whether a request to t is in flight.
func (s *Store) Busy(t Target) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[t.Key()]
	return ok && st.Dispatching
}

// BeginLoop records a loop in the starting phase. It fails with
// ErrLoopActive if a loop is live for the target.
func (s *Store) BeginLoop(ls LoopSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(ls.Target)
	s.expire(st)
	if st.Loop != nil {
		return ErrLoopActive
	}
	ls.Phase = LoopStarting
	st.Loop = &ls
	return nil
}

// ConfirmLoop moves a starting loop to running once the gateway accepted it.
func (s *Store) ConfirmLoop(t Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[t.Key()]; ok && st.Loop != nil {
		st.Loop.Phase = LoopRunning
		st.Loop.StartedAt = s.now()
	}
}

// MarkStopping moves a live loop to stopping and returns its previous
// record so a failed stop can restore it. It returns nil if no loop is live.
func (s *Store) MarkStopping(t Target) *LoopSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[t.Key()]
	if !ok || st.Loop == nil {
		return nil
	}
	prev := *st.Loop
	st.Loop.Phase = LoopStopping
	return &prev
}

// RestoreLoop puts back a record saved by MarkStopping.
func (s *Store) RestoreLoop(prev *LoopSession) {
	if prev == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ls := *prev
	s.get(ls.Target).Loop = &ls
}

// EndLoop destroys the loop record for t.
func (s *Store) EndLoop(t Target) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[t.Key()]
	if !ok || st.Loop == nil {
		return false
	}
	st.Loop = nil
	s.gc(t.Key())
	return true
}

// Loop returns a copy of the live loop for t.
func (s *Store) Loop(t Target) (LoopSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[t.Key()]
	if !ok {
		return LoopSession{}, false
	}
	s.expire(st)
	if st.Loop == nil {
		s.gc(t.Key())
		return LoopSession{}, false
	}
	return *st.Loop, true
}

// Loops returns every live loop ordered by target key.
func (s *Store) Loops() []LoopSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []LoopSession
	for key, st := range s.states {
		s.expire(st)
		if st.Loop == nil {
			s.gc(key)
			continue
		}
		out = append(out, *st.Loop)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target.Key() < out[j].Target.Key() })
	return out
}

// Len returns the number of live records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
