package relay

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// LoopController starts and stops gateway-run loops. The store's loop
// record is written before the request and rolled back if it fails.
type LoopController struct {
	backend Backend
	store   *Store
}

// NewLoopController creates a LoopController.
func NewLoopController(b Backend, s *Store) *LoopController {
	return &LoopController{backend: b, store: s}
}

// ParseDuration reads an operator-entered loop duration in whole seconds.
func ParseDuration(text string) (time.Duration, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, invalid("duration", "Enter a loop duration in seconds.")
	}
	n, err := strconv.Atoi(text)
	if err != nil || n <= 0 {
		return 0, invalid("duration", "Loop duration must be a positive number of seconds.")
	}
	return time.Duration(n) * time.Second, nil
}

// Start asks the gateway to run a loop in room starting from prompt.
func (l *LoopController) Start(ctx context.Context, room Target, agentID, prompt, durationText, mode string) (string, error) {
	if err := room.validate(); err != nil {
		return "", err
	}
	if !room.IsRoom() {
		return "", invalid("target", "Loops run in rooms; select a room.")
	}
	if strings.TrimSpace(prompt) == "" {
		return "", invalid("prompt", "Type a starting prompt for the loop.")
	}
	d, err := ParseDuration(durationText)
	if err != nil {
		return "", err
	}

	if err := l.store.BeginLoop(LoopSession{
		Target:      room,
		AgentID:     agentID,
		StartPrompt: prompt,
		Mode:        mode,
		Duration:    d,
	}); err != nil {
		return "", err
	}

	status, err := l.backend.StartLoop(ctx, LoopRequest{
		RoomID:   room.ID,
		AgentID:  agentID,
		Prompt:   prompt,
		Mode:     mode,
		Duration: d,
	})
	if err != nil {
		l.store.EndLoop(room)
		return "", err
	}
	l.store.ConfirmLoop(room)
	return status, nil
}

// Stop asks the gateway to stop the loop in room. The request is sent even
// when no loop is known locally, since another client may have started it.
func (l *LoopController) Stop(ctx context.Context, room Target) (string, error) {
	if err := room.validate(); err != nil {
		return "", err
	}
	if !room.IsRoom() {
		return "", invalid("target", "Loops run in rooms; select a room.")
	}

	prev := l.store.MarkStopping(room)
	status, err := l.backend.StopLoop(ctx, room.ID)
	if err != nil {
		l.store.RestoreLoop(prev)
		return "", err
	}
	l.store.EndLoop(room)
	return status, nil
}

// Ended records a loop that finished on the gateway side.
func (l *LoopController) Ended(room Target) bool {
	return l.store.EndLoop(room)
}

// Active returns the live loop for room.
func (l *LoopController) Active(room Target) (LoopSession, bool) {
	return l.store.Loop(room)
}
