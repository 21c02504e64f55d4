// Package relay is the operator-side core of Switchboard: it holds the
// draft, accumulates speech, gates polished text behind review, dispatches
// to the gateway and drives loops, all behind a single event lock.
package relay

import "strings"

// TargetKind distinguishes a single agent from a multi-agent room.
type TargetKind string

const (
	KindAgent TargetKind = "agent"
	KindRoom  TargetKind = "room"
)

// Target is an addressable conversation destination.
type Target struct {
	Kind    TargetKind `json:"kind"`
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Members []string   `json:"members,omitempty"` // agent ids, rooms only
}

// Key identifies the target in per-target state.
func (t Target) Key() string {
	return string(t.Kind) + ":" + t.ID
}

// Label returns a display name.
func (t Target) Label() string {
	if t.Name != "" {
		return t.Name
	}
	return t.ID
}

// IsRoom reports whether the target is a room.
func (t Target) IsRoom() bool { return t.Kind == KindRoom }

func (t Target) validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return invalid("target", "Select a room or agent first.")
	}
	if t.Kind != KindAgent && t.Kind != KindRoom {
		return invalid("target", "Unknown target kind "+string(t.Kind)+".")
	}
	return nil
}
