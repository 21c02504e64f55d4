package relay

import "sync"

// Draft is the editable outbound text. Speech capture and operator edits
// both write it; the last writer wins.
type Draft struct {
	mu   sync.Mutex
	text string
}

// Set replaces the draft.
func (d *Draft) Set(text string) {
	d.mu.Lock()
	d.text = text
	d.mu.Unlock()
}

// Text returns the current draft.
func (d *Draft) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

// Clear empties the draft.
func (d *Draft) Clear() {
	d.Set("")
}
