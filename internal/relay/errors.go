package relay

import (
	"errors"
	"fmt"
)

// ValidationError reports operator input rejected before any network call.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("relay: invalid %s: %s", e.Field, e.Msg)
}

// TransportError reports that the gateway could not be reached or answered
// with a non-2xx status and no error message.
type TransportError struct {
	Op     string
	Status int // zero when no response arrived
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("relay: %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("relay: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ApplicationError reports a gateway response that signalled failure.
type ApplicationError struct {
	Op      string
	Status  int
	Message string
}

func (e *ApplicationError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("relay: %s failed (%d): %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("relay: %s failed: %s", e.Op, e.Message)
}

var (
	// ErrCapabilityUnavailable is returned when speech capture is not
	// supported in this environment.
	ErrCapabilityUnavailable = errors.New("relay: speech capture unavailable")
	// ErrBusy is returned when a request to the same target is in flight.
	ErrBusy = errors.New("relay: target busy")
	// ErrLoopActive is returned when a loop is already running or starting
	// for the target.
	ErrLoopActive = errors.New("relay: loop already active")
)

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// Describe renders err as a one-line message for the transcript.
func Describe(err error) string {
	var (
		v *ValidationError
		t *TransportError
		a *ApplicationError
	)
	switch {
	case errors.As(err, &v):
		return v.Msg
	case errors.Is(err, ErrCapabilityUnavailable):
		return "Speech capture is not available here."
	case errors.Is(err, ErrBusy):
		return "Still waiting on the previous request to this target."
	case errors.Is(err, ErrLoopActive):
		return "A loop is already running in this room."
	case errors.As(err, &t):
		return fmt.Sprintf("Could not reach the relay gateway (%s): %v", t.Op, t.Err)
	case errors.As(err, &a):
		return fmt.Sprintf("Error: %s", a.Message)
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
