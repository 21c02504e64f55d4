package relay

import (
	"context"
	"strings"
	"unicode/utf8"
)

// DefaultWarnThreshold is the direct-message length above which the
// operator is told the gateway will split the message.
const DefaultWarnThreshold = 750

// DispatchRequest is one outbound message.
type DispatchRequest struct {
	Target Target
	Text   string
	Mode   string // plaintext, code or url; rooms only
}

// OutcomeKind classifies a settled dispatch.
type OutcomeKind int

const (
	// OutcomeReplied means the response carried a reply.
	OutcomeReplied OutcomeKind = iota
	// OutcomeNoReply means the message was accepted but nobody answered.
	OutcomeNoReply
	// OutcomeChunked means the gateway split the message and reported
	// only a status.
	OutcomeChunked
)

// Outcome is the operator-facing result of a dispatch.
type Outcome struct {
	Kind   OutcomeKind
	Reply  string
	From   string
	Status string
	Parts  int
}

func outcomeOf(res SendResult) Outcome {
	out := Outcome{Reply: res.Reply, From: res.From, Status: res.Status, Parts: res.Parts}
	switch {
	case strings.TrimSpace(res.Reply) != "":
		out.Kind = OutcomeReplied
	case res.Chunked():
		out.Kind = OutcomeChunked
	default:
		out.Kind = OutcomeNoReply
	}
	return out
}

// Dispatcher sends messages through the Backend with at most one request in
// flight per target.
type Dispatcher struct {
	backend       Backend
	store         *Store
	warnThreshold int
}

// NewDispatcher creates a Dispatcher. warnThreshold <= 0 uses the default.
func NewDispatcher(b Backend, s *Store, warnThreshold int) *Dispatcher {
	if warnThreshold <= 0 {
		warnThreshold = DefaultWarnThreshold
	}
	return &Dispatcher{backend: b, store: s, warnThreshold: warnThreshold}
}

// Validate checks req without touching the network.
func (d *Dispatcher) Validate(req DispatchRequest) error {
	if err := req.Target.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(req.Text) == "" {
		return invalid("draft", "Nothing to send.")
	}
	switch req.Mode {
	case "", "plaintext", "code", "url":
	default:
		return invalid("mode", "Unknown send mode "+req.Mode+".")
	}
	return nil
}

// NeedsWarning reports whether req is a direct message long enough to be
// split by the gateway.
func (d *Dispatcher) NeedsWarning(req DispatchRequest) bool {
	return req.Target.Kind == KindAgent && utf8.RuneCountInString(req.Text) > d.warnThreshold
}

// Busy reports whether a request to t is in flight.
func (d *Dispatcher) Busy(t Target) bool {
	return d.store.Busy(t)
}

// Reserve marks t busy for a request the caller is about to send. The
// returned release must be called once the request settles.
func (d *Dispatcher) Reserve(t Target) (release func(), err error) {
	if err := d.store.BeginDispatch(t); err != nil {
		return nil, err
	}
	return func() { d.store.EndDispatch(t) }, nil
}

// Dispatch validates req, reserves its target and sends it.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (Outcome, error) {
	if err := d.Validate(req); err != nil {
		return Outcome{}, err
	}
	release, err := d.Reserve(req.Target)
	if err != nil {
		return Outcome{}, err
	}
	defer release()
	return d.Send(ctx, req)
}

// Send performs the network call for an already reserved target.
func (d *Dispatcher) Send(ctx context.Context, req DispatchRequest) (Outcome, error) {
	var (
		res SendResult
		err error
	)
	if req.Target.IsRoom() {
		res, err = d.backend.SendRoom(ctx, req.Target.ID, req.Text, req.Mode)
	} else {
		res, err = d.backend.SendDirect(ctx, req.Target.ID, req.Text)
	}
	if err != nil {
		return Outcome{}, err
	}
	return outcomeOf(res), nil
}

// RequestReply asks agentID to speak in room. agentID may be empty to let
// the gateway pick its default agent. contextText is the operator's current
// draft, passed along for observers; it is not posted to the room.
func (d *Dispatcher) RequestReply(ctx context.Context, room Target, agentID, contextText string) (Outcome, error) {
	if err := room.validate(); err != nil {
		return Outcome{}, err
	}
	if !room.IsRoom() {
		return Outcome{}, invalid("target", "Reply requests only work in rooms.")
	}
	release, err := d.Reserve(room)
	if err != nil {
		return Outcome{}, err
	}
	defer release()
	return d.SendReplyRequest(ctx, room, agentID, contextText)
}

// SendReplyRequest performs the reply request for an already reserved room.
func (d *Dispatcher) SendReplyRequest(ctx context.Context, room Target, agentID, contextText string) (Outcome, error) {
	res, err := d.backend.RequestReply(ctx, room.ID, agentID, contextText)
	if err != nil {
		return Outcome{}, err
	}
	return outcomeOf(res), nil
}
