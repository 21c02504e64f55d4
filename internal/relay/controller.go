package relay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"unicode/utf8"
)

// ControllerOpts holds parameters for creating a Controller.
type ControllerOpts struct {
	Backend       Backend
	Recognizer    Recognizer // nil when speech capture is unavailable
	Renderers     []Renderer
	WarnThreshold int    // defaults to DefaultWarnThreshold
	OperatorName  string // sender label for operator messages, defaults to "You"
	LoopAgent     string // agent for loops and reply requests in rooms with no known members
}

// Controller serializes operator actions and their results behind one event
// lock. Network calls run outside the lock; their results re-enter it.
type Controller struct {
	mu sync.Mutex

	backend    Backend
	recognizer Recognizer
	draft      *Draft
	speech     *Accumulator
	gate       *ReviewGate
	dispatcher *Dispatcher
	loops      *LoopController
	store      *Store
	machine    *Machine
	transcript *Transcript

	operator  string
	loopAgent string
	targets   []Target
	selected  Target
	mode      string
	tone      string
	review    bool
	inflight  int

	// stopping is closed once the last recognizer stop has returned.
	stopping chan struct{}

	changes chan struct{}
}

// NewController creates a Controller.
func NewController(opts ControllerOpts) (*Controller, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("relay: controller: backend is required")
	}
	operator := opts.OperatorName
	if operator == "" {
		operator = "You"
	}
	draft := &Draft{}
	store := NewStore()
	dispatcher := NewDispatcher(opts.Backend, store, opts.WarnThreshold)
	return &Controller{
		backend:    opts.Backend,
		recognizer: opts.Recognizer,
		draft:      draft,
		speech:     NewAccumulator(draft, opts.Recognizer != nil),
		gate:       NewReviewGate(opts.Backend, dispatcher),
		dispatcher: dispatcher,
		loops:      NewLoopController(opts.Backend, store),
		store:      store,
		machine:    NewMachine(),
		transcript: NewTranscript(opts.Renderers...),
		operator:   operator,
		loopAgent:  opts.LoopAgent,
		mode:       "plaintext",
		tone:       "casual",
		changes:    make(chan struct{}, 1),
	}, nil
}

// Changes delivers a signal whenever visible state may have changed.
// Signals coalesce; read View after each one.
func (c *Controller) Changes() <-chan struct{} {
	return c.changes
}

func (c *Controller) notify() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// --- transcript helpers (lock held) ---

func (c *Controller) appendLocked(msg ChatMessage) {
	c.transcript.Append(msg)
	c.notify()
}

func (c *Controller) systemLocked(text string) {
	c.appendLocked(ChatMessage{Sender: "system", Text: text, Role: RoleSystem})
}

func (c *Controller) failLocked(err error) {
	if !IsValidation(err) {
		log.Printf("relay: %v", err)
	}
	c.appendLocked(ChatMessage{Sender: "system", Text: Describe(err), Role: RoleError})
}

// --- state machine helpers (lock held) ---

// restoreLocked re-derives the foreground state once the machine is idle,
// so background activity is not lost when a foreground one ends.
func (c *Controller) restoreLocked() {
	if c.machine.State() != StateIdle {
		return
	}
	switch {
	case c.inflight > 0:
		c.machine.Fire(EvDispatchStart)
	case c.hasPendingLocked():
		c.machine.Fire(EvReviewReady)
	case c.selectedLoopLocked():
		c.machine.Fire(EvLoopStarted)
	case c.speech.Recording():
		c.machine.Fire(EvCaptureStart)
	}
}

func (c *Controller) hasPendingLocked() bool {
	_, ok := c.gate.Pending()
	return ok
}

func (c *Controller) selectedLoopLocked() bool {
	if !c.selected.IsRoom() {
		return false
	}
	ls, ok := c.store.Loop(c.selected)
	return ok && ls.Phase == LoopRunning
}

func (c *Controller) beginFlightLocked() {
	c.inflight++
	c.machine.Fire(EvDispatchStart)
	c.notify()
}

func (c *Controller) endFlightLocked() {
	c.inflight--
	if c.inflight == 0 {
		c.machine.Fire(EvDispatchSettled)
		c.restoreLocked()
	}
	c.notify()
}

// --- targets ---

// Refresh reloads the target directory from the gateway. The first target
// is selected if none is.
func (c *Controller) Refresh(ctx context.Context) error {
	targets, err := c.backend.Targets(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.failLocked(err)
		return err
	}
	c.targets = targets
	if c.selected.ID == "" && len(targets) > 0 {
		c.selected = targets[0]
		c.restoreLocked()
	}
	c.notify()
	return nil
}

// Targets returns the known targets.
func (c *Controller) Targets() []Target {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Target, len(c.targets))
	copy(out, c.targets)
	return out
}

// Select makes t the active target.
func (c *Controller) Select(t Target) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = t
	if c.machine.State() == StateLoopRunning {
		c.machine.Fire(EvLoopEnded)
	}
	c.restoreLocked()
	c.notify()
}

// Selected returns the active target.
func (c *Controller) Selected() Target {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

func (c *Controller) lookupLocked(kind TargetKind, id string) Target {
	for _, t := range c.targets {
		if t.Kind == kind && t.ID == id {
			return t
		}
	}
	return Target{Kind: kind, ID: id}
}

func (c *Controller) replyAgentLocked(room Target) string {
	if len(room.Members) > 0 {
		return room.Members[0]
	}
	return c.loopAgent
}

// --- draft and settings ---

// SetDraft replaces the draft with operator-typed text.
func (c *Controller) SetDraft(text string) {
	c.draft.Set(text)
}

// Draft returns the current draft.
func (c *Controller) Draft() string {
	return c.draft.Text()
}

// Cancel clears the draft.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft.Clear()
	c.notify()
}

// SetMode selects the room send mode: plaintext, code or url.
func (c *Controller) SetMode(mode string) error {
	switch mode {
	case "plaintext", "code", "url":
	default:
		return invalid("mode", "Unknown send mode "+mode+".")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = mode
	c.notify()
	return nil
}

// SetTone selects the polish tone, e.g. casual or formal.
func (c *Controller) SetTone(tone string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tone = strings.TrimSpace(tone); tone != "" {
		c.tone = tone
	}
	c.notify()
}

// SetReview turns the polish-and-review step on or off for Send.
func (c *Controller) SetReview(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.review = on
	c.notify()
}

// --- send ---

// Send dispatches the draft to the selected target, or submits it for
// polishing first when review is on.
func (c *Controller) Send(ctx context.Context) error {
	c.mu.Lock()
	text := c.draft.Text()
	target := c.selected
	mode := c.mode
	review := c.review
	c.mu.Unlock()

	if review {
		return c.submit(ctx, text, target)
	}
	return c.dispatch(ctx, DispatchRequest{Target: target, Text: text, Mode: mode}, true)
}

func (c *Controller) dispatch(ctx context.Context, req DispatchRequest, fromDraft bool) error {
	c.mu.Lock()
	if err := c.dispatcher.Validate(req); err != nil {
		c.failLocked(err)
		c.mu.Unlock()
		return err
	}
	release, err := c.dispatcher.Reserve(req.Target)
	if err != nil {
		c.failLocked(err)
		c.mu.Unlock()
		return err
	}
	c.appendLocked(ChatMessage{Sender: c.operator, Text: req.Text, Role: RoleUser})
	if c.dispatcher.NeedsWarning(req) {
		c.systemLocked(fmt.Sprintf("This message is %d characters; it will reach %s in several parts.",
			utf8.RuneCountInString(req.Text), req.Target.Label()))
	}
	ph := c.transcript.Begin("Sending to " + req.Target.Label() + "...")
	c.beginFlightLocked()
	c.mu.Unlock()

	out, err := c.dispatcher.Send(ctx, req)
	release()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript.Settle(ph)
	c.endFlightLocked()
	if err != nil {
		c.failLocked(err)
		return err
	}
	// Text spoken or typed while the request was in flight is kept.
	if fromDraft && c.draft.Text() == req.Text {
		c.draft.Clear()
	}
	c.renderOutcomeLocked(req.Target, out)
	return nil
}

func (c *Controller) renderOutcomeLocked(target Target, out Outcome) {
	switch out.Kind {
	case OutcomeChunked:
		c.systemLocked(partsNotice(target, out.Parts))
	case OutcomeNoReply:
		c.systemLocked(fmt.Sprintf("Sent to %s; no reply.", target.Label()))
	case OutcomeReplied:
		if out.Parts > 1 {
			c.systemLocked(partsNotice(target, out.Parts))
		}
		from := out.From
		if from == "" {
			from = target.Label()
		}
		c.appendLocked(ChatMessage{Sender: from, Text: out.Reply, Role: RoleAgent})
	}
}

func partsNotice(target Target, parts int) string {
	if parts > 1 {
		return fmt.Sprintf("Message sent to %s in multiple parts (%d).", target.Label(), parts)
	}
	return fmt.Sprintf("Message sent to %s in multiple parts.", target.Label())
}

// --- review ---

func (c *Controller) submit(ctx context.Context, text string, target Target) error {
	c.mu.Lock()
	tone, mode := c.tone, c.mode
	var err error
	switch {
	case strings.TrimSpace(text) == "":
		err = invalid("draft", "Nothing to polish.")
	case target.validate() != nil:
		err = target.validate()
	case c.hasPendingLocked():
		err = invalid("review", "Approve or discard the polished draft first.")
	case c.gate.Busy():
		err = ErrBusy
	}
	if err != nil {
		c.failLocked(err)
		c.mu.Unlock()
		return err
	}
	c.appendLocked(ChatMessage{Sender: c.operator, Text: text, Role: RoleUser})
	c.draft.Clear()
	ph := c.transcript.Begin("Polishing...")
	c.mu.Unlock()

	pr, err := c.gate.Submit(ctx, text, tone, mode, target)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript.Settle(ph)
	if err != nil {
		c.failLocked(err)
		if c.draft.Text() == "" {
			c.draft.Set(text)
		}
		c.notify()
		return err
	}
	c.machine.Fire(EvReviewReady)
	c.systemLocked(fmt.Sprintf("Polished draft for %s is ready for review.", pr.Target.Label()))
	return nil
}

// Pending returns the review awaiting a decision, if any.
func (c *Controller) Pending() (PendingReview, bool) {
	return c.gate.Pending()
}

// Approve sends the polished text of the pending review with id.
func (c *Controller) Approve(ctx context.Context, id string) error {
	c.mu.Lock()
	pr, err := c.gate.Release(id)
	if err != nil {
		c.failLocked(err)
		c.mu.Unlock()
		return err
	}
	c.machine.Fire(EvReviewClosed)
	c.restoreLocked()
	c.mu.Unlock()

	err = c.dispatch(ctx, DispatchRequest{Target: pr.Target, Text: pr.Polished, Mode: pr.Mode}, false)
	if err != nil {
		c.mu.Lock()
		// Keep the polished text so the operator can retry.
		if c.draft.Text() == "" {
			c.draft.Set(pr.Polished)
		}
		c.notify()
		c.mu.Unlock()
	}
	return err
}

// Discard drops the pending review with id without sending.
func (c *Controller) Discard(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.gate.Discard(id); err != nil {
		c.failLocked(err)
		return err
	}
	c.machine.Fire(EvReviewClosed)
	c.restoreLocked()
	c.systemLocked("Polished draft discarded.")
	return nil
}

// --- reply requests ---

// RequestReply asks an agent in the selected room to speak.
func (c *Controller) RequestReply(ctx context.Context) error {
	c.mu.Lock()
	room := c.selected
	if err := room.validate(); err != nil {
		c.failLocked(err)
		c.mu.Unlock()
		return err
	}
	if !room.IsRoom() {
		err := invalid("target", "Reply requests only work in rooms.")
		c.failLocked(err)
		c.mu.Unlock()
		return err
	}
	release, err := c.dispatcher.Reserve(room)
	if err != nil {
		c.failLocked(err)
		c.mu.Unlock()
		return err
	}
	agentID := c.replyAgentLocked(room)
	contextText := c.draft.Text()
	ph := c.transcript.Begin("Waiting for a reply in " + room.Label() + "...")
	c.beginFlightLocked()
	c.mu.Unlock()

	out, err := c.dispatcher.SendReplyRequest(ctx, room, agentID, contextText)
	release()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript.Settle(ph)
	c.endFlightLocked()
	if err != nil {
		c.failLocked(err)
		return err
	}
	if out.Kind == OutcomeReplied && out.From == "" && agentID != "" {
		out.From = c.lookupLocked(KindAgent, agentID).Label()
	}
	c.renderOutcomeLocked(room, out)
	return nil
}

// --- loops ---

// StartLoop starts a gateway-run loop in the selected room using the draft
// as the opening prompt.
func (c *Controller) StartLoop(ctx context.Context, durationText string) error {
	c.mu.Lock()
	room := c.selected
	prompt := c.draft.Text()
	tone := c.tone
	agentID := c.replyAgentLocked(room)
	ph := c.transcript.Begin("Starting loop...")
	c.notify()
	c.mu.Unlock()

	status, err := c.loops.Start(ctx, room, agentID, prompt, durationText, tone)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript.Settle(ph)
	if err != nil {
		c.failLocked(err)
		return err
	}
	if c.draft.Text() == prompt {
		c.draft.Clear()
	}
	if status == "" {
		status = fmt.Sprintf("Loop started in %s.", room.Label())
	}
	c.systemLocked(status)
	if c.selected.Key() == room.Key() {
		c.machine.Fire(EvLoopStarted)
	}
	return nil
}

// StopLoop stops the loop in the selected room.
func (c *Controller) StopLoop(ctx context.Context) error {
	c.mu.Lock()
	room := c.selected
	ph := c.transcript.Begin("Stopping loop...")
	c.notify()
	c.mu.Unlock()

	status, err := c.loops.Stop(ctx, room)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript.Settle(ph)
	if err != nil {
		c.failLocked(err)
		return err
	}
	if status == "" {
		status = fmt.Sprintf("Loop stopped in %s.", room.Label())
	}
	c.systemLocked(status)
	if c.selected.Key() == room.Key() {
		c.machine.Fire(EvLoopEnded)
		c.restoreLocked()
	}
	return nil
}

// LoopEnded records a loop that ended on the gateway (duration elapsed,
// stopped elsewhere, or failed).
func (c *Controller) LoopEnded(roomID, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	room := c.lookupLocked(KindRoom, roomID)
	if !c.loops.Ended(room) {
		return
	}
	msg := fmt.Sprintf("Loop in %s ended.", room.Label())
	if reason != "" {
		msg = fmt.Sprintf("Loop in %s ended: %s", room.Label(), reason)
	}
	c.systemLocked(msg)
	if c.selected.Key() == room.Key() {
		c.machine.Fire(EvLoopEnded)
		c.restoreLocked()
	}
}

// LoopTurn shows one agent reply produced by a running loop.
func (c *Controller) LoopTurn(roomID, agentName, reply string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	room := c.lookupLocked(KindRoom, roomID)
	from := agentName
	if from == "" {
		from = room.Label()
	}
	c.appendLocked(ChatMessage{Sender: from + " (loop)", Text: reply, Role: RoleAgent})
}

// --- speech ---

// ToggleRecording starts a capture session, or stops the running one.
// Without a recognizer it returns ErrCapabilityUnavailable and leaves the
// transcript alone.
func (c *Controller) ToggleRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.speech.Recording() {
		stop := c.stopCaptureLocked()
		c.mu.Unlock()
		stop()
		return nil
	}
	session, err := c.speech.Start()
	if err != nil {
		if !errors.Is(err, ErrCapabilityUnavailable) {
			c.failLocked(err)
		}
		c.mu.Unlock()
		return err
	}
	wait := c.stopping
	c.notify()
	c.mu.Unlock()

	if wait != nil {
		<-wait
	}
	events, err := c.recognizer.Start(ctx)

	c.mu.Lock()
	if err != nil {
		c.speech.End(session)
		c.failLocked(fmt.Errorf("start speech capture: %w", err))
		c.mu.Unlock()
		return err
	}
	if !c.speech.Active(session) {
		// Stopped while the recognizer was starting.
		stop := c.recognizerStopLocked()
		c.mu.Unlock()
		stop()
		return nil
	}
	c.machine.Fire(EvCaptureStart)
	c.notify()
	c.mu.Unlock()
	go c.pump(session, events)
	return nil
}

// Recording reports whether speech capture is active.
func (c *Controller) Recording() bool {
	return c.speech.Recording()
}

func (c *Controller) pump(session uint64, events <-chan RecognitionEvent) {
	for ev := range events {
		c.mu.Lock()
		if ev.Err != nil {
			if c.speech.End(session) {
				c.failLocked(fmt.Errorf("speech capture: %w", ev.Err))
				c.machine.Fire(EvCaptureEnd)
				c.restoreLocked()
			}
		} else if c.speech.Handle(session, ev) {
			c.notify()
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.speech.End(session) {
		c.machine.Fire(EvCaptureEnd)
		c.restoreLocked()
		c.notify()
	}
}

// stopCaptureLocked ends the capture session and returns the recognizer
// stop, which can wait for the capture process to exit. Run it after
// releasing c.mu.
func (c *Controller) stopCaptureLocked() func() {
	if !c.speech.Stop() {
		return func() {}
	}
	c.machine.Fire(EvCaptureEnd)
	c.restoreLocked()
	c.notify()
	return c.recognizerStopLocked()
}

// recognizerStopLocked queues a recognizer stop behind any earlier one.
func (c *Controller) recognizerStopLocked() func() {
	prev := c.stopping
	done := make(chan struct{})
	c.stopping = done
	return func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		if err := c.recognizer.Stop(); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("relay: stop recognizer: %v", err)
		}
	}
}

// Close stops speech capture if it is running.
func (c *Controller) Close() {
	c.mu.Lock()
	stop := func() {}
	if c.speech.Recording() {
		stop = c.stopCaptureLocked()
	}
	c.mu.Unlock()
	stop()
}

// --- view ---

// View is a snapshot of everything the console renders.
type View struct {
	State           State
	Target          Target
	Targets         []Target
	Draft           string
	Mode            string
	Tone            string
	Review          bool
	Recording       bool
	SpeechAvailable bool
	Busy            bool
	Loop            *LoopSession
	Pending         *PendingReview
	Messages        []ChatMessage
	Placeholders    []string
}

// View returns a consistent snapshot of the controller.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		State:           c.machine.State(),
		Target:          c.selected,
		Targets:         append([]Target(nil), c.targets...),
		Draft:           c.draft.Text(),
		Mode:            c.mode,
		Tone:            c.tone,
		Review:          c.review,
		Recording:       c.speech.Recording(),
		SpeechAvailable: c.speech.Available(),
		Busy:            c.selected.ID != "" && c.dispatcher.Busy(c.selected),
		Messages:        c.transcript.Messages(),
		Placeholders:    c.transcript.Placeholders(),
	}
	if c.selected.IsRoom() {
		if ls, ok := c.store.Loop(c.selected); ok {
			v.Loop = &ls
		}
	}
	if pr, ok := c.gate.Pending(); ok {
		v.Pending = &pr
	}
	return v
}
