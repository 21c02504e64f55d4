// Package console is the operator's terminal UI. It renders a
// relay.Controller and maps keys to its operations; all state lives in the
// controller.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/zulandar/switchboard/internal/gateway"
	"github.com/zulandar/switchboard/internal/relay"
)

// EventSource streams gateway events such as loop turns.
type EventSource interface {
	Events(ctx context.Context) (<-chan gateway.Event, error)
}

// Opts holds parameters for running the console.
type Opts struct {
	Controller *relay.Controller
	Events     EventSource // optional; loops still run without it
	LogFile    string      // defaults to "switchboard-console.log"
}

// Run shows the console until the operator quits or ctx is cancelled. Log
// output goes to LogFile so it does not corrupt the screen.
func Run(ctx context.Context, opts Opts) error {
	if opts.Controller == nil {
		return fmt.Errorf("console: controller is required")
	}
	logFile := opts.LogFile
	if logFile == "" {
		logFile = "switchboard-console.log"
	}
	f, err := tea.LogToFile(logFile, "console")
	if err != nil {
		return fmt.Errorf("console: log file: %w", err)
	}
	defer f.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var events <-chan gateway.Event
	if opts.Events != nil {
		events, err = opts.Events.Events(ctx)
		if err != nil {
			log.Printf("console: live events unavailable: %v", err)
		}
	}

	p := tea.NewProgram(newModel(ctx, opts.Controller, events), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("console: %w", err)
	}
	return nil
}

var (
	modes = []string{"plaintext", "code", "url"}
	tones = []string{"casual", "formal", "friendly", "concise"}
)

type prompt int

const (
	promptDraft prompt = iota
	promptLoopDuration
)

type (
	changedMsg      struct{}
	eventMsg        gateway.Event
	eventsClosedMsg struct{}
	doneMsg         struct {
		op  string
		err error
	}
)

type model struct {
	ctx    context.Context
	ctrl   *relay.Controller
	events <-chan gateway.Event

	view       relay.View
	input      textarea.Model
	duration   textinput.Model
	transcript viewport.Model
	spinner    spinner.Model
	help       help.Model
	keys       keyMap
	theme      theme

	prompt   prompt
	status   string
	running  int
	live     bool
	width    int
	height   int
	atBottom bool
}

func newModel(ctx context.Context, ctrl *relay.Controller, events <-chan gateway.Event) model {
	input := textarea.New()
	input.Placeholder = "Say something..."
	input.ShowLineNumbers = false
	input.CharLimit = 0
	input.MaxHeight = 0
	input.SetHeight(3)
	input.KeyMap.InsertNewline.SetKeys("alt+enter", "ctrl+j")
	input.Focus()

	duration := textinput.New()
	duration.Prompt = "Loop duration: "
	duration.Placeholder = "seconds, e.g. 300"

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	th := newTheme()
	sp.Style = th.accent

	m := model{
		ctx:        ctx,
		ctrl:       ctrl,
		events:     events,
		input:      input,
		duration:   duration,
		transcript: viewport.New(80, 20),
		spinner:    sp,
		help:       help.New(),
		keys:       defaultKeys(),
		theme:      th,
		live:       events != nil,
		running:    1, // initial target load from Init
		width:      80,
		height:     24,
		atBottom:   true,
	}
	m.sync()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		waitChange(m.ctrl.Changes()),
		waitEvent(m.events),
		runOp(m.ctx, "load targets", m.ctrl.Refresh),
	)
}

func waitChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changedMsg{}
	}
}

func waitEvent(ch <-chan gateway.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

// runOp runs a controller operation off the UI goroutine.
func runOp(ctx context.Context, op string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return doneMsg{op: op, err: fn(ctx)}
	}
}

// run starts op and counts it until its doneMsg arrives.
func (m model) run(op string, fn func(ctx context.Context) error) (tea.Model, tea.Cmd) {
	m.running++
	return m, runOp(m.ctx, op, fn)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.layout()
		m.renderTranscript()
		return m, nil

	case changedMsg:
		m.sync()
		return m, waitChange(m.ctrl.Changes())

	case eventMsg:
		m.handleEvent(gateway.Event(msg))
		return m, waitEvent(m.events)

	case eventsClosedMsg:
		m.live = false
		m.events = nil
		return m, nil

	case doneMsg:
		if m.running > 0 {
			m.running--
		}
		if msg.err != nil {
			m.status = relay.Describe(msg.err)
		} else {
			m.status = ""
		}
		m.sync()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.prompt == promptLoopDuration {
			return m.updateDurationPrompt(msg)
		}
		return m.updateKeys(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) updateDurationPrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		text := m.duration.Value()
		m.closeDurationPrompt()
		return m.run("start loop", func(ctx context.Context) error {
			return m.ctrl.StartLoop(ctx, text)
		})
	case tea.KeyEsc:
		m.closeDurationPrompt()
		return m, nil
	case tea.KeyCtrlC:
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.duration, cmd = m.duration.Update(msg)
	return m, cmd
}

func (m *model) closeDurationPrompt() {
	m.prompt = promptDraft
	m.duration.Reset()
	m.duration.Blur()
	m.input.Focus()
}

func (m model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Send):
		m.ctrl.SetDraft(m.input.Value())
		return m.run("send", m.ctrl.Send)

	case key.Matches(msg, m.keys.Cancel):
		m.ctrl.Cancel()
		m.input.Reset()
		m.status = ""
		return m, nil

	case key.Matches(msg, m.keys.Review):
		m.ctrl.SetReview(!m.view.Review)
		return m, nil

	case key.Matches(msg, m.keys.Approve):
		if m.view.Pending == nil {
			m.status = "Nothing is waiting for review."
			return m, nil
		}
		id := m.view.Pending.ID
		return m.run("approve", func(ctx context.Context) error {
			return m.ctrl.Approve(ctx, id)
		})

	case key.Matches(msg, m.keys.Discard):
		if m.view.Pending == nil {
			m.status = "Nothing is waiting for review."
			return m, nil
		}
		if err := m.ctrl.Discard(m.view.Pending.ID); err != nil {
			m.status = relay.Describe(err)
		}
		return m, nil

	case key.Matches(msg, m.keys.RequestReply):
		m.ctrl.SetDraft(m.input.Value())
		return m.run("request reply", m.ctrl.RequestReply)

	case key.Matches(msg, m.keys.StartLoop):
		if !m.view.Target.IsRoom() {
			m.status = "Loops run in rooms; select a room first."
			return m, nil
		}
		m.ctrl.SetDraft(m.input.Value())
		m.prompt = promptLoopDuration
		m.input.Blur()
		cmd := m.duration.Focus()
		return m, cmd

	case key.Matches(msg, m.keys.StopLoop):
		return m.run("stop loop", m.ctrl.StopLoop)

	case key.Matches(msg, m.keys.Record):
		return m.run("record", m.ctrl.ToggleRecording)

	case key.Matches(msg, m.keys.Mode):
		if err := m.ctrl.SetMode(next(modes, m.view.Mode)); err != nil {
			m.status = relay.Describe(err)
		}
		return m, nil

	case key.Matches(msg, m.keys.Tone):
		m.ctrl.SetTone(next(tones, m.view.Tone))
		return m, nil

	case key.Matches(msg, m.keys.NextTarget), key.Matches(msg, m.keys.PrevTarget):
		m.cycleTarget(key.Matches(msg, m.keys.PrevTarget))
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		return m.run("load targets", m.ctrl.Refresh)

	case key.Matches(msg, m.keys.ScrollUp), key.Matches(msg, m.keys.ScrollDown):
		var cmd tea.Cmd
		m.transcript, cmd = m.transcript.Update(msg)
		m.atBottom = m.transcript.AtBottom()
		return m, cmd
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if after := m.input.Value(); after != before {
		m.ctrl.SetDraft(after)
	}
	return m, cmd
}

func (m *model) cycleTarget(back bool) {
	targets := m.view.Targets
	if len(targets) == 0 {
		m.status = "No targets loaded."
		return
	}
	i := 0
	for j, t := range targets {
		if t.Key() == m.view.Target.Key() {
			i = j
			break
		}
	}
	if back {
		i = (i - 1 + len(targets)) % len(targets)
	} else {
		i = (i + 1) % len(targets)
	}
	m.ctrl.Select(targets[i])
}

// next returns the entry after cur in list, wrapping around.
func next(list []string, cur string) string {
	for i, v := range list {
		if v == cur {
			return list[(i+1)%len(list)]
		}
	}
	return list[0]
}

// handleEvent feeds gateway loop events into the controller.
func (m *model) handleEvent(ev gateway.Event) {
	switch ev.Event {
	case gateway.EventLoopTurn, gateway.EventLoopEnded:
	default:
		return
	}
	var le gateway.LoopEvent
	if err := json.Unmarshal(ev.Payload, &le); err != nil {
		log.Printf("console: bad %s payload: %v", ev.Event, err)
		return
	}
	if ev.Event == gateway.EventLoopTurn {
		m.ctrl.LoopTurn(le.RoomID, le.AgentName, le.Reply)
	} else {
		m.ctrl.LoopEnded(le.RoomID, le.Reason)
	}
}

// sync pulls a fresh snapshot from the controller.
func (m *model) sync() {
	m.view = m.ctrl.View()
	m.keys.Record.SetEnabled(m.view.SpeechAvailable)
	m.keys.Send.SetEnabled(!m.view.Busy)
	m.keys.RequestReply.SetEnabled(!m.view.Busy)
	if m.view.Draft != m.input.Value() {
		m.input.SetValue(m.view.Draft)
	}
	m.layout()
	m.renderTranscript()
}
