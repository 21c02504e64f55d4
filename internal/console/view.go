package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/zulandar/switchboard/internal/relay"
)

type theme struct {
	header   lipgloss.Style
	accent   lipgloss.Style
	muted    lipgloss.Style
	user     lipgloss.Style
	agent    lipgloss.Style
	system   lipgloss.Style
	errorMsg lipgloss.Style
	review   lipgloss.Style
	input    lipgloss.Style
	status   lipgloss.Style
	rec      lipgloss.Style
}

func newTheme() theme {
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	pink := lipgloss.Color("#ff71ce")
	amber := lipgloss.Color("#ffb86c")
	muted := lipgloss.Color("#9ca3d8")

	return theme{
		header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#f3f3ff")).
			Background(lipgloss.Color("#2a184a")).
			Padding(0, 1),
		accent:   lipgloss.NewStyle().Foreground(mint),
		muted:    lipgloss.NewStyle().Foreground(muted),
		user:     lipgloss.NewStyle().Foreground(blue).Bold(true),
		agent:    lipgloss.NewStyle().Foreground(mint).Bold(true),
		system:   lipgloss.NewStyle().Foreground(muted).Italic(true),
		errorMsg: lipgloss.NewStyle().Foreground(pink).Bold(true),
		review: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(amber).
			Padding(0, 1),
		input: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue),
		status: lipgloss.NewStyle().Foreground(amber),
		rec:    lipgloss.NewStyle().Foreground(pink).Bold(true).Blink(true),
	}
}

// layout sizes the transcript to whatever the fixed panes leave over.
func (m *model) layout() {
	w := m.width
	if w < 20 {
		w = 20
	}
	m.input.SetWidth(w - 2)
	m.duration.Width = w - 20

	used := 1 + m.input.Height() + 2 + 2 // header, input box, footer
	if m.view.Pending != nil {
		used += lipgloss.Height(m.renderPending())
	}
	h := m.height - used
	if h < 3 {
		h = 3
	}
	m.transcript.Width = w
	m.transcript.Height = h
}

func (m *model) renderTranscript() {
	width := m.transcript.Width
	if width < 10 {
		width = 10
	}
	wrap := lipgloss.NewStyle().Width(width)

	var b strings.Builder
	for _, msg := range m.view.Messages {
		b.WriteString(wrap.Render(m.formatMessage(msg)))
		b.WriteByte('\n')
	}
	for _, p := range m.view.Placeholders {
		b.WriteString(m.theme.muted.Render("… " + p))
		b.WriteByte('\n')
	}

	atBottom := m.atBottom || m.transcript.AtBottom()
	m.transcript.SetContent(b.String())
	if atBottom {
		m.transcript.GotoBottom()
		m.atBottom = true
	}
}

func (m model) formatMessage(msg relay.ChatMessage) string {
	stamp := m.theme.muted.Render(msg.At.Format("15:04"))
	switch msg.Role {
	case relay.RoleUser:
		return fmt.Sprintf("%s %s %s", stamp, m.theme.user.Render(msg.Sender+":"), msg.Text)
	case relay.RoleAgent:
		return fmt.Sprintf("%s %s %s", stamp, m.theme.agent.Render(msg.Sender+":"), msg.Text)
	case relay.RoleError:
		return fmt.Sprintf("%s %s", stamp, m.theme.errorMsg.Render(msg.Text))
	default:
		return fmt.Sprintf("%s %s", stamp, m.theme.system.Render(msg.Text))
	}
}

func (m model) renderHeader() string {
	v := m.view
	target := "no target"
	if v.Target.ID != "" {
		target = fmt.Sprintf("%s (%s)", v.Target.Label(), v.Target.Kind)
	}
	parts := []string{
		"Switchboard",
		target,
		"mode: " + v.Mode,
		"tone: " + v.Tone,
	}
	if v.Review {
		parts = append(parts, "review: on")
	} else {
		parts = append(parts, "review: off")
	}
	if v.Loop != nil {
		left := time.Until(v.Loop.ExpiresAt()).Round(time.Second)
		if left < 0 {
			left = 0
		}
		parts = append(parts, fmt.Sprintf("loop: %s, %s left", v.Loop.Phase, left))
	}
	return m.theme.header.Width(m.width).Render(strings.Join(parts, " · "))
}

func (m model) renderPending() string {
	p := m.view.Pending
	if p == nil {
		return ""
	}
	width := m.width - 4
	if width < 10 {
		width = 10
	}
	body := lipgloss.NewStyle().Width(width).Render(p.Polished)
	title := m.theme.status.Render(fmt.Sprintf("Polished for %s (%s)", p.Target.Label(), p.Tone))
	hint := m.theme.muted.Render("^a approve · ^d discard")
	return m.theme.review.Render(title + "\n" + body + "\n" + hint)
}

func (m model) renderFooter() string {
	var left []string
	if m.running > 0 || m.view.Busy {
		left = append(left, m.spinner.View())
	}
	if m.view.Recording {
		left = append(left, m.theme.rec.Render("● REC"))
	} else if !m.view.SpeechAvailable {
		left = append(left, m.theme.muted.Render("mic off"))
	}
	if !m.live {
		left = append(left, m.theme.muted.Render("no live events"))
	}
	if m.status != "" {
		left = append(left, m.theme.status.Render(m.status))
	}
	return strings.Join(left, " ") + "\n" + m.help.View(m.keys)
}

func (m model) View() string {
	var input string
	if m.prompt == promptLoopDuration {
		input = m.theme.input.Render(m.duration.View())
	} else {
		input = m.theme.input.Render(m.input.View())
	}
	sections := []string{m.renderHeader(), m.transcript.View()}
	if pending := m.renderPending(); pending != "" {
		sections = append(sections, pending)
	}
	sections = append(sections, input, m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
