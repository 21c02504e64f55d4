package console

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Send         key.Binding
	Cancel       key.Binding
	Review       key.Binding
	Approve      key.Binding
	Discard      key.Binding
	RequestReply key.Binding
	StartLoop    key.Binding
	StopLoop     key.Binding
	Record       key.Binding
	Mode         key.Binding
	Tone         key.Binding
	NextTarget   key.Binding
	PrevTarget   key.Binding
	Refresh      key.Binding
	ScrollUp     key.Binding
	ScrollDown   key.Binding
	Quit         key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Send:         key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		Cancel:       key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "clear")),
		Review:       key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("^r", "review")),
		Approve:      key.NewBinding(key.WithKeys("ctrl+a"), key.WithHelp("^a", "approve")),
		Discard:      key.NewBinding(key.WithKeys("ctrl+d"), key.WithHelp("^d", "discard")),
		RequestReply: key.NewBinding(key.WithKeys("ctrl+y"), key.WithHelp("^y", "ask reply")),
		StartLoop:    key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("^l", "loop")),
		StopLoop:     key.NewBinding(key.WithKeys("ctrl+k"), key.WithHelp("^k", "stop loop")),
		Record:       key.NewBinding(key.WithKeys("ctrl+t"), key.WithHelp("^t", "talk")),
		Mode:         key.NewBinding(key.WithKeys("ctrl+e"), key.WithHelp("^e", "mode")),
		Tone:         key.NewBinding(key.WithKeys("ctrl+o"), key.WithHelp("^o", "tone")),
		NextTarget:   key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next target")),
		PrevTarget:   key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("S-tab", "prev target")),
		Refresh:      key.NewBinding(key.WithKeys("ctrl+g"), key.WithHelp("^g", "reload targets")),
		ScrollUp:     key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll")),
		ScrollDown:   key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "scroll")),
		Quit:         key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("^c", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.Review, k.Approve, k.Discard, k.RequestReply, k.StartLoop, k.StopLoop, k.Record, k.NextTarget, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Send, k.Cancel, k.Review, k.Approve, k.Discard},
		{k.RequestReply, k.StartLoop, k.StopLoop, k.Record},
		{k.Mode, k.Tone, k.NextTarget, k.PrevTarget, k.Refresh},
		{k.ScrollUp, k.ScrollDown, k.Quit},
	}
}
