package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Focus    key.Binding
	Enter    key.Binding
	Upload   key.Binding
	Download key.Binding
	Logout   key.Binding
	Refresh  key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Focus: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "focus"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("⏎", "submit/load"),
	),
	Upload: key.NewBinding(
		key.WithKeys("ctrl+u"),
		key.WithHelp("ctrl+u", "upload csv"),
	),
	Download: key.NewBinding(
		key.WithKeys("ctrl+d"),
		key.WithHelp("ctrl+d", "download report"),
	),
	Logout: key.NewBinding(
		key.WithKeys("ctrl+l"),
		key.WithHelp("ctrl+l", "logout"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("ctrl+r"),
		key.WithHelp("ctrl+r", "refresh"),
	),
	Quit: key.NewBinding(
		key.WithKeys("esc", "ctrl+c"),
		key.WithHelp("esc", "quit"),
	),
}

func (k keyMap) dashboardHelp() []key.Binding {
	return []key.Binding{k.Focus, k.Enter, k.Upload, k.Download, k.Refresh, k.Logout, k.Quit}
}
