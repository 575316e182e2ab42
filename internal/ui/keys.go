package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the application.
type keyMap struct {
	Quit       key.Binding
	Help       key.Binding
	CycleTheme key.Binding

	ViewOverview     key.Binding
	ViewAccessPoints key.Binding
	ViewStations     key.Binding
	ViewRoaming      key.Binding
	ViewLogs         key.Binding
	NextView         key.Binding

	Up     key.Binding
	Down   key.Binding
	Top    key.Binding
	Bottom key.Binding

	Refresh    key.Binding
	Reboot     key.Binding
	Disconnect key.Binding
	Drain      key.Binding
	ClearCache key.Binding
}

// defaultKeyMap returns the default key bindings.
func defaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "Quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "Toggle help"),
		),
		CycleTheme: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "Cycle theme"),
		),

		ViewOverview: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "Overview"),
		),
		ViewAccessPoints: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "Access points"),
		),
		ViewStations: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "Stations"),
		),
		ViewRoaming: key.NewBinding(
			key.WithKeys("4"),
			key.WithHelp("4", "Roaming"),
		),
		ViewLogs: key.NewBinding(
			key.WithKeys("5"),
			key.WithHelp("5", "Logs"),
		),
		NextView: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "Next view"),
		),

		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/up", "Move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/down", "Move down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "Go to top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "Go to bottom"),
		),

		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Refresh now"),
		),
		Reboot: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "Reboot selected AP"),
		),
		Disconnect: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "Disconnect selected station"),
		),
		Drain: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "Send queued changes"),
		),
		ClearCache: key.NewBinding(
			key.WithKeys("C"),
			key.WithHelp("C", "Clear cache"),
		),
	}
}

// helpSections groups bindings for the help overlay.
func (k keyMap) helpSections() []helpSection {
	return []helpSection{
		{title: "Views", bindings: []key.Binding{k.ViewOverview, k.ViewAccessPoints, k.ViewStations, k.ViewRoaming, k.ViewLogs, k.NextView}},
		{title: "Navigation", bindings: []key.Binding{k.Up, k.Down, k.Top, k.Bottom}},
		{title: "Actions", bindings: []key.Binding{k.Refresh, k.Reboot, k.Disconnect, k.Drain, k.ClearCache}},
		{title: "General", bindings: []key.Binding{k.CycleTheme, k.Help, k.Quit}},
	}
}
