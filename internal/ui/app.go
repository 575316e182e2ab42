package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/beacon/internal/logtail"
	"github.com/five82/beacon/internal/prefs"
	"github.com/five82/beacon/internal/presence"
	"github.com/five82/beacon/internal/state"
	"github.com/five82/beacon/internal/syncqueue"
)

// View represents the current active view.
type View int

const (
	ViewOverview View = iota
	ViewAccessPoints
	ViewStations
	ViewRoaming
	ViewLogs
	viewCount
)

var viewNames = [...]string{"overview", "aps", "stations", "roaming", "logs"}

var viewTitles = [...]string{"Overview", "Access Points", "Stations", "Roaming", "Logs"}

func (v View) String() string {
	if v < 0 || v >= viewCount {
		return viewNames[ViewOverview]
	}
	return viewNames[v]
}

// parseView maps a saved preference back to a view.
func parseView(name string) View {
	for i, n := range viewNames {
		if n == strings.ToLower(strings.TrimSpace(name)) {
			return View(i)
		}
	}
	return ViewOverview
}

const logTailLines = 500

// Actions are the operations the console can trigger. Implementations
// must not block on the network longer than a request timeout.
type Actions interface {
	RefreshAll(ctx context.Context)
	Drain(ctx context.Context) (syncqueue.Result, error)
	QueueReboot(ctx context.Context, apID string) (string, error)
	QueueDisconnect(ctx context.Context, mac string) (string, error)
	ClearCache(ctx context.Context) (int, error)
}

// Options configures the UI.
type Options struct {
	Context   context.Context
	Store     *state.Store
	Actions   Actions
	Tracker   *presence.Tracker
	LogPath   string
	PollTick  time.Duration
	ThemeName string
	View      string
	PrefsPath string
}

// Model is the root application state for Bubble Tea.
type Model struct {
	ctx       context.Context
	store     *state.Store
	actions   Actions
	tracker   *presence.Tracker
	logPath   string
	prefsPath string
	pollTick  time.Duration
	keys      keyMap
	now       func() time.Time

	theme       Theme
	currentView View
	width       int
	height      int
	ready       bool
	showHelp    bool

	snapshot    state.Snapshot
	lastUpdated time.Time

	selected [viewCount]int

	logViewport viewport.Model
	logLines    []string
	logErr      string

	// result of the last action, shown in the footer
	notice string
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	pollTick := opts.PollTick
	if pollTick == 0 {
		pollTick = time.Second
	}

	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}

	return Model{
		ctx:         ctx,
		store:       opts.Store,
		actions:     opts.Actions,
		tracker:     opts.Tracker,
		logPath:     opts.LogPath,
		prefsPath:   prefsPath,
		pollTick:    pollTick,
		keys:        defaultKeyMap(),
		now:         time.Now,
		theme:       GetTheme(opts.ThemeName),
		currentView: parseView(opts.View),
		logViewport: viewport.New(0, 0),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tickCmd(m.pollTick),
	}
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	if m.currentView == ViewLogs {
		cmds = append(cmds, m.refreshLogs())
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.FocusMsg:
		if m.tracker != nil {
			m.tracker.SetHidden(false)
		}
		return m, nil

	case tea.BlurMsg:
		if m.tracker != nil {
			m.tracker.SetHidden(true)
		}
		return m, nil

	case tea.KeyMsg:
		m.touch()
		return m.handleKey(msg)

	case tea.MouseMsg:
		m.touch()
		return m.handleMouse(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resizeLogViewport()
		return m, nil

	case tickMsg:
		return m.handleTick()

	case snapshotMsg:
		m.snapshot = state.Snapshot(msg)
		m.lastUpdated = m.now()
		m.clampSelection()
		return m, nil

	case logTailMsg:
		m.handleLogTail(msg)
		return m, nil

	case actionMsg:
		if msg.err != nil {
			m.notice = msg.label + " failed: " + msg.err.Error()
		} else {
			m.notice = msg.label
		}
		if m.store != nil {
			return m, fetchSnapshotCmd(m.store)
		}
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	return m.renderMain()
}

func (m Model) touch() {
	if m.tracker != nil {
		m.tracker.Touch()
	}
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}

	k := m.keys
	switch {
	case key.Matches(msg, k.Quit):
		m.savePrefs()
		return m, tea.Quit

	case key.Matches(msg, k.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, k.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.savePrefs()
		return m, nil

	case key.Matches(msg, k.ViewOverview):
		return m.switchView(ViewOverview)
	case key.Matches(msg, k.ViewAccessPoints):
		return m.switchView(ViewAccessPoints)
	case key.Matches(msg, k.ViewStations):
		return m.switchView(ViewStations)
	case key.Matches(msg, k.ViewRoaming):
		return m.switchView(ViewRoaming)
	case key.Matches(msg, k.ViewLogs):
		return m.switchView(ViewLogs)
	case key.Matches(msg, k.NextView):
		return m.switchView((m.currentView + 1) % viewCount)

	case key.Matches(msg, k.Up):
		m.moveSelection(-1)
	case key.Matches(msg, k.Down):
		m.moveSelection(1)
	case key.Matches(msg, k.Top):
		m.moveSelection(-1 << 30)
	case key.Matches(msg, k.Bottom):
		m.moveSelection(1 << 30)

	case key.Matches(msg, k.Refresh):
		m.notice = "Refreshing..."
		return m, m.runAction("Refreshed", func(ctx context.Context, a Actions) (string, error) {
			a.RefreshAll(ctx)
			return "", nil
		})

	case key.Matches(msg, k.Reboot):
		return m.rebootSelected()

	case key.Matches(msg, k.Disconnect):
		return m.disconnectSelected()

	case key.Matches(msg, k.Drain):
		m.notice = "Sending queued changes..."
		return m, m.runAction("Sync", func(ctx context.Context, a Actions) (string, error) {
			res, err := a.Drain(ctx)
			if err != nil {
				return "", err
			}
			return syncqueue.Summary(res, time.Time{}).Message, nil
		})

	case key.Matches(msg, k.ClearCache):
		return m, m.runAction("Clear cache", func(ctx context.Context, a Actions) (string, error) {
			n, err := a.ClearCache(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Cleared %d cached payload(s)", n), nil
		})
	}

	return m, nil
}

func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.moveSelection(-1)
	case tea.MouseButtonWheelDown:
		m.moveSelection(1)
	}
	return m, nil
}

func (m Model) switchView(v View) (tea.Model, tea.Cmd) {
	m.currentView = v
	if v == ViewLogs {
		return m, m.refreshLogs()
	}
	return m, nil
}

// rowCount is the number of selectable rows in the current view.
func (m Model) rowCount() int {
	switch m.currentView {
	case ViewAccessPoints:
		return len(m.snapshot.AccessPoints.Data)
	case ViewStations:
		return len(m.snapshot.Stations.Data)
	case ViewRoaming:
		return len(m.snapshot.Roaming.Data)
	default:
		return 0
	}
}

func (m *Model) moveSelection(delta int) {
	if m.currentView == ViewLogs {
		switch {
		case delta <= -1<<30:
			m.logViewport.GotoTop()
		case delta >= 1<<30:
			m.logViewport.GotoBottom()
		case delta < 0:
			m.logViewport.ScrollUp(-delta)
		default:
			m.logViewport.ScrollDown(delta)
		}
		return
	}
	n := m.rowCount()
	if n == 0 {
		m.selected[m.currentView] = 0
		return
	}
	next := m.selected[m.currentView] + delta
	switch {
	case delta <= -1<<30 || next < 0:
		next = 0
	case delta >= 1<<30 || next >= n:
		next = n - 1
	}
	m.selected[m.currentView] = next
}

func (m *Model) clampSelection() {
	saved := m.currentView
	for v := ViewAccessPoints; v <= ViewRoaming; v++ {
		m.currentView = v
		m.moveSelection(0)
	}
	m.currentView = saved
}

func (m Model) rebootSelected() (tea.Model, tea.Cmd) {
	if m.currentView != ViewAccessPoints || m.rowCount() == 0 {
		m.notice = "Select an access point first (view 2)"
		return m, nil
	}
	ap := m.snapshot.AccessPoints.Data[m.selected[ViewAccessPoints]]
	label := "Reboot " + ap.Label()
	return m, m.runAction(label, func(ctx context.Context, a Actions) (string, error) {
		_, err := a.QueueReboot(ctx, ap.ID)
		return label + " queued", err
	})
}

func (m Model) disconnectSelected() (tea.Model, tea.Cmd) {
	if m.currentView != ViewStations || m.rowCount() == 0 {
		m.notice = "Select a station first (view 3)"
		return m, nil
	}
	st := m.snapshot.Stations.Data[m.selected[ViewStations]]
	label := "Disconnect " + st.MAC
	return m, m.runAction(label, func(ctx context.Context, a Actions) (string, error) {
		_, err := a.QueueDisconnect(ctx, st.MAC)
		return label + " queued", err
	})
}

// runAction runs fn off the UI goroutine and reports back through
// actionMsg.
func (m Model) runAction(label string, fn func(context.Context, Actions) (string, error)) tea.Cmd {
	if m.actions == nil {
		return nil
	}
	ctx, actions := m.ctx, m.actions
	return func() tea.Msg {
		text, err := fn(ctx, actions)
		if err != nil {
			return actionMsg{label: label, err: err}
		}
		if text == "" {
			text = label
		}
		return actionMsg{label: text}
	}
}

func (m Model) savePrefs() {
	if m.prefsPath == "" {
		return
	}
	_ = prefs.Save(m.prefsPath, prefs.Prefs{Theme: m.theme.Name, LastView: m.currentView.String()})
}

// handleTick processes the polling tick.
func (m Model) handleTick() (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	if m.currentView == ViewLogs {
		if cmd := m.refreshLogs(); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	cmds = append(cmds, tickCmd(m.pollTick))
	return m, tea.Batch(cmds...)
}

// renderMain renders the full UI.
func (m Model) renderMain() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")
	b.WriteString(m.renderContent())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

// renderContent renders the main content area based on current view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewOverview:
		return m.renderOverview()
	case ViewAccessPoints:
		return m.renderAccessPoints()
	case ViewStations:
		return m.renderStations()
	case ViewRoaming:
		return m.renderRoaming()
	case ViewLogs:
		return m.renderLogs()
	default:
		return ""
	}
}

// contentHeight is the number of lines left for the active view.
func (m Model) contentHeight() int {
	h := m.height - 3 // header, command bar, footer
	if h < 1 {
		return 1
	}
	return h
}

// Messages

type tickMsg time.Time

type snapshotMsg state.Snapshot

type logTailMsg struct {
	entries []logtail.Entry
	err     error
}

type actionMsg struct {
	label string
	err   error
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(store *state.Store) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(store.Snapshot())
	}
}

// Run starts the Bubble Tea program. Focus reporting feeds the presence
// tracker; mouse reporting counts as activity.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithReportFocus(),
		tea.WithMouseCellMotion(),
		tea.WithContext(m.ctx),
	)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && m.ctx.Err() != nil {
		return nil
	}
	return err
}
