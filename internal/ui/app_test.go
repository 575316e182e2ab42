package ui

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/beacon/internal/clock"
	"github.com/five82/beacon/internal/controller"
	"github.com/five82/beacon/internal/prefs"
	"github.com/five82/beacon/internal/presence"
	"github.com/five82/beacon/internal/state"
	"github.com/five82/beacon/internal/syncqueue"
)

type fakeActions struct {
	mu          sync.Mutex
	refreshed   int
	reboots     []string
	disconnects []string
	drainErr    error
	cleared     int
}

func (f *fakeActions) RefreshAll(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed++
}

func (f *fakeActions) Drain(context.Context) (syncqueue.Result, error) {
	return syncqueue.Result{Succeeded: 2, Outcomes: make([]syncqueue.Outcome, 2)}, f.drainErr
}

func (f *fakeActions) QueueReboot(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reboots = append(f.reboots, id)
	return "req-1", nil
}

func (f *fakeActions) QueueDisconnect(_ context.Context, mac string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects = append(f.disconnects, mac)
	return "req-2", nil
}

func (f *fakeActions) ClearCache(context.Context) (int, error) {
	f.cleared++
	return 4, nil
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

// exec runs cmd and feeds its message back into the model.
func exec(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		t.Fatalf("expected a command")
	}
	m, _ = press(t, m, cmd())
	return m
}

func testModel(t *testing.T, actions Actions) Model {
	t.Helper()
	store := &state.Store{}
	store.SetAccessPoints(state.Section[[]controller.AccessPoint]{
		HasData: true,
		Data: []controller.AccessPoint{
			{ID: "ap-01", Name: "Lobby", Status: "up"},
			{ID: "ap-02", Name: "Lab", Status: "down"},
			{ID: "ap-03", Name: "Roof", Status: "up"},
		},
	})
	store.SetStations(state.Section[[]controller.Station]{
		HasData: true,
		Data:    []controller.Station{{MAC: "02:00:00:00:00:01", APID: "ap-01"}},
	})
	m := New(Options{
		Store:     store,
		Actions:   actions,
		PrefsPath: filepath.Join(t.TempDir(), "prefs.toml"),
	})
	m, _ = press(t, m, tea.WindowSizeMsg{Width: 120, Height: 30})
	m, _ = press(t, m, snapshotMsg(store.Snapshot()))
	return m
}

func TestViewKeysSwitchViews(t *testing.T) {
	m := testModel(t, nil)
	tests := []struct {
		key  string
		want View
	}{
		{"2", ViewAccessPoints},
		{"3", ViewStations},
		{"4", ViewRoaming},
		{"1", ViewOverview},
	}
	for _, tt := range tests {
		m, _ = press(t, m, runes(tt.key))
		if m.currentView != tt.want {
			t.Fatalf("after %q view = %v, want %v", tt.key, m.currentView, tt.want)
		}
	}
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.currentView != ViewAccessPoints {
		t.Fatalf("tab from overview = %v, want aps", m.currentView)
	}
}

func TestSelectionIsClamped(t *testing.T) {
	m := testModel(t, nil)
	m, _ = press(t, m, runes("2"))

	m, _ = press(t, m, runes("k"))
	if got := m.selected[ViewAccessPoints]; got != 0 {
		t.Fatalf("selection after k at top = %d, want 0", got)
	}
	m, _ = press(t, m, runes("G"))
	if got := m.selected[ViewAccessPoints]; got != 2 {
		t.Fatalf("selection after G = %d, want 2", got)
	}
	m, _ = press(t, m, runes("j"))
	if got := m.selected[ViewAccessPoints]; got != 2 {
		t.Fatalf("selection after j at bottom = %d, want 2", got)
	}
	m, _ = press(t, m, runes("g"))
	if got := m.selected[ViewAccessPoints]; got != 0 {
		t.Fatalf("selection after g = %d, want 0", got)
	}

	m.selected[ViewAccessPoints] = 2
	m, _ = press(t, m, snapshotMsg(state.Snapshot{}))
	if got := m.selected[ViewAccessPoints]; got != 0 {
		t.Fatalf("selection after list emptied = %d, want 0", got)
	}
}

func TestRebootQueuesSelectedAccessPoint(t *testing.T) {
	actions := &fakeActions{}
	m := testModel(t, actions)

	m, cmd := press(t, m, runes("R"))
	if cmd != nil || !strings.Contains(m.notice, "Select an access point") {
		t.Fatalf("R outside AP view: notice=%q cmd=%v", m.notice, cmd != nil)
	}

	m, _ = press(t, m, runes("2"))
	m, _ = press(t, m, runes("j"))
	m, cmd = press(t, m, runes("R"))
	m = exec(t, m, cmd)

	if len(actions.reboots) != 1 || actions.reboots[0] != "ap-02" {
		t.Fatalf("reboots = %v, want [ap-02]", actions.reboots)
	}
	if m.notice != "Reboot Lab queued" {
		t.Fatalf("notice = %q", m.notice)
	}
}

func TestDisconnectQueuesSelectedStation(t *testing.T) {
	actions := &fakeActions{}
	m := testModel(t, actions)
	m, _ = press(t, m, runes("3"))
	m, cmd := press(t, m, runes("d"))
	exec(t, m, cmd)
	if len(actions.disconnects) != 1 || actions.disconnects[0] != "02:00:00:00:00:01" {
		t.Fatalf("disconnects = %v", actions.disconnects)
	}
}

func TestDrainReportsSummaryOrError(t *testing.T) {
	actions := &fakeActions{}
	m := testModel(t, actions)

	m, cmd := press(t, m, runes("s"))
	m = exec(t, m, cmd)
	if !strings.HasPrefix(m.notice, "Synced 2 queued change") {
		t.Fatalf("notice = %q", m.notice)
	}

	actions.drainErr = errors.New("store closed")
	m, cmd = press(t, m, runes("s"))
	m = exec(t, m, cmd)
	if m.notice != "Sync failed: store closed" {
		t.Fatalf("notice = %q", m.notice)
	}
}

func TestRefreshAndClearCache(t *testing.T) {
	actions := &fakeActions{}
	m := testModel(t, actions)

	m, cmd := press(t, m, runes("r"))
	m = exec(t, m, cmd)
	if actions.refreshed != 1 || m.notice != "Refreshed" {
		t.Fatalf("refreshed=%d notice=%q", actions.refreshed, m.notice)
	}

	m, cmd = press(t, m, runes("C"))
	m = exec(t, m, cmd)
	if actions.cleared != 1 || m.notice != "Cleared 4 cached payload(s)" {
		t.Fatalf("cleared=%d notice=%q", actions.cleared, m.notice)
	}
}

func TestFocusAndInputFeedPresence(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	tracker := presence.NewTracker(clk, time.Minute)
	m := New(Options{Tracker: tracker, PrefsPath: filepath.Join(t.TempDir(), "prefs.toml")})

	m, _ = press(t, m, tea.BlurMsg{})
	if !tracker.Hidden() {
		t.Fatalf("tracker not hidden after blur")
	}
	clk.Advance(45 * time.Second)
	m, _ = press(t, m, tea.FocusMsg{})
	if tracker.Hidden() {
		t.Fatalf("tracker still hidden after focus")
	}
	if got := tracker.LastHiddenFor(); got != 45*time.Second {
		t.Fatalf("LastHiddenFor = %v, want 45s", got)
	}

	clk.Advance(2 * time.Minute)
	if !tracker.Idle() {
		t.Fatalf("tracker should be idle after 2m without input")
	}
	m, _ = press(t, m, tea.MouseMsg{Button: tea.MouseButtonWheelDown, Action: tea.MouseActionPress})
	if tracker.Idle() {
		t.Fatalf("mouse input did not count as activity")
	}
	clk.Advance(2 * time.Minute)
	press(t, m, runes("1"))
	if tracker.Idle() {
		t.Fatalf("key input did not count as activity")
	}
}

func TestThemeCycleAndQuitPersistPrefs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.toml")
	m := New(Options{PrefsPath: path, ThemeName: "Midnight", View: "roaming"})
	if m.currentView != ViewRoaming {
		t.Fatalf("initial view = %v, want roaming", m.currentView)
	}

	m, _ = press(t, m, runes("T"))
	if m.theme.Name != "Kanagawa" {
		t.Fatalf("theme = %q, want Kanagawa", m.theme.Name)
	}
	m, _ = press(t, m, runes("3"))
	_, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatalf("ctrl+c returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("ctrl+c did not quit")
	}

	saved, err := prefs.Load(path)
	if err != nil {
		t.Fatalf("prefs.Load: %v", err)
	}
	if saved.Theme != "Kanagawa" || saved.LastView != "stations" {
		t.Fatalf("saved prefs = %+v", saved)
	}
}

func TestHelpOverlayClosesOnAnyKey(t *testing.T) {
	m := testModel(t, nil)
	m, _ = press(t, m, runes("?"))
	if !m.showHelp || !strings.Contains(m.View(), "Keyboard Shortcuts") {
		t.Fatalf("help overlay not shown")
	}
	m, _ = press(t, m, runes("2"))
	if m.showHelp || m.currentView != ViewOverview {
		t.Fatalf("closing help should swallow the key: showHelp=%v view=%v", m.showHelp, m.currentView)
	}
}

func TestParseView(t *testing.T) {
	for _, v := range []View{ViewOverview, ViewAccessPoints, ViewStations, ViewRoaming, ViewLogs} {
		if got := parseView(v.String()); got != v {
			t.Fatalf("parseView(%q) = %v, want %v", v.String(), got, v)
		}
	}
	if got := parseView("bogus"); got != ViewOverview {
		t.Fatalf("parseView(bogus) = %v, want overview", got)
	}
}
