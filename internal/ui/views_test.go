package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/five82/beacon/internal/controller"
	"github.com/five82/beacon/internal/payload"
	"github.com/five82/beacon/internal/roaming"
	"github.com/five82/beacon/internal/state"
)

func TestFit(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"ap", 4, "ap  "},
		{"lobby", 5, "lobby"},
		{"floor-1-east", 6, "floor…"},
		{"x", 0, "x"},
	}
	for _, tt := range tests {
		if got := fit(tt.in, tt.width); got != tt.want {
			t.Fatalf("fit(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "-"},
		{5 * time.Minute, "5m"},
		{3*time.Hour + 7*time.Minute, "3h 7m"},
		{50 * time.Hour, "2d 2h"},
	}
	for _, tt := range tests {
		if got := formatUptime(tt.in); got != tt.want {
			t.Fatalf("formatUptime(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOverviewRendersStatusAndTiles(t *testing.T) {
	m := New(Options{})
	m.width, m.height = 120, 30
	m.snapshot = state.Snapshot{
		Status: state.Section[*controller.SystemStatus]{HasData: true, Data: &controller.SystemStatus{
			Hostname: "wlc-1", Version: "8.10", UptimeSeconds: 7200, APCount: 4, APsUp: 3, StationCount: 12,
			Alarms: []controller.Alarm{{Severity: "major", Message: "AP ap-02 down"}},
		}},
		Tiles: state.Section[[]payload.Tile]{HasData: true, Data: []payload.Tile{
			{ID: "util", Title: "Airtime", Value: payload.Ratio(decimal.NewFromInt(3), decimal.NewFromInt(4))},
		}},
	}
	out := m.renderOverview()
	for _, want := range []string{"wlc-1", "v8.10", "2h 0m", "3/4 up", "MAJOR AP ap-02 down", "Airtime", "3/4 (75.0%)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("overview missing %q:\n%s", want, out)
		}
	}
}

func TestAccessPointsCountClientsFromStations(t *testing.T) {
	m := New(Options{})
	m.width, m.height = 120, 30
	m.snapshot = state.Snapshot{
		AccessPoints: state.Section[[]controller.AccessPoint]{Data: []controller.AccessPoint{
			{ID: "ap-01", Name: "Lobby", Status: "up", Clients: 9},
		}},
		Stations: state.Section[[]controller.Station]{Data: []controller.Station{
			{MAC: "a", APID: "ap-01"}, {MAC: "b", APID: "ap-01"},
		}},
	}
	out := m.renderAccessPoints()
	if !strings.Contains(out, "Lobby") || !strings.Contains(out, " 2 ") {
		t.Fatalf("access points table:\n%s", out)
	}
}

func TestRoamingMarksPingPong(t *testing.T) {
	now := time.Now()
	m := New(Options{})
	m.width, m.height = 160, 30
	m.snapshot.Roaming = state.Section[[]roaming.Trail]{Data: []roaming.Trail{{
		ClientMAC: "02:00:00:00:00:01",
		Hops: []roaming.Hop{
			{At: now.Add(-3 * time.Minute), FromAP: "ap-01", ToAP: "ap-02"},
			{At: now.Add(-time.Minute), FromAP: "ap-02", ToAP: "ap-01"},
		},
	}}}
	out := m.renderRoaming()
	if !strings.Contains(out, "⇄ ap-01 → ap-02 → ap-01") {
		t.Fatalf("roaming table:\n%s", out)
	}
	if !strings.Contains(out, "minute ago") {
		t.Fatalf("roaming table missing relative time:\n%s", out)
	}
}

func TestEmptyTable(t *testing.T) {
	m := New(Options{})
	m.width, m.height = 80, 20
	if out := m.renderStations(); !strings.Contains(out, "nothing to show") {
		t.Fatalf("empty stations:\n%s", out)
	}
}
