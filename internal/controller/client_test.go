package controller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/five82/beacon/internal/payload"
)

func TestParseBaseURL_DefaultsAndNormalizes(t *testing.T) {
	u, err := parseBaseURL("")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.Scheme != "http" || u.Host != defaultControllerURL {
		t.Fatalf("default url = %q, want http://%s", u.String(), defaultControllerURL)
	}

	u, err = parseBaseURL("https://wlc.example.net:8443/ui/?x=1#frag")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.String() != "https://wlc.example.net:8443" {
		t.Fatalf("url not normalized: %q", u.String())
	}
}

func TestClient_FetchesEndpoints(t *testing.T) {
	t.Parallel()

	var gotSince, gotUserAgent, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/api/health":
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case "/api/status":
			_ = json.NewEncoder(w).Encode(SystemStatus{Hostname: "wlc-1", UptimeSeconds: 90, APCount: 2})
		case "/api/access-points":
			_ = json.NewEncoder(w).Encode(AccessPointList{Items: []AccessPoint{{ID: "ap-1", Status: "up"}}})
		case "/api/stations":
			_ = json.NewEncoder(w).Encode(StationList{Items: []Station{{MAC: "aa:bb:cc:dd:ee:ff", RSSI: -58}}})
		case "/api/roaming/events":
			gotSince = r.URL.Query().Get("since")
			_ = json.NewEncoder(w).Encode(RoamingEventList{Items: []RoamingEvent{{ClientMAC: "aa", FromAP: "ap-1", ToAP: "ap-2"}}})
		case "/api/dashboard":
			_, _ = w.Write([]byte(`{"tiles":[{"id":"clients","title":"Clients","value":{"kind":"scalar","value":12}}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, WithToken(" secret "))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)

	if err := c.FetchHealth(ctx); err != nil {
		t.Fatalf("FetchHealth returned error: %v", err)
	}
	status, err := c.FetchStatus(ctx)
	if err != nil {
		t.Fatalf("FetchStatus returned error: %v", err)
	}
	if status.Hostname != "wlc-1" || status.Uptime() != 90*time.Second {
		t.Fatalf("FetchStatus payload = %#v", status)
	}
	aps, err := c.FetchAccessPoints(ctx)
	if err != nil || len(aps) != 1 || !aps[0].Up() {
		t.Fatalf("FetchAccessPoints = %#v, %v", aps, err)
	}
	stations, err := c.FetchStations(ctx)
	if err != nil || len(stations) != 1 || stations[0].SignalQuality() != "good" {
		t.Fatalf("FetchStations = %#v, %v", stations, err)
	}
	events, err := c.FetchRoamingEvents(ctx, time.Unix(1700000000, 0))
	if err != nil || len(events) != 1 {
		t.Fatalf("FetchRoamingEvents = %#v, %v", events, err)
	}
	if gotSince != "1700000000" {
		t.Fatalf("since = %q, want 1700000000", gotSince)
	}
	tiles, err := c.FetchDashboard(ctx)
	if err != nil || len(tiles) != 1 || tiles[0].Value.Kind != payload.KindScalar {
		t.Fatalf("FetchDashboard = %#v, %v", tiles, err)
	}

	if !strings.HasPrefix(gotUserAgent, "beacon/") {
		t.Fatalf("User-Agent = %q, want beacon/*", gotUserAgent)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("Authorization = %q, want trimmed bearer token", gotAuth)
	}
}

func TestClient_HTTPErrorAndDecodeError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/status":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte("{not-json"))
		case "/api/stations":
			http.Error(w, "nope", http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	_, err = c.FetchStatus(context.Background())
	if err == nil || !strings.Contains(err.Error(), "decode response") {
		t.Fatalf("FetchStatus error = %v, want decode response error", err)
	}

	_, err = c.FetchStations(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusBadGateway {
		t.Fatalf("FetchStations error = %v, want StatusError 502", err)
	}
	if !strings.Contains(err.Error(), "returned status 502") {
		t.Fatalf("error text = %q", err)
	}
}

func TestClient_Send(t *testing.T) {
	t.Parallel()

	var gotMethod, gotPath, gotBody, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		if strings.HasSuffix(r.URL.Path, "/reboot") {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		w.WriteHeader(http.StatusConflict)
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	code, err := c.Send(context.Background(), http.MethodPost, RebootPath("ap 7"), json.RawMessage(`{"reason":"stuck"}`))
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if code != http.StatusAccepted || gotMethod != http.MethodPost {
		t.Fatalf("Send = %d via %s, want 202 via POST", code, gotMethod)
	}
	if gotPath != "/api/access-points/ap 7/reboot" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody != `{"reason":"stuck"}` || gotContentType != "application/json" {
		t.Fatalf("body = %q (%s)", gotBody, gotContentType)
	}

	code, err = c.Send(context.Background(), http.MethodPost, DisconnectPath("AA:BB"), nil)
	if err != nil {
		t.Fatalf("Send returned error for an HTTP error status: %v", err)
	}
	if code != http.StatusConflict || gotPath != "/api/stations/aa:bb/disconnect" {
		t.Fatalf("Send = %d to %q, want 409 to lowercase mac path", code, gotPath)
	}
}

func TestClient_SendTransportError(t *testing.T) {
	c, err := NewClient("127.0.0.1:1")
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := c.Send(ctx, http.MethodPost, "/api/x", nil); err == nil {
		t.Fatal("Send to a closed port returned nil error")
	}
}

func TestParseTimeLayouts(t *testing.T) {
	if parseTime("2026-03-01T10:11:12Z").IsZero() {
		t.Fatal("parseTime should parse RFC3339")
	}
	got := parseTime("2026-03-01 10:11:12")
	if got.Year() != 2026 || got.Month() != time.March || got.Day() != 1 {
		t.Fatalf("parseTime = %v, want 2026-03-01", got)
	}
	if !parseTime("yesterday").IsZero() {
		t.Fatal("parseTime accepted garbage")
	}
}

func TestAccessPointHelpers(t *testing.T) {
	tests := []struct {
		ap    AccessPoint
		up    bool
		label string
	}{
		{AccessPoint{ID: "ap-1", Name: "Lobby", Status: "UP"}, true, "Lobby"},
		{AccessPoint{ID: "ap-2", Status: "down"}, false, "ap-2"},
		{AccessPoint{ID: "ap-3", Name: "  ", Status: "online"}, true, "ap-3"},
	}
	for _, tt := range tests {
		if tt.ap.Up() != tt.up || tt.ap.Label() != tt.label {
			t.Errorf("%s: Up=%v Label=%q, want %v %q", tt.ap.ID, tt.ap.Up(), tt.ap.Label(), tt.up, tt.label)
		}
	}
}
