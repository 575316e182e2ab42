package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/five82/beacon/internal/cache"
	"github.com/five82/beacon/internal/clock"
	"github.com/five82/beacon/internal/presence"
	"github.com/five82/beacon/internal/telemetry"
)

var epoch = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

type tiles struct {
	Clients int    `json:"clients"`
	Uplink  string `json:"uplink"`
}

type fixedBattery presence.BatteryStatus

func (b fixedBattery) Status() presence.BatteryStatus { return presence.BatteryStatus(b) }

type countingTelemetry struct {
	telemetry.Collector
	suppressed atomic.Int32
}

func (c *countingTelemetry) IncPollSuppressed(string) { c.suppressed.Add(1) }

type fetcher struct {
	calls atomic.Int32
	mu    sync.Mutex
	value tiles
}

func (f *fetcher) Fetch(context.Context) (tiles, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, nil
}

func (f *fetcher) set(v tiles) {
	f.mu.Lock()
	f.value = v
	f.mu.Unlock()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func startPoller(t *testing.T, p *Poller[tiles]) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestInterval(t *testing.T) {
	cfg := Config{ActiveInterval: 10 * time.Second, IdleInterval: 30 * time.Second, HiddenInterval: 2 * time.Minute, Enabled: true}
	tests := []struct {
		name    string
		hidden  bool
		idle    time.Duration
		battery presence.BatteryStatus
		hiddenI time.Duration
		want    time.Duration
		paused  bool
	}{
		{name: "active", want: 10 * time.Second},
		{name: "idle", idle: time.Minute, want: 30 * time.Second},
		{name: "almost idle", idle: 59 * time.Second, want: 10 * time.Second},
		{name: "hidden", hidden: true, hiddenI: 2 * time.Minute, want: 2 * time.Minute},
		{name: "hidden pauses", hidden: true, paused: true},
		{name: "low battery", battery: presence.BatteryStatus{Known: true, Level: 0.1}, want: time.Minute},
		{name: "low battery charging", battery: presence.BatteryStatus{Known: true, Level: 0.1, Charging: true}, want: 10 * time.Second},
		{name: "hidden beats battery", hidden: true, hiddenI: 5 * time.Minute, battery: presence.BatteryStatus{Known: true, Level: 0.05}, want: 5 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clock.NewFake(epoch)
			tracker := presence.NewTracker(clk, time.Minute)
			tracker.SetHidden(tt.hidden)
			clk.Advance(tt.idle)

			c := cfg
			c.HiddenInterval = tt.hiddenI
			p := New((&fetcher{}).Fetch, c, Options[tiles]{
				Key:      "tiles",
				Presence: tracker,
				Battery:  fixedBattery(tt.battery),
				Clock:    clk,
			})
			got, paused := p.Interval()
			if paused != tt.paused || (!tt.paused && got != tt.want) {
				t.Fatalf("Interval() = %v, %v; want %v, %v", got, paused, tt.want, tt.paused)
			}
		})
	}
}

func TestRun_SlowsDownWhenIdle(t *testing.T) {
	clk := clock.NewFake(epoch)
	tracker := presence.NewTracker(clk, time.Minute)
	f := &fetcher{value: tiles{Clients: 1}}
	p := New(f.Fetch, Config{ActiveInterval: 10 * time.Second, IdleInterval: 30 * time.Second, Enabled: true},
		Options[tiles]{Key: "tiles", Presence: tracker, Clock: clk})
	startPoller(t, p)

	for i := 1; i <= 6; i++ {
		if !clk.WaitForRequests(i, 2*time.Second) {
			t.Fatalf("timer %d never scheduled", i)
		}
		clk.Advance(10 * time.Second)
	}
	if !clk.WaitForRequests(7, 2*time.Second) {
		t.Fatal("timer after idle threshold never scheduled")
	}
	requested := clk.Requested()
	for i, d := range requested[:6] {
		if d != 10*time.Second {
			t.Fatalf("interval %d = %v, want 10s while active", i, d)
		}
	}
	if requested[6] != 30*time.Second {
		t.Fatalf("interval after 60s idle = %v, want 30s", requested[6])
	}
	if got := f.calls.Load(); got != 7 {
		t.Fatalf("fetch calls = %d, want 7", got)
	}

	tracker.Touch()
	if !clk.WaitForRequests(8, 2*time.Second) {
		t.Fatal("activity did not reschedule the timer")
	}
	if d := clk.Requested()[7]; d != 10*time.Second {
		t.Fatalf("interval after activity = %v, want 10s", d)
	}
	waitFor(t, "single pending timer", func() bool { return clk.Pending() == 1 })
}

func TestRun_HiddenPausesAndRefetchesWhenStale(t *testing.T) {
	clk := clock.NewFake(epoch)
	tracker := presence.NewTracker(clk, time.Minute)
	f := &fetcher{value: tiles{Clients: 4}}

	var sawStale atomic.Bool
	p := New(f.Fetch, Config{ActiveInterval: 10 * time.Second, Enabled: true}, Options[tiles]{
		Key:      "tiles",
		Presence: tracker,
		Clock:    clk,
		OnChange: func(s State[tiles]) {
			if s.IsStale {
				sawStale.Store(true)
			}
		},
	})
	startPoller(t, p)
	if !clk.WaitForRequests(1, 2*time.Second) {
		t.Fatal("initial timer never scheduled")
	}

	tracker.SetHidden(true)
	waitFor(t, "timer removal while hidden", func() bool { return clk.Pending() == 0 })

	clk.Advance(45 * time.Second)
	if got := f.calls.Load(); got != 1 {
		t.Fatalf("fetch calls while hidden = %d, want 1", got)
	}

	tracker.SetHidden(false)
	waitFor(t, "refetch on return", func() bool { return f.calls.Load() == 2 })
	waitFor(t, "timer reinstalled", func() bool { return clk.Pending() == 1 })
	if !sawStale.Load() {
		t.Fatal("data never marked stale after long hidden period")
	}
	if p.Snapshot().IsStale {
		t.Fatal("IsStale still set after refetch")
	}
}

func TestRun_ShortHiddenPeriodDoesNotRefetch(t *testing.T) {
	clk := clock.NewFake(epoch)
	tracker := presence.NewTracker(clk, time.Minute)
	f := &fetcher{}
	p := New(f.Fetch, Config{ActiveInterval: 10 * time.Second, HiddenInterval: time.Hour, Enabled: true},
		Options[tiles]{Key: "tiles", Presence: tracker, Clock: clk})
	startPoller(t, p)
	if !clk.WaitForRequests(1, 2*time.Second) {
		t.Fatal("initial timer never scheduled")
	}

	tracker.SetHidden(true)
	if !clk.WaitForRequests(2, 2*time.Second) {
		t.Fatal("hidden timer never scheduled")
	}
	if d := clk.Requested()[1]; d != time.Hour {
		t.Fatalf("hidden interval = %v, want 1h", d)
	}
	clk.Advance(5 * time.Second)
	tracker.SetHidden(false)
	if !clk.WaitForRequests(3, 2*time.Second) {
		t.Fatal("visible timer never scheduled")
	}
	if got := f.calls.Load(); got != 1 {
		t.Fatalf("fetch calls = %d, want 1", got)
	}
}

func TestRun_SuppressesUnchangedPayload(t *testing.T) {
	clk := clock.NewFake(epoch)
	store, err := cache.Open(":memory:", cache.Options{Now: clk.Now})
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	tel := &countingTelemetry{Collector: telemetry.Noop()}
	var notified atomic.Int32
	f := &fetcher{value: tiles{Clients: 9, Uplink: "1G"}}
	p := New(f.Fetch, Config{Enabled: true}, Options[tiles]{
		Key:       "tiles",
		Store:     store,
		Clock:     clk,
		Telemetry: tel,
		OnChange:  func(State[tiles]) { notified.Add(1) },
	})
	startPoller(t, p)
	waitFor(t, "initial poll", func() bool { return notified.Load() == 2 })
	before := notified.Load()

	clk.Advance(5 * time.Second)
	p.Refresh()
	waitFor(t, "suppressed poll", func() bool { return tel.suppressed.Load() == 1 })
	if notified.Load() != before {
		t.Fatal("unchanged payload notified listeners")
	}
	entry, ok, err := store.Get(context.Background(), SnapshotPrefix+"tiles")
	if err != nil || !ok {
		t.Fatalf("snapshot Get = %v, %v", ok, err)
	}
	if !entry.Timestamp.Equal(epoch) {
		t.Fatalf("snapshot rewritten at %v, want original %v", entry.Timestamp, epoch)
	}

	f.set(tiles{Clients: 10, Uplink: "1G"})
	p.Refresh()
	waitFor(t, "changed payload notification", func() bool { return notified.Load() > before })
	if got := p.Snapshot().Data.Clients; got != 10 {
		t.Fatalf("Clients = %d, want 10", got)
	}
}

func TestNew_SeedsFromSnapshot(t *testing.T) {
	clk := clock.NewFake(epoch)
	store, err := cache.Open(":memory:", cache.Options{Now: clk.Now})
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	defer store.Close()
	if err := store.Set(context.Background(), SnapshotPrefix+"tiles", tiles{Clients: 3}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	clk.Advance(2 * time.Minute)

	f := &fetcher{}
	p := New(f.Fetch, Config{}, Options[tiles]{Key: "tiles", Store: store, Clock: clk})
	st := p.Snapshot()
	if !st.HasData || st.Data.Clients != 3 {
		t.Fatalf("seeded state = %+v, want cached tiles", st)
	}
	if !st.IsStale {
		t.Fatal("expired snapshot not marked stale")
	}
	if f.calls.Load() != 0 {
		t.Fatal("seeding invoked fetch")
	}
}

func TestRun_DisabledDoesNothing(t *testing.T) {
	f := &fetcher{}
	p := New(f.Fetch, Config{Enabled: false}, Options[tiles]{Key: "tiles", Clock: clock.NewFake(epoch)})
	p.Run(context.Background())
	if f.calls.Load() != 0 {
		t.Fatalf("disabled poller fetched %d times", f.calls.Load())
	}
}

type watchedBattery struct {
	mu      sync.Mutex
	status  presence.BatteryStatus
	changes chan struct{}
}

func (b *watchedBattery) Status() presence.BatteryStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *watchedBattery) Changes() <-chan struct{} { return b.changes }

func (b *watchedBattery) set(s presence.BatteryStatus) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
	b.changes <- struct{}{}
}

func TestRun_PublishesSeededSnapshot(t *testing.T) {
	clk := clock.NewFake(epoch)
	store, err := cache.Open(":memory:", cache.Options{Now: clk.Now})
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Set(context.Background(), SnapshotPrefix+"dash", tiles{Clients: 4}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	clk.Advance(5 * time.Second)

	var (
		mu     sync.Mutex
		states []State[tiles]
	)
	f := &fetcher{value: tiles{Clients: 4}}
	p := New(f.Fetch, Config{Enabled: true}, Options[tiles]{
		Key:   "dash",
		Store: store,
		Clock: clk,
		OnChange: func(s State[tiles]) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	})
	startPoller(t, p)
	waitFor(t, "first poll published", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) >= 2
	})

	mu.Lock()
	defer mu.Unlock()
	if first := states[0]; !first.HasData || first.Data.Clients != 4 || !first.LastUpdated.Equal(epoch) {
		t.Fatalf("first published state = %+v, want seeded snapshot", first)
	}
	if last := states[len(states)-1]; !last.LastUpdated.Equal(epoch.Add(5 * time.Second)) {
		t.Fatalf("unchanged first poll not published: %+v", last)
	}
}

func TestRefresh_Coalesces(t *testing.T) {
	clk := clock.NewFake(epoch)
	f := &fetcher{}
	p := New(f.Fetch, Config{ActiveInterval: 10 * time.Second, Enabled: true}, Options[tiles]{Key: "tiles", Clock: clk})
	p.Refresh()
	p.Refresh()
	p.Refresh()
	startPoller(t, p)

	if !clk.WaitForRequests(2, 2*time.Second) {
		t.Fatal("timer after refresh never scheduled")
	}
	time.Sleep(20 * time.Millisecond)
	if got := f.calls.Load(); got != 2 {
		t.Fatalf("fetch calls = %d, want 2 (initial poll plus one coalesced refresh)", got)
	}
}

func TestRun_HiddenIntervalKeepsPolling(t *testing.T) {
	clk := clock.NewFake(epoch)
	tracker := presence.NewTracker(clk, time.Minute)
	tracker.SetHidden(true)
	f := &fetcher{}
	p := New(f.Fetch, Config{ActiveInterval: 10 * time.Second, HiddenInterval: 2 * time.Minute, Enabled: true},
		Options[tiles]{Key: "tiles", Presence: tracker, Clock: clk})
	startPoller(t, p)

	for i := 1; i <= 2; i++ {
		if !clk.WaitForRequests(i, 2*time.Second) {
			t.Fatalf("hidden timer %d never scheduled", i)
		}
		clk.Advance(2 * time.Minute)
	}
	if !clk.WaitForRequests(3, 2*time.Second) {
		t.Fatal("hidden timer 3 never scheduled")
	}
	for i, d := range clk.Requested() {
		if d != 2*time.Minute {
			t.Fatalf("interval %d = %v, want 2m while hidden", i, d)
		}
	}
	if got := f.calls.Load(); got != 3 {
		t.Fatalf("fetch calls = %d, want 3", got)
	}
}

func TestRun_ReschedulesWhenIdleThresholdPasses(t *testing.T) {
	clk := clock.NewFake(epoch)
	tracker := presence.NewTracker(clk, 25*time.Second)
	f := &fetcher{}
	p := New(f.Fetch, Config{ActiveInterval: 10 * time.Second, IdleInterval: 30 * time.Second, IdleAfter: 25 * time.Second, Enabled: true},
		Options[tiles]{Key: "tiles", Presence: tracker, Clock: clk})
	startPoller(t, p)

	for i, step := range []time.Duration{10 * time.Second, 10 * time.Second, 5 * time.Second} {
		if !clk.WaitForRequests(i+1, 2*time.Second) {
			t.Fatalf("timer %d never scheduled", i+1)
		}
		clk.Advance(step)
	}
	if !clk.WaitForRequests(4, 2*time.Second) {
		t.Fatal("idle timer never scheduled")
	}
	want := []time.Duration{10 * time.Second, 10 * time.Second, 5 * time.Second, 30 * time.Second}
	got := clk.Requested()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("intervals = %v, want %v", got, want)
		}
	}
	if calls := f.calls.Load(); calls != 3 {
		t.Fatalf("fetch calls = %d, want 3 (threshold wake-up does not poll)", calls)
	}
}

func TestRun_ReschedulesOnBatteryChange(t *testing.T) {
	clk := clock.NewFake(epoch)
	battery := &watchedBattery{status: presence.BatteryStatus{Known: true, Level: 0.8}, changes: make(chan struct{}, 1)}
	f := &fetcher{}
	p := New(f.Fetch, Config{ActiveInterval: 10 * time.Second, IdleInterval: 30 * time.Second, Enabled: true},
		Options[tiles]{Key: "tiles", Battery: battery, Clock: clk})
	startPoller(t, p)
	if !clk.WaitForRequests(1, 2*time.Second) {
		t.Fatal("initial timer never scheduled")
	}

	battery.set(presence.BatteryStatus{Known: true, Level: 0.1})
	if !clk.WaitForRequests(2, 2*time.Second) {
		t.Fatal("battery drop did not reschedule the timer")
	}
	if d := clk.Requested()[1]; d != time.Minute {
		t.Fatalf("interval on low battery = %v, want 1m", d)
	}
	waitFor(t, "single pending timer", func() bool { return clk.Pending() == 1 })
	if got := f.calls.Load(); got != 1 {
		t.Fatalf("fetch calls = %d, want 1", got)
	}
}
