package offline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/five82/beacon/internal/cache"
	"github.com/five82/beacon/internal/clock"
)

type station struct {
	MAC  string `json:"mac"`
	RSSI int    `json:"rssi"`
}

type fakeConn struct{ online atomic.Bool }

func newConn(online bool) *fakeConn {
	c := &fakeConn{}
	c.online.Store(online)
	return c
}

func (c *fakeConn) Online() bool { return c.online.Load() }

type countingFetch[T any] struct {
	calls atomic.Int32
	value T
	err   error
}

func (f *countingFetch[T]) Fetch(context.Context) (T, error) {
	f.calls.Add(1)
	if f.err != nil {
		var zero T
		return zero, f.err
	}
	return f.value, nil
}

func newStore(t *testing.T, clk clock.Clock) *cache.Store {
	t.Helper()
	store, err := cache.Open(":memory:", cache.Options{Now: clk.Now})
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

var epoch = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func TestRefresh_OfflineNeverInvokesFetch(t *testing.T) {
	clk := clock.NewFake(epoch)
	store := newStore(t, clk)
	fetch := &countingFetch[[]station]{value: []station{{MAC: "aa"}}}

	r := New(store, newConn(false), fetch.Fetch, Options[[]station]{Key: "stations_all", Clock: clk})
	r.Refresh(context.Background())

	if fetch.calls.Load() != 0 {
		t.Fatalf("fetch invoked %d times while offline", fetch.calls.Load())
	}
	st := r.Snapshot()
	if !st.IsOffline {
		t.Fatal("IsOffline = false, want true")
	}
	if !strings.Contains(st.Err, "no cached data") {
		t.Fatalf("Err = %q, want it to mention no cached data", st.Err)
	}
	if st.HasData {
		t.Fatal("HasData = true without a cache entry")
	}
}

func TestRefresh_OfflineServesCache(t *testing.T) {
	clk := clock.NewFake(epoch)
	store := newStore(t, clk)
	cached := []station{{MAC: "aa:bb", RSSI: -60}}
	if err := store.Set(context.Background(), "stations_all", cached, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	clk.Advance(3 * time.Minute)

	fetch := &countingFetch[[]station]{}
	r := New(store, newConn(false), fetch.Fetch, Options[[]station]{Key: "stations_all", Clock: clk})
	r.Refresh(context.Background())

	st := r.Snapshot()
	if fetch.calls.Load() != 0 {
		t.Fatal("fetch invoked while offline")
	}
	if !st.IsCached || !st.IsOffline || st.Err != "" {
		t.Fatalf("state = %+v, want cached offline without error", st)
	}
	if len(st.Data) != 1 || st.Data[0].MAC != "aa:bb" {
		t.Fatalf("Data = %+v, want cached stations", st.Data)
	}
	if st.CacheAge != 3*time.Minute {
		t.Fatalf("CacheAge = %v, want 3m", st.CacheAge)
	}
}

func TestRefresh_FetchErrorWithoutCache(t *testing.T) {
	clk := clock.NewFake(epoch)
	store := newStore(t, clk)
	fetch := &countingFetch[[]station]{err: errors.New("api /api/stations returned status 502")}

	r := New(store, newConn(true), fetch.Fetch, Options[[]station]{Key: "stations_all", Clock: clk})
	r.Refresh(context.Background())

	st := r.Snapshot()
	if !strings.Contains(st.Err, "no cached data") || !strings.Contains(st.Err, "status 502") {
		t.Fatalf("Err = %q, want raw error plus no cached data", st.Err)
	}
	if st.IsOffline {
		t.Fatal("IsOffline = true for an online fetch failure")
	}
}

func TestRefresh_FetchErrorFallsBackToCache(t *testing.T) {
	clk := clock.NewFake(epoch)
	store := newStore(t, clk)
	fetch := &countingFetch[[]station]{value: []station{{MAC: "cc"}}}

	r := New(store, newConn(true), fetch.Fetch, Options[[]station]{Key: "stations_all", Clock: clk})
	r.Refresh(context.Background())

	fetch.err = errors.New("connection reset")
	clk.Advance(2 * time.Minute)
	r.Refresh(context.Background())

	st := r.Snapshot()
	if !st.IsCached {
		t.Fatal("IsCached = false, want cached fallback")
	}
	if len(st.Data) != 1 || st.Data[0].MAC != "cc" {
		t.Fatalf("Data = %+v, want cached value", st.Data)
	}
	if !strings.Contains(st.Err, "showing cached data") {
		t.Fatalf("Err = %q, want cached annotation", st.Err)
	}
}

func TestRefresh_SuccessPersistsWithResolvedTTL(t *testing.T) {
	clk := clock.NewFake(epoch)
	store := newStore(t, clk)
	fetch := &countingFetch[[]station]{value: []station{{MAC: "dd", RSSI: -70}}}
	policy := cache.TTLPolicy{Default: time.Hour, ByPrefix: map[string]time.Duration{"stations_": 2 * time.Minute}}

	r := New(store, newConn(true), fetch.Fetch, Options[[]station]{Key: "stations_all", Policy: policy, Clock: clk})
	r.Refresh(context.Background())

	st := r.Snapshot()
	if st.Err != "" || st.IsCached || st.Loading || !st.HasData {
		t.Fatalf("state = %+v, want fresh data", st)
	}
	if !st.LastUpdated.Equal(epoch) {
		t.Fatalf("LastUpdated = %v, want %v", st.LastUpdated, epoch)
	}
	entry, ok, err := store.Get(context.Background(), "stations_all")
	if err != nil || !ok {
		t.Fatalf("cache Get = %v, %v", ok, err)
	}
	if entry.TTL != 2*time.Minute {
		t.Fatalf("cached TTL = %v, want prefix TTL 2m", entry.TTL)
	}
}

func TestRefresh_LoadingOnlyOnFirstFetch(t *testing.T) {
	clk := clock.NewFake(epoch)
	var (
		mu     sync.Mutex
		states []State[int]
	)
	fetch := &countingFetch[int]{value: 7}
	r := New[int](nil, nil, fetch.Fetch, Options[int]{
		Key:   "tiles",
		Clock: clk,
		OnChange: func(s State[int]) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	})

	r.Refresh(context.Background())
	mu.Lock()
	firstPass := len(states)
	sawLoading := false
	for _, s := range states {
		sawLoading = sawLoading || s.Loading
	}
	mu.Unlock()
	if !sawLoading {
		t.Fatal("first fetch never reported Loading")
	}

	r.Refresh(context.Background())
	mu.Lock()
	defer mu.Unlock()
	for _, s := range states[firstPass:] {
		if s.Loading {
			t.Fatal("background refresh flipped Loading")
		}
	}
	if states[len(states)-1].Loading {
		t.Fatal("Loading left on after first fetch")
	}
}

func TestReloadRoundTrip(t *testing.T) {
	clk := clock.NewFake(epoch)
	store := newStore(t, clk)
	value := []station{{MAC: "ee", RSSI: -55}, {MAC: "ff", RSSI: -80}}

	first := New(store, newConn(true), (&countingFetch[[]station]{value: value}).Fetch,
		Options[[]station]{Key: "stations_all", Clock: clk})
	first.Refresh(context.Background())
	first.Close()

	elapsed := 7 * time.Minute
	clk.Advance(elapsed)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloaded := New(store, newConn(false), (&countingFetch[[]station]{}).Fetch,
		Options[[]station]{Key: "stations_all", Clock: clk})
	reloaded.Start(ctx)

	st := reloaded.Snapshot()
	if len(st.Data) != 2 || st.Data[0] != value[0] || st.Data[1] != value[1] {
		t.Fatalf("reloaded Data = %+v, want %+v", st.Data, value)
	}
	if st.CacheAge < elapsed {
		t.Fatalf("CacheAge = %v, want >= %v", st.CacheAge, elapsed)
	}
}

func TestCacheAgeTicksWhileCached(t *testing.T) {
	clk := clock.NewFake(epoch)
	store := newStore(t, clk)
	_ = store.Set(context.Background(), "aps", []string{"ap1"}, time.Minute)

	updates := make(chan State[[]string], 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := New(store, newConn(false), (&countingFetch[[]string]{}).Fetch, Options[[]string]{
		Key:      "aps",
		Clock:    clk,
		OnChange: func(s State[[]string]) { updates <- s },
	})
	r.Start(ctx)
	if !clk.WaitForRequests(1, time.Second) {
		t.Fatal("age timer never scheduled")
	}
	for len(updates) > 0 {
		<-updates
	}

	clk.Advance(time.Minute)
	select {
	case st := <-updates:
		if st.CacheAge != time.Minute {
			t.Fatalf("CacheAge = %v, want 1m", st.CacheAge)
		}
	case <-time.After(time.Second):
		t.Fatal("no age update after a minute")
	}
}

func TestClearCacheAndClose(t *testing.T) {
	clk := clock.NewFake(epoch)
	store := newStore(t, clk)
	r := New(store, newConn(true), (&countingFetch[int]{value: 1}).Fetch, Options[int]{Key: "k", Clock: clk})
	r.Refresh(context.Background())

	if err := r.ClearCache(context.Background()); err != nil {
		t.Fatalf("ClearCache: %v", err)
	}
	if _, ok, _ := store.Get(context.Background(), "k"); ok {
		t.Fatal("entry survived ClearCache")
	}
	if !r.Snapshot().HasData {
		t.Fatal("ClearCache dropped in-memory data")
	}

	r.Close()
	before := r.Snapshot()
	clk.Advance(time.Hour)
	r.Refresh(context.Background())
	if r.Snapshot().LastUpdated != before.LastUpdated {
		t.Fatal("state changed after Close")
	}
}

type refreshTag struct{}

func TestRefresh_PublishesInApplyOrder(t *testing.T) {
	clk := clock.NewFake(epoch)
	slowStarted := make(chan struct{})
	firstPublished := make(chan struct{})
	fetch := func(ctx context.Context) (int, error) {
		if ctx.Value(refreshTag{}) == "slow" {
			close(slowStarted)
			<-firstPublished
			return 2, nil
		}
		return 1, nil
	}

	var (
		mu   sync.Mutex
		last int
		once sync.Once
	)
	r := New[int](nil, nil, fetch, Options[int]{
		Key:   "tiles",
		Clock: clk,
		OnChange: func(s State[int]) {
			if s.Data == 1 {
				once.Do(func() {
					close(firstPublished)
					// give the slow refresh time to apply its result
					time.Sleep(20 * time.Millisecond)
				})
			}
			mu.Lock()
			last = s.Data
			mu.Unlock()
		},
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Refresh(context.WithValue(context.Background(), refreshTag{}, "slow"))
	}()
	<-slowStarted
	r.Refresh(context.Background())
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if got := r.Snapshot().Data; got != 2 {
		t.Fatalf("Snapshot().Data = %d, want 2", got)
	}
	if last != 2 {
		t.Fatalf("last published Data = %d, want 2", last)
	}
}
