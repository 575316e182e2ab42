// Package offline wraps controller fetches with cache-first and
// cache-fallback behaviour.
package offline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/five82/beacon/internal/cache"
	"github.com/five82/beacon/internal/clock"
	"github.com/five82/beacon/internal/telemetry"
)

// DefaultAgeInterval is how often CacheAge is recomputed while cached data
// is on screen.
const DefaultAgeInterval = time.Minute

// Advisory strings reported through State.Err.
const (
	msgNoCache      = "no cached data available"
	msgShowingCache = "showing cached data"
)

// Connectivity reports whether the controller is believed reachable.
type Connectivity interface {
	Online() bool
}

// Store is the cache surface a Resource needs. *cache.Store satisfies it.
type Store interface {
	Get(ctx context.Context, key string) (cache.Entry, bool, error)
	Set(ctx context.Context, key string, data any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// FetchFunc loads a fresh value from the controller.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Options configure a Resource.
type Options[T any] struct {
	Key             string
	TTL             time.Duration // zero defers to Policy
	Policy          cache.TTLPolicy
	DisablePreload  bool
	RefreshInterval time.Duration // zero disables background refresh
	AgeInterval     time.Duration // zero uses DefaultAgeInterval
	OnChange        func(State[T])
	Logger          *zerolog.Logger
	Telemetry       telemetry.Collector
	Clock           clock.Clock
}

// State is what a view renders for a Resource.
type State[T any] struct {
	Data        T
	HasData     bool
	Loading     bool
	Err         string
	IsOffline   bool
	LastUpdated time.Time
	IsCached    bool
	CacheAge    time.Duration
}

// Resource keeps one controller payload fresh and falls back to the cache
// when the controller cannot be reached. Concurrent Refresh calls are not
// fenced: whichever response resolves last wins. OnChange sees states in
// the order they were applied.
type Resource[T any] struct {
	store Store
	conn  Connectivity
	fetch FetchFunc[T]
	opts  Options[T]
	clock clock.Clock
	tel   telemetry.Collector
	log   zerolog.Logger

	// publish orders apply+OnChange pairs; mu guards state alone so
	// Snapshot never waits on a listener.
	publish sync.Mutex
	mu      sync.Mutex
	state   State[T]
	fetched bool
	closed  bool
}

// New builds a Resource. store and conn may be nil: without a store nothing
// is cached, without conn the controller is always assumed online.
func New[T any](store Store, conn Connectivity, fetch FetchFunc[T], opts Options[T]) *Resource[T] {
	r := &Resource[T]{
		store: store,
		conn:  conn,
		fetch: fetch,
		opts:  opts,
		clock: opts.Clock,
		tel:   opts.Telemetry,
		log:   zerolog.Nop(),
	}
	if r.clock == nil {
		r.clock = clock.Real{}
	}
	if r.tel == nil {
		r.tel = telemetry.Noop()
	}
	if r.opts.AgeInterval <= 0 {
		r.opts.AgeInterval = DefaultAgeInterval
	}
	if opts.Logger != nil {
		r.log = opts.Logger.With().Str("component", "offline").Str("key", opts.Key).Logger()
	}
	return r
}

// Key returns the cache key the resource owns.
func (r *Resource[T]) Key() string {
	return r.opts.Key
}

// Start preloads from the cache, performs the first fetch and then keeps
// refreshing in the background until ctx is done or Close is called.
func (r *Resource[T]) Start(ctx context.Context) {
	if !r.opts.DisablePreload {
		r.serveCached(ctx)
	}
	r.Refresh(ctx)
	go r.loop(ctx)
}

// Refresh runs one fetch cycle. Failures never escape; they are recorded as
// an advisory in State.Err.
func (r *Resource[T]) Refresh(ctx context.Context) {
	r.mu.Lock()
	first := !r.fetched
	r.fetched = true
	r.mu.Unlock()
	if first {
		r.update(func(s *State[T]) { s.Loading = true })
		defer r.update(func(s *State[T]) { s.Loading = false })
	}

	if r.conn != nil && !r.conn.Online() {
		r.tel.IncFetch(r.opts.Key, telemetry.FetchOffline)
		served := r.serveCached(ctx)
		r.update(func(s *State[T]) {
			s.IsOffline = true
			if served {
				s.Err = ""
			} else {
				s.Err = "offline: " + msgNoCache
			}
		})
		return
	}

	data, err := r.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.tel.IncFetch(r.opts.Key, telemetry.FetchFailed)
		r.log.Warn().Err(err).Msg("fetch failed")
		served := r.serveCached(ctx)
		r.update(func(s *State[T]) {
			s.IsOffline = false
			if served {
				s.Err = fmt.Sprintf("%v (%s)", err, msgShowingCache)
			} else {
				s.Err = fmt.Sprintf("%v: %s", err, msgNoCache)
			}
		})
		return
	}

	r.tel.IncFetch(r.opts.Key, telemetry.FetchOK)
	if r.store != nil {
		ttl := r.opts.Policy.Resolve(r.opts.Key, r.opts.TTL)
		if err := r.store.Set(ctx, r.opts.Key, data, ttl); err != nil {
			r.log.Error().Err(err).Msg("cache write failed")
		}
	}
	now := r.clock.Now()
	r.update(func(s *State[T]) {
		s.Data = data
		s.HasData = true
		s.Err = ""
		s.IsOffline = false
		s.IsCached = false
		s.CacheAge = 0
		s.LastUpdated = now
	})
}

// ClearCache drops the cached copy. The in-memory data stays on screen.
func (r *Resource[T]) ClearCache(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.Delete(ctx, r.opts.Key); err != nil {
		return fmt.Errorf("clear %s: %w", r.opts.Key, err)
	}
	r.update(func(s *State[T]) {
		s.IsCached = false
		s.CacheAge = 0
	})
	return nil
}

// Snapshot returns the current state.
func (r *Resource[T]) Snapshot() State[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Close stops publishing state. Fetches already in flight are not aborted;
// their results are discarded.
func (r *Resource[T]) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

func (r *Resource[T]) loop(ctx context.Context) {
	var refresh <-chan time.Time
	if r.opts.RefreshInterval > 0 {
		refresh = r.clock.After(r.opts.RefreshInterval)
	}
	age := r.clock.After(r.opts.AgeInterval)
	for {
		if r.isClosed() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-refresh:
			r.Refresh(ctx)
			refresh = r.clock.After(r.opts.RefreshInterval)
		case <-age:
			r.tickAge()
			age = r.clock.After(r.opts.AgeInterval)
		}
	}
}

func (r *Resource[T]) tickAge() {
	now := r.clock.Now()
	r.update(func(s *State[T]) {
		if s.IsCached && !s.LastUpdated.IsZero() {
			s.CacheAge = now.Sub(s.LastUpdated)
		}
	})
}

// serveCached loads the cached payload into state and reports whether one
// was found.
func (r *Resource[T]) serveCached(ctx context.Context) bool {
	if r.store == nil {
		return false
	}
	entry, ok, err := r.store.Get(ctx, r.opts.Key)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.log.Error().Err(err).Msg("cache read failed")
		}
		return false
	}
	if !ok {
		r.tel.IncCacheLookup(telemetry.LookupMiss)
		return false
	}
	var data T
	if err := entry.Decode(&data); err != nil {
		r.log.Warn().Err(err).Msg("discarding undecodable cache entry")
		r.tel.IncCacheLookup(telemetry.LookupMiss)
		return false
	}
	now := r.clock.Now()
	if entry.IsStale(now) {
		r.tel.IncCacheLookup(telemetry.LookupStale)
	} else {
		r.tel.IncCacheLookup(telemetry.LookupHit)
	}
	r.tel.IncFetch(r.opts.Key, telemetry.FetchCached)
	r.update(func(s *State[T]) {
		s.Data = data
		s.HasData = true
		s.IsCached = true
		s.LastUpdated = entry.Timestamp
		s.CacheAge = entry.Age(now)
	})
	return true
}

func (r *Resource[T]) update(apply func(*State[T])) {
	r.publish.Lock()
	defer r.publish.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	apply(&r.state)
	snapshot := r.state
	onChange := r.opts.OnChange
	r.mu.Unlock()

	if onChange != nil {
		onChange(snapshot)
	}
}

func (r *Resource[T]) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
