package poller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/five82/beacon/internal/cache"
	"github.com/five82/beacon/internal/clock"
	"github.com/five82/beacon/internal/presence"
	"github.com/five82/beacon/internal/telemetry"
)

// Defaults for zero Config fields.
const (
	DefaultActiveInterval = 10 * time.Second
	DefaultIdleInterval   = 30 * time.Second
	DefaultIdleAfter      = 60 * time.Second
	DefaultStaleAfter     = 30 * time.Second
	DefaultLowBattery     = 0.20
)

// SnapshotPrefix namespaces poller snapshots in the cache.
const SnapshotPrefix = "realtime_"

// Config picks the polling cadence.
type Config struct {
	ActiveInterval time.Duration
	IdleInterval   time.Duration
	HiddenInterval time.Duration // zero or negative pauses polling while hidden
	Enabled        bool
	IdleAfter      time.Duration
	StaleAfter     time.Duration
	LowBattery     float64
}

func (c Config) withDefaults() Config {
	if c.ActiveInterval <= 0 {
		c.ActiveInterval = DefaultActiveInterval
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = DefaultIdleInterval
	}
	if c.IdleAfter <= 0 {
		c.IdleAfter = DefaultIdleAfter
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = DefaultStaleAfter
	}
	if c.LowBattery <= 0 {
		c.LowBattery = DefaultLowBattery
	}
	return c
}

// Store is the cache surface used for snapshots.
type Store interface {
	Get(ctx context.Context, key string) (cache.Entry, bool, error)
	Set(ctx context.Context, key string, data any, ttl time.Duration) error
}

// FetchFunc loads the polled payload.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Options wire a Poller to its collaborators. Everything is optional.
type Options[T any] struct {
	Key       string
	Store     Store
	TTL       time.Duration
	Presence  *presence.Tracker
	Battery   presence.Battery
	Clock     clock.Clock
	Telemetry telemetry.Collector
	Logger    *zerolog.Logger
	OnChange  func(State[T])
}

// State is the poller's view of its payload.
type State[T any] struct {
	Data        T
	HasData     bool
	Loading     bool
	Err         string
	LastUpdated time.Time
	IsStale     bool
}

// Poller owns one polling subscription. It keeps a single timer, replacing
// it whenever focus, activity or battery state changes.
type Poller[T any] struct {
	fetch FetchFunc[T]
	cfg   Config
	opts  Options[T]
	clock clock.Clock
	tel   telemetry.Collector
	log   zerolog.Logger

	refresh chan struct{}
	changes <-chan struct{}
	power   <-chan struct{}

	mu     sync.Mutex
	state  State[T]
	hidden bool
	live   bool // a fetched payload has been applied
}

// batteryWatcher is a Battery that announces reading changes.
type batteryWatcher interface {
	Changes() <-chan struct{}
}

// New builds a poller and seeds its state from the last snapshot in the
// cache, so views have data before the first request completes.
func New[T any](fetch FetchFunc[T], cfg Config, opts Options[T]) *Poller[T] {
	p := &Poller[T]{
		fetch:   fetch,
		cfg:     cfg.withDefaults(),
		opts:    opts,
		clock:   opts.Clock,
		tel:     opts.Telemetry,
		log:     zerolog.Nop(),
		refresh: make(chan struct{}, 1),
	}
	if p.clock == nil {
		p.clock = clock.Real{}
	}
	if p.tel == nil {
		p.tel = telemetry.Noop()
	}
	if opts.Logger != nil {
		p.log = opts.Logger.With().Str("component", "poller").Str("key", opts.Key).Logger()
	}
	if opts.Presence != nil {
		p.changes = opts.Presence.Changes()
		p.hidden = opts.Presence.Hidden()
	}
	if w, ok := opts.Battery.(batteryWatcher); ok {
		p.power = w.Changes()
	}
	p.seed()
	return p
}

func (p *Poller[T]) snapshotKey() string {
	return SnapshotPrefix + p.opts.Key
}

func (p *Poller[T]) seed() {
	if p.opts.Store == nil {
		return
	}
	entry, ok, err := p.opts.Store.Get(context.Background(), p.snapshotKey())
	if err != nil || !ok {
		return
	}
	var data T
	if err := entry.Decode(&data); err != nil {
		p.log.Debug().Err(err).Msg("ignoring unreadable snapshot")
		return
	}
	p.state = State[T]{
		Data:        data,
		HasData:     true,
		LastUpdated: entry.Timestamp,
		IsStale:     entry.IsStale(p.clock.Now()),
	}
}

// Snapshot returns the current state.
func (p *Poller[T]) Snapshot() State[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Refresh asks the loop to poll now. Requests made while one is pending
// coalesce.
func (p *Poller[T]) Refresh() {
	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

// Interval returns the delay before the next poll and whether polling is
// paused. Conditions are checked from most to least specific.
func (p *Poller[T]) Interval() (time.Duration, bool) {
	if pr := p.opts.Presence; pr != nil && pr.Hidden() {
		if p.cfg.HiddenInterval <= 0 {
			return 0, true
		}
		return p.cfg.HiddenInterval, false
	}
	if p.opts.Battery != nil && p.opts.Battery.Status().Low(p.cfg.LowBattery) {
		return 2 * p.cfg.IdleInterval, false
	}
	if pr := p.opts.Presence; pr != nil && pr.IdleFor() >= p.cfg.IdleAfter {
		return p.cfg.IdleInterval, false
	}
	return p.cfg.ActiveInterval, false
}

// untilIdle is how long until the operator crosses IdleAfter, if they are
// visible and not yet idle.
func (p *Poller[T]) untilIdle() (time.Duration, bool) {
	pr := p.opts.Presence
	if pr == nil || pr.Hidden() {
		return 0, false
	}
	d := p.cfg.IdleAfter - pr.IdleFor()
	return d, d > 0
}

// Run polls until ctx is done. A disabled poller returns immediately.
// Listeners see a seeded snapshot before the first request goes out.
func (p *Poller[T]) Run(ctx context.Context) {
	if !p.cfg.Enabled {
		return
	}
	if p.Snapshot().HasData {
		p.update(true, func(*State[T]) {})
	}
	p.poll(ctx)

	var timer clock.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		interval, paused := p.Interval()
		if timer != nil {
			timer.Stop()
			timer = nil
		}
		var tick <-chan time.Time
		recheck := false
		if paused {
			p.tel.SetPollInterval(p.opts.Key, 0)
		} else {
			wait := interval
			if d, ok := p.untilIdle(); ok && d < interval {
				wait, recheck = d, true
			}
			timer = p.clock.NewTimer(wait)
			tick = timer.C()
			p.tel.SetPollInterval(p.opts.Key, interval)
		}

		select {
		case <-ctx.Done():
			return
		case <-tick:
			timer = nil
			if recheck {
				continue
			}
			p.poll(ctx)
		case <-p.refresh:
			p.poll(ctx)
		case <-p.changes:
			p.onPresenceChange(ctx)
		case <-p.power:
			p.log.Debug().Msg("battery reading changed, rescheduling")
		}
	}
}

func (p *Poller[T]) onPresenceChange(ctx context.Context) {
	pr := p.opts.Presence
	if pr == nil {
		return
	}
	hidden := pr.Hidden()
	p.mu.Lock()
	wasHidden := p.hidden
	p.hidden = hidden
	p.mu.Unlock()

	if wasHidden && !hidden && pr.LastHiddenFor() > p.cfg.StaleAfter {
		p.log.Debug().Dur("hidden_for", pr.LastHiddenFor()).Msg("refetching after long hidden period")
		p.update(true, func(s *State[T]) { s.IsStale = true })
		p.poll(ctx)
	}
}

func (p *Poller[T]) poll(ctx context.Context) {
	p.mu.Lock()
	firstLoad := !p.state.HasData && p.state.LastUpdated.IsZero() && p.state.Err == ""
	p.mu.Unlock()
	if firstLoad {
		p.update(true, func(s *State[T]) { s.Loading = true })
	}

	data, err := p.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.log.Warn().Err(err).Msg("poll failed")
		p.update(true, func(s *State[T]) {
			s.Loading = false
			s.Err = err.Error()
		})
		return
	}

	now := p.clock.Now()
	p.mu.Lock()
	unchanged := p.live && p.state.HasData && !p.state.Loading && p.state.Err == "" && !p.state.IsStale &&
		ShallowEqual(p.state.Data, data)
	p.mu.Unlock()
	if unchanged {
		p.tel.IncPollSuppressed(p.opts.Key)
		p.update(false, func(s *State[T]) { s.LastUpdated = now })
		return
	}

	if p.opts.Store != nil {
		if err := p.opts.Store.Set(ctx, p.snapshotKey(), data, p.opts.TTL); err != nil {
			p.log.Error().Err(err).Msg("snapshot write failed")
		}
	}
	p.update(true, func(s *State[T]) {
		p.live = true
		s.Data = data
		s.HasData = true
		s.Loading = false
		s.Err = ""
		s.IsStale = false
		s.LastUpdated = now
	})
}

func (p *Poller[T]) update(notify bool, apply func(*State[T])) {
	p.mu.Lock()
	apply(&p.state)
	snapshot := p.state
	p.mu.Unlock()
	if notify && p.opts.OnChange != nil {
		p.opts.OnChange(snapshot)
	}
}
