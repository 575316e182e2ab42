package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/five82/beacon/internal/advisory"
	"github.com/five82/beacon/internal/cache"
	"github.com/five82/beacon/internal/config"
	"github.com/five82/beacon/internal/controller"
	"github.com/five82/beacon/internal/netstate"
	"github.com/five82/beacon/internal/offline"
	"github.com/five82/beacon/internal/payload"
	"github.com/five82/beacon/internal/poller"
	"github.com/five82/beacon/internal/presence"
	"github.com/five82/beacon/internal/state"
	"github.com/five82/beacon/internal/syncqueue"
	"github.com/five82/beacon/internal/telemetry"
)

// Cache keys owned by the console.
const (
	KeyStatus       = "status"
	KeyDashboard    = "dashboard"
	KeyAccessPoints = "access_points"
	KeyStations     = "stations_all"
	KeyRoaming      = "roaming_events"
)

const (
	// roamingWindow bounds how far back roaming events are requested.
	roamingWindow   = time.Hour
	syncPublishTick = time.Second
	advisoryHistory = 50
)

// Deps are the collaborators Build does not construct itself.
type Deps struct {
	Cache     *cache.Store
	Client    *controller.Client
	Tracker   *presence.Tracker
	Battery   presence.Battery
	Telemetry telemetry.Collector
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Services owns every background component the console reads from.
type Services struct {
	Cache      *cache.Store
	Client     *controller.Client
	Monitor    *netstate.Monitor
	Queue      *syncqueue.Queue
	Tracker    *presence.Tracker
	State      *state.Store
	Advisories *advisory.Log

	cfg     config.Config
	policy  cache.TTLPolicy
	battery presence.Battery
	log    zerolog.Logger
	now    func() time.Time

	status   *poller.Poller[*controller.SystemStatus]
	tiles    *poller.Poller[[]payload.Tile]
	aps      *offline.Resource[[]controller.AccessPoint]
	stations *offline.Resource[[]controller.Station]
	roaming  *offline.Resource[[]controller.RoamingEvent]

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// Build wires the monitor, sync queue, resources and pollers around one
// cache and one controller client. Nothing runs until Start.
func Build(ctx context.Context, cfg config.Config, deps Deps) (*Services, error) {
	if deps.Cache == nil || deps.Client == nil {
		return nil, errors.New("cache and client are required")
	}
	if deps.Tracker == nil {
		deps.Tracker = presence.NewTracker(nil, cfg.Polling.IdleAfter)
	}
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.Noop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	logger := deps.Logger

	s := &Services{
		Cache:      deps.Cache,
		Client:     deps.Client,
		Tracker:    deps.Tracker,
		State:      &state.Store{},
		Advisories: advisory.NewLog(advisoryHistory),
		cfg:        cfg,
		battery:    deps.Battery,
		policy:     cache.TTLPolicy{Default: cfg.Cache.DefaultTTL, ByPrefix: cfg.Cache.TTL},
		log:        logger.With().Str("component", "app").Logger(),
		now:        deps.Now,
	}

	s.Monitor = netstate.NewMonitor(deps.Client, netstate.Options{
		Interval:         cfg.Network.ProbeInterval,
		Timeout:          cfg.Network.ProbeTimeout,
		OfflineThreshold: cfg.Network.OfflineThreshold,
		Logger:           &logger,
	})

	queue, err := syncqueue.New(ctx, deps.Cache, deps.Client, s.Monitor, syncqueue.Options{
		MaxRetries: cfg.Sync.MaxRetries,
		Sink:       advisory.SinkFunc(s.advise),
		Telemetry:  deps.Telemetry,
		Logger:     &logger,
		Now:        deps.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("init sync queue: %w", err)
	}
	s.Queue = queue

	pollCfg := poller.Config{
		ActiveInterval: cfg.Polling.Active,
		IdleInterval:   cfg.Polling.Idle,
		HiddenInterval: cfg.Polling.Hidden,
		Enabled:        cfg.Polling.Enabled,
		IdleAfter:      cfg.Polling.IdleAfter,
		StaleAfter:     cfg.Polling.StaleAfter,
		LowBattery:     cfg.Polling.LowBattery,
	}
	snapshotTTL := s.policy.Resolve(poller.SnapshotPrefix, 0)

	s.status = poller.New(reporting(s.Monitor, deps.Client.FetchStatus), pollCfg, poller.Options[*controller.SystemStatus]{
		Key:       KeyStatus,
		Store:     deps.Cache,
		TTL:       snapshotTTL,
		Presence:  deps.Tracker,
		Battery:   deps.Battery,
		Telemetry: deps.Telemetry,
		Logger:    &logger,
		OnChange: func(st poller.State[*controller.SystemStatus]) {
			s.State.SetStatus(state.FromPoller(st))
		},
	})
	s.tiles = poller.New(reporting(s.Monitor, deps.Client.FetchDashboard), pollCfg, poller.Options[[]payload.Tile]{
		Key:       KeyDashboard,
		Store:     deps.Cache,
		TTL:       snapshotTTL,
		Presence:  deps.Tracker,
		Battery:   deps.Battery,
		Telemetry: deps.Telemetry,
		Logger:    &logger,
		OnChange: func(st poller.State[[]payload.Tile]) {
			s.State.SetTiles(state.FromPoller(st))
		},
	})

	s.aps = offline.New(deps.Cache, s.Monitor, reporting(s.Monitor, deps.Client.FetchAccessPoints), offline.Options[[]controller.AccessPoint]{
		Key:             KeyAccessPoints,
		Policy:          s.policy,
		RefreshInterval: cfg.Polling.ResourceRefresh,
		Telemetry:       deps.Telemetry,
		Logger:          &logger,
		OnChange: func(st offline.State[[]controller.AccessPoint]) {
			s.State.SetAccessPoints(state.FromResource(st))
		},
	})
	s.stations = offline.New(deps.Cache, s.Monitor, reporting(s.Monitor, deps.Client.FetchStations), offline.Options[[]controller.Station]{
		Key:             KeyStations,
		Policy:          s.policy,
		RefreshInterval: cfg.Polling.ResourceRefresh,
		Telemetry:       deps.Telemetry,
		Logger:          &logger,
		OnChange: func(st offline.State[[]controller.Station]) {
			s.State.SetStations(state.FromResource(st))
		},
	})
	s.roaming = offline.New(deps.Cache, s.Monitor, reporting(s.Monitor, s.fetchRoaming), offline.Options[[]controller.RoamingEvent]{
		Key:             KeyRoaming,
		Policy:          s.policy,
		RefreshInterval: cfg.Polling.ResourceRefresh,
		Telemetry:       deps.Telemetry,
		Logger:          &logger,
		OnChange: func(st offline.State[[]controller.RoamingEvent]) {
			s.State.SetRoamingEvents(state.FromResource(st))
		},
	})

	// Seeded snapshots are on screen before the first poll returns.
	s.State.SetStatus(state.FromPoller(s.status.Snapshot()))
	s.State.SetTiles(state.FromPoller(s.tiles.Snapshot()))
	s.State.SetSync(queue.Status())
	return s, nil
}

// Start launches the background loops. The first resource fetches run
// concurrently so a slow endpoint does not hold up the others.
func (s *Services) Start(ctx context.Context) {
	s.goRun(ctx, s.Monitor.Run)
	s.goRun(ctx, s.Queue.Run)
	if r, ok := s.battery.(interface{ Run(context.Context) }); ok {
		s.goRun(ctx, r.Run)
	}

	if s.cfg.Cache.Preload {
		n, err := offline.PreloadCriticalData(ctx, s.Monitor, s.Cache, s.policy, s.preloadItems())
		if err != nil {
			s.log.Warn().Err(err).Int("cached", n).Msg("preload incomplete")
		} else if n > 0 {
			s.log.Debug().Int("cached", n).Msg("preloaded critical data")
		}
	}

	s.goRun(ctx, s.aps.Start)
	s.goRun(ctx, s.stations.Start)
	s.goRun(ctx, s.roaming.Start)
	s.goRun(ctx, s.status.Run)
	s.goRun(ctx, s.tiles.Run)
	s.goRun(ctx, s.watch)
}

// Wait blocks until every loop started by Start, and every drain or reload
// an action kicked off, has returned.
func (s *Services) Wait() {
	s.wg.Wait()
}

// Close suppresses late resource updates and refuses new background work,
// so Wait can be called afterwards.
func (s *Services) Close() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.aps.Close()
	s.stations.Close()
	s.roaming.Close()
}

func (s *Services) goRun(ctx context.Context, fn func(context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(ctx)
	}()
}

// RefreshAll refetches every resource and wakes both pollers.
func (s *Services) RefreshAll(ctx context.Context) {
	s.status.Refresh()
	s.tiles.Refresh()
	var wg sync.WaitGroup
	for _, refresh := range []func(context.Context){s.aps.Refresh, s.stations.Refresh, s.roaming.Refresh} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			refresh(ctx)
		}()
	}
	wg.Wait()
}

// Drain replays the sync queue now. The queue raises the summary advisory.
func (s *Services) Drain(ctx context.Context) (syncqueue.Result, error) {
	res, err := s.Queue.ProcessPendingRequests(ctx)
	s.State.SetSync(s.Queue.Status())
	return res, err
}

// QueueReboot queues an access point reboot for replay.
func (s *Services) QueueReboot(ctx context.Context, apID string) (string, error) {
	return s.queueMutation(ctx, controller.RebootPath(apID), "reboot "+apID)
}

// QueueDisconnect queues a station disconnect for replay.
func (s *Services) QueueDisconnect(ctx context.Context, mac string) (string, error) {
	return s.queueMutation(ctx, controller.DisconnectPath(mac), "disconnect "+mac)
}

func (s *Services) queueMutation(ctx context.Context, path, label string) (string, error) {
	id, err := s.Queue.QueueRequest(ctx, path, http.MethodPost, nil)
	if err != nil {
		return "", err
	}
	s.State.SetSync(s.Queue.Status())
	msg := "Queued " + label
	if !s.Monitor.Online() {
		msg += " (will send when back online)"
	}
	s.advise(advisory.Advisory{Level: advisory.Info, Message: msg, At: s.now()})
	if s.Monitor.Online() {
		s.goRun(ctx, func(ctx context.Context) {
			if _, err := s.Drain(ctx); err != nil {
				s.log.Warn().Err(err).Msg("sync drain failed")
			}
		})
	}
	return id, nil
}

// ClearCache removes every cached payload except the sync queue and
// reloads live data.
func (s *Services) ClearCache(ctx context.Context) (int, error) {
	removed := 0
	for _, prefix := range []string{poller.SnapshotPrefix, KeyAccessPoints, KeyStations, KeyRoaming} {
		n, err := s.Cache.Clear(ctx, prefix)
		if err != nil {
			return removed, fmt.Errorf("clear cache: %w", err)
		}
		removed += n
	}
	s.advise(advisory.Advisory{Level: advisory.Info, Message: fmt.Sprintf("Cleared %d cached payload(s)", removed), At: s.now()})
	s.goRun(ctx, s.RefreshAll)
	return removed, nil
}

// CacheStats reports cache occupancy.
func (s *Services) CacheStats(ctx context.Context) (cache.Stats, error) {
	return s.Cache.Stats(ctx)
}

func (s *Services) fetchRoaming(ctx context.Context) ([]controller.RoamingEvent, error) {
	return s.Client.FetchRoamingEvents(ctx, s.now().Add(-roamingWindow))
}

func (s *Services) preloadItems() []offline.PreloadItem {
	return []offline.PreloadItem{
		{Key: KeyAccessPoints, Fetch: anyFetch(s.Client.FetchAccessPoints)},
		{Key: KeyStations, Fetch: anyFetch(s.Client.FetchStations)},
		{Key: KeyRoaming, Fetch: anyFetch(s.fetchRoaming)},
	}
}

func (s *Services) advise(a advisory.Advisory) {
	s.State.Advise(a)
	s.Advisories.Advise(a)
	event := s.log.Info()
	switch a.Level {
	case advisory.Warn:
		event = s.log.Warn()
	case advisory.Error:
		event = s.log.Error()
	}
	event.Str("advisory", a.Message).Msg("advisory")
}

// reporting feeds every fetch outcome into the connectivity monitor.
// Cancellations say nothing about the controller and are not reported.
func reporting[T any](mon *netstate.Monitor, fetch func(context.Context) (T, error)) func(context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		v, err := fetch(ctx)
		if ctx.Err() == nil {
			mon.Report(err)
		}
		return v, err
	}
}

func anyFetch[T any](fetch func(context.Context) (T, error)) func(context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		return fetch(ctx)
	}
}
