package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/five82/beacon/internal/cache"
	"github.com/five82/beacon/internal/config"
	"github.com/five82/beacon/internal/controller"
	"github.com/five82/beacon/internal/logging"
	"github.com/five82/beacon/internal/prefs"
	"github.com/five82/beacon/internal/presence"
	"github.com/five82/beacon/internal/telemetry"
	"github.com/five82/beacon/internal/ui"
)

const uiTick = time.Second

// Options configure the beacon application.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/beacon/prefs.toml
}

// Run boots the console until the UI exits or the context is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closeLog, err := logging.Setup(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer closeLog()

	userPrefs, _ := prefs.Load(opts.PrefsPath)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tel, stopMetrics, err := setupTelemetry(cfg.Metrics, logger)
	if err != nil {
		return err
	}
	defer stopMetrics()

	store, err := cache.Open(cfg.Cache.Path, cache.Options{SchemaVersion: cfg.Cache.SchemaVersion})
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() { _ = store.Close() }()

	client, err := controller.NewClient(cfg.ControllerURL, controller.WithToken(cfg.APIToken))
	if err != nil {
		return fmt.Errorf("init controller client: %w", err)
	}

	services, err := Build(ctx, cfg, Deps{
		Cache:     store,
		Client:    client,
		Tracker:   presence.NewTracker(nil, cfg.Polling.IdleAfter),
		Battery:   presence.NewBatteryMonitor(presence.SysfsBattery{}, nil, presence.DefaultBatteryInterval, cfg.Polling.LowBattery),
		Telemetry: tel,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	logger.Info().Str("controller", client.BaseURL()).Str("cache", cfg.Cache.Path).Msg("beacon starting")
	services.Start(ctx)

	uiErr := ui.Run(ui.Options{
		Context:   ctx,
		Store:     services.State,
		Actions:   services,
		Tracker:   services.Tracker,
		LogPath:   cfg.LogPath(),
		PollTick:  uiTick,
		ThemeName: userPrefs.Theme,
		View:      userPrefs.LastView,
		PrefsPath: opts.PrefsPath,
	})

	cancel()
	services.Close()
	services.Wait()
	logger.Info().Msg("beacon stopped")
	return uiErr
}

// setupTelemetry returns the Prometheus collector when a metrics listener
// is configured and the no-op collector otherwise.
func setupTelemetry(cfg config.MetricsConfig, logger zerolog.Logger) (telemetry.Collector, func(), error) {
	if cfg.Listen == "" {
		return telemetry.Noop(), func() {}, nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	tel, err := telemetry.NewPrometheusCollector(reg)
	if err != nil {
		return nil, nil, fmt.Errorf("init metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler(reg))
	srv := &http.Server{Addr: cfg.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("listen", cfg.Listen).Msg("metrics listener stopped")
		}
	}()
	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return tel, stop, nil
}
