// Package telemetry exposes console metrics through Prometheus.
package telemetry

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache lookup results.
const (
	LookupHit   = "hit"
	LookupMiss  = "miss"
	LookupStale = "stale"
)

// Fetch outcomes.
const (
	FetchOK      = "ok"
	FetchCached  = "cached"
	FetchFailed  = "failed"
	FetchOffline = "offline"
)

// Sync replay outcomes.
const (
	ReplaySucceeded = "succeeded"
	ReplayRetried   = "retried"
	ReplayDropped   = "dropped"
)

// Collector receives events from the cache, fetch wrapper, poller and sync
// queue. Calls happen inline, so implementations must be cheap.
type Collector interface {
	IncCacheLookup(result string)
	IncFetch(key, outcome string)
	SetPollInterval(key string, interval time.Duration)
	IncPollSuppressed(key string)
	IncSyncReplay(outcome string)
	SetPendingRequests(n int)
}

type noopCollector struct{}

// Noop returns a collector that discards everything.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncCacheLookup(string)                 {}
func (noopCollector) IncFetch(string, string)               {}
func (noopCollector) SetPollInterval(string, time.Duration) {}
func (noopCollector) IncPollSuppressed(string)              {}
func (noopCollector) IncSyncReplay(string)                  {}
func (noopCollector) SetPendingRequests(int)                {}

// PrometheusCollector records console events as Prometheus series.
type PrometheusCollector struct {
	cacheLookups   *prometheus.CounterVec
	fetches        *prometheus.CounterVec
	pollInterval   *prometheus.GaugeVec
	pollSuppressed *prometheus.CounterVec
	syncReplays    *prometheus.CounterVec
	pending        prometheus.Gauge
}

// NewPrometheusCollector registers the console metrics with reg. Metrics
// already registered on reg are reused, so building a second collector on
// the same registry is safe.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	var (
		c   PrometheusCollector
		err error
	)
	if c.cacheLookups, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_cache_lookups_total",
		Help: "Cache reads by result (hit, miss, stale).",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if c.fetches, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_fetches_total",
		Help: "Controller fetches by cache key and outcome.",
	}, []string{"key", "outcome"})); err != nil {
		return nil, err
	}
	if c.pollInterval, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "beacon_poll_interval_seconds",
		Help: "Interval currently selected by each adaptive poller.",
	}, []string{"key"})); err != nil {
		return nil, err
	}
	if c.pollSuppressed, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_poll_suppressed_total",
		Help: "Poll results dropped because they matched the previous payload.",
	}, []string{"key"})); err != nil {
		return nil, err
	}
	if c.syncReplays, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "beacon_sync_replays_total",
		Help: "Background sync replays by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if c.pending, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "beacon_sync_pending_requests",
		Help: "Mutations waiting in the background sync queue.",
	})); err != nil {
		return nil, err
	}
	return &c, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		var zero T
		return zero, err
	}
	return collector, nil
}

// IncCacheLookup counts one cache read.
func (p *PrometheusCollector) IncCacheLookup(result string) {
	if p == nil {
		return
	}
	p.cacheLookups.WithLabelValues(result).Inc()
}

// IncFetch counts one fetch attempt for key.
func (p *PrometheusCollector) IncFetch(key, outcome string) {
	if p == nil {
		return
	}
	p.fetches.WithLabelValues(key, outcome).Inc()
}

// SetPollInterval records the interval a poller just installed. Paused
// pollers report zero.
func (p *PrometheusCollector) SetPollInterval(key string, interval time.Duration) {
	if p == nil {
		return
	}
	p.pollInterval.WithLabelValues(key).Set(interval.Seconds())
}

// IncPollSuppressed counts a poll result that matched the previous one.
func (p *PrometheusCollector) IncPollSuppressed(key string) {
	if p == nil {
		return
	}
	p.pollSuppressed.WithLabelValues(key).Inc()
}

// IncSyncReplay counts one replayed mutation.
func (p *PrometheusCollector) IncSyncReplay(outcome string) {
	if p == nil {
		return
	}
	p.syncReplays.WithLabelValues(outcome).Inc()
}

// SetPendingRequests reports the sync queue depth.
func (p *PrometheusCollector) SetPendingRequests(n int) {
	if p == nil {
		return
	}
	p.pending.Set(float64(n))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
