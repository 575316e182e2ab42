// Package netstate tracks whether the controller is reachable.
//
// It plays the role navigator.onLine plays in a browser: a cheap Online()
// check plus transition events for the components that react to
// reconnects.
package netstate

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultProbeInterval = 10 * time.Second
	defaultProbeTimeout  = 3 * time.Second
	// failures needed before the controller is considered offline
	defaultOfflineThreshold = 2
)

// Prober checks controller reachability.
type Prober interface {
	FetchHealth(ctx context.Context) error
}

// Transition is emitted whenever the online state flips.
type Transition struct {
	Online bool
	At     time.Time
	Err    error // last failure when going offline
}

// Options tune a Monitor.
type Options struct {
	Interval         time.Duration
	Timeout          time.Duration
	OfflineThreshold int
	Logger           *zerolog.Logger
}

// Monitor derives online/offline state from probe and request outcomes.
type Monitor struct {
	prober    Prober
	interval  time.Duration
	timeout   time.Duration
	threshold int
	log       zerolog.Logger

	mu       sync.Mutex
	online   bool
	failures int
	lastErr  error
	subs     map[int]chan Transition
	nextSub  int
}

// NewMonitor returns a monitor that starts out online, matching a browser's
// optimistic default until the first probe says otherwise.
func NewMonitor(prober Prober, opts Options) *Monitor {
	m := &Monitor{
		prober:    prober,
		interval:  opts.Interval,
		timeout:   opts.Timeout,
		threshold: opts.OfflineThreshold,
		log:       zerolog.Nop(),
		online:    true,
		subs:      make(map[int]chan Transition),
	}
	if m.interval <= 0 {
		m.interval = defaultProbeInterval
	}
	if m.timeout <= 0 {
		m.timeout = defaultProbeTimeout
	}
	if m.threshold <= 0 {
		m.threshold = defaultOfflineThreshold
	}
	if opts.Logger != nil {
		m.log = opts.Logger.With().Str("component", "netstate").Logger()
	}
	return m
}

// Online reports the current reachability verdict.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// LastError returns the most recent failure, nil after a success.
func (m *Monitor) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Subscribe returns a channel receiving transitions and a cancel func.
// Slow subscribers miss transitions rather than blocking the monitor.
func (m *Monitor) Subscribe() (<-chan Transition, func()) {
	ch := make(chan Transition, 8)
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Report feeds the outcome of any controller request into the verdict.
// One success brings the monitor online; OfflineThreshold consecutive
// failures take it offline.
func (m *Monitor) Report(err error) {
	m.mu.Lock()
	var (
		changed bool
		t       Transition
	)
	if err == nil {
		m.failures = 0
		m.lastErr = nil
		if !m.online {
			m.online, changed = true, true
		}
	} else {
		m.failures++
		m.lastErr = err
		if m.online && m.failures >= m.threshold {
			m.online, changed = false, true
		}
	}
	if changed {
		t = Transition{Online: m.online, At: time.Now(), Err: m.lastErr}
		for _, ch := range m.subs {
			select {
			case ch <- t:
			default:
			}
		}
	}
	m.mu.Unlock()

	if changed {
		if t.Online {
			m.log.Info().Msg("controller reachable")
		} else {
			m.log.Warn().Err(t.Err).Msg("controller unreachable")
		}
	}
}

// Probe runs one health check and reports it.
func (m *Monitor) Probe(ctx context.Context) {
	if m.prober == nil {
		return
	}
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	err := m.prober.FetchHealth(probeCtx)
	if ctx.Err() != nil {
		return
	}
	m.Report(err)
}

// Run probes immediately and then on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		m.Probe(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
