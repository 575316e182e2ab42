package presence

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/five82/beacon/internal/clock"
)

// BatteryStatus is a best-effort power reading.
type BatteryStatus struct {
	Known    bool
	Level    float64 // 0..1
	Charging bool
}

// Low reports a known, discharging battery under threshold.
func (b BatteryStatus) Low(threshold float64) bool {
	return b.Known && !b.Charging && b.Level < threshold
}

// Battery reports power state.
type Battery interface {
	Status() BatteryStatus
}

// SysfsBattery reads the first battery under /sys/class/power_supply.
// Machines without one report an unknown status.
type SysfsBattery struct {
	Root string // empty uses /sys/class/power_supply
}

// Status implements Battery.
func (s SysfsBattery) Status() BatteryStatus {
	root := s.Root
	if root == "" {
		root = "/sys/class/power_supply"
	}
	matches, err := filepath.Glob(filepath.Join(root, "BAT*"))
	if err != nil || len(matches) == 0 {
		return BatteryStatus{}
	}
	dir := matches[0]

	raw, err := os.ReadFile(filepath.Join(dir, "capacity"))
	if err != nil {
		return BatteryStatus{}
	}
	capacity, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return BatteryStatus{}
	}
	status := BatteryStatus{Known: true, Level: float64(capacity) / 100}
	if raw, err := os.ReadFile(filepath.Join(dir, "status")); err == nil {
		switch strings.ToLower(strings.TrimSpace(string(raw))) {
		case "charging", "full", "not charging":
			status.Charging = true
		}
	}
	return status
}

// DefaultBatteryInterval is how often a BatteryMonitor re-reads its source.
const DefaultBatteryInterval = time.Minute

// BatteryMonitor caches a Battery reading and re-reads it on an interval.
// Subscribers hear about readings that move across the low threshold or
// change charging state; plain level drift is not announced.
type BatteryMonitor struct {
	source    Battery
	clock     clock.Clock
	every     time.Duration
	threshold float64

	mu   sync.Mutex
	last BatteryStatus
	subs []chan struct{}
}

// NewBatteryMonitor takes an initial reading from source. A nil clock uses
// the wall clock; a non-positive every uses DefaultBatteryInterval.
func NewBatteryMonitor(source Battery, clk clock.Clock, every time.Duration, threshold float64) *BatteryMonitor {
	if clk == nil {
		clk = clock.Real{}
	}
	if every <= 0 {
		every = DefaultBatteryInterval
	}
	return &BatteryMonitor{
		source:    source,
		clock:     clk,
		every:     every,
		threshold: threshold,
		last:      source.Status(),
	}
}

// Status implements Battery with the latest cached reading.
func (m *BatteryMonitor) Status() BatteryStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Changes returns a channel that receives after every announced change.
func (m *BatteryMonitor) Changes() <-chan struct{} {
	ch := make(chan struct{}, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Check re-reads the source and reports whether subscribers were notified.
func (m *BatteryMonitor) Check() bool {
	next := m.source.Status()
	m.mu.Lock()
	prev := m.last
	m.last = next
	changed := prev.Known != next.Known || prev.Charging != next.Charging ||
		prev.Low(m.threshold) != next.Low(m.threshold)
	subs := append([]chan struct{}(nil), m.subs...)
	m.mu.Unlock()
	if !changed {
		return false
	}
	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return true
}

// Run re-reads the battery until ctx is done.
func (m *BatteryMonitor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.clock.After(m.every):
			m.Check()
		}
	}
}
