package state

import (
	"sync"
	"time"

	"github.com/five82/beacon/internal/advisory"
	"github.com/five82/beacon/internal/controller"
	"github.com/five82/beacon/internal/offline"
	"github.com/five82/beacon/internal/payload"
	"github.com/five82/beacon/internal/poller"
	"github.com/five82/beacon/internal/roaming"
	"github.com/five82/beacon/internal/syncqueue"
)

// Section is the UI's view of one data source, whichever layer fed it.
type Section[T any] struct {
	Data        T
	HasData     bool
	Loading     bool
	Err         string
	LastUpdated time.Time
	IsCached    bool
	IsOffline   bool
	IsStale     bool
	CacheAge    time.Duration
}

// FromResource converts an offline resource state.
func FromResource[T any](s offline.State[T]) Section[T] {
	return Section[T]{
		Data:        s.Data,
		HasData:     s.HasData,
		Loading:     s.Loading,
		Err:         s.Err,
		LastUpdated: s.LastUpdated,
		IsCached:    s.IsCached,
		IsOffline:   s.IsOffline,
		CacheAge:    s.CacheAge,
	}
}

// FromPoller converts a poller state.
func FromPoller[T any](s poller.State[T]) Section[T] {
	return Section[T]{
		Data:        s.Data,
		HasData:     s.HasData,
		Loading:     s.Loading,
		Err:         s.Err,
		LastUpdated: s.LastUpdated,
		IsStale:     s.IsStale,
	}
}

// Degraded reports whether the section shows anything other than fresh
// live data.
func (s Section[T]) Degraded() bool {
	return s.IsCached || s.IsOffline || s.IsStale || s.Err != ""
}

// Snapshot represents the latest data available to the UI.
type Snapshot struct {
	Status       Section[*controller.SystemStatus]
	Tiles        Section[[]payload.Tile]
	AccessPoints Section[[]controller.AccessPoint]
	Stations     Section[[]controller.Station]
	Roaming      Section[[]roaming.Trail]
	Sync         syncqueue.Status
	Advisory     advisory.Advisory
	HasAdvisory  bool
	Version      uint64 // bumped on every write
}

// Store coordinates concurrent updates to the snapshot. The zero value is
// ready to use.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

func (s *Store) write(apply func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	apply(&s.snapshot)
	s.snapshot.Version++
}

// SetStatus stores controller status.
func (s *Store) SetStatus(sec Section[*controller.SystemStatus]) {
	if sec.Data != nil {
		dup := *sec.Data
		dup.Alarms = cloneSlice(sec.Data.Alarms)
		sec.Data = &dup
	}
	s.write(func(snap *Snapshot) { snap.Status = sec })
}

// SetTiles stores dashboard tiles.
func (s *Store) SetTiles(sec Section[[]payload.Tile]) {
	sec.Data = cloneSlice(sec.Data)
	s.write(func(snap *Snapshot) { snap.Tiles = sec })
}

// SetAccessPoints stores the AP list.
func (s *Store) SetAccessPoints(sec Section[[]controller.AccessPoint]) {
	sec.Data = cloneSlice(sec.Data)
	s.write(func(snap *Snapshot) { snap.AccessPoints = sec })
}

// SetStations stores the station list.
func (s *Store) SetStations(sec Section[[]controller.Station]) {
	sec.Data = cloneSlice(sec.Data)
	s.write(func(snap *Snapshot) { snap.Stations = sec })
}

// SetRoamingEvents correlates raw events into trails and stores them.
func (s *Store) SetRoamingEvents(sec Section[[]controller.RoamingEvent]) {
	trails := Section[[]roaming.Trail]{
		HasData:     sec.HasData,
		Loading:     sec.Loading,
		Err:         sec.Err,
		LastUpdated: sec.LastUpdated,
		IsCached:    sec.IsCached,
		IsOffline:   sec.IsOffline,
		IsStale:     sec.IsStale,
		CacheAge:    sec.CacheAge,
	}
	if sec.HasData {
		trails.Data = roaming.Correlate(sec.Data)
	}
	s.write(func(snap *Snapshot) { snap.Roaming = trails })
}

// SetSync stores the sync queue status.
func (s *Store) SetSync(st syncqueue.Status) {
	s.write(func(snap *Snapshot) { snap.Sync = st })
}

// Advise records the newest advisory. It satisfies advisory.Sink.
func (s *Store) Advise(a advisory.Advisory) {
	if a.At.IsZero() {
		a.At = time.Now()
	}
	s.write(func(snap *Snapshot) {
		snap.Advisory = a
		snap.HasAdvisory = true
	})
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Tiles.Data = cloneSlice(s.snapshot.Tiles.Data)
	snap.AccessPoints.Data = cloneSlice(s.snapshot.AccessPoints.Data)
	snap.Stations.Data = cloneSlice(s.snapshot.Stations.Data)
	snap.Roaming.Data = cloneSlice(s.snapshot.Roaming.Data)
	if st := s.snapshot.Status.Data; st != nil {
		dup := *st
		dup.Alarms = cloneSlice(st.Alarms)
		snap.Status.Data = &dup
	}
	return snap
}

func cloneSlice[T any](items []T) []T {
	if len(items) == 0 {
		return nil
	}
	dup := make([]T, len(items))
	copy(dup, items)
	return dup
}
