package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Entry is one cached payload.
type Entry struct {
	Key           string
	Data          json.RawMessage
	Timestamp     time.Time
	SchemaVersion int
	TTL           time.Duration
}

// Decode unmarshals the cached payload into dest.
func (e Entry) Decode(dest any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("cache entry %q is empty", e.Key)
	}
	if err := json.Unmarshal(e.Data, dest); err != nil {
		return fmt.Errorf("decode cache entry %q: %w", e.Key, err)
	}
	return nil
}

// Age returns how long ago the entry was written. Never negative.
func (e Entry) Age(now time.Time) time.Duration {
	if e.Timestamp.IsZero() {
		return 0
	}
	age := now.Sub(e.Timestamp)
	if age < 0 {
		return 0
	}
	return age
}

// IsStale reports whether the entry outlived its TTL. A zero TTL never goes stale.
func (e Entry) IsStale(now time.Time) bool {
	return e.TTL > 0 && e.Age(now) > e.TTL
}

// Stats summarises the store contents.
type Stats struct {
	EntryCount  int
	StaleCount  int
	TotalBytes  int64
	NewestEntry time.Time
	OldestEntry time.Time
}

// String renders a one-line summary for the status views.
func (s Stats) String() string {
	if s.EntryCount == 0 {
		return "cache empty"
	}
	return fmt.Sprintf("%d entries (%d stale), %s, newest %s",
		s.EntryCount, s.StaleCount, humanize.Bytes(uint64(s.TotalBytes)), humanize.Time(s.NewestEntry))
}
