// Package cache provides the durable key/value cache behind the console.
//
// # Overview
//
// Every screen in beacon renders data fetched from the controller. The cache
// keeps the last good payload per key in a SQLite file so the console can
// start with data on screen and keep showing it while the controller is
// unreachable.
//
// # Entries
//
// An Entry carries the JSON payload, the time it was written, the schema
// version of the writer and a TTL. The TTL only classifies staleness:
//
//	entry, ok, err := store.Get(ctx, "stations_all")
//	if ok && entry.IsStale(time.Now()) {
//		// still usable, flag it in the header
//	}
//
// Nothing is evicted when it goes stale. Entries written under a different
// schema version are removed on read and reported as misses.
//
// # Keys
//
// Keys are chosen by the caller and assumed not to collide. Each key has a
// single writer, so there is no locking beyond SQLite's own. Conventions:
//
//   - "<resource>_<scope>" for fetch-wrapper resources ("stations_all")
//   - "realtime_<key>" for poller snapshots
//   - "background_sync_queue" for the pending mutation queue
//
// # TTL resolution
//
// TTLPolicy.Resolve picks an explicit override, then the longest matching
// prefix rule from configuration, then the configured default.
package cache
