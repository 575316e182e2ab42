// Package state provides the thread-safe snapshot shared between the data
// layer and the UI.
//
// Resources, pollers and the sync queue write their latest state through
// the typed setters; the UI calls Snapshot on each tick and renders the
// copy it gets back.
//
//	resources/pollers ──Set*()──→ Store ──Snapshot()──→ UI tick
//
// Both the offline resource and the poller states are flattened into a
// Section so the views can mark cached, offline and stale data the same
// way regardless of which layer produced it. Raw roaming events are
// correlated into trails on write, so rendering never re-sorts them.
//
// Slices are cloned on the way in and on the way out. The UI may hold a
// snapshot across frames without racing later writes.
//
// Store is an advisory.Sink: background advisories land in the snapshot
// and the header shows the newest one.
//
// The zero Store is ready to use. There is no pub/sub; Version increments
// on every write so callers can skip work when nothing changed.
package state
