// Package app is the composition root for beacon.
//
// Run loads configuration, sets up logging and optional metrics, opens the
// SQLite cache and builds the controller client. Build then wires the
// long-running pieces around them:
//
//	netstate.Monitor      health probes plus every fetch outcome
//	syncqueue.Queue       queued reboots/disconnects, drained on reconnect
//	poller.Poller         status and dashboard tiles, adaptive cadence
//	offline.Resource      access points, stations and roaming events
//	state.Store           what the UI renders on each tick
//
// Every fetch is wrapped so its outcome feeds the monitor; a failing
// controller therefore goes offline even between health probes. When the
// monitor comes back online every resource is refetched and the sync queue
// drains once.
//
// Services also implements the actions the UI triggers: refresh, drain,
// queued mutations and cache clearing. Network failures never surface as
// errors from these; they end up as advisories in the header.
package app
