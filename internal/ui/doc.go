// Package ui is beacon's Bubble Tea console.
//
// The Model follows the usual Init/Update/View loop. A tick every PollTick
// pulls a fresh state.Snapshot; nothing in the UI talks to the controller
// directly. Operator actions (refresh, queued reboot and disconnect, sync
// drain, cache clear) run as commands against the Actions interface and
// report back through actionMsg.
//
// Views:
//
//	1 Overview       controller status, alarms and dashboard tiles
//	2 Access Points  radios with live client counts
//	3 Stations       associated clients with signal buckets
//	4 Roaming        per-client trails, ping-pong marked with ⇄
//	5 Logs           tail of beacon's own log file
//
// The header shows online state, where the current view's data came from
// (live, cached with its age, stale, offline), the sync queue depth and
// the newest advisory.
//
// Terminal focus and input drive the presence tracker the pollers schedule
// on: tea.BlurMsg marks the console hidden, tea.FocusMsg visible, and every
// key or mouse event counts as activity. Run enables focus and mouse
// reporting for that reason.
//
// Theme and last view persist through the prefs package.
package ui
