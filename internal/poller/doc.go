// Package poller re-fetches controller data on an interval that adapts to
// whether the operator is watching.
//
// The poller schedules itself on a single timer. Each loop iteration picks
// an interval from the presence tracker and battery:
//
//	hidden               HiddenInterval, or paused when it is zero
//	low battery          2 x IdleInterval
//	idle >= IdleAfter    IdleInterval
//	otherwise            ActiveInterval
//
// Successful polls are written to the cache under "realtime_<key>" so a
// restarted console shows the last known values immediately. Polls that
// return a payload whose top-level fields all match the previous one do not
// notify listeners and do not rewrite the cache.
package poller
