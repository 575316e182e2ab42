// Package controller provides an HTTP client for the wireless controller
// REST API.
//
// All reads set Accept: application/json and User-Agent: beacon/0.1, carry
// the configured bearer token, and time out after five seconds. Error
// statuses come back as *StatusError so callers can tell a 5xx from a
// transport failure:
//
//	api /api/stations returned status 502
//	execute request: dial tcp 10.0.0.2:8443: connect: connection refused
//	decode response: unexpected EOF
//
// Send is the one write path. It is used to replay queued mutations and
// reports the status code instead of failing on it, because the sync queue
// decides what counts as delivered.
//
// Endpoints:
//
//	GET  /api/health
//	GET  /api/status
//	GET  /api/access-points
//	GET  /api/stations
//	GET  /api/roaming/events?since=<unix>
//	GET  /api/dashboard
//	POST /api/access-points/{id}/reboot
//	POST /api/stations/{mac}/disconnect
//
// Timestamps are accepted as RFC 3339 or "2006-01-02 15:04:05" local time;
// anything else parses to the zero time.
package controller
