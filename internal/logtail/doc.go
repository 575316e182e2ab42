// Package logtail reads the end of the console's own log file for the Logs
// view.
//
// Read keeps a ring buffer of maxLines while scanning, so memory stays
// bounded however large the file grows. Lines up to 1 MiB are accepted.
//
// Parse understands the zerolog JSON the console writes: level, time,
// message, error and component are lifted into Entry fields and everything
// else lands in Fields as strings. Anything else (console-format output, a
// stray panic trace) passes through as Raw so nothing is hidden from the
// operator.
package logtail
