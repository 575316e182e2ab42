// Package advisory carries short operator-facing notices from background
// components to the console header.
package advisory

import (
	"sync"
	"time"
)

// Level ranks an advisory.
type Level int

const (
	Info Level = iota
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Advisory is one notice.
type Advisory struct {
	Level   Level
	Message string
	At      time.Time
}

// Sink receives advisories.
type Sink interface {
	Advise(Advisory)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Advisory)

// Advise implements Sink.
func (f SinkFunc) Advise(a Advisory) { f(a) }

// Discard drops everything.
var Discard Sink = SinkFunc(func(Advisory) {})

// Log keeps the most recent advisories, newest last.
type Log struct {
	mu    sync.Mutex
	limit int
	items []Advisory
}

// NewLog returns a log holding up to limit advisories.
func NewLog(limit int) *Log {
	if limit <= 0 {
		limit = 20
	}
	return &Log{limit: limit}
}

// Advise implements Sink.
func (l *Log) Advise(a Advisory) {
	if a.At.IsZero() {
		a.At = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, a)
	if over := len(l.items) - l.limit; over > 0 {
		l.items = append([]Advisory(nil), l.items[over:]...)
	}
}

// Latest returns the newest advisory.
func (l *Log) Latest() (Advisory, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.items) == 0 {
		return Advisory{}, false
	}
	return l.items[len(l.items)-1], true
}

// All returns a copy of the retained advisories.
func (l *Log) All() []Advisory {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Advisory(nil), l.items...)
}
