// Package presence tracks whether the operator is looking at the console
// and whether they are active, the inputs the adaptive poller schedules on.
package presence

import (
	"sync"
	"time"

	"github.com/five82/beacon/internal/clock"
)

// Tracker records terminal focus and input activity. The UI feeds it;
// pollers read it and listen on Changes.
type Tracker struct {
	clock     clock.Clock
	idleAfter time.Duration

	mu           sync.Mutex
	hidden       bool
	hiddenSince  time.Time
	lastHidden   time.Duration
	lastActivity time.Time
	subs         []chan struct{}
}

// DefaultIdleAfter is the input silence after which the operator is idle.
const DefaultIdleAfter = 60 * time.Second

// NewTracker returns a visible, just-active tracker. A nil clock uses the
// wall clock; a non-positive idleAfter uses DefaultIdleAfter.
func NewTracker(clk clock.Clock, idleAfter time.Duration) *Tracker {
	if clk == nil {
		clk = clock.Real{}
	}
	if idleAfter <= 0 {
		idleAfter = DefaultIdleAfter
	}
	return &Tracker{clock: clk, idleAfter: idleAfter, lastActivity: clk.Now()}
}

// Now exposes the tracker's clock.
func (t *Tracker) Now() time.Time {
	return t.clock.Now()
}

// SetHidden records a focus change. Leaving the hidden state remembers how
// long the console was hidden.
func (t *Tracker) SetHidden(hidden bool) {
	t.mu.Lock()
	if hidden == t.hidden {
		t.mu.Unlock()
		return
	}
	now := t.clock.Now()
	if hidden {
		t.hiddenSince = now
	} else {
		t.lastHidden = now.Sub(t.hiddenSince)
		t.hiddenSince = time.Time{}
		t.lastActivity = now
	}
	t.hidden = hidden
	t.mu.Unlock()
	t.notify()
}

// Touch records operator input. Only the first touch after an idle period
// notifies listeners, so key repeat does not churn pollers.
func (t *Tracker) Touch() {
	t.mu.Lock()
	now := t.clock.Now()
	wasIdle := now.Sub(t.lastActivity) >= t.idleAfter
	t.lastActivity = now
	t.mu.Unlock()
	if wasIdle {
		t.notify()
	}
}

// Hidden reports whether the console is currently unfocused.
func (t *Tracker) Hidden() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hidden
}

// LastHiddenFor returns the duration of the most recent completed hidden
// period.
func (t *Tracker) LastHiddenFor() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastHidden
}

// Idle reports whether no input arrived for the idle threshold.
func (t *Tracker) Idle() bool {
	return t.IdleFor() >= t.idleAfter
}

// IdleFor returns the time since the last recorded input.
func (t *Tracker) IdleFor() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.clock.Now().Sub(t.lastActivity)
}

// Changes returns a channel that receives a value whenever focus changes or
// activity resumes after idling. Notifications coalesce.
func (t *Tracker) Changes() <-chan struct{} {
	ch := make(chan struct{}, 1)
	t.mu.Lock()
	t.subs = append(t.subs, ch)
	t.mu.Unlock()
	return ch
}

func (t *Tracker) notify() {
	t.mu.Lock()
	subs := append([]chan struct{}(nil), t.subs...)
	t.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
