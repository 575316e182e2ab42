package syncqueue

import (
	"encoding/json"
	"strconv"
	"time"
)

// PendingRequest is a mutation waiting to be replayed.
type PendingRequest struct {
	ID         string          `json:"id"`
	URL        string          `json:"url"`
	Method     string          `json:"method"`
	Body       json.RawMessage `json:"body,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	RetryCount int             `json:"retryCount"`
}

// Phase is the replay state of a request: Queued, Retrying, Done or
// Dropped.
type Phase interface {
	phase()
	String() string
}

// Queued has never been attempted.
type Queued struct{}

// Retrying has failed Attempt times and is still queued.
type Retrying struct{ Attempt int }

// Done was delivered and removed.
type Done struct{}

// Dropped exhausted its retries and was removed.
type Dropped struct{ Attempts int }

func (Queued) phase()   {}
func (Retrying) phase() {}
func (Done) phase()     {}
func (Dropped) phase()  {}

func (Queued) String() string     { return "queued" }
func (r Retrying) String() string { return "retrying(" + strconv.Itoa(r.Attempt) + ")" }
func (Done) String() string       { return "done" }
func (d Dropped) String() string  { return "dropped after " + strconv.Itoa(d.Attempts) + " attempts" }

// Phase derives the state of a request still in the queue.
func (r PendingRequest) Phase() Phase {
	if r.RetryCount == 0 {
		return Queued{}
	}
	return Retrying{Attempt: r.RetryCount}
}

// next applies one replay outcome.
func (r PendingRequest) next(ok bool, maxRetries int) (PendingRequest, Phase) {
	if ok {
		return r, Done{}
	}
	r.RetryCount++
	if r.RetryCount >= maxRetries {
		return r, Dropped{Attempts: r.RetryCount}
	}
	return r, Retrying{Attempt: r.RetryCount}
}
