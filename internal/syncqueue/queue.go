// Package syncqueue holds controller mutations made while offline and
// replays them when the controller is reachable again.
package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/five82/beacon/internal/advisory"
	"github.com/five82/beacon/internal/cache"
	"github.com/five82/beacon/internal/netstate"
	"github.com/five82/beacon/internal/telemetry"
)

// QueueKey is the cache key holding the persisted queue.
const QueueKey = "background_sync_queue"

// DefaultMaxRetries bounds replay attempts per request.
const DefaultMaxRetries = 3

// ErrNotFound is returned by RemoveRequest for an unknown ID.
var ErrNotFound = errors.New("syncqueue: request not found")

// Store persists the queue.
type Store interface {
	Get(ctx context.Context, key string) (cache.Entry, bool, error)
	Set(ctx context.Context, key string, data any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Replayer sends a stored request and reports the HTTP status.
type Replayer interface {
	Send(ctx context.Context, method, url string, body json.RawMessage) (int, error)
}

// Connectivity is the network view the queue follows.
type Connectivity interface {
	Online() bool
	Subscribe() (<-chan netstate.Transition, func())
}

// Options configure a Queue.
type Options struct {
	MaxRetries int
	Sink       advisory.Sink
	Telemetry  telemetry.Collector
	Logger     *zerolog.Logger
	Now        func() time.Time
}

// Status is the reactive view shown in the console header.
type Status struct {
	IsOnline     bool
	IsSyncing    bool
	PendingCount int
}

// Outcome is what one drain pass did to one request.
type Outcome struct {
	ID    string
	Phase Phase
}

// Result summarizes a drain pass.
type Result struct {
	Succeeded int
	Failed    int
	Retrying  int
	Outcomes  []Outcome
}

// Queue is the persisted replay queue.
type Queue struct {
	store      Store
	replayer   Replayer
	conn       Connectivity
	maxRetries int
	sink       advisory.Sink
	tel        telemetry.Collector
	log        zerolog.Logger
	now        func() time.Time

	mu      sync.Mutex // serializes load-modify-save of the persisted list
	group   singleflight.Group
	syncing atomic.Bool
	pending atomic.Int64
}

// New builds a queue and loads the persisted pending count.
func New(ctx context.Context, store Store, replayer Replayer, conn Connectivity, opts Options) (*Queue, error) {
	q := &Queue{
		store:      store,
		replayer:   replayer,
		conn:       conn,
		maxRetries: opts.MaxRetries,
		sink:       opts.Sink,
		tel:        opts.Telemetry,
		log:        zerolog.Nop(),
		now:        opts.Now,
	}
	if q.maxRetries <= 0 {
		q.maxRetries = DefaultMaxRetries
	}
	if q.sink == nil {
		q.sink = advisory.Discard
	}
	if q.tel == nil {
		q.tel = telemetry.Noop()
	}
	if q.now == nil {
		q.now = time.Now
	}
	if opts.Logger != nil {
		q.log = opts.Logger.With().Str("component", "syncqueue").Logger()
	}

	items, err := q.load(ctx)
	if err != nil {
		return nil, err
	}
	q.setPending(len(items))
	return q, nil
}

// QueueRequest stores a mutation for later replay and returns its ID.
func (q *Queue) QueueRequest(ctx context.Context, url, method string, body json.RawMessage) (string, error) {
	req := PendingRequest{
		ID:        uuid.NewString(),
		URL:       url,
		Method:    strings.ToUpper(strings.TrimSpace(method)),
		Body:      body,
		Timestamp: q.now(),
	}
	if req.Method == "" {
		req.Method = "POST"
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	items, err := q.load(ctx)
	if err != nil {
		return "", err
	}
	items = append(items, req)
	if err := q.save(ctx, items); err != nil {
		return "", err
	}
	q.log.Info().Str("id", req.ID).Str("method", req.Method).Str("url", req.URL).Msg("request queued")
	return req.ID, nil
}

// RemoveRequest deletes a queued request.
func (q *Queue) RemoveRequest(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	items, err := q.load(ctx)
	if err != nil {
		return err
	}
	kept := items[:0]
	found := false
	for _, item := range items {
		if item.ID == id {
			found = true
			continue
		}
		kept = append(kept, item)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return q.save(ctx, kept)
}

// Pending returns the queued requests in insertion order.
func (q *Queue) Pending(ctx context.Context) ([]PendingRequest, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// ClearPendingRequests empties the queue.
func (q *Queue) ClearPendingRequests(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.store.Delete(ctx, QueueKey); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	q.setPending(0)
	return nil
}

// Status reports connectivity, drain activity and queue depth.
func (q *Queue) Status() Status {
	online := true
	if q.conn != nil {
		online = q.conn.Online()
	}
	return Status{
		IsOnline:     online,
		IsSyncing:    q.syncing.Load(),
		PendingCount: int(q.pending.Load()),
	}
}

// ProcessPendingRequests replays every queued request once. Concurrent
// callers share a single pass and its result. Each pass that touched at
// least one request raises exactly one summary advisory.
func (q *Queue) ProcessPendingRequests(ctx context.Context) (Result, error) {
	v, err, _ := q.group.Do("drain", func() (any, error) {
		q.syncing.Store(true)
		defer q.syncing.Store(false)
		res, err := q.drain(ctx)
		if err != nil {
			q.log.Error().Err(err).Msg("drain failed")
			q.sink.Advise(advisory.Advisory{Level: advisory.Error, Message: "Sync failed: " + err.Error(), At: q.now()})
			return res, err
		}
		if len(res.Outcomes) > 0 {
			q.sink.Advise(Summary(res, q.now()))
		}
		return res, nil
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (q *Queue) drain(ctx context.Context) (Result, error) {
	q.mu.Lock()
	items, err := q.load(ctx)
	q.mu.Unlock()
	if err != nil {
		return Result{}, err
	}

	var res Result
	settled := make(map[string]PendingRequest, len(items))
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		code, sendErr := q.replayer.Send(ctx, item.Method, item.URL, item.Body)
		ok := sendErr == nil && code >= 200 && code < 300
		updated, phase := item.next(ok, q.maxRetries)
		res.Outcomes = append(res.Outcomes, Outcome{ID: item.ID, Phase: phase})

		ev := q.log.Debug().Str("id", item.ID).Str("phase", phase.String()).Int("status", code)
		if sendErr != nil {
			ev = ev.Err(sendErr)
		}
		ev.Msg("replayed request")

		switch phase.(type) {
		case Done:
			res.Succeeded++
			q.tel.IncSyncReplay(telemetry.ReplaySucceeded)
		case Dropped:
			res.Failed++
			q.tel.IncSyncReplay(telemetry.ReplayDropped)
			q.log.Warn().Str("id", item.ID).Str("url", item.URL).Int("attempts", updated.RetryCount).Msg("dropping request")
		case Retrying:
			res.Retrying++
			q.tel.IncSyncReplay(telemetry.ReplayRetried)
		}
		settled[item.ID] = updated
	}

	// Merge into the current list so requests queued during the pass survive.
	q.mu.Lock()
	defer q.mu.Unlock()
	current, err := q.load(ctx)
	if err != nil {
		return res, err
	}
	outcome := make(map[string]Phase, len(res.Outcomes))
	for _, o := range res.Outcomes {
		outcome[o.ID] = o.Phase
	}
	kept := current[:0]
	for _, item := range current {
		switch outcome[item.ID].(type) {
		case Done, Dropped:
			continue
		case Retrying:
			item = settled[item.ID]
		}
		kept = append(kept, item)
	}
	if err := q.save(ctx, kept); err != nil {
		return res, err
	}
	return res, nil
}

// Run follows connectivity transitions until ctx is done: going offline
// raises one advisory, coming back online drains the queue once and raises
// one summary advisory.
func (q *Queue) Run(ctx context.Context) {
	if q.conn == nil {
		return
	}
	transitions, cancel := q.conn.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-transitions:
			if !t.Online {
				q.sink.Advise(advisory.Advisory{
					Level:   advisory.Warn,
					Message: "Controller unreachable. Changes will be queued and sent when it returns.",
					At:      q.now(),
				})
				continue
			}
			q.drainAfterReconnect(ctx)
		}
	}
}

func (q *Queue) drainAfterReconnect(ctx context.Context) {
	if q.Status().PendingCount == 0 {
		q.sink.Advise(advisory.Advisory{Level: advisory.Info, Message: "Controller reachable again.", At: q.now()})
		return
	}
	_, _ = q.ProcessPendingRequests(ctx)
}

// Summary renders a drain result as a single advisory.
func Summary(res Result, at time.Time) advisory.Advisory {
	level := advisory.Info
	if res.Failed > 0 {
		level = advisory.Warn
	}
	msg := fmt.Sprintf("Synced %d queued change(s)", res.Succeeded)
	if res.Failed > 0 {
		msg += fmt.Sprintf(", %d failed", res.Failed)
	}
	if res.Retrying > 0 {
		msg += fmt.Sprintf(", %d will retry", res.Retrying)
	}
	return advisory.Advisory{Level: level, Message: msg + ".", At: at}
}

func (q *Queue) load(ctx context.Context) ([]PendingRequest, error) {
	entry, ok, err := q.store.Get(ctx, QueueKey)
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var items []PendingRequest
	if err := entry.Decode(&items); err != nil {
		q.log.Warn().Err(err).Msg("discarding unreadable queue")
		return nil, nil
	}
	return items, nil
}

func (q *Queue) save(ctx context.Context, items []PendingRequest) error {
	if items == nil {
		items = []PendingRequest{}
	}
	if err := q.store.Set(ctx, QueueKey, items, 0); err != nil {
		return fmt.Errorf("save queue: %w", err)
	}
	q.setPending(len(items))
	return nil
}

func (q *Queue) setPending(n int) {
	q.pending.Store(int64(n))
	q.tel.SetPendingRequests(n)
}
