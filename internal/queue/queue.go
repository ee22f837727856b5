package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/birbparty/nestlink/internal/events"
	"github.com/sirupsen/logrus"
)

// Replayer sends a queued request and reports the HTTP status it received.
// Any non-nil error counts as a failed replay.
type Replayer func(ctx context.Context, r Request) (status int, err error)

// Options configures a Queue
type Options struct {
	// MaxRetries is the number of failed replays a request may accumulate
	// before the next failure discards it
	MaxRetries int

	// EnableRetry requeues failed replays. When false the first failure
	// discards the request.
	EnableRetry bool

	// Online reports current connectivity. A drain stops as soon as it
	// returns false. Nil means always online.
	Online func() bool

	// Logger receives debug output. Nil discards it.
	Logger logrus.FieldLogger
}

// DrainResult summarizes one drain cycle
type DrainResult struct {
	Attempted int
	Succeeded int
	Requeued  int
	Discarded int

	// Skipped is set when another drain was already running
	Skipped bool

	// Interrupted is set when connectivity dropped or ctx ended mid-drain;
	// unreplayed requests stay queued in order
	Interrupted bool
}

// Queue is the offline request queue. Requests are replayed strictly in
// enqueue order, one at a time, and at most one drain runs at once.
type Queue struct {
	store      Store
	bus        *events.Bus
	log        logrus.FieldLogger
	maxRetries int
	retry      bool
	online     func() bool
	draining   atomic.Bool
}

// New creates a queue over store that reports outcomes on bus
func New(store Store, bus *events.Bus, opts Options) *Queue {
	if store == nil {
		store = NewMemoryStore()
	}
	if bus == nil {
		bus = events.NewBus(nil)
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	online := opts.Online
	if online == nil {
		online = func() bool { return true }
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &Queue{
		store:      store,
		bus:        bus,
		log:        log,
		maxRetries: maxRetries,
		retry:      opts.EnableRetry,
		online:     online,
	}
}

// Enqueue appends r at the tail of the queue
func (q *Queue) Enqueue(ctx context.Context, r Request) error {
	if err := q.store.Append(ctx, r); err != nil {
		return fmt.Errorf("failed to enqueue request: %w", err)
	}
	q.log.WithFields(logrus.Fields{
		"queue_id": r.ID,
		"method":   r.Method,
		"url":      r.URL,
	}).Debug("Request queued while offline")
	return nil
}

// Drain replays every request queued when the drain starts. A failure
// increments the request's retry count and sends it to the tail for the next
// cycle while the budget allows; past the budget it is discarded and
// queue:failed fires. Failures never halt the rest of the cycle.
func (q *Queue) Drain(ctx context.Context, replay Replayer) (DrainResult, error) {
	if !q.draining.CompareAndSwap(false, true) {
		return DrainResult{Skipped: true}, nil
	}
	defer q.draining.Store(false)

	snapshot, err := q.store.List(ctx)
	if err != nil {
		return DrainResult{}, fmt.Errorf("failed to list queued requests: %w", err)
	}

	var result DrainResult
	start := time.Now()

	for _, r := range snapshot {
		if ctx.Err() != nil || !q.online() {
			result.Interrupted = true
			break
		}

		result.Attempted++
		status, replayErr := replay(ctx, r)
		if replayErr == nil {
			if err := q.store.Remove(ctx, r.ID); err != nil && !errors.Is(err, ErrNotQueued) {
				return result, fmt.Errorf("failed to remove replayed request: %w", err)
			}
			result.Succeeded++
			q.bus.Emit(events.QueueSuccess{
				QueueID:  r.ID,
				Method:   r.Method,
				URL:      r.URL,
				Status:   status,
				Attempts: r.RetryCount + 1,
			})
			continue
		}

		r.RetryCount++
		if q.retry && r.RetryCount <= q.maxRetries {
			if err := q.store.Requeue(ctx, r); err != nil && !errors.Is(err, ErrNotQueued) {
				return result, fmt.Errorf("failed to requeue request: %w", err)
			}
			result.Requeued++
			q.log.WithFields(logrus.Fields{
				"queue_id":    r.ID,
				"retry_count": r.RetryCount,
			}).WithError(replayErr).Debug("Replay failed, requeued")
			continue
		}

		if err := q.store.Remove(ctx, r.ID); err != nil && !errors.Is(err, ErrNotQueued) {
			return result, fmt.Errorf("failed to discard request: %w", err)
		}
		result.Discarded++
		q.bus.Emit(events.QueueFailed{
			QueueID:  r.ID,
			Method:   r.Method,
			URL:      r.URL,
			Attempts: r.RetryCount,
			Err:      replayErr,
		})
	}

	q.log.WithFields(logrus.Fields{
		"attempted":   result.Attempted,
		"succeeded":   result.Succeeded,
		"requeued":    result.Requeued,
		"discarded":   result.Discarded,
		"interrupted": result.Interrupted,
		"duration":    time.Since(start).Milliseconds(),
	}).Debug("Drain completed")

	return result, nil
}

// Draining reports whether a drain is in progress
func (q *Queue) Draining() bool {
	return q.draining.Load()
}

// List returns the queued requests, head first
func (q *Queue) List(ctx context.Context) ([]Request, error) {
	return q.store.List(ctx)
}

// Len returns the number of queued requests
func (q *Queue) Len(ctx context.Context) (int, error) {
	return q.store.Len(ctx)
}

// Clear drops every queued request without replaying it
func (q *Queue) Clear(ctx context.Context) error {
	return q.store.Clear(ctx)
}
