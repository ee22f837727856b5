package queue

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/birbparty/nestlink/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errReplay = errors.New("replay failed")

type recorder struct {
	mu        sync.Mutex
	successes []events.QueueSuccess
	failures  []events.QueueFailed
}

func record(bus *events.Bus) *recorder {
	r := &recorder{}
	events.Subscribe(bus, func(e events.QueueSuccess) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.successes = append(r.successes, e)
	})
	events.Subscribe(bus, func(e events.QueueFailed) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.failures = append(r.failures, e)
	})
	return r
}

func enqueue(t *testing.T, q *Queue, urls ...string) []Request {
	t.Helper()
	out := make([]Request, 0, len(urls))
	for _, u := range urls {
		r := NewRequest(http.MethodPost, u, http.Header{"Content-Type": {"application/json"}}, []byte(`{}`))
		require.NoError(t, q.Enqueue(context.Background(), r))
		out = append(out, r)
	}
	return out
}

func TestEnqueueStartsWithZeroRetries(t *testing.T) {
	q := New(nil, nil, Options{MaxRetries: 3, EnableRetry: true})
	enqueue(t, q, "/y")

	list, err := q.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "/y", list[0].URL)
	assert.Equal(t, http.MethodPost, list[0].Method)
	assert.Zero(t, list[0].RetryCount)
	assert.NotEmpty(t, list[0].ID)
}

func TestDrainReplaysInOrderAndContinuesPastFailures(t *testing.T) {
	bus := events.NewBus(nil)
	rec := record(bus)
	q := New(nil, bus, Options{MaxRetries: 3, EnableRetry: true})
	reqs := enqueue(t, q, "/r1", "/r2", "/r3", "/r4")

	var replayed []string
	result, err := q.Drain(context.Background(), func(_ context.Context, r Request) (int, error) {
		replayed = append(replayed, r.URL)
		if r.URL == "/r2" {
			return 0, errReplay
		}
		return http.StatusCreated, nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"/r1", "/r2", "/r3", "/r4"}, replayed)
	assert.Equal(t, DrainResult{Attempted: 4, Succeeded: 3, Requeued: 1}, result)
	require.Len(t, rec.successes, 3)
	assert.Equal(t, reqs[0].ID, rec.successes[0].QueueID)
	assert.Equal(t, http.StatusCreated, rec.successes[0].Status)
	assert.Equal(t, 1, rec.successes[0].Attempts)
	assert.Empty(t, rec.failures)

	list, err := q.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, reqs[1].ID, list[0].ID)
	assert.Equal(t, 1, list[0].RetryCount)
}

func TestDrainRetryBudget(t *testing.T) {
	bus := events.NewBus(nil)
	rec := record(bus)
	q := New(nil, bus, Options{MaxRetries: 2, EnableRetry: true})
	enqueue(t, q, "/flaky")

	var attempts int
	fail := func(context.Context, Request) (int, error) {
		attempts++
		return http.StatusServiceUnavailable, errReplay
	}

	// MaxRetries 2 allows three attempts in total
	for i := 0; i < 2; i++ {
		result, err := q.Drain(context.Background(), fail)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Requeued)
		n, _ := q.Len(context.Background())
		assert.Equal(t, 1, n, "still queued after attempt %d", i+1)
	}
	assert.Empty(t, rec.failures)

	result, err := q.Drain(context.Background(), fail)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Discarded)
	assert.Equal(t, 3, attempts)

	n, err := q.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	require.Len(t, rec.failures, 1)
	assert.Equal(t, "/flaky", rec.failures[0].URL)
	assert.Equal(t, 3, rec.failures[0].Attempts)
	assert.ErrorIs(t, rec.failures[0].Err, errReplay)

	// Drained queue has nothing left to attempt
	result, err = q.Drain(context.Background(), fail)
	require.NoError(t, err)
	assert.Zero(t, result.Attempted)
	assert.Equal(t, 3, attempts)
}

func TestDrainSuccessAfterRetry(t *testing.T) {
	bus := events.NewBus(nil)
	rec := record(bus)
	q := New(nil, bus, Options{MaxRetries: 3, EnableRetry: true})
	enqueue(t, q, "/x")

	calls := 0
	replay := func(context.Context, Request) (int, error) {
		calls++
		if calls == 1 {
			return 0, errReplay
		}
		return http.StatusOK, nil
	}

	_, err := q.Drain(context.Background(), replay)
	require.NoError(t, err)
	_, err = q.Drain(context.Background(), replay)
	require.NoError(t, err)

	require.Len(t, rec.successes, 1)
	assert.Equal(t, 2, rec.successes[0].Attempts)
}

func TestDrainWithoutRetryDiscardsOnFirstFailure(t *testing.T) {
	bus := events.NewBus(nil)
	rec := record(bus)
	q := New(nil, bus, Options{MaxRetries: 5, EnableRetry: false})
	enqueue(t, q, "/once")

	result, err := q.Drain(context.Background(), func(context.Context, Request) (int, error) {
		return 0, errReplay
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Discarded)
	require.Len(t, rec.failures, 1)
	assert.Equal(t, 1, rec.failures[0].Attempts)

	n, _ := q.Len(context.Background())
	assert.Zero(t, n)
}

func TestDrainZeroRetriesMeansSingleAttempt(t *testing.T) {
	bus := events.NewBus(nil)
	rec := record(bus)
	q := New(nil, bus, Options{MaxRetries: 0, EnableRetry: true})
	enqueue(t, q, "/z")

	_, err := q.Drain(context.Background(), func(context.Context, Request) (int, error) {
		return 0, errReplay
	})
	require.NoError(t, err)
	require.Len(t, rec.failures, 1)
	assert.Equal(t, 1, rec.failures[0].Attempts)
}

func TestConcurrentDrainIsSkipped(t *testing.T) {
	q := New(nil, nil, Options{MaxRetries: 3, EnableRetry: true})
	enqueue(t, q, "/slow", "/next")

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	done := make(chan DrainResult)
	go func() {
		result, _ := q.Drain(context.Background(), func(_ context.Context, r Request) (int, error) {
			if calls.Add(1) == 1 {
				close(entered)
				<-release
			}
			return http.StatusOK, nil
		})
		done <- result
	}()

	<-entered
	assert.True(t, q.Draining())
	second, err := q.Drain(context.Background(), func(context.Context, Request) (int, error) {
		t.Error("second drain must not replay")
		return 0, nil
	})
	require.NoError(t, err)
	assert.True(t, second.Skipped)

	close(release)
	first := <-done
	assert.Equal(t, 2, first.Succeeded)
	assert.Equal(t, int32(2), calls.Load())
	assert.False(t, q.Draining())
}

func TestDrainStopsWhenConnectivityDrops(t *testing.T) {
	var online atomic.Bool
	online.Store(true)

	q := New(nil, nil, Options{
		MaxRetries:  3,
		EnableRetry: true,
		Online:      online.Load,
	})
	reqs := enqueue(t, q, "/a", "/b", "/c")

	result, err := q.Drain(context.Background(), func(_ context.Context, r Request) (int, error) {
		online.Store(false)
		return http.StatusOK, nil
	})
	require.NoError(t, err)
	assert.True(t, result.Interrupted)
	assert.Equal(t, 1, result.Succeeded)

	list, err := q.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, reqs[1].ID, list[0].ID, "remaining requests keep their order")
	assert.Equal(t, reqs[2].ID, list[1].ID)
}

func TestDrainStopsOnCanceledContext(t *testing.T) {
	q := New(nil, nil, Options{EnableRetry: true})
	enqueue(t, q, "/a", "/b")

	ctx, cancel := context.WithCancel(context.Background())
	result, err := q.Drain(ctx, func(context.Context, Request) (int, error) {
		cancel()
		return http.StatusOK, nil
	})
	require.NoError(t, err)
	assert.True(t, result.Interrupted)
	assert.Equal(t, 1, result.Attempted)

	n, _ := q.Len(context.Background())
	assert.Equal(t, 1, n)
}

func TestClear(t *testing.T) {
	q := New(nil, nil, Options{})
	enqueue(t, q, "/a", "/b")
	require.NoError(t, q.Clear(context.Background()))

	n, err := q.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
