package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingRecorder struct {
	hits, misses int
}

func (r *countingRecorder) RecordCacheHit()  { r.hits++ }
func (r *countingRecorder) RecordCacheMiss() { r.misses++ }

func TestManagerTTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := NewManager(NewMemoryStore(), time.Second, WithClock(clock.Now))

	require.NoError(t, m.Set(ctx, "/x", []byte(`{"a":1}`)))

	clock.Advance(500 * time.Millisecond)
	value, err := m.Get(ctx, "/x")
	require.NoError(t, err, "entry should be readable before expiry")
	assert.Equal(t, []byte(`{"a":1}`), value)

	clock.Advance(500 * time.Millisecond)
	_, err = m.Get(ctx, "/x")
	assert.ErrorIs(t, err, ErrKeyNotFound, "entry is unreadable exactly at expiry")
	assert.True(t, IsMiss(err))
}

func TestManagerLazyEviction(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore()
	m := NewManager(store, time.Second, WithClock(clock.Now))

	require.NoError(t, m.Set(ctx, "a", []byte("1")))
	require.NoError(t, m.Set(ctx, "b", []byte("2")))
	clock.Advance(2 * time.Second)

	n, _ := m.Len(ctx)
	assert.Equal(t, 2, n, "expired entries are not swept proactively")

	_, err := m.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	n, _ = m.Len(ctx)
	assert.Equal(t, 1, n, "lookup evicts the expired entry it finds")
}

func TestManagerOverwriteResetsExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	m := NewManager(nil, time.Second, WithClock(clock.Now))

	require.NoError(t, m.Set(ctx, "k", []byte("old")))
	clock.Advance(900 * time.Millisecond)
	require.NoError(t, m.Set(ctx, "k", []byte("new")))

	clock.Advance(900 * time.Millisecond)
	value, err := m.Get(ctx, "k")
	require.NoError(t, err, "overwrite should restart the TTL")
	assert.Equal(t, []byte("new"), value)

	clock.Advance(100 * time.Millisecond)
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestManagerClear(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(), time.Minute)

	require.NoError(t, m.Set(ctx, "a", []byte("1")))
	require.NoError(t, m.Set(ctx, "b", []byte("2")))
	require.NoError(t, m.Clear(ctx))

	_, err := m.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	n, _ := m.Len(ctx)
	assert.Zero(t, n)
}

func TestManagerHitRecorder(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	rec := &countingRecorder{}
	m := NewManager(NewMemoryStore(), time.Second, WithClock(clock.Now), WithHitRecorder(rec))

	_, _ = m.Get(ctx, "missing")
	require.NoError(t, m.Set(ctx, "k", []byte("v")))
	_, _ = m.Get(ctx, "k")
	clock.Advance(time.Second)
	_, _ = m.Get(ctx, "k")

	assert.Equal(t, 1, rec.hits)
	assert.Equal(t, 2, rec.misses)
}

func TestManagerTTLAccessor(t *testing.T) {
	m := NewManager(nil, 42*time.Second)
	assert.Equal(t, 42*time.Second, m.TTL())
	assert.NoError(t, m.Close())
}
