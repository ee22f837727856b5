package cache

import (
	"context"
	"errors"
	"time"
)

// HitRecorder receives cache lookup outcomes
type HitRecorder interface {
	RecordCacheHit()
	RecordCacheMiss()
}

// Manager applies TTL semantics over a Store. An entry is readable only
// while now < ExpiresAt; an expired entry is deleted by the lookup that
// finds it. Writes are last-write-wins.
type Manager struct {
	store    Store
	ttl      time.Duration
	now      func() time.Time
	recorder HitRecorder
}

// Option configures a Manager
type Option func(*Manager)

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithHitRecorder reports every lookup to r
func WithHitRecorder(r HitRecorder) Option {
	return func(m *Manager) {
		m.recorder = r
	}
}

// NewManager creates a manager over store with the given entry lifetime.
// A nil store falls back to an unbounded MemoryStore.
func NewManager(store Store, ttl time.Duration, opts ...Option) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	m := &Manager{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the cached value for key. It returns ErrKeyNotFound when the
// key is absent or has expired.
func (m *Manager) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := m.store.Get(ctx, key)
	if err != nil {
		m.recordMiss()
		return nil, err
	}

	if entry.Expired(m.now()) {
		m.recordMiss()
		if err := m.store.Delete(ctx, key); err != nil {
			return nil, err
		}
		return nil, ErrKeyNotFound
	}

	m.recordHit()
	return entry.Value, nil
}

// Set stores value under key with a fresh expiry, replacing any prior entry
func (m *Manager) Set(ctx context.Context, key string, value []byte) error {
	now := m.now()
	return m.store.Set(ctx, key, Entry{
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	})
}

// Delete removes key from the cache
func (m *Manager) Delete(ctx context.Context, key string) error {
	return m.store.Delete(ctx, key)
}

// Clear empties the cache
func (m *Manager) Clear(ctx context.Context) error {
	return m.store.Clear(ctx)
}

// Len returns the number of stored entries
func (m *Manager) Len(ctx context.Context) (int, error) {
	return m.store.Len(ctx)
}

// TTL returns the lifetime given to new entries
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Close closes the underlying store
func (m *Manager) Close() error {
	return m.store.Close()
}

// IsMiss reports whether err is a plain cache miss rather than a store failure
func IsMiss(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

func (m *Manager) recordHit() {
	if m.recorder != nil {
		m.recorder.RecordCacheHit()
	}
}

func (m *Manager) recordMiss() {
	if m.recorder != nil {
		m.recorder.RecordCacheMiss()
	}
}
