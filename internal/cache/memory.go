package cache

import (
	"context"
	"sync"
)

// MemoryStore keeps entries in process memory. By default it is unbounded
// and never sweeps; expired entries leave only when a lookup finds them.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]Entry
	maxEntries int
	closed     bool
}

var _ Store = (*MemoryStore)(nil)

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithMaxEntries caps the store at n entries. When a new key would exceed the
// cap, the entry closest to expiry is evicted first. Zero means unbounded.
func WithMaxEntries(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

// NewMemoryStore creates an in-memory store
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]Entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get retrieves an entry
func (s *MemoryStore) Get(_ context.Context, key string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Entry{}, ErrCacheClosed
	}
	entry, ok := s.entries[key]
	if !ok {
		return Entry{}, ErrKeyNotFound
	}
	return entry, nil
}

// Set stores an entry, evicting the soonest-expiring one if the store is full
func (s *MemoryStore) Set(_ context.Context, key string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrCacheClosed
	}
	if _, exists := s.entries[key]; !exists && s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		s.evictLocked()
	}
	s.entries[key] = entry
	return nil
}

// Delete removes an entry
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrCacheClosed
	}
	delete(s.entries, key)
	return nil
}

// Clear removes every entry
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrCacheClosed
	}
	s.entries = make(map[string]Entry)
	return nil
}

// Len returns the number of stored entries, expired ones included
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Close drops all entries and rejects further use
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = nil
	return nil
}

func (s *MemoryStore) evictLocked() {
	var (
		victim string
		found  bool
		oldest Entry
	)
	for key, entry := range s.entries {
		if !found || entry.ExpiresAt.Before(oldest.ExpiresAt) {
			victim, oldest, found = key, entry, true
		}
	}
	if found {
		delete(s.entries, victim)
	}
}
