package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrNotQueued is returned when an operation targets a request that is not
// in the store
var ErrNotQueued = errors.New("request not queued")

// Store persists queued requests in enqueue order
type Store interface {
	// Append adds a request at the tail
	Append(ctx context.Context, r Request) error

	// List returns all requests, head first
	List(ctx context.Context) ([]Request, error)

	// Remove deletes a request by ID
	Remove(ctx context.Context, id string) error

	// Requeue moves a request to the tail, storing its updated retry count
	Requeue(ctx context.Context, r Request) error

	// Clear removes every request
	Clear(ctx context.Context) error

	// Len returns the number of queued requests
	Len(ctx context.Context) (int, error)
}

// MemoryStore keeps the queue in process memory
type MemoryStore struct {
	mu       sync.Mutex
	requests []Request
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory queue store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append adds a request at the tail
func (s *MemoryStore) Append(_ context.Context, r Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, r)
	return nil
}

// List returns a copy of the queue, head first
func (s *MemoryStore) List(_ context.Context) ([]Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out, nil
}

// Remove deletes a request by ID
func (s *MemoryStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		s.requests = append(s.requests[:i], s.requests[i+1:]...)
		return nil
	}
	return ErrNotQueued
}

// Requeue moves a request to the tail
func (s *MemoryStore) Requeue(_ context.Context, r Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(r.ID)
	if i < 0 {
		return ErrNotQueued
	}
	s.requests = append(s.requests[:i], s.requests[i+1:]...)
	s.requests = append(s.requests, r)
	return nil
}

// Clear removes every request
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
	return nil
}

// Len returns the number of queued requests
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests), nil
}

func (s *MemoryStore) indexLocked(id string) int {
	for i, r := range s.requests {
		if r.ID == id {
			return i
		}
	}
	return -1
}
