// Package storage provides object storage for files uploaded to the
// development backend
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrObjectNotFound is returned when a key has no stored object
var ErrObjectNotFound = errors.New("object not found")

// Object is a stored file
type Object struct {
	Key         string
	ContentType string
	Size        int64
	URL         string
}

// FileStore stores uploaded file bodies by key
type FileStore interface {
	// Put stores data under key and returns the object with its URL
	Put(ctx context.Context, key, contentType string, data []byte) (Object, error)
	// Get opens the object stored under key
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// MemoryStore keeps objects in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	baseURL string
}

type memoryObject struct {
	contentType string
	data        []byte
}

// NewMemoryStore returns an empty store. Object URLs are baseURL + "/" + key.
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memoryObject),
		baseURL: baseURL,
	}
}

// Put implements FileStore
func (s *MemoryStore) Put(_ context.Context, key, contentType string, data []byte) (Object, error) {
	if key == "" {
		return Object{}, fmt.Errorf("object key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = memoryObject{
		contentType: contentType,
		data:        append([]byte(nil), data...),
	}

	return Object{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		URL:         s.baseURL + "/" + key,
	}, nil
}

// Get implements FileStore
func (s *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Delete implements FileStore
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// Len returns the number of stored objects
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
