package cache

import (
	"context"
	"time"
)

// Entry is a cached response body with its lifetime
type Entry struct {
	Value     []byte    `msgpack:"v"`
	CreatedAt time.Time `msgpack:"c"`
	ExpiresAt time.Time `msgpack:"e"`
}

// Expired reports whether the entry is no longer readable at now
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Store defines the storage backend behind a Manager. Stores hold entries
// as given and do not interpret expiry; the Manager does.
type Store interface {
	// Get retrieves an entry, returning ErrKeyNotFound when absent
	Get(ctx context.Context, key string) (Entry, error)

	// Set stores an entry, replacing any existing one
	Set(ctx context.Context, key string, entry Entry) error

	// Delete removes an entry. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes every entry owned by the store
	Clear(ctx context.Context) error

	// Len returns the number of stored entries
	Len(ctx context.Context) (int, error)

	// Close releases the store's resources
	Close() error
}

// Common errors
var (
	ErrKeyNotFound = NewCacheError("key not found", false)
	ErrCacheClosed = NewCacheError("cache is closed", false)
)

// CacheError represents a cache-specific error
type CacheError struct {
	Message    string
	Retryable  bool
	Underlying error
}

// NewCacheError creates a new cache error
func NewCacheError(message string, retryable bool) *CacheError {
	return &CacheError{
		Message:   message,
		Retryable: retryable,
	}
}

// Error implements the error interface
func (e *CacheError) Error() string {
	if e.Underlying != nil {
		return e.Message + ": " + e.Underlying.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *CacheError) Unwrap() error {
	return e.Underlying
}

// WithError adds an underlying error
func (e *CacheError) WithError(err error) *CacheError {
	e.Underlying = err
	return e
}

// IsRetryable returns whether the error is retryable
func (e *CacheError) IsRetryable() bool {
	return e.Retryable
}
