package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	entry := Entry{Value: []byte("v"), CreatedAt: now, ExpiresAt: now.Add(time.Minute)}
	require.NoError(t, s.Set(ctx, "k", entry))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, entry, got)

	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "k"), "deleting a missing key is not an error")

	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMemoryStoreUnboundedByDefault(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()

	for i := 0; i < 1000; i++ {
		require.NoError(t, s.Set(ctx, fmt.Sprintf("key-%d", i), Entry{ExpiresAt: now.Add(time.Minute)}))
	}

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1000, n)
}

func TestMemoryStoreMaxEntries(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(WithMaxEntries(2))
	now := time.Now()

	require.NoError(t, s.Set(ctx, "soon", Entry{ExpiresAt: now.Add(time.Second)}))
	require.NoError(t, s.Set(ctx, "later", Entry{ExpiresAt: now.Add(time.Hour)}))

	// Overwriting an existing key never evicts
	require.NoError(t, s.Set(ctx, "later", Entry{ExpiresAt: now.Add(2 * time.Hour)}))
	n, _ := s.Len(ctx)
	assert.Equal(t, 2, n)

	require.NoError(t, s.Set(ctx, "new", Entry{ExpiresAt: now.Add(time.Minute)}))

	_, err := s.Get(ctx, "soon")
	assert.ErrorIs(t, err, ErrKeyNotFound, "entry closest to expiry is evicted")
	_, err = s.Get(ctx, "later")
	assert.NoError(t, err)
	_, err = s.Get(ctx, "new")
	assert.NoError(t, err)
}

func TestMemoryStoreClosed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Close())

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheClosed)
	assert.ErrorIs(t, s.Set(ctx, "k", Entry{}), ErrCacheClosed)
	assert.ErrorIs(t, s.Clear(ctx), ErrCacheClosed)
}

func TestCacheError(t *testing.T) {
	underlying := assert.AnError
	err := NewCacheError("failed to get key", true).WithError(underlying)

	assert.Equal(t, "failed to get key: "+underlying.Error(), err.Error())
	assert.True(t, err.IsRetryable())
	assert.ErrorIs(t, err, underlying)
	assert.False(t, ErrKeyNotFound.IsRetryable())
}
