package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// RedisStore implements Store using Redis so several shells on one host
// can share cached responses. Entries are msgpack encoded and carry a Redis
// expiry matching ExpiresAt, which only reclaims memory; readability is
// still decided by the Manager.
type RedisStore struct {
	client *redis.Client
	config *Config
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a new Redis store and verifies the connection
func NewRedisStore(config *Config) (*RedisStore, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	client := redis.NewClient(&redis.Options{
		Addr:            config.Address(),
		Password:        config.Password,
		DB:              config.DB,
		MaxRetries:      config.MaxRetries,
		MinRetryBackoff: config.MinRetryBackoff,
		MaxRetryBackoff: config.MaxRetryBackoff,
		DialTimeout:     config.DialTimeout,
		ReadTimeout:     config.ReadTimeout,
		WriteTimeout:    config.WriteTimeout,
		PoolSize:        config.PoolSize,
		MinIdleConns:    config.MinIdleConns,
		ConnMaxIdleTime: config.MaxIdleTime,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client: client,
		config: config,
	}, nil
}

func (r *RedisStore) key(key string) string {
	return r.config.KeyPrefix + key
}

// Get retrieves an entry from Redis
func (r *RedisStore) Get(ctx context.Context, key string) (Entry, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, ErrKeyNotFound
		}
		return Entry{}, NewCacheError("failed to get key", true).WithError(err)
	}

	var entry Entry
	if err := msgpack.Unmarshal(val, &entry); err != nil {
		return Entry{}, NewCacheError("failed to decode entry", false).WithError(err)
	}
	return entry, nil
}

// Set stores an entry in Redis
func (r *RedisStore) Set(ctx context.Context, key string, entry Entry) error {
	data, err := msgpack.Marshal(entry)
	if err != nil {
		return NewCacheError("failed to encode entry", false).WithError(err)
	}

	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		// Already expired; nothing readable to keep
		return r.Delete(ctx, key)
	}

	if err := r.client.Set(ctx, r.key(key), data, ttl).Err(); err != nil {
		return NewCacheError("failed to set key", true).WithError(err)
	}
	return nil
}

// Delete removes an entry from Redis
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return NewCacheError("failed to delete key", true).WithError(err)
	}
	return nil
}

// Clear removes every key under the store's prefix
func (r *RedisStore) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.config.KeyPrefix+"*", 100).Iterator()

	pipe := r.client.Pipeline()
	pending := 0
	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
		pending++
		if pending >= 100 {
			if _, err := pipe.Exec(ctx); err != nil {
				return NewCacheError("failed to clear keys", true).WithError(err)
			}
			pending = 0
		}
	}
	if err := iter.Err(); err != nil {
		return NewCacheError("failed to scan keys", true).WithError(err)
	}
	if pending > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return NewCacheError("failed to clear keys", true).WithError(err)
		}
	}
	return nil
}

// Len counts the keys under the store's prefix
func (r *RedisStore) Len(ctx context.Context) (int, error) {
	count := 0
	iter := r.client.Scan(ctx, 0, r.config.KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, NewCacheError("failed to scan keys", true).WithError(err)
	}
	return count, nil
}

// Ping checks if Redis is healthy
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return NewCacheError("ping failed", false).WithError(err)
	}
	return nil
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Stats returns Redis connection pool stats
func (r *RedisStore) Stats() *redis.PoolStats {
	if r.client != nil {
		return r.client.PoolStats()
	}
	return nil
}
