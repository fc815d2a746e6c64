package core

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by CacheStore.Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// CacheStore defines the key-value operations backing the entity cache.
// Implementations include Redis, DynamoDB and an in-process store.
type CacheStore interface {
	// Get retrieves a value by key. It returns ErrCacheMiss when the key
	// does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value. A ttl of 0 means no expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the store's resources.
	Close() error
}
