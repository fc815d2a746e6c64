package cache

import (
	"context"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/rzpsarthak13/entity-mapper/internal/core"
)

func init() {
	RegisterFactory(memoryFactory{})
}

type memoryFactory struct{}

func (memoryFactory) Type() string              { return "memory" }
func (memoryFactory) Validate(cfg Config) error { return nil }

func (memoryFactory) Create(_ context.Context, cfg Config) (core.CacheStore, error) {
	return NewMemoryStore(cfg.Memory.CleanupInterval), nil
}

// MemoryStore is an in-process store backed by go-cache.
type MemoryStore struct {
	c      *gocache.Cache
	closed atomic.Bool
}

// NewMemoryStore creates a store that sweeps expired keys every
// cleanupInterval. Zero selects one minute.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &MemoryStore{c: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrStoreClosed
	}
	v, ok := m.c.Get(key)
	if !ok {
		return nil, core.ErrCacheMiss
	}
	return v.([]byte), nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if m.closed.Load() {
		return ErrStoreClosed
	}
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.c.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	if m.closed.Load() {
		return ErrStoreClosed
	}
	m.c.Delete(key)
	return nil
}

// Len returns the number of stored items, expired or not.
func (m *MemoryStore) Len() int {
	return m.c.ItemCount()
}

func (m *MemoryStore) Close() error {
	if m.closed.CompareAndSwap(false, true) {
		m.c.Flush()
	}
	return nil
}
