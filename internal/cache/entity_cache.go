package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/singleflight"

	"github.com/rzpsarthak13/entity-mapper/internal/core"
	"github.com/rzpsarthak13/entity-mapper/internal/logging"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// KeyBuilder builds cache keys in the format
// {namespace}:{table}:{epoch}:{primary_key_value}.
type KeyBuilder struct {
	namespace string
}

// NewKeyBuilder creates a key builder for namespace.
func NewKeyBuilder(namespace string) *KeyBuilder {
	return &KeyBuilder{namespace: namespace}
}

// BuildKey constructs a cache key.
func (kb *KeyBuilder) BuildKey(table string, epoch uint64, key any) string {
	if kb.namespace != "" {
		return fmt.Sprintf("%s:%s:%d:%v", kb.namespace, table, epoch, key)
	}
	return fmt.Sprintf("%s:%d:%v", table, epoch, key)
}

// entry is the stored form of one row: its scan holders in column order.
type entry struct {
	Timestamp time.Time             `json:"timestamp"`
	Columns   []jsoniter.RawMessage `json:"columns"`
}

// Stats counts cache outcomes.
type Stats struct {
	Hits   int64
	Misses int64
	Errors int64
}

// EntityCache caches decoded rows by table and primary key. Concurrent
// misses for the same key share a single load.
//
// Bulk invalidation bumps a per-table epoch that is part of every key, so
// stale entries become unreachable and expire on their own. Epochs are held
// in process.
type EntityCache struct {
	store  core.CacheStore
	keys   *KeyBuilder
	ttl    time.Duration
	group  singleflight.Group
	log    *logging.Logger
	mu     sync.RWMutex
	epochs map[string]uint64

	hits, misses, failures atomic.Int64
}

// NewEntityCache creates a cache over store.
func NewEntityCache(store core.CacheStore, namespace string, ttl time.Duration, logger *logging.Logger) *EntityCache {
	return &EntityCache{
		store:  store,
		keys:   NewKeyBuilder(namespace),
		ttl:    ttl,
		log:    logging.OrDefault(logger, "cache"),
		epochs: make(map[string]uint64),
	}
}

func (c *EntityCache) epoch(table string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epochs[table]
}

// Key returns the current cache key for (table, pk).
func (c *EntityCache) Key(table string, pk any) string {
	return c.keys.BuildKey(table, c.epoch(table), pk)
}

// Fetch fills holders with the row for (table, pk). On a miss it calls load,
// which must fill holders and report whether the row exists. Only existing
// rows are stored. Store failures are logged and fall through to load.
func (c *EntityCache) Fetch(ctx context.Context, table string, pk any, holders []any, load func(ctx context.Context, holders []any) (bool, error)) (bool, error) {
	key := c.Key(table, pk)

	data, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		if err := decodeEntry(data, holders); err == nil {
			c.hits.Add(1)
			return true, nil
		}
		c.log.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	case !errors.Is(err, core.ErrCacheMiss):
		c.failures.Add(1)
		c.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}
	c.misses.Add(1)

	v, err, shared := c.group.Do(key, func() (any, error) {
		found, err := load(ctx, holders)
		if err != nil || !found {
			return nil, err
		}
		data, err := encodeEntry(holders)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
			c.failures.Add(1)
			c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
		return data, nil
	})
	if err != nil || v == nil {
		return false, err
	}
	if shared {
		// Another caller ran the load into its own holders.
		if err := decodeEntry(v.([]byte), holders); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Invalidate drops the entry for (table, pk).
func (c *EntityCache) Invalidate(ctx context.Context, table string, pk any) {
	key := c.Key(table, pk)
	if err := c.store.Delete(ctx, key); err != nil {
		c.failures.Add(1)
		c.log.Warn().Err(err).Str("key", key).Msg("cache invalidation failed")
	}
}

// InvalidateTable makes every entry of table unreachable.
func (c *EntityCache) InvalidateTable(table string) {
	c.mu.Lock()
	c.epochs[table]++
	c.mu.Unlock()
	c.log.Debug().Str("table", table).Msg("cache epoch bumped")
}

// Stats returns a snapshot of the counters.
func (c *EntityCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Errors: c.failures.Load()}
}

// Close closes the store.
func (c *EntityCache) Close() error {
	return c.store.Close()
}

func encodeEntry(holders []any) ([]byte, error) {
	e := entry{Timestamp: time.Now().UTC(), Columns: make([]jsoniter.RawMessage, len(holders))}
	for i, h := range holders {
		raw, err := json.Marshal(h)
		if err != nil {
			return nil, fmt.Errorf("failed to encode cache column %d: %w", i, err)
		}
		e.Columns[i] = raw
	}
	return json.Marshal(&e)
}

func decodeEntry(data []byte, holders []any) error {
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return fmt.Errorf("failed to decode cache entry: %w", err)
	}
	if len(e.Columns) != len(holders) {
		return fmt.Errorf("cache entry has %d columns, want %d", len(e.Columns), len(holders))
	}
	for i, raw := range e.Columns {
		if err := json.Unmarshal(raw, holders[i]); err != nil {
			return fmt.Errorf("failed to decode cache column %d: %w", i, err)
		}
	}
	return nil
}

// ErrStoreClosed is returned by stores after Close.
var ErrStoreClosed = errors.New("cache store is closed")
