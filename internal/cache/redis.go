package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rzpsarthak13/entity-mapper/internal/core"
)

func init() {
	RegisterFactory(redisFactory{})
}

type redisFactory struct{}

func (redisFactory) Type() string { return "redis" }

func (redisFactory) Validate(cfg Config) error {
	if len(cfg.Redis.Endpoints) == 0 {
		return fmt.Errorf("cache.redis.endpoints is required when cache.type is 'redis'")
	}
	if cfg.Redis.DB < 0 {
		return fmt.Errorf("cache.redis.db must be non-negative")
	}
	return nil
}

func (redisFactory) Create(ctx context.Context, cfg Config) (core.CacheStore, error) {
	return NewRedisStore(ctx, cfg.Redis)
}

// RedisStore stores cache entries as plain Redis strings.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore connects to Redis, using a cluster client when
// cfg.ClusterMode is set.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	opts := RedisOptions(cfg)
	var client redis.UniversalClient
	if cfg.ClusterMode {
		client = redis.NewClusterClient(opts.Cluster())
	} else {
		client = redis.NewUniversalClient(opts)
	}

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// RedisOptions maps cfg onto go-redis universal options.
func RedisOptions(cfg RedisConfig) *redis.UniversalOptions {
	return &redis.UniversalOptions{
		Addrs:        cfg.Endpoints,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return val, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
