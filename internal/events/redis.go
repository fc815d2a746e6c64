package events

import (
	"context"
	"fmt"
	"sync/atomic"

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
		return fmt.Errorf("events.redis.endpoints is required when events.type is 'redis'")
	}
	return nil
}

func (redisFactory) Create(ctx context.Context, cfg Config) (core.ChangePublisher, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Endpoints,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisPublisher(client, cfg.Redis.KeyPrefix), nil
}

// ListPusher is the part of the Redis client the publisher uses.
type ListPusher interface {
	RPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	Close() error
}

// RedisPublisher appends JSON events to one Redis list per table, keyed
// {prefix}:{table}.
type RedisPublisher struct {
	client ListPusher
	prefix string
	closed atomic.Bool
}

// NewRedisPublisher creates a publisher over client. The prefix defaults to
// "changes".
func NewRedisPublisher(client ListPusher, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = "changes"
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

// ListKey returns the list holding events of table.
func (p *RedisPublisher) ListKey(table string) string {
	return fmt.Sprintf("%s:%s", p.prefix, table)
}

func (p *RedisPublisher) Publish(ctx context.Context, event *core.ChangeEvent) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}
	if err := validateEvent(event); err != nil {
		return err
	}
	data, err := Encode(event)
	if err != nil {
		return err
	}
	if err := p.client.RPush(ctx, p.ListKey(event.Table), data).Err(); err != nil {
		return fmt.Errorf("failed to push change event: %w", err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.client.Close()
}
