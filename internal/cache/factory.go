// Package cache implements the second-level entity cache: pluggable
// key-value stores plus an EntityCache that keys rows by table and primary
// key.
package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rzpsarthak13/entity-mapper/internal/core"
)

// Config selects and configures the cache store.
type Config struct {
	// Type is one of the registered store types, or "none".
	Type       string         `yaml:"type" json:"type"`
	Namespace  string         `yaml:"namespace" json:"namespace"`
	DefaultTTL time.Duration  `yaml:"default_ttl" json:"default_ttl"`
	Memory     MemoryConfig   `yaml:"memory" json:"memory"`
	Redis      RedisConfig    `yaml:"redis" json:"redis"`
	DynamoDB   DynamoDBConfig `yaml:"dynamodb" json:"dynamodb"`
}

// MemoryConfig configures the in-process store.
type MemoryConfig struct {
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

// RedisConfig configures the Redis store.
type RedisConfig struct {
	Endpoints    []string      `yaml:"endpoints" json:"endpoints"`
	ClusterMode  bool          `yaml:"cluster_mode" json:"cluster_mode"`
	Password     string        `yaml:"password" json:"password"`
	DB           int           `yaml:"db" json:"db"`
	PoolSize     int           `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" json:"min_idle_conns"`
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

// DynamoDBConfig configures the DynamoDB store.
type DynamoDBConfig struct {
	Region          string `yaml:"region" json:"region"`
	TableName       string `yaml:"table_name" json:"table_name"`
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key"`
}

// StoreFactory creates one kind of store.
type StoreFactory interface {
	// Type returns the identifier used in Config.Type.
	Type() string

	// Validate checks the store specific part of cfg.
	Validate(cfg Config) error

	// Create builds and connects the store.
	Create(ctx context.Context, cfg Config) (core.CacheStore, error)
}

var (
	factories   = make(map[string]StoreFactory)
	factoriesMu sync.RWMutex
)

// RegisterFactory makes a store type available. Store implementations call
// it from init; registering a type twice panics.
func RegisterFactory(f StoreFactory) {
	if f == nil || f.Type() == "" {
		panic("cache factory must have a type")
	}
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, exists := factories[f.Type()]; exists {
		panic(fmt.Sprintf("cache factory %q is already registered", f.Type()))
	}
	factories[f.Type()] = f
}

// GetFactory returns the factory for typ.
func GetFactory(typ string) (StoreFactory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[typ]
	return f, ok
}

// Types lists the registered store types.
func Types() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	types := make([]string, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Enabled reports whether cfg selects a store.
func (cfg Config) Enabled() bool {
	return cfg.Type != "" && cfg.Type != "none"
}

// Validate checks cfg against its store factory. A disabled cache is valid.
func Validate(cfg Config) error {
	if !cfg.Enabled() {
		return nil
	}
	f, ok := GetFactory(cfg.Type)
	if !ok {
		return fmt.Errorf("unsupported cache type %q (available: %v)", cfg.Type, Types())
	}
	return f.Validate(cfg)
}

// Create builds the store selected by cfg.
func Create(ctx context.Context, cfg Config) (core.CacheStore, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("cache is disabled")
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	f, _ := GetFactory(cfg.Type)
	return f.Create(ctx, cfg)
}
