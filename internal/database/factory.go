package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rzpsarthak13/entity-mapper/internal/core"
	"github.com/rzpsarthak13/entity-mapper/internal/logging"
)

// Config describes how to reach the relational database.
type Config struct {
	Type              string        `yaml:"type" json:"type"`
	Host              string        `yaml:"host" json:"host"`
	Port              int           `yaml:"port" json:"port"`
	Database          string        `yaml:"database" json:"database"`
	Username          string        `yaml:"username" json:"username"`
	Password          string        `yaml:"password" json:"password"`
	SSLMode           string        `yaml:"ssl_mode" json:"ssl_mode"`
	DSN               string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns      int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns      int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime   time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime   time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout" json:"connection_timeout"`

	// RateLimit caps statements per second; zero disables throttling.
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`
	RateBurst int     `yaml:"rate_burst" json:"rate_burst"`
}

// Backend opens a connection pool for one database type.
type Backend interface {
	// Type returns the identifier used in Config.Type.
	Type() string

	// Dialect returns the SQL flavour of the backend.
	Dialect() core.Dialect

	// Validate checks the backend specific parts of cfg.
	Validate(cfg Config) error

	// Open creates the pool. It does not ping.
	Open(cfg Config) (*sql.DB, error)
}

var (
	backends   = make(map[string]Backend)
	backendsMu sync.RWMutex
)

// RegisterBackend makes a backend available to Open. Each backend registers
// itself in init; registering a type twice panics.
func RegisterBackend(b Backend) {
	if b == nil || b.Type() == "" {
		panic("database backend must have a type")
	}
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if _, exists := backends[b.Type()]; exists {
		panic(fmt.Sprintf("database backend %q is already registered", b.Type()))
	}
	backends[b.Type()] = b
}

// GetBackend returns the backend for typ.
func GetBackend(typ string) (Backend, bool) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	b, ok := backends[typ]
	return b, ok
}

// Backends lists registered backend types.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	types := make([]string, 0, len(backends))
	for t := range backends {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Validate checks cfg against its backend.
func Validate(cfg Config) error {
	if cfg.Type == "" {
		return fmt.Errorf("database.type is required")
	}
	b, ok := GetBackend(cfg.Type)
	if !ok {
		return fmt.Errorf("unsupported database type %q (available: %v)", cfg.Type, Backends())
	}
	return b.Validate(cfg)
}

// Open validates cfg, opens the pool, applies pool settings and pings.
func Open(ctx context.Context, cfg Config, logger *logging.Logger) (*SQLExecutor, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	b, _ := GetBackend(cfg.Type)

	db, err := b.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if tuner, ok := b.(interface{ Tune(*sql.DB) }); ok {
		tuner.Tune(db)
	}

	exec := NewSQLExecutor(db, b.Dialect(), logger)
	if err := exec.Ping(ctx, cfg.ConnectionTimeout); err != nil {
		_ = db.Close()
		return nil, err
	}
	exec.log.Info().Str("type", cfg.Type).Str("database", cfg.Database).Msg("database connected")
	return exec, nil
}
