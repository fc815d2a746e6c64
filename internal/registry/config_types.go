package registry

import (
	"time"

	"github.com/rzpsarthak13/entity-mapper/internal/cache"
	"github.com/rzpsarthak13/entity-mapper/internal/database"
	"github.com/rzpsarthak13/entity-mapper/internal/events"
	"github.com/rzpsarthak13/entity-mapper/internal/logging"
)

// Config is the complete mapper configuration. Each section is owned by the
// package that consumes it.
type Config struct {
	Database database.Config        `yaml:"database" json:"database"`
	Cache    cache.Config           `yaml:"cache" json:"cache"`
	Events   events.Config          `yaml:"events" json:"events"`
	Logging  logging.Config         `yaml:"logging" json:"logging"`
	Metrics  MetricsConfig          `yaml:"metrics" json:"metrics"`
	Tables   map[string]TableConfig `yaml:"tables" json:"tables"`
}

// MetricsConfig controls Prometheus instrumentation of the executor.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Namespace string `yaml:"namespace" json:"namespace"`
}

// TableConfig holds per-table overrides. Unset fields fall back to the
// global cache and events sections.
type TableConfig struct {
	CacheEnabled  *bool         `yaml:"cache_enabled,omitempty" json:"cache_enabled,omitempty"`
	EventsEnabled *bool         `yaml:"events_enabled,omitempty" json:"events_enabled,omitempty"`
	TTL           time.Duration `yaml:"ttl,omitempty" json:"ttl,omitempty"`
	Namespace     string        `yaml:"namespace,omitempty" json:"namespace,omitempty"`
}

// TableSettings is the resolved configuration of one table.
type TableSettings struct {
	CacheEnabled  bool
	EventsEnabled bool
	TTL           time.Duration
	Namespace     string
}
