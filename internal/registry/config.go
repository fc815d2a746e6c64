package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/rzpsarthak13/entity-mapper/internal/cache"
	"github.com/rzpsarthak13/entity-mapper/internal/database"
	"github.com/rzpsarthak13/entity-mapper/internal/events"
	"github.com/rzpsarthak13/entity-mapper/internal/logging"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "ENTITY_MAPPER_"

// ConfigValidator is the Strategy interface for validating one section of
// the configuration.
type ConfigValidator interface {
	// Validate checks the section this validator owns.
	Validate(config *Config) error

	// Type returns the section name (e.g. "database", "cache").
	Type() string
}

var (
	validatorRegistry      = make(map[string]ConfigValidator)
	validatorOrder         []string
	validatorRegistryMutex sync.RWMutex
)

// RegisterValidator registers a section validator. Panics if validator is
// nil, its type is empty, or the type is already registered.
func RegisterValidator(validator ConfigValidator) {
	if validator == nil {
		panic("validator cannot be nil")
	}
	if validator.Type() == "" {
		panic("validator type cannot be empty")
	}

	validatorRegistryMutex.Lock()
	defer validatorRegistryMutex.Unlock()

	if _, exists := validatorRegistry[validator.Type()]; exists {
		panic(fmt.Sprintf("validator for type %q is already registered", validator.Type()))
	}
	validatorRegistry[validator.Type()] = validator
	validatorOrder = append(validatorOrder, validator.Type())
}

// GetValidator retrieves a validator by section name.
func GetValidator(validatorType string) (ConfigValidator, bool) {
	validatorRegistryMutex.RLock()
	defer validatorRegistryMutex.RUnlock()

	validator, exists := validatorRegistry[validatorType]
	return validator, exists
}

// validators returns the registered validators in registration order.
func validators() []ConfigValidator {
	validatorRegistryMutex.RLock()
	defer validatorRegistryMutex.RUnlock()

	out := make([]ConfigValidator, 0, len(validatorOrder))
	for _, t := range validatorOrder {
		out = append(out, validatorRegistry[t])
	}
	return out
}

// sectionValidator adapts a package level Validate function.
type sectionValidator struct {
	name     string
	validate func(config *Config) error
}

func (v sectionValidator) Type() string                  { return v.name }
func (v sectionValidator) Validate(config *Config) error { return v.validate(config) }

func init() {
	RegisterValidator(sectionValidator{"database", func(c *Config) error { return database.Validate(c.Database) }})
	RegisterValidator(sectionValidator{"cache", func(c *Config) error { return cache.Validate(c.Cache) }})
	RegisterValidator(sectionValidator{"events", func(c *Config) error { return events.Validate(c.Events) }})
	RegisterValidator(sectionValidator{"logging", func(c *Config) error {
		_, err := logging.ParseLevel(c.Logging.Level)
		return err
	}})
}

// ConfigManager handles loading and managing configuration from various sources.
type ConfigManager struct {
	config *Config
}

// NewConfigManager creates a configuration manager holding the defaults.
func NewConfigManager() *ConfigManager {
	return &ConfigManager{config: DefaultConfig()}
}

// NewConfigManagerFrom wraps an already built configuration after
// validating it.
func NewConfigManagerFrom(config *Config) (*ConfigManager, error) {
	cm := &ConfigManager{}
	if err := cm.validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cm.config = config
	return cm, nil
}

// DefaultConfig returns a configuration with sensible defaults: a shared
// in-memory SQLite database with caching and events disabled.
func DefaultConfig() *Config {
	return &Config{
		Database: database.Config{
			Type:              "sqlite",
			Database:          ":memory:",
			MaxOpenConns:      25,
			MaxIdleConns:      5,
			ConnMaxLifetime:   5 * time.Minute,
			ConnMaxIdleTime:   10 * time.Minute,
			ConnectionTimeout: 10 * time.Second,
		},
		Cache: cache.Config{
			Type:       "none",
			Namespace:  "entitymapper",
			DefaultTTL: time.Hour,
			Memory:     cache.MemoryConfig{CleanupInterval: 10 * time.Minute},
			Redis: cache.RedisConfig{
				Endpoints:    []string{"localhost:6379"},
				PoolSize:     10,
				MinIdleConns: 5,
				MaxRetries:   3,
				DialTimeout:  5 * time.Second,
				ReadTimeout:  3 * time.Second,
				WriteTimeout: 3 * time.Second,
			},
		},
		Events: events.Config{
			Type:       "none",
			BufferSize: 10000,
			Kafka: events.KafkaConfig{
				Brokers:      []string{"localhost:9092"},
				Topic:        "entity-mapper-changes",
				BatchSize:    100,
				BatchTimeout: 10 * time.Millisecond,
				WriteTimeout: 10 * time.Second,
				RequiredAcks: -1,
			},
		},
		Logging: logging.Config{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Namespace: "entitymapper"},
		Tables:  make(map[string]TableConfig),
	}
}

// LoadFromFile loads configuration from a YAML or JSON file.
// The file format is determined by the file extension (.yaml, .yml, or .json).
func (cm *ConfigManager) LoadFromFile(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".yaml", ".yml":
		return cm.LoadFromYAML(data)
	case ".json":
		return cm.LoadFromJSON(data)
	default:
		return fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json)", ext)
	}
}

// LoadFromYAML loads configuration from YAML data over the defaults.
func (cm *ConfigManager) LoadFromYAML(data []byte) error {
	config := DefaultConfig()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	return cm.apply(config)
}

// LoadFromJSON loads configuration from JSON data over the defaults.
// Durations are given in nanoseconds.
func (cm *ConfigManager) LoadFromJSON(data []byte) error {
	config := DefaultConfig()
	if len(data) > 0 {
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	}
	return cm.apply(config)
}

func (cm *ConfigManager) apply(config *Config) error {
	if config.Tables == nil {
		config.Tables = make(map[string]TableConfig)
	}
	if err := cm.validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cm.config = config
	return nil
}

// LoadFromEnv loads configuration from environment variables over the
// defaults. Files named in envFiles (default ".env") are loaded first when
// they exist; variables already set in the environment win.
// Environment variables follow the pattern: ENTITY_MAPPER_<SECTION>_<KEY>
// Examples:
//   - ENTITY_MAPPER_DATABASE_TYPE=postgresql
//   - ENTITY_MAPPER_DATABASE_PORT=5432
//   - ENTITY_MAPPER_CACHE_TYPE=redis
//   - ENTITY_MAPPER_CACHE_REDIS_ENDPOINTS=localhost:6379,localhost:6380
//   - ENTITY_MAPPER_EVENTS_KAFKA_TOPIC=changes
func (cm *ConfigManager) LoadFromEnv(envFiles ...string) error {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}

	config := DefaultConfig()
	env := envReader{}

	// Database configuration
	env.stringVar("DATABASE_TYPE", &config.Database.Type)
	env.stringVar("DATABASE_HOST", &config.Database.Host)
	env.intVar("DATABASE_PORT", &config.Database.Port)
	env.stringVar("DATABASE_DATABASE", &config.Database.Database)
	env.stringVar("DATABASE_USERNAME", &config.Database.Username)
	env.stringVar("DATABASE_PASSWORD", &config.Database.Password)
	env.stringVar("DATABASE_SSL_MODE", &config.Database.SSLMode)
	env.stringVar("DATABASE_DSN", &config.Database.DSN)
	env.intVar("DATABASE_MAX_OPEN_CONNS", &config.Database.MaxOpenConns)
	env.intVar("DATABASE_MAX_IDLE_CONNS", &config.Database.MaxIdleConns)
	env.durationVar("DATABASE_CONNECTION_TIMEOUT", &config.Database.ConnectionTimeout)
	env.floatVar("DATABASE_RATE_LIMIT", &config.Database.RateLimit)
	env.intVar("DATABASE_RATE_BURST", &config.Database.RateBurst)

	// Cache configuration
	env.stringVar("CACHE_TYPE", &config.Cache.Type)
	env.stringVar("CACHE_NAMESPACE", &config.Cache.Namespace)
	env.durationVar("CACHE_DEFAULT_TTL", &config.Cache.DefaultTTL)
	env.listVar("CACHE_REDIS_ENDPOINTS", &config.Cache.Redis.Endpoints)
	env.boolVar("CACHE_REDIS_CLUSTER_MODE", &config.Cache.Redis.ClusterMode)
	env.stringVar("CACHE_REDIS_PASSWORD", &config.Cache.Redis.Password)
	env.intVar("CACHE_REDIS_DB", &config.Cache.Redis.DB)
	env.intVar("CACHE_REDIS_POOL_SIZE", &config.Cache.Redis.PoolSize)
	env.stringVar("CACHE_DYNAMODB_REGION", &config.Cache.DynamoDB.Region)
	env.stringVar("CACHE_DYNAMODB_TABLE_NAME", &config.Cache.DynamoDB.TableName)
	env.stringVar("CACHE_DYNAMODB_ENDPOINT", &config.Cache.DynamoDB.Endpoint)

	// Events configuration
	env.stringVar("EVENTS_TYPE", &config.Events.Type)
	env.intVar("EVENTS_BUFFER_SIZE", &config.Events.BufferSize)
	env.listVar("EVENTS_REDIS_ENDPOINTS", &config.Events.Redis.Endpoints)
	env.stringVar("EVENTS_REDIS_KEY_PREFIX", &config.Events.Redis.KeyPrefix)
	env.listVar("EVENTS_KAFKA_BROKERS", &config.Events.Kafka.Brokers)
	env.stringVar("EVENTS_KAFKA_TOPIC", &config.Events.Kafka.Topic)

	// Logging and metrics
	env.stringVar("LOG_LEVEL", &config.Logging.Level)
	env.stringVar("LOG_FORMAT", &config.Logging.Format)
	env.stringVar("LOG_FILE", &config.Logging.File)
	env.boolVar("METRICS_ENABLED", &config.Metrics.Enabled)
	env.stringVar("METRICS_NAMESPACE", &config.Metrics.Namespace)

	if env.err != nil {
		return env.err
	}
	return cm.apply(config)
}

// envReader reads ENTITY_MAPPER_ variables, keeping the first parse error.
type envReader struct {
	err error
}

func (r *envReader) lookup(key string) (string, bool) {
	val := os.Getenv(EnvPrefix + key)
	return val, val != "" && r.err == nil
}

func (r *envReader) fail(key, val string, err error) {
	r.err = fmt.Errorf("invalid %s%s=%q: %w", EnvPrefix, key, val, err)
}

func (r *envReader) stringVar(key string, dst *string) {
	if val, ok := r.lookup(key); ok {
		*dst = val
	}
}

func (r *envReader) listVar(key string, dst *[]string) {
	if val, ok := r.lookup(key); ok {
		*dst = strings.Split(val, ",")
	}
}

func (r *envReader) intVar(key string, dst *int) {
	if val, ok := r.lookup(key); ok {
		n, err := strconv.Atoi(val)
		if err != nil {
			r.fail(key, val, err)
			return
		}
		*dst = n
	}
}

func (r *envReader) floatVar(key string, dst *float64) {
	if val, ok := r.lookup(key); ok {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			r.fail(key, val, err)
			return
		}
		*dst = f
	}
}

func (r *envReader) boolVar(key string, dst *bool) {
	if val, ok := r.lookup(key); ok {
		*dst = val == "true" || val == "1"
	}
}

func (r *envReader) durationVar(key string, dst *time.Duration) {
	if val, ok := r.lookup(key); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			r.fail(key, val, err)
			return
		}
		*dst = d
	}
}

// GetConfig returns the current configuration.
func (cm *ConfigManager) GetConfig() *Config {
	return cm.config
}

// GetTableConfig returns the settings for one table, merging its overrides
// with the global cache and events sections.
func (cm *ConfigManager) GetTableConfig(tableName string) TableSettings {
	settings := TableSettings{
		CacheEnabled:  cm.config.Cache.Enabled(),
		EventsEnabled: cm.config.Events.Enabled(),
		TTL:           cm.config.Cache.DefaultTTL,
		Namespace:     cm.config.Cache.Namespace,
	}

	tableConfig, exists := cm.config.Tables[tableName]
	if !exists {
		return settings
	}
	if tableConfig.CacheEnabled != nil {
		settings.CacheEnabled = *tableConfig.CacheEnabled && cm.config.Cache.Enabled()
	}
	if tableConfig.EventsEnabled != nil {
		settings.EventsEnabled = *tableConfig.EventsEnabled && cm.config.Events.Enabled()
	}
	if tableConfig.TTL > 0 {
		settings.TTL = tableConfig.TTL
	}
	if tableConfig.Namespace != "" {
		settings.Namespace = tableConfig.Namespace
	}
	return settings
}

// validateConfig runs every registered section validator, then checks the
// cross-section rules.
func (cm *ConfigManager) validateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("configuration is nil")
	}
	for _, validator := range validators() {
		if err := validator.Validate(config); err != nil {
			return fmt.Errorf("%s validation failed: %w", validator.Type(), err)
		}
	}

	if config.Database.MaxOpenConns < 0 {
		return fmt.Errorf("database.max_open_conns must not be negative")
	}
	if config.Database.RateLimit < 0 {
		return fmt.Errorf("database.rate_limit must not be negative")
	}
	if config.Cache.Enabled() && config.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("cache.default_ttl must be greater than 0")
	}
	if config.Metrics.Enabled && config.Metrics.Namespace == "" {
		return fmt.Errorf("metrics.namespace is required when metrics are enabled")
	}
	for name, table := range config.Tables {
		if table.TTL < 0 {
			return fmt.Errorf("tables.%s.ttl must not be negative", name)
		}
	}
	return nil
}
