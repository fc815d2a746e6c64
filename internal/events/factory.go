// Package events publishes change events for committed writes to memory,
// Redis lists or Kafka.
package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/rzpsarthak13/entity-mapper/internal/core"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("change publisher is closed")

// Config selects and configures the publisher.
type Config struct {
	// Type is one of the registered publisher types, or "none".
	Type       string      `yaml:"type" json:"type"`
	BufferSize int         `yaml:"buffer_size" json:"buffer_size"`
	Redis      RedisConfig `yaml:"redis" json:"redis"`
	Kafka      KafkaConfig `yaml:"kafka" json:"kafka"`
}

// RedisConfig configures the Redis list publisher.
type RedisConfig struct {
	Endpoints []string `yaml:"endpoints" json:"endpoints"`
	Password  string   `yaml:"password" json:"password"`
	DB        int      `yaml:"db" json:"db"`
	KeyPrefix string   `yaml:"key_prefix" json:"key_prefix"`
}

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers" json:"brokers"`
	Topic        string        `yaml:"topic" json:"topic"`
	BatchSize    int           `yaml:"batch_size" json:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout" json:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	RequiredAcks int           `yaml:"required_acks" json:"required_acks"`
}

// PublisherFactory creates one kind of publisher.
type PublisherFactory interface {
	Type() string
	Validate(cfg Config) error
	Create(ctx context.Context, cfg Config) (core.ChangePublisher, error)
}

var (
	factories   = make(map[string]PublisherFactory)
	factoriesMu sync.RWMutex
)

// RegisterFactory makes a publisher type available; registering a type
// twice panics.
func RegisterFactory(f PublisherFactory) {
	if f == nil || f.Type() == "" {
		panic("events factory must have a type")
	}
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, exists := factories[f.Type()]; exists {
		panic(fmt.Sprintf("events factory %q is already registered", f.Type()))
	}
	factories[f.Type()] = f
}

// GetFactory returns the factory for typ.
func GetFactory(typ string) (PublisherFactory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[typ]
	return f, ok
}

// Types lists the registered publisher types.
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

// Enabled reports whether cfg selects a publisher.
func (cfg Config) Enabled() bool {
	return cfg.Type != "" && cfg.Type != "none"
}

// Validate checks cfg against its factory. Disabled events are valid.
func Validate(cfg Config) error {
	if !cfg.Enabled() {
		return nil
	}
	f, ok := GetFactory(cfg.Type)
	if !ok {
		return fmt.Errorf("unsupported events type %q (available: %v)", cfg.Type, Types())
	}
	return f.Validate(cfg)
}

// Create builds the publisher selected by cfg.
func Create(ctx context.Context, cfg Config) (core.ChangePublisher, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("events are disabled")
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	f, _ := GetFactory(cfg.Type)
	return f.Create(ctx, cfg)
}

// Encode renders an event as JSON.
func Encode(event *core.ChangeEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode change event: %w", err)
	}
	return data, nil
}

// Decode parses an event produced by Encode.
func Decode(data []byte) (*core.ChangeEvent, error) {
	var event core.ChangeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to decode change event: %w", err)
	}
	return &event, nil
}

func validateEvent(event *core.ChangeEvent) error {
	if event == nil || event.Table == "" {
		return errors.New("invalid change event: table name is required")
	}
	return nil
}
