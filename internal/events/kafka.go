package events

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rzpsarthak13/entity-mapper/internal/core"
)

func init() {
	RegisterFactory(kafkaFactory{})
}

type kafkaFactory struct{}

func (kafkaFactory) Type() string { return "kafka" }

func (kafkaFactory) Validate(cfg Config) error {
	if len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("events.kafka.brokers is required when events.type is 'kafka'")
	}
	if cfg.Kafka.Topic == "" {
		return fmt.Errorf("events.kafka.topic is required when events.type is 'kafka'")
	}
	return nil
}

func (kafkaFactory) Create(_ context.Context, cfg Config) (core.ChangePublisher, error) {
	return NewKafkaPublisher(NewKafkaWriter(cfg.Kafka)), nil
}

// NewKafkaWriter builds a synchronous writer for cfg.
func NewKafkaWriter(cfg KafkaConfig) *kafka.Writer {
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: writeTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		MaxAttempts:  3,
	}
}

// MessageWriter is the part of kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per event. Messages are keyed by
// table:key so events of one row land on one partition in order.
type KafkaPublisher struct {
	writer MessageWriter
	closed atomic.Bool
}

// NewKafkaPublisher creates a publisher over writer.
func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// Message renders event as a Kafka message.
func Message(event *core.ChangeEvent) (kafka.Message, error) {
	data, err := Encode(event)
	if err != nil {
		return kafka.Message{}, err
	}
	key := event.Table
	if event.Key != nil {
		key = fmt.Sprintf("%s:%v", event.Table, event.Key)
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "table", Value: []byte(event.Table)},
			{Key: "operation", Value: []byte(event.Operation)},
		},
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, event *core.ChangeEvent) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}
	if err := validateEvent(event); err != nil {
		return err
	}
	msg, err := Message(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write change event to kafka: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.writer.Close()
}
