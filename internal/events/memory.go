package events

import (
	"context"
	"errors"
	"sync"

	"github.com/rzpsarthak13/entity-mapper/internal/core"
)

func init() {
	RegisterFactory(memoryFactory{})
}

type memoryFactory struct{}

func (memoryFactory) Type() string              { return "memory" }
func (memoryFactory) Validate(cfg Config) error { return nil }

func (memoryFactory) Create(_ context.Context, cfg Config) (core.ChangePublisher, error) {
	return NewMemoryPublisher(cfg.BufferSize), nil
}

// MemoryPublisher buffers events in a channel for in-process consumers.
type MemoryPublisher struct {
	ch     chan *core.ChangeEvent
	mu     sync.RWMutex
	closed bool
}

// NewMemoryPublisher creates a publisher holding up to bufferSize events.
func NewMemoryPublisher(bufferSize int) *MemoryPublisher {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &MemoryPublisher{ch: make(chan *core.ChangeEvent, bufferSize)}
}

// Publish enqueues event without blocking; a full buffer is an error.
func (p *MemoryPublisher) Publish(ctx context.Context, event *core.ChangeEvent) error {
	if err := validateEvent(event); err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	select {
	case p.ch <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errors.New("memory publisher buffer is full")
	}
}

// Drain removes up to max buffered events in publish order. A max of zero or
// less drains everything currently buffered.
func (p *MemoryPublisher) Drain(max int) []*core.ChangeEvent {
	var out []*core.ChangeEvent
	for max <= 0 || len(out) < max {
		select {
		case e, ok := <-p.ch:
			if !ok {
				return out
			}
			out = append(out, e)
		default:
			return out
		}
	}
	return out
}

// Events exposes the channel for consumers that prefer to range over it.
// It is closed by Close.
func (p *MemoryPublisher) Events() <-chan *core.ChangeEvent {
	return p.ch
}

// Len returns the number of buffered events.
func (p *MemoryPublisher) Len() int {
	return len(p.ch)
}

func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.ch)
	return nil
}
