package core

import (
	"context"
	"time"
)

// OperationType represents the type of write that produced a change event.
type OperationType string

const (
	// OperationCreate represents an INSERT.
	OperationCreate OperationType = "CREATE"

	// OperationUpdate represents an UPDATE.
	OperationUpdate OperationType = "UPDATE"

	// OperationDelete represents a DELETE.
	OperationDelete OperationType = "DELETE"
)

// ChangeEvent describes a committed write against a mapped table.
type ChangeEvent struct {
	// Table is the name of the table the write targeted.
	Table string `json:"table"`

	// Operation is the type of write.
	Operation OperationType `json:"operation"`

	// Key is the primary key value for CREATE and DELETE. UPDATE events
	// carry it only when the update was scoped to one primary key.
	Key any `json:"key,omitempty"`

	// Data holds column values for CREATE and the SET assignments for UPDATE.
	Data map[string]any `json:"data,omitempty"`

	// Affected is the number of rows touched.
	Affected int64 `json:"affected"`

	// Timestamp is when the write completed.
	Timestamp time.Time `json:"timestamp"`
}

// ChangePublisher delivers change events to downstream consumers.
type ChangePublisher interface {
	// Publish sends one event. It must not block indefinitely.
	Publish(ctx context.Context, event *ChangeEvent) error

	// Close flushes pending events and releases resources.
	Close() error
}
