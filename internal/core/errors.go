package core

import (
	"fmt"
	"reflect"
)

// MappingError reports an entity shape that cannot be introspected.
type MappingError struct {
	Type   reflect.Type
	Field  string
	Reason string
}

func (e *MappingError) Error() string {
	name := "<nil>"
	if e.Type != nil {
		name = e.Type.String()
	}
	if e.Field != "" {
		return fmt.Sprintf("cannot map entity %s: field %s: %s", name, e.Field, e.Reason)
	}
	return fmt.Sprintf("cannot map entity %s: %s", name, e.Reason)
}

// UnsupportedTypeError reports a value or field type outside the scalar kinds.
type UnsupportedTypeError struct {
	Type  reflect.Type
	Field string
	Kind  Kind
}

func (e *UnsupportedTypeError) Error() string {
	name := "<nil>"
	if e.Type != nil {
		name = e.Type.String()
	}
	if e.Kind.Valid() {
		return fmt.Sprintf("unsupported type %s for %s field %s", name, e.Kind, e.Field)
	}
	return fmt.Sprintf("unsupported type %s for field %s", name, e.Field)
}

// RangeError reports a numeric value that the field's kind cannot hold
// exactly: an overflow, or a fractional value for an integer kind.
type RangeError struct {
	Field string
	Kind  Kind
	Value any
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("value %v out of range for %s field %s", e.Value, e.Kind, e.Field)
}

// UnknownFieldError reports a WHERE or SET clause naming an undeclared field.
type UnknownFieldError struct {
	Entity string
	Field  string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field '%s' for entity %s", e.Field, e.Entity)
}

// NoUpdateFieldsError is returned by an update executed without assignments.
type NoUpdateFieldsError struct {
	Table string
}

func (e *NoUpdateFieldsError) Error() string {
	return fmt.Sprintf("no fields specified for update on table '%s'", e.Table)
}

// NotFoundError reports a required row that does not exist.
type NotFoundError struct {
	Table  string
	Column string
	Key    any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no row in table '%s' where %s = %v", e.Table, e.Column, e.Key)
}

// ExecutionError wraps a failure raised by the executor.
type ExecutionError struct {
	Op  string
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s failed: %v (sql: %s)", e.Op, e.Err, e.SQL)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
