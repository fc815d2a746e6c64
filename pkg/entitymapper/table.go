package entitymapper

import (
	"context"
	"reflect"

	"github.com/rzpsarthak13/entity-mapper/internal/query"
	"github.com/rzpsarthak13/entity-mapper/internal/table"
)

// Table is a typed handle on a registered table. It is safe for concurrent
// use.
type Table[T any] struct {
	engine *table.Engine
}

// Register returns the table for entity type T, creating it on first use.
// An empty name selects the default: the snake_case type name, pluralized.
// Registering the same name and type again returns the same table without
// issuing DDL; a name already bound to another type is a MappingError.
func Register[T any](ctx context.Context, db *Database, name string) (*Table[T], error) {
	engine, err := db.client.Registry().Register(ctx, name, reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	return &Table[T]{engine: engine}, nil
}

// Get returns a table registered earlier. It fails when the name is unknown
// or bound to another entity type.
func Get[T any](db *Database, name string) (*Table[T], error) {
	engine, err := db.client.Registry().Get(name, reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	return &Table[T]{engine: engine}, nil
}

// Name returns the table name.
func (t *Table[T]) Name() string { return t.engine.Name() }

// Schema returns the column layout.
func (t *Table[T]) Schema() *Schema { return t.engine.Schema() }

// CreateTableSQL returns the DDL the table was created with.
func (t *Table[T]) CreateTableSQL() (string, error) { return t.engine.CreateTableSQL() }

// Create inserts entity. Relationships cascading persist are created in the
// same transaction.
func (t *Table[T]) Create(ctx context.Context, entity *T) error {
	return t.engine.Create(ctx, reflect.ValueOf(entity))
}

// Delete removes entity by primary key and returns the number of rows
// deleted from this table. Relationships cascading remove are deleted in the
// same transaction.
func (t *Table[T]) Delete(ctx context.Context, entity *T) (int64, error) {
	return t.engine.Delete(ctx, reflect.ValueOf(entity))
}

// Get loads the entity with primary key pk, reading through the entity
// cache when enabled. A missing row is a *NotFoundError.
func (t *Table[T]) Get(ctx context.Context, pk any) (*T, error) {
	v, err := t.engine.Get(ctx, pk, false)
	if err != nil {
		return nil, err
	}
	return v.Interface().(*T), nil
}

// FindOne starts a query for at most one entity.
func (t *Table[T]) FindOne() *FindOneQuery[T] {
	q := &FindOneQuery[T]{table: t}
	q.whereClause = newWhereClause(q, t.engine)
	return q
}

// FindFirst is FindOne.
func (t *Table[T]) FindFirst() *FindOneQuery[T] {
	return t.FindOne()
}

// FindMany starts a query for all matching entities.
func (t *Table[T]) FindMany() *FindManyQuery[T] {
	q := &FindManyQuery[T]{table: t}
	q.whereClause = newWhereClause(q, t.engine)
	return q
}

// Update starts a criteria-based UPDATE. Without any Where call every row
// is updated.
func (t *Table[T]) Update() *UpdateQuery[T] {
	q := &UpdateQuery[T]{table: t, sets: query.NewSetList(t.engine.Descriptor())}
	q.whereClause = newWhereClause(q, t.engine)
	return q
}
