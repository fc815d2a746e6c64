// Package entitymapper maps Go structs onto relational tables.
//
// Entities are plain structs described with `orm` struct tags. Registering an
// entity type inspects it once, issues CREATE TABLE IF NOT EXISTS once and
// returns a typed table handle:
//
//	type User struct {
//		ID      uuid.UUID `orm:"id,pk"`
//		Name    string    `orm:"name"`
//		Age     *int32    `orm:"age"`
//		Address Address   `orm:"address,embedded,prefix=addr"`
//		Orders  entitymapper.LazyList[Order] `orm:"orders,onetomany,mappedby=user,cascade=all"`
//	}
//
//	db, _ := entitymapper.Open(ctx, cfg)
//	defer db.Close()
//
//	users, _ := entitymapper.Register[User](ctx, db, "users")
//	users.Create(ctx, &User{ID: uuid.New(), Name: "Jane"})
//	u, _ := users.FindOne().Where("name", "Jane").Execute(ctx)
//
// Tag options:
//
//	pk                       primary key (default: first scalar field)
//	column=<name>            column name (default: the logical name)
//	embedded, prefix=<p>     flatten a value object into prefixed columns
//	onetoone|onetomany|manytoone
//	join=<column>            join column
//	mappedby=<field>         owning field on the target, for inverse sides
//	fetch=eager|lazy         must agree with the field type
//	cascade=persist|remove|merge|refresh|all
//
// A field tagged "-" is ignored. Pointer fields are nullable.
package entitymapper

import (
	"github.com/rzpsarthak13/entity-mapper/internal/core"
	"github.com/rzpsarthak13/entity-mapper/internal/lazy"
	"github.com/rzpsarthak13/entity-mapper/internal/logging"
	"github.com/rzpsarthak13/entity-mapper/internal/registry"
)

// Lazy defers loading of a to-one relationship until Get is called.
type Lazy[T any] = lazy.Ref[T]

// LazyList defers loading of a to-many relationship until Get is called.
type LazyList[T any] = lazy.List[T]

// LoadedRef returns a Lazy already resolved to v, for building entities to
// create.
func LoadedRef[T any](v *T) Lazy[T] { return lazy.Loaded(v) }

// LoadedList returns a LazyList already resolved to v.
func LoadedList[T any](v []T) LazyList[T] { return lazy.LoadedList(v) }

// ErrUnbound is returned by Get on a lazy reference that was never bound to
// a loader, such as the zero value.
var ErrUnbound = lazy.ErrUnbound

// Error types. Use errors.As to inspect them.
type (
	MappingError         = core.MappingError
	UnsupportedTypeError = core.UnsupportedTypeError
	RangeError           = core.RangeError
	UnknownFieldError    = core.UnknownFieldError
	NoUpdateFieldsError  = core.NoUpdateFieldsError
	NotFoundError        = core.NotFoundError
	ExecutionError       = core.ExecutionError
)

// Executor is the statement execution contract tables run on.
type Executor = core.Executor

// Row is one result row handed to Executor.Query callbacks.
type Row = core.Row

// Schema is the column layout of a registered table.
type Schema = core.Schema

// ChangeEvent is published after successful writes when events are enabled.
type ChangeEvent = core.ChangeEvent

// Config is the complete mapper configuration.
type Config = registry.Config

// TableConfig holds per-table overrides in Config.Tables.
type TableConfig = registry.TableConfig

// Logger is the structured logger used by the mapper.
type Logger = logging.Logger

// DefaultConfig returns the default configuration: a shared in-memory SQLite
// database with caching, events and metrics disabled.
func DefaultConfig() *Config { return registry.DefaultConfig() }

// NopLogger returns a logger that discards everything.
func NopLogger() *Logger { return logging.Nop() }
