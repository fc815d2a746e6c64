// Package table binds an entity descriptor to a table name and runs the
// mapped CRUD operations: DDL on construction, inserts with cascade,
// filtered selects with relationship resolution, updates and deletes.
package table

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/samber/lo"

	"github.com/rzpsarthak13/entity-mapper/internal/cache"
	"github.com/rzpsarthak13/entity-mapper/internal/core"
	"github.com/rzpsarthak13/entity-mapper/internal/logging"
	"github.com/rzpsarthak13/entity-mapper/internal/query"
	"github.com/rzpsarthak13/entity-mapper/internal/schema"
)

// Resolver returns the engine managing entity type t, creating it if needed.
// The registry implements it.
type Resolver interface {
	Resolve(ctx context.Context, t reflect.Type) (*Engine, error)
}

// Options configures an Engine.
type Options struct {
	// Name is the table name.
	Name string

	// Descriptor is the inspected entity.
	Descriptor *schema.Descriptor

	// Executor runs statements outside of transactions.
	Executor core.Executor

	// Resolver finds related tables. Required when the entity declares
	// relationships.
	Resolver Resolver

	// Cache enables primary key reads through the entity cache.
	Cache *cache.EntityCache

	// Publisher receives change events after writes.
	Publisher core.ChangePublisher

	Logger *logging.Logger
}

// Engine is one ready table. It is safe for concurrent use.
type Engine struct {
	name      string
	desc      *schema.Descriptor
	exec      core.Executor
	resolver  Resolver
	cache     *cache.EntityCache
	publisher core.ChangePublisher
	log       *logging.Logger
}

// New validates opts, checks relationship targets and issues
// CREATE TABLE IF NOT EXISTS. The engine is ready when New returns.
func New(ctx context.Context, opts Options) (*Engine, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("table name is required")
	}
	if opts.Descriptor == nil {
		return nil, fmt.Errorf("table %s: descriptor is required", opts.Name)
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("table %s: executor is required", opts.Name)
	}
	if len(opts.Descriptor.Relationships()) > 0 && opts.Resolver == nil {
		return nil, fmt.Errorf("table %s: relationships need a resolver", opts.Name)
	}
	if err := checkTargets(opts.Descriptor); err != nil {
		return nil, err
	}

	e := &Engine{
		name:      opts.Name,
		desc:      opts.Descriptor,
		exec:      opts.Executor,
		resolver:  opts.Resolver,
		cache:     opts.Cache,
		publisher: opts.Publisher,
		log:       logging.OrDefault(opts.Logger, "table"),
	}

	ddl, err := e.CreateTableSQL()
	if err != nil {
		return nil, err
	}
	if _, err := e.executor(ctx).Exec(ctx, ddl); err != nil {
		return nil, wrapExec("create table "+e.name, ddl, err)
	}
	e.log.Info().Str("table", e.name).Str("entity", e.desc.Name()).Msg("table ready")
	return e, nil
}

// checkTargets inspects every relationship target so that a malformed
// related entity fails at construction. Inverse sides also need the join
// column on the target.
func checkTargets(desc *schema.Descriptor) error {
	for _, r := range desc.Relationships() {
		target, err := schema.Inspect(r.Target)
		if err != nil {
			return &core.MappingError{Type: desc.Type(), Field: r.GoName, Reason: "target entity: " + err.Error()}
		}
		if r.Owning() {
			continue
		}
		if _, ok := target.FieldForColumn(r.JoinColumn); !ok {
			return &core.MappingError{
				Type:   desc.Type(),
				Field:  r.GoName,
				Reason: fmt.Sprintf("target %s has no column %s for mappedBy %s", target.Name(), r.JoinColumn, r.MappedBy),
			}
		}
	}
	return nil
}

// Name returns the table name.
func (e *Engine) Name() string { return e.name }

// Descriptor returns the entity descriptor.
func (e *Engine) Descriptor() *schema.Descriptor { return e.desc }

// Schema returns the table layout.
func (e *Engine) Schema() *core.Schema { return e.desc.Schema(e.name) }

// CreateTableSQL renders the DDL for the executor's dialect.
func (e *Engine) CreateTableSQL() (string, error) {
	return query.CreateTable(e.Schema(), e.exec.Dialect())
}

// executor returns the transaction carried by ctx, if any.
func (e *Engine) executor(ctx context.Context) core.Executor {
	return core.ExecutorFromContext(ctx, e.exec)
}

func (e *Engine) target(ctx context.Context, r *schema.Relationship) (*Engine, error) {
	t, err := e.resolver.Resolve(ctx, r.Target)
	if err != nil {
		return nil, fmt.Errorf("resolve %s.%s: %w", e.desc.Name(), r.GoName, err)
	}
	return t, nil
}

func (e *Engine) cascades(op schema.CascadeType) bool {
	return lo.SomeBy(e.desc.Relationships(), func(r *schema.Relationship) bool { return r.Cascades(op) })
}

// newEntity allocates a *T for the entity type.
func (e *Engine) newEntity() reflect.Value {
	return reflect.New(e.desc.Type())
}

func (e *Engine) checkEntity(entity reflect.Value) error {
	if !entity.IsValid() || entity.Kind() != reflect.Pointer || entity.IsNil() {
		return fmt.Errorf("table %s: entity must be a non-nil *%s", e.name, e.desc.Name())
	}
	if entity.Elem().Type() != e.desc.Type() {
		return fmt.Errorf("table %s: entity type %s, want %s", e.name, entity.Elem().Type(), e.desc.Type())
	}
	return nil
}

// wrapExec attaches operation and SQL context to an executor failure. Typed
// mapper errors and errors that already carry context pass through.
func wrapExec(op, sql string, err error) error {
	if err == nil {
		return nil
	}
	var (
		execErr     *core.ExecutionError
		notFound    *core.NotFoundError
		mapping     *core.MappingError
		unsupported *core.UnsupportedTypeError
	)
	if errors.As(err, &execErr) || errors.As(err, &notFound) || errors.As(err, &mapping) || errors.As(err, &unsupported) {
		return err
	}
	return &core.ExecutionError{Op: op, SQL: sql, Err: err}
}
