// Package registry owns the set of ready tables. Each (name, entity type)
// pair is constructed at most once, which issues its CREATE TABLE exactly
// once, and related entity types are resolved through it.
package registry

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/rzpsarthak13/entity-mapper/internal/cache"
	"github.com/rzpsarthak13/entity-mapper/internal/core"
	"github.com/rzpsarthak13/entity-mapper/internal/logging"
	"github.com/rzpsarthak13/entity-mapper/internal/schema"
	"github.com/rzpsarthak13/entity-mapper/internal/table"
)

// TableMetadata contains metadata about a registered table.
type TableMetadata struct {
	// TableName is the name of the table.
	TableName string

	// EntityType is the struct type mapped onto the table.
	EntityType reflect.Type

	// Schema contains the column layout.
	Schema *core.Schema

	// Settings is the resolved table configuration.
	Settings TableSettings

	// CreatedAt is when the table became ready.
	CreatedAt time.Time
}

// Options configures a TableRegistry.
type Options struct {
	// Executor runs DDL and statements. Required.
	Executor core.Executor

	// Config supplies per-table settings. Defaults apply when nil.
	Config *ConfigManager

	// Lifecycle holds ready hooks. A new manager is created when nil.
	Lifecycle *LifecycleManager

	// CacheStore backs the per-table entity caches of tables with caching
	// enabled.
	CacheStore core.CacheStore

	// Publisher receives change events of tables with events enabled.
	Publisher core.ChangePublisher

	Logger *logging.Logger
}

type registryKey struct {
	name string
	typ  reflect.Type
}

// entry serializes construction of one (name, type) pair.
type entry struct {
	mu       sync.Mutex
	engine   *table.Engine
	metadata *TableMetadata
}

// TableRegistry manages ready tables. It is safe for concurrent use.
type TableRegistry struct {
	mu      sync.Mutex
	entries map[registryKey]*entry
	byName  map[string]reflect.Type
	byType  map[reflect.Type]string

	exec       core.Executor
	configMgr  *ConfigManager
	lifecycle  *LifecycleManager
	cacheStore core.CacheStore
	publisher  core.ChangePublisher
	log        *logging.Logger
}

// NewTableRegistry creates an empty registry.
func NewTableRegistry(opts Options) (*TableRegistry, error) {
	if opts.Executor == nil {
		return nil, fmt.Errorf("registry: executor is required")
	}
	if opts.Config == nil {
		opts.Config = NewConfigManager()
	}
	if opts.Lifecycle == nil {
		opts.Lifecycle = NewLifecycleManager()
	}
	return &TableRegistry{
		entries:    make(map[registryKey]*entry),
		byName:     make(map[string]reflect.Type),
		byType:     make(map[reflect.Type]string),
		exec:       opts.Executor,
		configMgr:  opts.Config,
		lifecycle:  opts.Lifecycle,
		cacheStore: opts.CacheStore,
		publisher:  opts.Publisher,
		log:        logging.OrDefault(opts.Logger, "registry"),
	}, nil
}

func entityType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func conflict(name string, bound, requested reflect.Type) error {
	return &core.MappingError{
		Type:   requested,
		Reason: fmt.Sprintf("table '%s' is registered with entity type %s but %s was requested", name, bound, requested),
	}
}

// Register returns the table for (name, t), constructing it on first use.
// An empty name selects the default table name of t. Concurrent callers for
// the same pair wait for a single construction; a failed construction is
// not remembered and the next caller retries. A name bound to another type
// fails with a MappingError.
func (tr *TableRegistry) Register(ctx context.Context, name string, t reflect.Type) (*table.Engine, error) {
	t = entityType(t)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, &core.MappingError{Type: t, Reason: "entity must be a struct type"}
	}
	if name == "" {
		name = schema.TableName(t)
	}

	tr.mu.Lock()
	if bound, ok := tr.byName[name]; ok && bound != t {
		tr.mu.Unlock()
		return nil, conflict(name, bound, t)
	}
	key := registryKey{name: name, typ: t}
	en, ok := tr.entries[key]
	if !ok {
		en = &entry{}
		tr.entries[key] = en
		tr.byName[name] = t
	}
	tr.mu.Unlock()

	if engine := en.ready(); engine != nil {
		return engine, nil
	}
	// Targets are made ready first, without holding this entry, so that
	// later cascades never issue DDL.
	if err := tr.registerTargets(ctx, t); err != nil {
		return nil, err
	}

	en.mu.Lock()
	defer en.mu.Unlock()
	if en.engine != nil {
		return en.engine, nil
	}

	engine, metadata, err := tr.build(ctx, name, t)
	if err != nil {
		tr.log.Error().Err(err).Str("table", name).Str("entity", t.String()).Msg("table construction failed")
		return nil, err
	}
	en.engine, en.metadata = engine, metadata

	tr.mu.Lock()
	if _, ok := tr.byType[t]; !ok {
		tr.byType[t] = name
	}
	tr.mu.Unlock()

	// DDL issued inside a transaction is undone by its rollback.
	core.AfterRollback(ctx, func(context.Context) {
		tr.forget(name, t, en)
	})
	return engine, nil
}

func (en *entry) ready() *table.Engine {
	en.mu.Lock()
	defer en.mu.Unlock()
	return en.engine
}

// forget drops a table whose construction was rolled back. The name stays
// bound to t.
func (tr *TableRegistry) forget(name string, t reflect.Type, en *entry) {
	en.mu.Lock()
	en.engine, en.metadata = nil, nil
	en.mu.Unlock()

	tr.mu.Lock()
	if tr.byType[t] == name {
		delete(tr.byType, t)
	}
	tr.mu.Unlock()
	tr.log.Warn().Str("table", name).Msg("table construction rolled back")
}

type pendingKey struct{}

// registerTargets makes every relationship target of t ready. Types
// already being registered further up the call chain are skipped, which
// ends relationship cycles.
func (tr *TableRegistry) registerTargets(ctx context.Context, t reflect.Type) error {
	desc, err := schema.Inspect(t)
	if err != nil {
		return err
	}
	if len(desc.Relationships()) == 0 {
		return nil
	}

	outer, _ := ctx.Value(pendingKey{}).(map[reflect.Type]bool)
	pending := make(map[reflect.Type]bool, len(outer)+1)
	for k := range outer {
		pending[k] = true
	}
	pending[t] = true
	ctx = context.WithValue(ctx, pendingKey{}, pending)

	for _, r := range desc.Relationships() {
		target := entityType(r.Target)
		if pending[target] {
			continue
		}
		if _, err := tr.Resolve(ctx, target); err != nil {
			return fmt.Errorf("relationship %s.%s: %w", t.Name(), r.Name, err)
		}
	}
	return nil
}

func (tr *TableRegistry) build(ctx context.Context, name string, t reflect.Type) (*table.Engine, *TableMetadata, error) {
	desc, err := schema.Inspect(t)
	if err != nil {
		return nil, nil, err
	}

	settings := tr.configMgr.GetTableConfig(name)
	opts := table.Options{
		Name:       name,
		Descriptor: desc,
		Executor:   tr.exec,
		Resolver:   tr,
		Logger:     tr.log,
	}
	if settings.CacheEnabled && tr.cacheStore != nil {
		opts.Cache = cache.NewEntityCache(tr.cacheStore, settings.Namespace, settings.TTL, tr.log)
	}
	if settings.EventsEnabled {
		opts.Publisher = tr.publisher
	}

	engine, err := table.New(ctx, opts)
	if err != nil {
		return nil, nil, err
	}
	if err := tr.lifecycle.ExecuteReadyHooks(ctx, name, engine.Schema()); err != nil {
		return nil, nil, fmt.Errorf("ready hook failed for table %q: %w", name, err)
	}

	tr.log.Info().
		Str("table", name).
		Str("entity", t.String()).
		Bool("cache", opts.Cache != nil).
		Bool("events", opts.Publisher != nil).
		Msg("table registered")
	return engine, &TableMetadata{
		TableName:  name,
		EntityType: t,
		Schema:     engine.Schema(),
		Settings:   settings,
		CreatedAt:  time.Now(),
	}, nil
}

// Resolve implements table.Resolver. It returns the first table registered
// for t, registering t under its default name when there is none.
func (tr *TableRegistry) Resolve(ctx context.Context, t reflect.Type) (*table.Engine, error) {
	t = entityType(t)
	tr.mu.Lock()
	name := tr.byType[t]
	tr.mu.Unlock()
	return tr.Register(ctx, name, t)
}

// Get returns the ready table registered as name. It fails when the name
// is unknown or bound to a type other than t.
func (tr *TableRegistry) Get(name string, t reflect.Type) (*table.Engine, error) {
	t = entityType(t)
	tr.mu.Lock()
	bound, ok := tr.byName[name]
	en := tr.entries[registryKey{name: name, typ: bound}]
	tr.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("table %q is not registered", name)
	}
	if bound != t {
		return nil, conflict(name, bound, t)
	}
	en.mu.Lock()
	defer en.mu.Unlock()
	if en.engine == nil {
		return nil, fmt.Errorf("table %q is not ready", name)
	}
	return en.engine, nil
}

// Lookup returns the ready table registered as name, whatever its type.
func (tr *TableRegistry) Lookup(name string) (*table.Engine, bool) {
	tr.mu.Lock()
	bound, ok := tr.byName[name]
	en := tr.entries[registryKey{name: name, typ: bound}]
	tr.mu.Unlock()
	if !ok {
		return nil, false
	}
	en.mu.Lock()
	defer en.mu.Unlock()
	return en.engine, en.engine != nil
}

// GetMetadata returns a copy of the metadata of a ready table.
func (tr *TableRegistry) GetMetadata(name string) (*TableMetadata, error) {
	tr.mu.Lock()
	bound, ok := tr.byName[name]
	en := tr.entries[registryKey{name: name, typ: bound}]
	tr.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("table %q is not registered", name)
	}

	en.mu.Lock()
	defer en.mu.Unlock()
	if en.metadata == nil {
		return nil, fmt.Errorf("table %q is not ready", name)
	}
	m := *en.metadata
	return &m, nil
}

// List returns the names of all ready tables, sorted.
func (tr *TableRegistry) List() []string {
	tr.mu.Lock()
	keys := make([]registryKey, 0, len(tr.entries))
	ens := make([]*entry, 0, len(tr.entries))
	for k, en := range tr.entries {
		keys = append(keys, k)
		ens = append(ens, en)
	}
	tr.mu.Unlock()

	names := make([]string, 0, len(keys))
	for i, en := range ens {
		en.mu.Lock()
		if en.engine != nil {
			names = append(names, keys[i].name)
		}
		en.mu.Unlock()
	}
	sort.Strings(names)
	return names
}

// Count returns the number of ready tables.
func (tr *TableRegistry) Count() int {
	return len(tr.List())
}

// GetLifecycleManager returns the lifecycle manager associated with this registry.
func (tr *TableRegistry) GetLifecycleManager() *LifecycleManager {
	return tr.lifecycle
}

// ConfigManager returns the configuration the registry resolves table
// settings from.
func (tr *TableRegistry) ConfigManager() *ConfigManager {
	return tr.configMgr
}
