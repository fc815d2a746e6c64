package entitymapper

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rzpsarthak13/entity-mapper/internal/client"
	"github.com/rzpsarthak13/entity-mapper/internal/core"
	"github.com/rzpsarthak13/entity-mapper/internal/registry"
)

// Database is the entry point: it owns the executor, the optional cache and
// change publisher, and the registry of tables.
type Database struct {
	client    *client.Client
	lifecycle *registry.LifecycleManager
}

// Option overrides a collaborator that would otherwise be built from the
// configuration.
type Option func(*client.Options)

// WithLogger sets the logger.
func WithLogger(l *Logger) Option {
	return func(o *client.Options) { o.Logger = l }
}

// WithLogOutput sends log output to w instead of stderr.
func WithLogOutput(w io.Writer) Option {
	return func(o *client.Options) { o.Console = w }
}

// WithRegisterer sets where executor metrics are registered.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *client.Options) { o.Registerer = reg }
}

// WithCacheStore supplies the second-level cache store. The caller keeps
// ownership and closes it.
func WithCacheStore(store core.CacheStore) Option {
	return func(o *client.Options) { o.CacheStore = store }
}

// WithPublisher supplies the change publisher. The caller keeps ownership
// and closes it.
func WithPublisher(p core.ChangePublisher) Option {
	return func(o *client.Options) { o.Publisher = p }
}

// Open validates cfg and connects everything it describes. A nil cfg means
// DefaultConfig().
func Open(ctx context.Context, cfg *Config, opts ...Option) (*Database, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	configMgr, err := registry.NewConfigManagerFrom(cfg)
	if err != nil {
		return nil, err
	}
	return open(ctx, configMgr, client.Options{}, opts)
}

// OpenFile loads a YAML or JSON configuration file and opens it.
func OpenFile(ctx context.Context, path string, opts ...Option) (*Database, error) {
	configMgr := registry.NewConfigManager()
	if err := configMgr.LoadFromFile(path); err != nil {
		return nil, err
	}
	return open(ctx, configMgr, client.Options{}, opts)
}

// OpenEnv reads the configuration from ENTITY_MAPPER_* environment
// variables, after loading envFiles (default ".env") when present.
func OpenEnv(ctx context.Context, envFiles []string, opts ...Option) (*Database, error) {
	configMgr := registry.NewConfigManager()
	if err := configMgr.LoadFromEnv(envFiles...); err != nil {
		return nil, err
	}
	return open(ctx, configMgr, client.Options{}, opts)
}

// New wraps an existing executor. cfg may be nil; its database section is
// ignored.
func New(ctx context.Context, exec Executor, cfg *Config, opts ...Option) (*Database, error) {
	if exec == nil {
		return nil, fmt.Errorf("executor cannot be nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	configMgr, err := registry.NewConfigManagerFrom(cfg)
	if err != nil {
		return nil, err
	}
	return open(ctx, configMgr, client.Options{Executor: exec}, opts)
}

func open(ctx context.Context, configMgr *registry.ConfigManager, base client.Options, opts []Option) (*Database, error) {
	for _, opt := range opts {
		opt(&base)
	}
	base.Lifecycle = registry.NewLifecycleManager()
	c, err := client.New(ctx, configMgr, base)
	if err != nil {
		return nil, err
	}
	return &Database{client: c, lifecycle: base.Lifecycle}, nil
}

// Transaction runs fn in a transaction. Table calls made with the context
// passed to fn join it; the transaction commits when fn returns nil.
func (db *Database) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.client.Transaction(ctx, fn)
}

// RunScript executes a SQL script of semicolon-separated statements in one
// transaction and returns how many statements ran. It joins the transaction
// carried by ctx, if any.
func (db *Database) RunScript(ctx context.Context, script string) (int, error) {
	return db.client.RunScript(ctx, script)
}

// RunScriptFile reads a SQL script from path and runs it like RunScript.
func (db *Database) RunScriptFile(ctx context.Context, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read sql script: %w", err)
	}
	return db.RunScript(ctx, string(raw))
}

// Tables returns the names of the registered tables, sorted.
func (db *Database) Tables() []string {
	return db.client.Registry().List()
}

// OnTableReady registers fn to run once for every table registered after
// this call, right after its CREATE TABLE.
func (db *Database) OnTableReady(fn func(ctx context.Context, table string, schema *Schema) error) {
	db.lifecycle.RegisterHook(registry.LifecycleHookFunc(fn))
}

// Executor returns the executor tables run on.
func (db *Database) Executor() Executor {
	return db.client.Executor()
}

// Logger returns the database logger.
func (db *Database) Logger() *Logger {
	return db.client.Logger()
}

// Close releases the connections the database opened.
func (db *Database) Close() error {
	return db.client.Close()
}
