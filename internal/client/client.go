// Package client assembles the runtime of the mapper from a configuration:
// logger, database executor with its throttling and metrics wrappers, cache
// store, change publisher and the table registry.
package client

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/rzpsarthak13/entity-mapper/internal/cache"
	"github.com/rzpsarthak13/entity-mapper/internal/core"
	"github.com/rzpsarthak13/entity-mapper/internal/database"
	"github.com/rzpsarthak13/entity-mapper/internal/events"
	"github.com/rzpsarthak13/entity-mapper/internal/logging"
	"github.com/rzpsarthak13/entity-mapper/internal/registry"
)

// Options overrides parts of the runtime that would otherwise be built from
// the configuration. Overridden collaborators are owned by the caller and
// are not closed by Close.
type Options struct {
	Logger     *logging.Logger
	Executor   core.Executor
	CacheStore core.CacheStore
	Publisher  core.ChangePublisher
	Lifecycle  *registry.LifecycleManager

	// Registerer receives the executor metrics when metrics are enabled.
	// prometheus.DefaultRegisterer is used when nil.
	Registerer prometheus.Registerer

	// Console receives console and JSON log output. Defaults to stderr.
	Console io.Writer
}

// Client is the assembled runtime.
type Client struct {
	mu        sync.Mutex
	configMgr *registry.ConfigManager
	log       *logging.Logger
	exec      core.Executor
	store     core.CacheStore
	publisher core.ChangePublisher
	registry  *registry.TableRegistry
	owned     []io.Closer
	closed    bool
}

// New builds the runtime described by configMgr. Resources opened before a
// failure are released.
func New(ctx context.Context, configMgr *registry.ConfigManager, opts Options) (*Client, error) {
	if configMgr == nil {
		return nil, fmt.Errorf("config manager cannot be nil")
	}
	config := configMgr.GetConfig()
	c := &Client{configMgr: configMgr}

	c.log = opts.Logger
	if c.log == nil {
		console := opts.Console
		if console == nil {
			console = os.Stderr
		}
		l, err := logging.FromConfig(config.Logging, console)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		c.log = l
	}

	if err := c.initialize(ctx, config, opts); err != nil {
		if closeErr := c.closeOwned(); closeErr != nil {
			c.log.Warn().Err(closeErr).Msg("cleanup after failed initialization")
		}
		return nil, err
	}
	return c, nil
}

func (c *Client) initialize(ctx context.Context, config *registry.Config, opts Options) error {
	var sqlExec *database.SQLExecutor
	c.exec = opts.Executor
	if c.exec == nil {
		exec, err := database.Open(ctx, config.Database, c.log.Component("database"))
		if err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
		sqlExec = exec
		c.exec = exec
		c.owned = append(c.owned, exec)
	}

	if config.Database.RateLimit > 0 {
		c.exec = database.NewThrottled(c.exec, config.Database.RateLimit, config.Database.RateBurst)
	}

	if config.Metrics.Enabled {
		reg := opts.Registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		metrics, err := database.NewMetrics(reg, config.Metrics.Namespace)
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		c.exec = database.NewInstrumented(c.exec, metrics)
		if sqlExec != nil {
			if err := database.RegisterPoolMetrics(reg, config.Metrics.Namespace, sqlExec.DB()); err != nil {
				c.log.Warn().Err(err).Msg("pool metrics not registered")
			}
		}
	}

	c.store = opts.CacheStore
	if c.store == nil && config.Cache.Enabled() {
		store, err := cache.Create(ctx, config.Cache)
		if err != nil {
			return fmt.Errorf("failed to create cache store: %w", err)
		}
		c.store = store
		c.owned = append(c.owned, store)
	}

	c.publisher = opts.Publisher
	if c.publisher == nil && config.Events.Enabled() {
		publisher, err := events.Create(ctx, config.Events)
		if err != nil {
			return fmt.Errorf("failed to create change publisher: %w", err)
		}
		c.publisher = publisher
		c.owned = append(c.owned, publisher)
	}

	reg, err := registry.NewTableRegistry(registry.Options{
		Executor:   c.exec,
		Config:     c.configMgr,
		Lifecycle:  opts.Lifecycle,
		CacheStore: c.store,
		Publisher:  c.publisher,
		Logger:     c.log,
	})
	if err != nil {
		return err
	}
	c.registry = reg

	c.log.Info().
		Str("database", config.Database.Type).
		Str("cache", config.Cache.Type).
		Str("events", config.Events.Type).
		Bool("metrics", config.Metrics.Enabled).
		Msg("entity mapper initialized")
	return nil
}

// Registry returns the table registry.
func (c *Client) Registry() *registry.TableRegistry { return c.registry }

// Executor returns the executor every table uses, after wrapping.
func (c *Client) Executor() core.Executor { return c.exec }

// Config returns the configuration manager.
func (c *Client) Config() *registry.ConfigManager { return c.configMgr }

// Logger returns the runtime logger.
func (c *Client) Logger() *logging.Logger { return c.log }

// Transaction runs fn inside a transaction carried by the context passed to
// it. Table operations using that context join the transaction. Nested calls
// join the outer transaction.
func (c *Client) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if core.InTransaction(ctx) {
		return fn(ctx)
	}
	return c.exec.WithTx(ctx, func(ctx context.Context, _ core.Executor) error {
		return fn(ctx)
	})
}

// RunScript executes a multi-statement SQL script in one transaction. It
// joins the transaction carried by ctx, if any.
func (c *Client) RunScript(ctx context.Context, script string) (int, error) {
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	n, err := core.ExecScript(ctx, core.ExecutorFromContext(ctx, c.exec), script)
	if err != nil {
		c.log.Error().Err(err).Msg("sql script failed")
		return 0, err
	}
	c.log.Debug().Int("statements", n).Msg("sql script applied")
	return n, nil
}

func (c *Client) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("client is closed")
	}
	return nil
}

// Close releases the resources the client opened, in reverse order.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.closeOwned()
	c.log.Info().Err(err).Msg("entity mapper closed")
	return err
}

func (c *Client) closeOwned() error {
	var err error
	for i := len(c.owned) - 1; i >= 0; i-- {
		err = multierr.Append(err, c.owned[i].Close())
	}
	c.owned = nil
	return err
}
