package entitymapper

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/multierr"
)

// ErrNoDatabase is returned when a Manager has no database under a name.
var ErrNoDatabase = errors.New("no database registered")

// Manager keeps databases by name. The first registered database becomes
// the default until SetDefault picks another one.
type Manager struct {
	mu    sync.RWMutex
	dbs   map[string]*Database
	order []string
	def   string
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{dbs: make(map[string]*Database)}
}

// Open opens a database from cfg and registers it under name.
func (m *Manager) Open(ctx context.Context, name string, cfg *Config, opts ...Option) (*Database, error) {
	db, err := Open(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := m.Register(name, db); err != nil {
		return nil, multierr.Append(err, db.Close())
	}
	return db, nil
}

// Register stores db under name. A database already registered under that
// name is closed and replaced, keeping its default status.
func (m *Manager) Register(name string, db *Database) error {
	if name == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if db == nil {
		return fmt.Errorf("database %q cannot be nil", name)
	}

	m.mu.Lock()
	prev, replaced := m.dbs[name]
	m.dbs[name] = db
	if !replaced {
		m.order = append(m.order, name)
	}
	if m.def == "" {
		m.def = name
	}
	m.mu.Unlock()

	if replaced && prev != db {
		return prev.Close()
	}
	return nil
}

// Get returns the database registered under name.
func (m *Manager) Get(name string) (*Database, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	db, ok := m.dbs[name]
	return db, ok
}

// Lookup is Get with an error wrapping ErrNoDatabase for a missing name.
func (m *Manager) Lookup(name string) (*Database, error) {
	if db, ok := m.Get(name); ok {
		return db, nil
	}
	return nil, fmt.Errorf("%w under name %q", ErrNoDatabase, name)
}

// Default returns the default database.
func (m *Manager) Default() (*Database, error) {
	m.mu.RLock()
	name := m.def
	m.mu.RUnlock()
	if name == "" {
		return nil, ErrNoDatabase
	}
	return m.Lookup(name)
}

// SetDefault makes the database registered under name the default.
func (m *Manager) SetDefault(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.dbs[name]; !ok {
		return fmt.Errorf("%w under name %q", ErrNoDatabase, name)
	}
	m.def = name
	return nil
}

// Names returns the registered names in registration order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Unregister removes and closes the database under name. When it was the
// default, the earliest remaining registration becomes the default.
func (m *Manager) Unregister(name string) error {
	m.mu.Lock()
	db, ok := m.dbs[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w under name %q", ErrNoDatabase, name)
	}
	delete(m.dbs, name)
	m.order = lo.Without(m.order, name)
	if m.def == name {
		m.def = lo.FirstOr(m.order, "")
	}
	m.mu.Unlock()

	return db.Close()
}

// Close closes every registered database and empties the manager.
func (m *Manager) Close() error {
	m.mu.Lock()
	dbs := m.dbs
	order := m.order
	m.dbs = make(map[string]*Database)
	m.order = nil
	m.def = ""
	m.mu.Unlock()

	var err error
	for _, name := range order {
		err = multierr.Append(err, dbs[name].Close())
	}
	return err
}
