package database

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rzpsarthak13/entity-mapper/internal/core"
)

func init() {
	RegisterBackend(sqliteBackend{})
}

type sqliteBackend struct{}

func (sqliteBackend) Type() string          { return "sqlite" }
func (sqliteBackend) Dialect() core.Dialect { return core.SQLite }

func (sqliteBackend) Validate(cfg Config) error {
	if cfg.DSN == "" && cfg.Database == "" {
		return fmt.Errorf("database.database or database.dsn is required for sqlite")
	}
	return nil
}

// SQLiteDSN returns cfg.DSN, or a file DSN for cfg.Database. The database
// name ":memory:" maps to a named shared in-memory database.
func SQLiteDSN(cfg Config) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	if cfg.Database == ":memory:" {
		return MemoryDSN("entity_mapper")
	}
	return "file:" + cfg.Database + "?_foreign_keys=on"
}

// MemoryDSN names a shared in-memory database.
func MemoryDSN(name string) string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
}

func (sqliteBackend) Open(cfg Config) (*sql.DB, error) {
	return sql.Open("sqlite3", SQLiteDSN(cfg))
}

// Tune pins SQLite to one connection. An in-memory database lives only as
// long as a connection to it is open.
func (sqliteBackend) Tune(db *sql.DB) {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
}

// OpenSQLite opens an SQLite executor directly, mainly for tests and the CLI.
func OpenSQLite(dsn string) (*SQLExecutor, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	sqliteBackend{}.Tune(db)
	if strings.Contains(dsn, "mode=memory") {
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to ping sqlite: %w", err)
		}
	}
	return NewSQLExecutor(db, core.SQLite, nil), nil
}
