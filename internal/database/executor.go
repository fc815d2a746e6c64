// Package database provides core.Executor implementations over database/sql
// together with the backends (MySQL, PostgreSQL, SQLite) that open them.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rzpsarthak13/entity-mapper/internal/core"
	"github.com/rzpsarthak13/entity-mapper/internal/logging"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("database is closed")

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SQLExecutor implements core.Executor on a *sql.DB.
type SQLExecutor struct {
	db      *sql.DB
	dialect core.Dialect
	log     *logging.Logger
	closed  atomic.Bool
}

// NewSQLExecutor wraps db. The caller keeps ownership of pool settings.
func NewSQLExecutor(db *sql.DB, dialect core.Dialect, logger *logging.Logger) *SQLExecutor {
	return &SQLExecutor{
		db:      db,
		dialect: dialect,
		log:     logging.OrDefault(logger, "database"),
	}
}

// DB returns the underlying pool.
func (e *SQLExecutor) DB() *sql.DB {
	return e.db
}

// Dialect implements core.Executor.
func (e *SQLExecutor) Dialect() core.Dialect {
	return e.dialect
}

// Exec implements core.Executor.
func (e *SQLExecutor) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}
	return execOn(ctx, e.db, e.dialect, e.log, query, args)
}

// Query implements core.Executor.
func (e *SQLExecutor) Query(ctx context.Context, query string, args []any, scan func(core.Row) error) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return queryOn(ctx, e.db, e.dialect, e.log, query, args, scan)
}

// WithTx implements core.Executor. The transaction executor passed to fn is
// also stored in the returned context so nested calls reuse it.
func (e *SQLExecutor) WithTx(ctx context.Context, fn func(ctx context.Context, tx core.Executor) error) error {
	if e.closed.Load() {
		return ErrClosed
	}

	sqlTx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	e.log.Debug().Msg("transaction started")

	tx := &txExecutor{tx: sqlTx, dialect: e.dialect, log: e.log}
	txCtx := core.ContextWithTx(ctx, tx)
	if err := fn(txCtx, tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			e.log.Error().Err(rbErr).Msg("rollback failed")
		}
		e.log.Debug().Err(err).Msg("transaction rolled back")
		core.EndTx(txCtx, ctx, false)
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		core.EndTx(txCtx, ctx, false)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	e.log.Debug().Msg("transaction committed")
	core.EndTx(txCtx, ctx, true)
	return nil
}

// Ping checks connectivity within timeout.
func (e *SQLExecutor) Ping(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Close closes the pool. Calling it twice is a no-op.
func (e *SQLExecutor) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	return e.db.Close()
}

type txExecutor struct {
	tx      *sql.Tx
	dialect core.Dialect
	log     *logging.Logger
}

func (t *txExecutor) Dialect() core.Dialect {
	return t.dialect
}

func (t *txExecutor) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return execOn(ctx, t.tx, t.dialect, t.log, query, args)
}

func (t *txExecutor) Query(ctx context.Context, query string, args []any, scan func(core.Row) error) error {
	return queryOn(ctx, t.tx, t.dialect, t.log, query, args, scan)
}

// WithTx joins the running transaction.
func (t *txExecutor) WithTx(ctx context.Context, fn func(ctx context.Context, tx core.Executor) error) error {
	return fn(core.ContextWithExecutor(ctx, t), t)
}

func execOn(ctx context.Context, q queryer, dialect core.Dialect, log *logging.Logger, query string, args []any) (int64, error) {
	query = dialect.Rebind(query)
	log.Debug().Str("sql", query).Interface("args", args).Msg("exec")

	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		log.Debug().Err(err).Str("sql", query).Msg("exec failed")
		return 0, fmt.Errorf("failed to execute statement: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected, nil
}

func queryOn(ctx context.Context, q queryer, dialect core.Dialect, log *logging.Logger, query string, args []any, scan func(core.Row) error) error {
	query = dialect.Rebind(query)
	log.Debug().Str("sql", query).Interface("args", args).Msg("query")

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		log.Debug().Err(err).Str("sql", query).Msg("query failed")
		return fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating rows: %w", err)
	}
	return rows.Close()
}
