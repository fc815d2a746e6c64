package core

import (
	"context"
	"fmt"
	"sync"
)

// Row is a single result row positioned by the executor.
type Row interface {
	// Scan copies the columns of the current row into dest, in column order.
	Scan(dest ...any) error
}

// Executor is the narrow query-execution contract the mapper depends on.
// Implementations own connection pooling and driver specifics.
type Executor interface {
	// Exec runs a statement and returns the number of affected rows.
	Exec(ctx context.Context, query string, args ...any) (int64, error)

	// Query runs a SELECT and calls scan once per row. Rows are closed
	// before Query returns, so scan must not issue further statements.
	Query(ctx context.Context, query string, args []any, scan func(Row) error) error

	// WithTx runs fn inside a transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Executor) error) error

	// Dialect describes the SQL flavour spoken by the executor.
	Dialect() Dialect
}

// QueryOne runs query and scans at most one row. It reports whether a row
// was found and fails when the query yields more than one row.
func QueryOne(ctx context.Context, exec Executor, query string, args []any, scan func(Row) error) (bool, error) {
	count := 0
	err := exec.Query(ctx, query, args, func(row Row) error {
		count++
		if count > 1 {
			return fmt.Errorf("query returned more than one row: %s", query)
		}
		return scan(row)
	})
	if err != nil {
		return false, err
	}
	return count == 1, nil
}

// ExecBatch runs the same statement once per argument set inside a single
// transaction and returns the total number of affected rows.
func ExecBatch(ctx context.Context, exec Executor, query string, argSets [][]any) (int64, error) {
	var total int64
	err := exec.WithTx(ctx, func(ctx context.Context, tx Executor) error {
		for _, args := range argSets {
			n, err := tx.Exec(ctx, query, args...)
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

type executorKey struct{}

// txScope collects actions that depend on how a transaction ends.
type txScope struct {
	mu       sync.Mutex
	commit   []func(ctx context.Context)
	rollback []func(ctx context.Context)
}

type txValue struct {
	exec  Executor
	scope *txScope
}

func scopeOf(ctx context.Context) *txScope {
	if v, ok := ctx.Value(executorKey{}).(txValue); ok {
		return v.scope
	}
	return nil
}

// ContextWithTx returns a context carrying exec as a new transaction. The
// executor that opened the transaction must call EndTx once it finishes.
func ContextWithTx(ctx context.Context, exec Executor) context.Context {
	return context.WithValue(ctx, executorKey{}, txValue{exec: exec, scope: &txScope{}})
}

// ContextWithExecutor returns a context carrying exec so that nested table
// operations use it. When ctx already carries a transaction, exec joins it
// and shares its commit and rollback actions.
func ContextWithExecutor(ctx context.Context, exec Executor) context.Context {
	scope := scopeOf(ctx)
	if scope == nil {
		scope = &txScope{}
	}
	return context.WithValue(ctx, executorKey{}, txValue{exec: exec, scope: scope})
}

// ExecutorFromContext returns the executor stored in ctx, or fallback.
func ExecutorFromContext(ctx context.Context, fallback Executor) Executor {
	if v, ok := ctx.Value(executorKey{}).(txValue); ok && v.exec != nil {
		return v.exec
	}
	return fallback
}

// InTransaction reports whether ctx already carries an executor.
func InTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(executorKey{}).(txValue)
	return ok
}

// AfterCommit runs fn once the transaction carried by ctx commits. Outside
// a transaction fn runs immediately.
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	scope := scopeOf(ctx)
	if scope == nil {
		fn(ctx)
		return
	}
	scope.mu.Lock()
	scope.commit = append(scope.commit, fn)
	scope.mu.Unlock()
}

// AfterRollback runs fn if the transaction carried by ctx rolls back.
// Outside a transaction it does nothing.
func AfterRollback(ctx context.Context, fn func(ctx context.Context)) {
	scope := scopeOf(ctx)
	if scope == nil {
		return
	}
	scope.mu.Lock()
	scope.rollback = append(scope.rollback, fn)
	scope.mu.Unlock()
}

// EndTx runs the actions registered on the transaction carried by txCtx:
// commit actions in registration order, or rollback actions in reverse
// order. They receive outer, the context the transaction was opened with.
func EndTx(txCtx, outer context.Context, committed bool) {
	scope := scopeOf(txCtx)
	if scope == nil {
		return
	}
	scope.mu.Lock()
	commit, rollback := scope.commit, scope.rollback
	scope.commit, scope.rollback = nil, nil
	scope.mu.Unlock()

	if committed {
		for _, fn := range commit {
			fn(outer)
		}
		return
	}
	for i := len(rollback) - 1; i >= 0; i-- {
		rollback[i](outer)
	}
}
