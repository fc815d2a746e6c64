package database

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/entity-mapper/internal/core"
)

func openMemory(t *testing.T) *SQLExecutor {
	t.Helper()
	exec, err := OpenSQLite(MemoryDSN(strings.ReplaceAll(t.Name(), "/", "_")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Close() })

	_, err = exec.Exec(context.Background(), "CREATE TABLE items (id INTEGER NOT NULL PRIMARY KEY, name TEXT NOT NULL)")
	require.NoError(t, err)
	return exec
}

func names(t *testing.T, exec core.Executor) []string {
	t.Helper()
	var out []string
	err := exec.Query(context.Background(), "SELECT name FROM items ORDER BY id", nil, func(row core.Row) error {
		var name string
		if err := row.Scan(&name); err != nil {
			return err
		}
		out = append(out, name)
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestSQLExecutorExecAndQuery(t *testing.T) {
	ctx := context.Background()
	exec := openMemory(t)

	n, err := exec.Exec(ctx, "INSERT INTO items (id, name) VALUES (?, ?)", 1, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	total, err := core.ExecBatch(ctx, exec, "INSERT INTO items (id, name) VALUES (?, ?)", [][]any{{2, "b"}, {3, "c"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, []string{"a", "b", "c"}, names(t, exec))

	n, err = exec.Exec(ctx, "DELETE FROM items WHERE id = ?", 42)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = exec.Exec(ctx, "INSERT INTO nope VALUES (1)")
	assert.Error(t, err)
}

func TestQueryOne(t *testing.T) {
	ctx := context.Background()
	exec := openMemory(t)
	_, err := core.ExecBatch(ctx, exec, "INSERT INTO items (id, name) VALUES (?, ?)", [][]any{{1, "a"}, {2, "b"}})
	require.NoError(t, err)

	var name string
	found, err := core.QueryOne(ctx, exec, "SELECT name FROM items WHERE id = ?", []any{2}, func(row core.Row) error {
		return row.Scan(&name)
	})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "b", name)

	found, err = core.QueryOne(ctx, exec, "SELECT name FROM items WHERE id = ?", []any{9}, func(row core.Row) error {
		return row.Scan(&name)
	})
	require.NoError(t, err)
	assert.False(t, found)

	_, err = core.QueryOne(ctx, exec, "SELECT name FROM items", nil, func(row core.Row) error {
		return row.Scan(&name)
	})
	assert.ErrorContains(t, err, "more than one row")
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	exec := openMemory(t)
	boom := errors.New("boom")

	err := exec.WithTx(ctx, func(ctx context.Context, tx core.Executor) error {
		assert.True(t, core.InTransaction(ctx))
		assert.Same(t, tx, core.ExecutorFromContext(ctx, exec))
		if _, err := tx.Exec(ctx, "INSERT INTO items (id, name) VALUES (?, ?)", 1, "a"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, names(t, exec))

	err = exec.WithTx(ctx, func(ctx context.Context, tx core.Executor) error {
		return tx.WithTx(ctx, func(ctx context.Context, inner core.Executor) error {
			_, err := inner.Exec(ctx, "INSERT INTO items (id, name) VALUES (?, ?)", 1, "a")
			return err
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names(t, exec))
}

func TestExecScript(t *testing.T) {
	ctx := context.Background()
	exec := openMemory(t)

	n, err := core.ExecScript(ctx, exec, `
		-- seed
		INSERT INTO items (id, name) VALUES (1, 'a;1');
		INSERT INTO items (id, name) VALUES (2, 'b');
	`)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a;1", "b"}, names(t, exec))

	_, err = core.ExecScript(ctx, exec, `
		INSERT INTO items (id, name) VALUES (3, 'c');
		INSERT INTO items (id, name) VALUES (1, 'dup');
	`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "script statement 2")
	assert.Equal(t, []string{"a;1", "b"}, names(t, exec))
}

func TestClosedExecutor(t *testing.T) {
	exec := openMemory(t)
	require.NoError(t, exec.Close())
	require.NoError(t, exec.Close())

	_, err := exec.Exec(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpenFromConfig(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, Config{}, nil)
	assert.ErrorContains(t, err, "database.type is required")

	_, err = Open(ctx, Config{Type: "oracle"}, nil)
	assert.ErrorContains(t, err, "unsupported database type")

	_, err = Open(ctx, Config{Type: "mysql"}, nil)
	assert.ErrorContains(t, err, "database.host is required")

	exec, err := Open(ctx, Config{Type: "sqlite", DSN: MemoryDSN("open_from_config")}, nil)
	require.NoError(t, err)
	defer exec.Close()
	assert.Equal(t, "sqlite", exec.Dialect().Name)
	assert.Equal(t, 1, exec.DB().Stats().MaxOpenConnections)
}

func TestDSNs(t *testing.T) {
	cfg := Config{Host: "db", Database: "app", Username: "u", Password: "p", ConnectionTimeout: 5 * time.Second}

	mysqlDSN := MySQLDSN(cfg)
	assert.True(t, strings.HasPrefix(mysqlDSN, "u:p@tcp(db:3306)/app?"), mysqlDSN)
	assert.Contains(t, mysqlDSN, "parseTime=true")

	assert.Equal(t, "postgres://u:p@db:5432/app?connect_timeout=5&sslmode=disable", PostgresDSN(cfg))
	assert.Equal(t, "file:data.db?_foreign_keys=on", SQLiteDSN(Config{Database: "data.db"}))
	assert.Equal(t, "custom", PostgresDSN(Config{DSN: "custom"}))
}

func TestThrottled(t *testing.T) {
	exec := NewThrottled(openMemory(t), 0.01, 1)
	ctx := context.Background()

	_, err := exec.Exec(ctx, "INSERT INTO items (id, name) VALUES (?, ?)", 1, "a")
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = exec.Exec(short, "INSERT INTO items (id, name) VALUES (?, ?)", 2, "b")
	assert.ErrorContains(t, err, "throttle")
	assert.Equal(t, "sqlite", exec.Dialect().Name)
}

func TestInstrumented(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg, "test")
	require.NoError(t, err)

	again, err := NewMetrics(reg, "test")
	require.NoError(t, err)
	assert.Same(t, metrics.Statements, again.Statements)

	base := openMemory(t)
	exec := NewInstrumented(base, metrics)
	ctx := context.Background()

	_, err = exec.Exec(ctx, "INSERT INTO items (id, name) VALUES (?, ?)", 1, "a")
	require.NoError(t, err)
	_, err = exec.Exec(ctx, "INSERT INTO items (id, name) VALUES (?, ?)", 1, "a")
	require.Error(t, err)
	err = exec.WithTx(ctx, func(ctx context.Context, tx core.Executor) error {
		return tx.Query(ctx, "SELECT name FROM items", nil, func(core.Row) error { return nil })
	})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Statements.WithLabelValues("insert", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Statements.WithLabelValues("insert", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Statements.WithLabelValues("select", "ok")))

	require.NoError(t, RegisterPoolMetrics(reg, "test", base.DB()))
	count, err := testutil.GatherAndCount(reg, "test_sql_pool_open_connections",
		"test_sql_pool_in_use_connections", "test_sql_pool_idle_connections",
		"test_sql_pool_wait_count", "test_sql_pool_max_open_connections")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}
