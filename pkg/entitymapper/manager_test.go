package entitymapper

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/entity-mapper/internal/database"
)

func openNamed(t *testing.T, m *Manager, name string) *Database {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Database.DSN = database.MemoryDSN(t.Name() + "_" + name)
	db, err := m.Open(context.Background(), name, cfg, WithLogger(NopLogger()))
	require.NoError(t, err)
	return db
}

func TestManagerDefaultFollowsRegistration(t *testing.T) {
	m := NewManager()
	t.Cleanup(func() { _ = m.Close() })

	_, err := m.Default()
	require.ErrorIs(t, err, ErrNoDatabase)

	primary := openNamed(t, m, "main")
	reports := openNamed(t, m, "reports")
	assert.Equal(t, []string{"main", "reports"}, m.Names())

	def, err := m.Default()
	require.NoError(t, err)
	assert.Same(t, primary, def)

	got, ok := m.Get("reports")
	require.True(t, ok)
	assert.Same(t, reports, got)

	_, ok = m.Get("audit")
	assert.False(t, ok)
	_, err = m.Lookup("audit")
	require.ErrorIs(t, err, ErrNoDatabase)
	require.ErrorIs(t, m.SetDefault("audit"), ErrNoDatabase)

	require.NoError(t, m.SetDefault("reports"))
	def, err = m.Default()
	require.NoError(t, err)
	assert.Same(t, reports, def)

	require.NoError(t, m.Unregister("reports"))
	def, err = m.Default()
	require.NoError(t, err)
	assert.Same(t, primary, def)
	require.ErrorIs(t, m.Unregister("reports"), ErrNoDatabase)

	_, err = reports.RunScript(context.Background(), "SELECT 1")
	assert.Error(t, err)
}

func TestManagerReplaceClosesPrevious(t *testing.T) {
	m := NewManager()
	t.Cleanup(func() { _ = m.Close() })

	first := openNamed(t, m, "main")
	second := openNamed(t, m, "main")
	assert.Equal(t, []string{"main"}, m.Names())

	def, err := m.Default()
	require.NoError(t, err)
	assert.Same(t, second, def)

	_, err = first.RunScript(context.Background(), "SELECT 1")
	assert.Error(t, err)

	require.NoError(t, m.Close())
	assert.Empty(t, m.Names())
	_, err = m.Default()
	require.ErrorIs(t, err, ErrNoDatabase)
}

func TestRunScript(t *testing.T) {
	ctx := context.Background()
	db := openTest(t, nil)

	n, err := db.RunScript(ctx, `
		CREATE TABLE notes (id INTEGER NOT NULL PRIMARY KEY, body TEXT NOT NULL);
		INSERT INTO notes (id, body) VALUES (1, 'first; with semicolon');
	`)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	path := filepath.Join(t.TempDir(), "seed.sql")
	require.NoError(t, os.WriteFile(path, []byte("INSERT INTO notes (id, body) VALUES (2, 'second');\nINSERT INTO notes (id, body) VALUES (1, 'again');\n"), 0o600))
	_, err = db.RunScriptFile(ctx, path)
	require.Error(t, err)

	var bodies []string
	err = db.Executor().Query(ctx, "SELECT body FROM notes ORDER BY id", nil, func(row Row) error {
		var body string
		if err := row.Scan(&body); err != nil {
			return err
		}
		bodies = append(bodies, body)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first; with semicolon"}, bodies)

	_, err = db.RunScriptFile(ctx, filepath.Join(t.TempDir(), "missing.sql"))
	require.Error(t, err)
}
