package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzpsarthak13/entity-mapper/internal/database"
	"github.com/rzpsarthak13/entity-mapper/pkg/entitymapper"
)

func TestDDLCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"ddl", "--dialect", "postgresql"})
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, out.String(), "CREATE TABLE IF NOT EXISTS customers (id TEXT NOT NULL PRIMARY KEY, name TEXT NOT NULL, email TEXT NOT NULL, tier SMALLINT NOT NULL, active BOOLEAN NOT NULL, created_at TIMESTAMP NOT NULL, bill_street TEXT NOT NULL")
	assert.Contains(t, out.String(), "CREATE TABLE IF NOT EXISTS purchases (id BIGINT NOT NULL PRIMARY KEY, amount DOUBLE PRECISION NOT NULL, discount REAL, quantity INTEGER NOT NULL, customer_id TEXT);")
	assert.Contains(t, out.String(), "relationships=[orders]")
}

func TestDDLCommandRejectsUnknownDialect(t *testing.T) {
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"ddl", "-d", "oracle"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown dialect "oracle"`)
}

func TestDemoScenario(t *testing.T) {
	ctx := context.Background()
	cfg := entitymapper.DefaultConfig()
	cfg.Database.DSN = database.MemoryDSN("demo_scenario")

	db, err := entitymapper.Open(ctx, cfg, entitymapper.WithLogger(entitymapper.NopLogger()))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	require.NoError(t, runDemo(ctx, db))
	assert.Equal(t, []string{"customers", "purchases"}, db.Tables())

	purchases, err := entitymapper.Get[purchase](db, "purchases")
	require.NoError(t, err)
	left, err := purchases.FindMany().Execute(ctx)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestScriptCommand(t *testing.T) {
	ctx := context.Background()
	dsn := database.MemoryDSN("script_command")

	cfg := entitymapper.DefaultConfig()
	cfg.Database.DSN = dsn
	keeper, err := entitymapper.Open(ctx, cfg, entitymapper.WithLogger(entitymapper.NopLogger()))
	require.NoError(t, err)
	defer func() { _ = keeper.Close() }()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("database:\n  dsn: \""+dsn+"\"\nlogging:\n  level: error\n"), 0o600))
	scriptPath := filepath.Join(dir, "schema.sql")
	require.NoError(t, os.WriteFile(scriptPath, []byte("CREATE TABLE tiers (id INTEGER PRIMARY KEY, label TEXT);\nINSERT INTO tiers VALUES (1, 'gold');\n"), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"script", "-c", configPath, scriptPath})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "schema.sql: 2 statements")

	var label string
	err = keeper.Executor().Query(ctx, "SELECT label FROM tiers WHERE id = 1", nil, func(row entitymapper.Row) error {
		return row.Scan(&label)
	})
	require.NoError(t, err)
	assert.Equal(t, "gold", label)
}
