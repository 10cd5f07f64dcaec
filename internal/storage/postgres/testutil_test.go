package postgres

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB starts a PostgreSQL container and applies the ledger migrations.
// Returns a cleanup function that must be called after tests complete.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("ledger"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")

	applyLedgerMigrations(t, pool)

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

type ledgerMigration struct {
	version int
	name    string
	sql     string
}

// ledgerMigrations reads NNN_name.sql files from the migrations source tree.
func ledgerMigrations(t *testing.T) []ledgerMigration {
	t.Helper()

	dir := filepath.Join("..", "migrations", "postgres")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err, "failed to read migrations directory")

	var out []ledgerMigration
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		prefix, _, _ := strings.Cut(entry.Name(), "_")
		version, err := strconv.Atoi(prefix)
		require.NoError(t, err, "migration %s has no numeric prefix", entry.Name())

		sql, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		require.NoError(t, err)
		out = append(out, ledgerMigration{version: version, name: entry.Name(), sql: string(sql)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out
}

// applyLedgerMigrations applies pending migrations through the schema_migrations ledger.
func applyLedgerMigrations(t *testing.T, pool *Pool) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, pool.EnsureMigrationTable(ctx))
	applied, err := pool.AppliedVersions(ctx)
	require.NoError(t, err)

	for _, m := range ledgerMigrations(t) {
		if applied[m.version] {
			continue
		}
		require.NoError(t, pool.ApplyMigration(ctx, m.version, m.name, m.sql))
	}
}
