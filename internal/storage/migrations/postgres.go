package migrations

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"delivery-sla-lab/internal/storage/postgres"
)

// RunPostgresMigrations applies the run ledger migrations not yet recorded in
// schema_migrations. Each file runs in its own transaction.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool, logger *zap.Logger) error {
	all, err := Load(PostgresFS, "postgres")
	if err != nil {
		return err
	}
	if err := pool.EnsureMigrationTable(ctx); err != nil {
		return err
	}
	applied, err := pool.AppliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, m := range pending(all, applied) {
		if strings.TrimSpace(m.SQL) == "" {
			continue
		}
		if err := pool.ApplyMigration(ctx, m.Version, m.Name, m.SQL); err != nil {
			return err
		}
		logger.Info("applied postgres migration", zap.Int("version", m.Version), zap.String("name", m.Name))
	}
	return nil
}
