package migrations

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	chstore "delivery-sla-lab/internal/storage/clickhouse"
)

// DatasetPlaceholder is replaced with the analytics dataset name in
// ClickHouse migration files.
const DatasetPlaceholder = "{analytics_dataset}"

var datasetRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// RunClickhouseMigrations creates the analytics dataset, applies the
// migrations not yet recorded in its schema_migrations table, and returns a
// connection to the DSN database for the stores.
func RunClickhouseMigrations(ctx context.Context, dsn, analyticsDataset string, logger *zap.Logger) (*chstore.Conn, error) {
	all, err := Load(ClickhouseFS, "clickhouse")
	if err != nil {
		return nil, err
	}

	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse admin: %w", err)
	}
	if err := migrateDataset(ctx, admin, analyticsDataset, all, logger); err != nil {
		admin.Close()
		return nil, err
	}
	if err := admin.Close(); err != nil {
		return nil, fmt.Errorf("close admin connection: %w", err)
	}

	conn, err := chstore.NewConn(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse: %w", err)
	}
	return conn, nil
}

func migrateDataset(ctx context.Context, conn *chstore.Conn, dataset string, all []Migration, logger *zap.Logger) error {
	if err := conn.CreateDatabase(ctx, dataset); err != nil {
		return err
	}
	if err := conn.EnsureMigrationTable(ctx, dataset); err != nil {
		return err
	}
	applied, err := conn.AppliedVersions(ctx, dataset)
	if err != nil {
		return err
	}

	for _, m := range pending(all, applied) {
		stmts, err := render(m.SQL, dataset)
		if err != nil {
			return fmt.Errorf("render migration %s: %w", m.Name, err)
		}
		if err := conn.ApplyMigration(ctx, dataset, m.Version, m.Name, stmts); err != nil {
			return err
		}
		logger.Info("applied clickhouse migration",
			zap.String("dataset", dataset), zap.Int("version", m.Version), zap.String("name", m.Name))
	}
	return nil
}

// render substitutes the dataset placeholder and splits the file into
// statements. The driver executes one statement per Exec.
func render(sql, dataset string) ([]string, error) {
	if !datasetRe.MatchString(dataset) {
		return nil, fmt.Errorf("invalid dataset name %q", dataset)
	}
	return splitStatements(strings.ReplaceAll(sql, DatasetPlaceholder, dataset)), nil
}

// splitStatements splits on semicolons outside quoted strings, backquoted
// identifiers and comments. Line comments are dropped.
func splitStatements(input string) []string {
	var (
		stmts []string
		cur   strings.Builder
		quote byte
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(input); i++ {
		ch := input[i]

		if quote != 0 {
			cur.WriteByte(ch)
			switch {
			case ch == '\\' && i+1 < len(input):
				i++
				cur.WriteByte(input[i])
			case ch == quote && i+1 < len(input) && input[i+1] == quote:
				i++
				cur.WriteByte(input[i])
			case ch == quote:
				quote = 0
			}
			continue
		}

		switch {
		case ch == '\'' || ch == '"' || ch == '`':
			quote = ch
			cur.WriteByte(ch)
		case ch == '-' && i+1 < len(input) && input[i+1] == '-':
			for i < len(input) && input[i] != '\n' {
				i++
			}
			cur.WriteByte('\n')
		case ch == '/' && i+1 < len(input) && input[i+1] == '*':
			end := strings.Index(input[i+2:], "*/")
			if end < 0 {
				i = len(input)
			} else {
				i += end + 3
			}
			cur.WriteByte(' ')
		case ch == ';':
			flush()
		default:
			cur.WriteByte(ch)
		}
	}
	flush()
	return stmts
}
