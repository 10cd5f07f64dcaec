package clickhouse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB creates a ClickHouse container and returns a connection.
// Returns a cleanup function that must be called when done.
func setupTestDB(t *testing.T) (*Conn, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	// Start ClickHouse container
	req := testcontainers.ContainerRequest{
		Image:        "clickhouse/clickhouse-server:24.1-alpine",
		ExposedPorts: []string{"9000/tcp", "8123/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForLog("Application: Ready for connections").
				WithStartupTimeout(60 * time.Second),
			wait.ForListeningPort("9000/tcp"),
		),
		Env: map[string]string{
			"CLICKHOUSE_DB":       "test",
			"CLICKHOUSE_USER":     "default",
			"CLICKHOUSE_PASSWORD": "",
		},
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	// Get native port (9000)
	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	dsn := fmt.Sprintf("clickhouse://%s:%s/test", host, port.Port())

	// Connect to ClickHouse
	conn, err := NewConn(ctx, dsn)
	require.NoError(t, err)

	// Run migrations
	runMigrations(t, conn)

	cleanup := func() {
		conn.Close()
		_ = container.Terminate(ctx)
	}

	return conn, cleanup
}

// testAnalyticsDataset is the database the aggregate migrations run in.
const testAnalyticsDataset = "analytics"

// runMigrations applies the analytics migrations from the source tree through
// the schema_migrations ledger, then creates the warehouse fixture tables.
func runMigrations(t *testing.T, conn *Conn) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, conn.CreateDatabase(ctx, testAnalyticsDataset))
	require.NoError(t, conn.EnsureMigrationTable(ctx, testAnalyticsDataset))
	applied, err := conn.AppliedVersions(ctx, testAnalyticsDataset)
	require.NoError(t, err)

	for _, m := range analyticsMigrations(t) {
		if applied[m.version] {
			continue
		}
		require.NoError(t, conn.ApplyMigration(ctx, testAnalyticsDataset, m.version, m.name, []string{m.stmt}),
			"failed to apply migration %s", m.name)
	}

	createWarehouseTables(t, conn)
}

type analyticsMigration struct {
	version int
	name    string
	stmt    string
}

// analyticsMigrations reads the single-statement NNN_name.sql files and
// substitutes the dataset placeholder.
func analyticsMigrations(t *testing.T) []analyticsMigration {
	t.Helper()

	dir := filepath.Join("..", "migrations", "clickhouse")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err, "failed to read migrations directory")

	var out []analyticsMigration
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		prefix, _, _ := strings.Cut(entry.Name(), "_")
		version, err := strconv.Atoi(prefix)
		require.NoError(t, err, "migration %s has no numeric prefix", entry.Name())

		content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		require.NoError(t, err)
		stmt := strings.ReplaceAll(string(content), "{analytics_dataset}", testAnalyticsDataset)
		stmt = strings.TrimSuffix(strings.TrimSpace(stmt), ";")
		out = append(out, analyticsMigration{version: version, name: entry.Name(), stmt: stmt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out
}

// createWarehouseTables creates the star schema the transform stages produce.
func createWarehouseTables(t *testing.T, conn *Conn) {
	t.Helper()
	ctx := context.Background()

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS dim_orders (
			order_sk                       String,
			order_id                       String,
			order_status                   String,
			order_purchase_timestamp       Nullable(DateTime('UTC')),
			order_approved_at              Nullable(DateTime('UTC')),
			order_delivered_carrier_date   Nullable(DateTime('UTC')),
			order_delivered_customer_date  Nullable(DateTime('UTC')),
			order_estimated_delivery_date  Nullable(DateTime('UTC'))
		) ENGINE = MergeTree() ORDER BY order_sk`,
		`CREATE TABLE IF NOT EXISTS fact_order_items (
			order_sk       String,
			order_item_id  UInt32,
			product_sk     String,
			seller_sk      String,
			customer_sk    String,
			price          Float64,
			freight_value  Float64
		) ENGINE = MergeTree() ORDER BY (order_sk, order_item_id)`,
		`CREATE TABLE IF NOT EXISTS dim_product (
			product_sk                     String,
			product_category_name          Nullable(String),
			product_category_name_english  Nullable(String),
			product_weight_g               Nullable(Float64),
			product_length_cm              Nullable(Float64),
			product_height_cm              Nullable(Float64),
			product_width_cm               Nullable(Float64)
		) ENGINE = MergeTree() ORDER BY product_sk`,
		`CREATE TABLE IF NOT EXISTS dim_customer (
			customer_sk               String,
			customer_zip_code_prefix  String,
			customer_city             String,
			customer_state            String
		) ENGINE = MergeTree() ORDER BY customer_sk`,
		`CREATE TABLE IF NOT EXISTS dim_seller (
			seller_sk               String,
			seller_zip_code_prefix  String,
			seller_city             String,
			seller_state            String
		) ENGINE = MergeTree() ORDER BY seller_sk`,
		`CREATE TABLE IF NOT EXISTS dim_geolocation (
			geolocation_zip_code_prefix  String,
			geolocation_lat              Float64,
			geolocation_lng              Float64
		) ENGINE = MergeTree() ORDER BY geolocation_zip_code_prefix`,
	}
	for _, stmt := range ddl {
		require.NoError(t, conn.Exec(ctx, stmt))
	}
}

// ptr is a helper to create pointers for test values
func ptr[T any](v T) *T {
	return &v
}
