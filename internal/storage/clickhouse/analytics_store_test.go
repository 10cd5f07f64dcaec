package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-sla-lab/internal/domain"
	"delivery-sla-lab/internal/storage"
)

func sampleTables() []*domain.AggregateTable {
	return []*domain.AggregateTable{
		{
			Dimension:  domain.DimensionState,
			MinSupport: 100,
			Dropped:    3,
			Rows: []domain.AggregateRow{
				{Key: "AL", Count: 397, LateRatePct: 23.93, MeanEDDDelta: ptr(-7.9), MedianEDDDelta: ptr(-9.0), MeanTotalDays: ptr(24.0)},
				{Key: "SP", Count: 40501, LateRatePct: 5.89, MeanEDDDelta: ptr(-10.2), MedianEDDDelta: ptr(-11.0), MeanTotalDays: ptr(8.3)},
			},
		},
		{
			Dimension:  domain.DimensionPriceBin,
			MinSupport: 10,
			Rows: []domain.AggregateRow{
				{Key: "Very Low", Count: 12, LateRatePct: 0},
			},
		},
	}
}

func TestBuildAggregateQueries(t *testing.T) {
	q, err := buildAggregateQueries("olist_analytics")
	require.NoError(t, err)
	assert.Contains(t, q.insert, "INSERT INTO olist_analytics.sla_aggregates (")
	assert.Contains(t, q.get, "FROM olist_analytics.sla_aggregates FINAL")
	assert.Contains(t, q.exists, "FROM olist_analytics.sla_aggregates WHERE run_id = ?")

	q, err = buildAggregateQueries("")
	require.NoError(t, err)
	assert.Contains(t, q.insert, "INSERT INTO sla_aggregates (")
}

func TestNewAnalyticsStore_RejectsBadDataset(t *testing.T) {
	_, err := NewAnalyticsStore(nil, "analytics; DROP TABLE x")
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestAnalyticsStore_WriteAndGet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store, err := NewAnalyticsStore(conn, testAnalyticsDataset)
	require.NoError(t, err)
	ctx := context.Background()

	computedAt := time.Date(2024, 3, 1, 1, 5, 0, 0, time.UTC)
	require.NoError(t, store.WriteAggregates(ctx, "run-1", computedAt, sampleTables()))

	got, err := store.GetAggregates(ctx, "run-1", domain.DimensionState)
	require.NoError(t, err)
	assert.Equal(t, domain.DimensionState, got.Dimension)
	assert.Equal(t, 100, got.MinSupport)
	assert.Equal(t, 3, got.Dropped)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, "AL", got.Rows[0].Key)
	assert.Equal(t, "SP", got.Rows[1].Key)
	assert.Equal(t, 40501, got.Rows[1].Count)
	require.NotNil(t, got.Rows[0].MedianEDDDelta)
	assert.Equal(t, -9.0, *got.Rows[0].MedianEDDDelta)

	bins, err := store.GetAggregates(ctx, "run-1", domain.DimensionPriceBin)
	require.NoError(t, err)
	require.Len(t, bins.Rows, 1)
	assert.Nil(t, bins.Rows[0].MeanEDDDelta)
}

func TestAnalyticsStore_Duplicate(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store, err := NewAnalyticsStore(conn, testAnalyticsDataset)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.WriteAggregates(ctx, "run-1", time.Now(), sampleTables()))
	err = store.WriteAggregates(ctx, "run-1", time.Now(), sampleTables())
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	tables := sampleTables()
	tables = append(tables, tables[0])
	err = store.WriteAggregates(ctx, "run-2", time.Now(), tables)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestAnalyticsStore_NotFound(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store, err := NewAnalyticsStore(conn, testAnalyticsDataset)
	require.NoError(t, err)
	_, err = store.GetAggregates(context.Background(), "missing", domain.DimensionState)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAnalyticsStore_WritesIntoDataset(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store, err := NewAnalyticsStore(conn, testAnalyticsDataset)
	require.NoError(t, err)
	require.NoError(t, store.WriteAggregates(ctx, "run-q", time.Now(), sampleTables()))

	n, err := NewTableCounter(conn).CountRows(ctx, testAnalyticsDataset+"."+AggregatesTable)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	applied, err := conn.AppliedVersions(ctx, testAnalyticsDataset)
	require.NoError(t, err)
	assert.True(t, applied[1])

	// Re-running the ledger setup applies nothing new
	runMigrations(t, conn)
}
