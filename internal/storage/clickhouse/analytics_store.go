package clickhouse

import (
	"context"
	"fmt"
	"time"

	"delivery-sla-lab/internal/domain"
	"delivery-sla-lab/internal/storage"
)

// AggregatesTable is the published aggregate table inside the analytics dataset.
const AggregatesTable = "sla_aggregates"

// AnalyticsStore implements storage.AnalyticsStore using ClickHouse.
type AnalyticsStore struct {
	conn    *Conn
	queries aggregateQueries
}

// NewAnalyticsStore creates a store writing to dataset.sla_aggregates.
// An empty dataset uses the connection's database.
func NewAnalyticsStore(conn *Conn, dataset string) (*AnalyticsStore, error) {
	q, err := buildAggregateQueries(dataset)
	if err != nil {
		return nil, err
	}
	return &AnalyticsStore{conn: conn, queries: q}, nil
}

type aggregateQueries struct {
	insert string
	get    string
	exists string
}

func buildAggregateQueries(dataset string) (aggregateQueries, error) {
	table, err := qualify(dataset, AggregatesTable)
	if err != nil {
		return aggregateQueries{}, err
	}
	return aggregateQueries{
		insert: `INSERT INTO ` + table + ` (
			run_id, dimension, position, group_key,
			item_count, late_rate_pct, mean_edd_delta, median_edd_delta, mean_total_days,
			min_support, dropped_groups, computed_at
		)`,
		get: `SELECT
			group_key, item_count, late_rate_pct,
			mean_edd_delta, median_edd_delta, mean_total_days,
			min_support, dropped_groups
		FROM ` + table + ` FINAL
		WHERE run_id = ? AND dimension = ?
		ORDER BY position ASC`,
		exists: `SELECT count(*) FROM ` + table + ` WHERE run_id = ?`,
	}, nil
}

// Compile-time interface check.
var _ storage.AnalyticsStore = (*AnalyticsStore)(nil)

// WriteAggregates adds every row of tables under runID in one batch.
// Returns ErrDuplicateKey if the run already has rows.
func (s *AnalyticsStore) WriteAggregates(ctx context.Context, runID string, computedAt time.Time, tables []*domain.AggregateTable) error {
	if runID == "" {
		return fmt.Errorf("%w: empty run id", storage.ErrInvalidInput)
	}

	seen := make(map[domain.Dimension]struct{})
	rows := 0
	for _, t := range tables {
		if t == nil {
			continue
		}
		if _, dup := seen[t.Dimension]; dup {
			return storage.ErrDuplicateKey
		}
		seen[t.Dimension] = struct{}{}
		rows += len(t.Rows)
	}
	if rows == 0 {
		return nil
	}

	// ReplacingMergeTree would silently replace; the run is append-only.
	exists, err := s.exists(ctx, runID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, s.queries.insert)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, t := range tables {
		if t == nil {
			continue
		}
		for i, r := range t.Rows {
			err = batch.Append(
				runID, string(t.Dimension), uint32(i), r.Key,
				uint64(r.Count), r.LateRatePct, r.MeanEDDDelta, r.MedianEDDDelta, r.MeanTotalDays,
				uint32(t.MinSupport), uint32(t.Dropped), computedAt.UTC(),
			)
			if err != nil {
				return fmt.Errorf("append to batch: %w", err)
			}
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetAggregates retrieves one dimension of a run in stored order.
func (s *AnalyticsStore) GetAggregates(ctx context.Context, runID string, dim domain.Dimension) (*domain.AggregateTable, error) {
	rows, err := s.conn.Query(ctx, s.queries.get, runID, string(dim))
	if err != nil {
		return nil, fmt.Errorf("query aggregates: %w", err)
	}
	defer rows.Close()

	table, err := scanAggregateRows(rows)
	if err != nil {
		return nil, err
	}
	if table.Empty() {
		return nil, storage.ErrNotFound
	}
	table.Dimension = dim
	return table, nil
}

func (s *AnalyticsStore) exists(ctx context.Context, runID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, s.queries.exists, runID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanAggregateRows(rows chRows) (*domain.AggregateTable, error) {
	table := &domain.AggregateTable{}
	for rows.Next() {
		var (
			r                   domain.AggregateRow
			count               uint64
			minSupport, dropped uint32
		)
		err := rows.Scan(
			&r.Key, &count, &r.LateRatePct,
			&r.MeanEDDDelta, &r.MedianEDDDelta, &r.MeanTotalDays,
			&minSupport, &dropped,
		)
		if err != nil {
			return nil, fmt.Errorf("scan aggregate row: %w", err)
		}
		r.Count = int(count)
		table.MinSupport = int(minSupport)
		table.Dropped = int(dropped)
		table.Rows = append(table.Rows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregate rows: %w", err)
	}
	return table, nil
}
