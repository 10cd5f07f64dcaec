package storage

import (
	"context"
	"time"

	"delivery-sla-lab/internal/domain"
)

// FetchQuery restricts the delivery extract.
type FetchQuery struct {
	Since time.Time // purchase timestamp lower bound (inclusive)
	Limit int       // 0 means no limit
}

// DeliverySource produces raw delivered order line items.
type DeliverySource interface {
	// FetchDeliveries returns delivered items with non-null delivery and estimated
	// timestamps purchased on or after q.Since, newest purchase first.
	FetchDeliveries(ctx context.Context, q FetchQuery) ([]domain.OrderItemRecord, error)
}

// AnalyticsStore publishes aggregate tables for dashboards.
type AnalyticsStore interface {
	// WriteAggregates stores all rows of the given tables under runID.
	// Returns ErrDuplicateKey if runID was already written.
	WriteAggregates(ctx context.Context, runID string, computedAt time.Time, tables []*domain.AggregateTable) error

	// GetAggregates retrieves one dimension of a run, rows in stored order.
	// Returns ErrNotFound if the run has no rows for the dimension.
	GetAggregates(ctx context.Context, runID string, dim domain.Dimension) (*domain.AggregateTable, error)
}

// TableCounter reports row counts of warehouse tables.
type TableCounter interface {
	// CountRows returns the row count of a dataset-qualified table.
	CountRows(ctx context.Context, table string) (int64, error)
}

// RunStore is the append-only ledger of pipeline runs.
type RunStore interface {
	// Insert adds a run summary with its stage results. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, s *domain.RunSummary) error

	// GetByID retrieves a run by id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.RunSummary, error)

	// GetLatest retrieves the most recently started run. Returns ErrNotFound if empty.
	GetLatest(ctx context.Context) (*domain.RunSummary, error)

	// List retrieves up to limit runs, newest first.
	List(ctx context.Context, limit int) ([]*domain.RunSummary, error)
}
