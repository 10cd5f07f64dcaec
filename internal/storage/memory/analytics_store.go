package memory

import (
	"context"
	"sync"
	"time"

	"delivery-sla-lab/internal/domain"
	"delivery-sla-lab/internal/storage"
)

// AnalyticsStore is an in-memory implementation of storage.AnalyticsStore.
type AnalyticsStore struct {
	mu   sync.RWMutex
	runs map[string]map[domain.Dimension]*domain.AggregateTable // run_id -> dimension -> table
	at   map[string]time.Time
}

// NewAnalyticsStore creates a new in-memory analytics store.
func NewAnalyticsStore() *AnalyticsStore {
	return &AnalyticsStore{
		runs: make(map[string]map[domain.Dimension]*domain.AggregateTable),
		at:   make(map[string]time.Time),
	}
}

// WriteAggregates stores the non-empty tables under runID. Fails the whole
// write on a repeated run id or a dimension listed twice.
func (s *AnalyticsStore) WriteAggregates(_ context.Context, runID string, computedAt time.Time, tables []*domain.AggregateTable) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}

	batch := make(map[domain.Dimension]*domain.AggregateTable, len(tables))
	for _, t := range tables {
		if t == nil {
			continue
		}
		if _, dup := batch[t.Dimension]; dup {
			return storage.ErrDuplicateKey
		}
		batch[t.Dimension] = copyTable(t)
	}
	for dim, t := range batch {
		if t.Empty() {
			delete(batch, dim)
		}
	}
	if len(batch) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[runID]; exists {
		return storage.ErrDuplicateKey
	}
	s.runs[runID] = batch
	s.at[runID] = computedAt.UTC()
	return nil
}

// GetAggregates retrieves one dimension of a run. Returns ErrNotFound if not exists.
func (s *AnalyticsStore) GetAggregates(_ context.Context, runID string, dim domain.Dimension) (*domain.AggregateTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.runs[runID][dim]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyTable(t), nil
}

// ComputedAt returns the timestamp recorded for a run.
func (s *AnalyticsStore) ComputedAt(runID string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.at[runID]
	return t, ok
}

func copyTable(t *domain.AggregateTable) *domain.AggregateTable {
	c := *t
	c.Rows = append([]domain.AggregateRow(nil), t.Rows...)
	return &c
}

var _ storage.AnalyticsStore = (*AnalyticsStore)(nil)
