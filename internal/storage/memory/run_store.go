package memory

import (
	"context"
	"sort"
	"sync"

	"delivery-sla-lab/internal/domain"
	"delivery-sla-lab/internal/storage"
)

// RunStore is an in-memory implementation of storage.RunStore.
type RunStore struct {
	mu   sync.RWMutex
	data map[string]*domain.RunSummary // keyed by run_id
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		data: make(map[string]*domain.RunSummary),
	}
}

// Insert adds a run. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(_ context.Context, r *domain.RunSummary) error {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.RunID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[r.RunID] = copyRun(r)
	return nil
}

// GetByID retrieves a run by id. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(_ context.Context, runID string) (*domain.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyRun(r), nil
}

// GetLatest retrieves the most recently started run. Returns ErrNotFound if empty.
func (s *RunStore) GetLatest(ctx context.Context) (*domain.RunSummary, error) {
	runs, err := s.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, storage.ErrNotFound
	}
	return runs[0], nil
}

// List retrieves up to limit runs, newest first.
func (s *RunStore) List(_ context.Context, limit int) ([]*domain.RunSummary, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	result := make([]*domain.RunSummary, 0, len(s.data))
	for _, r := range s.data {
		result = append(result, copyRun(r))
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].StartedAt.After(result[j].StartedAt)
		}
		return result[i].RunID > result[j].RunID
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func copyRun(r *domain.RunSummary) *domain.RunSummary {
	c := *r
	c.Stages = append([]domain.StageResult(nil), r.Stages...)
	if r.TableCounts != nil {
		c.TableCounts = make(map[string]int64, len(r.TableCounts))
		for k, v := range r.TableCounts {
			c.TableCounts[k] = v
		}
	}
	return &c
}

var _ storage.RunStore = (*RunStore)(nil)
