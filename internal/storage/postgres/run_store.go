package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"delivery-sla-lab/internal/domain"
	"delivery-sla-lab/internal/storage"
)

// RunStore implements storage.RunStore using PostgreSQL.
type RunStore struct {
	pool *Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunStore = (*RunStore)(nil)

const runColumns = `
	run_id, started_at, finished_at,
	total_stages, succeeded_stages, warned_stages, failed_stages,
	success_rate_pct, status, table_counts
`

// Insert adds a run and its stage results in one transaction.
// Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(ctx context.Context, r *domain.RunSummary) error {
	if r.RunID == "" {
		return fmt.Errorf("%w: empty run id", storage.ErrInvalidInput)
	}

	counts := r.TableCounts
	if counts == nil {
		counts = map[string]int64{}
	}

	return s.pool.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO pipeline_runs (`+runColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			r.RunID, r.StartedAt.UTC(), r.FinishedAt.UTC(),
			r.Total, r.Succeeded, r.Warned, r.Failed,
			r.SuccessRatePct, string(r.Status), counts,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert pipeline run: %w", err)
		}

		for i, st := range r.Stages {
			row := stageRowFrom(st)
			_, err := tx.Exec(ctx, `
				INSERT INTO stage_results (
					run_id, position, stage, started_at, duration_ms, status,
					table_name, note, failure_kind, reason, stderr, metadata
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			`,
				r.RunID, i, st.Stage, st.StartedAt.UTC(), st.Duration.Milliseconds(), string(st.Status()),
				row.table, row.note, row.kind, row.reason, row.stderr, row.metadata,
			)
			if err != nil {
				return fmt.Errorf("insert stage result %s: %w", st.Stage, err)
			}
		}
		return nil
	})
}

// GetByID retrieves a run by id. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(ctx context.Context, runID string) (*domain.RunSummary, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM pipeline_runs WHERE run_id = $1`, runID)
	return s.getOne(ctx, row)
}

// GetLatest retrieves the most recently started run. Returns ErrNotFound if empty.
func (s *RunStore) GetLatest(ctx context.Context) (*domain.RunSummary, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+runColumns+`
		FROM pipeline_runs
		ORDER BY started_at DESC, run_id DESC
		LIMIT 1
	`)
	return s.getOne(ctx, row)
}

// List retrieves up to limit runs, newest first. Stage results are included.
func (s *RunStore) List(ctx context.Context, limit int) ([]*domain.RunSummary, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidInput)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+runColumns+`
		FROM pipeline_runs
		ORDER BY started_at DESC, run_id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pipeline runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.RunSummary
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pipeline run row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pipeline run rows: %w", err)
	}

	for _, r := range runs {
		if r.Stages, err = s.stages(ctx, r.RunID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *RunStore) getOne(ctx context.Context, row pgx.Row) (*domain.RunSummary, error) {
	r, err := scanRun(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pipeline run: %w", err)
	}
	if r.Stages, err = s.stages(ctx, r.RunID); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *RunStore) stages(ctx context.Context, runID string) ([]domain.StageResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT stage, started_at, duration_ms, status,
			table_name, note, failure_kind, reason, stderr, metadata
		FROM stage_results
		WHERE run_id = $1
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("get stage results: %w", err)
	}
	defer rows.Close()

	var results []domain.StageResult
	for rows.Next() {
		var (
			st         domain.StageResult
			startedAt  time.Time
			durationMs int64
			status     string
			row        stageRow
		)
		err := rows.Scan(
			&st.Stage, &startedAt, &durationMs, &status,
			&row.table, &row.note, &row.kind, &row.reason, &row.stderr, &row.metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("scan stage result row: %w", err)
		}
		st.StartedAt = startedAt.UTC()
		st.Duration = time.Duration(durationMs) * time.Millisecond
		st.Outcome = row.outcome(domain.StageStatus(status))
		results = append(results, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stage result rows: %w", err)
	}
	return results, nil
}

func scanRun(row pgx.Row) (*domain.RunSummary, error) {
	var (
		r      domain.RunSummary
		status string
	)
	err := row.Scan(
		&r.RunID, &r.StartedAt, &r.FinishedAt,
		&r.Total, &r.Succeeded, &r.Warned, &r.Failed,
		&r.SuccessRatePct, &status, &r.TableCounts,
	)
	if err != nil {
		return nil, err
	}
	r.Status = domain.RunStatus(status)
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	return &r, nil
}

// stageRow is the flattened form of a stage outcome.
type stageRow struct {
	table    string
	note     *string
	kind     *string
	reason   *string
	stderr   *string
	metadata map[string]string
}

func stageRowFrom(st domain.StageResult) stageRow {
	switch o := st.Outcome.(type) {
	case domain.Succeeded:
		return stageRow{table: o.Table, metadata: o.Metadata}
	case domain.Warned:
		return stageRow{table: o.Table, note: &o.Note, metadata: o.Metadata}
	case domain.Failed:
		kind := string(o.Kind)
		return stageRow{table: o.Table, kind: &kind, reason: &o.Reason, stderr: &o.Stderr}
	default:
		kind := string(domain.FailureExecution)
		reason := "missing outcome"
		return stageRow{kind: &kind, reason: &reason}
	}
}

func (r stageRow) outcome(status domain.StageStatus) domain.Outcome {
	switch status {
	case domain.StageStatusSuccess:
		return domain.Succeeded{Table: r.table, Metadata: r.metadata}
	case domain.StageStatusWarning:
		return domain.Warned{Table: r.table, Note: deref(r.note), Metadata: r.metadata}
	default:
		return domain.Failed{
			Table:  r.table,
			Kind:   domain.FailureKind(deref(r.kind)),
			Reason: deref(r.reason),
			Stderr: deref(r.stderr),
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
