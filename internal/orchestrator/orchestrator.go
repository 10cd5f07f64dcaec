// Package orchestrator runs the pipeline stage graph.
// It coordinates: extract-load → staging → warehouse → analytics + SLA analysis → summary
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"delivery-sla-lab/internal/domain"
	"delivery-sla-lab/internal/notify"
	"delivery-sla-lab/internal/observability"
	"delivery-sla-lab/internal/reporting"
	"delivery-sla-lab/internal/storage"
)

// DefaultConcurrency is used when Options.Concurrency is not set.
const DefaultConcurrency = 4

// Orchestrator executes a stage graph level by level.
// Flow: run stages → summarize → count tables → persist → notify
type Orchestrator struct {
	graph       *Graph
	concurrency int

	// Optional collaborators
	runStore storage.RunStore
	counter  storage.TableCounter
	notifier notify.Notifier

	clock   func() time.Time
	newID   func() string
	logger  *zap.Logger
	verbose bool
}

// Options for creating Orchestrator.
type Options struct {
	// Required
	Graph *Graph

	// Optional; nil skips the step
	RunStore     storage.RunStore
	TableCounter storage.TableCounter
	Notifier     notify.Notifier

	Concurrency int // max stages running at once
	Logger      *zap.Logger
	Verbose     bool // log every stage, not only failures
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		graph:       opts.Graph,
		concurrency: concurrency,
		runStore:    opts.RunStore,
		counter:     opts.TableCounter,
		notifier:    opts.Notifier,
		clock:       func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
		logger:      logger,
		verbose:     opts.Verbose,
	}
}

// WithClock sets a custom clock function.
func (o *Orchestrator) WithClock(clock func() time.Time) *Orchestrator {
	o.clock = clock
	return o
}

// WithIDGenerator sets the run id generator.
func (o *Orchestrator) WithIDGenerator(newID func() string) *Orchestrator {
	o.newID = newID
	return o
}

// RunResult contains results from orchestrator execution.
type RunResult struct {
	Summary *domain.RunSummary
	Errors  []string // ledger, count and notification failures
}

// Run executes every stage once and reports the outcome. Stage failures are
// part of the summary, not errors. An error is returned only when the graph is
// missing or ctx was cancelled.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	if o.graph == nil {
		return nil, errors.New("orchestrator: no stage graph")
	}

	runID := o.newID()
	log := o.logger.With(zap.String("run_id", runID))
	started := o.clock()
	log.Info("pipeline run started", zap.Int("stages", len(o.graph.Stages())))

	results := o.execute(ctx, runID, log)
	summary := Summarize(runID, started, o.clock(), results)
	result := &RunResult{Summary: summary}

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("run %s: %w", runID, err)
	}

	// Table counts
	result.Errors = append(result.Errors, o.countTables(ctx, summary)...)

	// Ledger
	if o.runStore != nil {
		if err := o.runStore.Insert(ctx, summary); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("persist run: %v", err))
			log.Error("persist run failed", zap.Error(err))
		}
	}

	// Notification never fails the run
	if o.notifier != nil {
		if err := o.sendSummary(ctx, summary); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("notify: %v", err))
			log.Error("notification failed", zap.Error(err))
		}
	}

	observability.RecordPipelineRun(string(summary.Status), summary.SuccessRatePct,
		summary.Duration().Seconds(), summary.FinishedAt.Unix(), summary.Failed > 0)

	log.Info("pipeline run finished",
		zap.String("status", string(summary.Status)),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("warned", summary.Warned),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration()))

	return result, nil
}

// execute runs the graph level by level. Stages of one level run concurrently
// up to the configured limit. A stage with a failed direct dependency is not
// run.
func (o *Orchestrator) execute(ctx context.Context, runID string, log *zap.Logger) []domain.StageResult {
	stages := o.graph.Stages()
	results := make([]domain.StageResult, len(stages))
	done := make(map[string]domain.StageResult, len(stages))

	for _, level := range o.graph.levels {
		var mu sync.Mutex
		g := new(errgroup.Group)
		g.SetLimit(o.concurrency)

		for _, i := range level {
			s := stages[i]
			var failedDeps []string
			for _, d := range s.Deps {
				if done[d].Status() == domain.StageStatusFailed {
					failedDeps = append(failedDeps, d)
				}
			}

			if len(failedDeps) > 0 {
				results[i] = domain.StageResult{
					Stage:     s.Name,
					StartedAt: o.clock(),
					Outcome: domain.Failed{
						Table:  s.Table,
						Kind:   domain.FailureDependencyFailure,
						Reason: "upstream failed: " + strings.Join(failedDeps, ", "),
					},
				}
				o.logStage(log, results[i])
				continue
			}

			i := i
			g.Go(func() error {
				r := o.runStage(ctx, runID, s)
				mu.Lock()
				results[i] = r
				mu.Unlock()
				o.logStage(log, r)
				return nil
			})
		}
		_ = g.Wait()

		for _, i := range level {
			done[stages[i].Name] = results[i]
		}
	}
	return results
}

func (o *Orchestrator) runStage(ctx context.Context, runID string, s Stage) (r domain.StageResult) {
	r.Stage = s.Name
	r.StartedAt = o.clock()
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			r.Outcome = domain.Failed{Table: s.Table, Kind: domain.FailureExecution, Reason: fmt.Sprintf("panic: %v", p)}
		}
		r.Duration = time.Since(start)
		observability.RecordStage(s.Name, string(r.Status()), r.Duration.Seconds())
	}()

	if err := ctx.Err(); err != nil {
		r.Outcome = domain.Failed{Table: s.Table, Kind: domain.FailureExecution, Reason: err.Error()}
		return r
	}
	r.Outcome = s.Run(ctx, runID)
	if r.Outcome == nil {
		r.Outcome = domain.Failed{Table: s.Table, Kind: domain.FailureExecution, Reason: "stage returned no outcome"}
	}
	return r
}

func (o *Orchestrator) logStage(log *zap.Logger, r domain.StageResult) {
	fields := []zap.Field{
		zap.String("stage", r.Stage),
		zap.String("status", string(r.Status())),
		zap.Duration("duration", r.Duration),
	}
	switch out := r.Outcome.(type) {
	case domain.Failed:
		fields = append(fields, zap.String("kind", string(out.Kind)), zap.String("reason", out.Reason))
		if out.Stderr != "" {
			fields = append(fields, zap.String("stderr", out.Stderr))
		}
		log.Error("stage failed", fields...)
	case domain.Warned:
		log.Warn("stage warning", append(fields, zap.String("note", out.Note))...)
	default:
		if o.verbose {
			log.Info("stage succeeded", fields...)
		}
	}
}

// countTables fills summary.TableCounts. Tables that cannot be counted are
// left out.
func (o *Orchestrator) countTables(ctx context.Context, summary *domain.RunSummary) []string {
	if o.counter == nil {
		return nil
	}
	var errs []string
	for _, table := range o.graph.Tables() {
		n, err := o.counter.CountRows(ctx, table)
		if err != nil {
			errs = append(errs, fmt.Sprintf("count %s: %v", table, err))
			continue
		}
		summary.TableCounts[table] = n
	}
	return errs
}

func (o *Orchestrator) sendSummary(ctx context.Context, summary *domain.RunSummary) error {
	body, err := reporting.RenderRunSummaryHTML(summary, o.graph.Tables())
	if err != nil {
		observability.RecordNotification(err)
		return err
	}
	err = o.notifier.Send(ctx, notify.Subject(summary.Status, summary.FinishedAt), body)
	observability.RecordNotification(err)
	return err
}
