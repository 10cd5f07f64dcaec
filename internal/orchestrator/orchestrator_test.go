package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"delivery-sla-lab/internal/cache"
	"delivery-sla-lab/internal/config"
	"delivery-sla-lab/internal/domain"
	"delivery-sla-lab/internal/extract"
	"delivery-sla-lab/internal/pipeline"
	"delivery-sla-lab/internal/storage"
	"delivery-sla-lab/internal/storage/memory"
	"delivery-sla-lab/internal/toolexec"
)

var fixedTime = time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC)

// fakeRunner answers tool commands by model name (last arg) or command name.
type fakeRunner struct {
	mu       sync.Mutex
	calls    []string
	failures map[string]error
	silent   map[string]bool // succeed without confirming the model
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{failures: map[string]error{}, silent: map[string]bool{}}
}

func (f *fakeRunner) Run(_ context.Context, cmd toolexec.Command) (toolexec.Result, error) {
	key := cmd.Name
	if len(cmd.Args) > 0 && cmd.Name == "dbt" {
		key = cmd.Args[len(cmd.Args)-1]
	}

	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.mu.Unlock()

	if err := f.failures[key]; err != nil {
		res := toolexec.Result{ExitCode: 1, Stderr: "Database Error in model " + key}
		return res, &toolexec.ToolError{Command: cmd.String(), Result: res, Err: err}
	}
	if f.silent[key] {
		return toolexec.Result{Stdout: "Done."}, nil
	}
	return toolexec.Result{Stdout: fmt.Sprintf("1 of 1 OK created sql table model %s", key)}, nil
}

func (f *fakeRunner) called(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == key {
			return true
		}
	}
	return false
}

type fakeCounter struct{}

func (fakeCounter) CountRows(_ context.Context, table string) (int64, error) {
	if strings.HasSuffix(table, "dim_date") {
		return 0, errors.New("table not found")
	}
	return int64(len(table)), nil
}

type fakeNotifier struct {
	subject string
	body    string
	err     error
}

func (n *fakeNotifier) Send(_ context.Context, subject, body string) error {
	n.subject, n.body = subject, body
	return n.err
}

type fakeSLA struct {
	result *pipeline.Result
	err    error
	runIDs []string
}

func (f *fakeSLA) Run(_ context.Context, runID string, _ extract.Options) (*pipeline.Result, error) {
	f.runIDs = append(f.runIDs, runID)
	return f.result, f.err
}

func passingSLA() *fakeSLA {
	return &fakeSLA{result: &pipeline.Result{
		Analysis:    &domain.Analysis{},
		Sufficiency: &pipeline.SufficiencyResult{AllPass: true},
	}}
}

func newTestOrchestrator(t *testing.T, runner toolexec.Runner, sla SLARunner, opts Options) *Orchestrator {
	t.Helper()
	g, err := DefaultGraph(config.Default(), runner, sla)
	if err != nil {
		t.Fatalf("DefaultGraph: %v", err)
	}
	opts.Graph = g
	return New(opts).
		WithClock(func() time.Time { return fixedTime }).
		WithIDGenerator(func() string { return "run-1" })
}

func resultsByStage(s *domain.RunSummary) map[string]domain.StageResult {
	out := make(map[string]domain.StageResult, len(s.Stages))
	for _, r := range s.Stages {
		out[r.Stage] = r
	}
	return out
}

func TestNewGraph_Levels(t *testing.T) {
	noop := func(context.Context, string) domain.Outcome { return domain.Succeeded{} }
	g, err := NewGraph(
		Stage{Name: "a", Run: noop},
		Stage{Name: "d", Deps: []string{"b", "c"}, Run: noop},
		Stage{Name: "b", Deps: []string{"a"}, Run: noop},
		Stage{Name: "c", Deps: []string{"a"}, Run: noop},
		Stage{Name: "e", Run: noop},
	)
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}

	want := [][]string{{"a", "e"}, {"b", "c"}, {"d"}}
	got := g.Levels()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("levels: got %v, want %v", got, want)
	}
}

func TestNewGraph_Invalid(t *testing.T) {
	noop := func(context.Context, string) domain.Outcome { return domain.Succeeded{} }
	tests := []struct {
		name   string
		stages []Stage
	}{
		{"duplicate", []Stage{{Name: "a", Run: noop}, {Name: "a", Run: noop}}},
		{"unknown dep", []Stage{{Name: "a", Deps: []string{"x"}, Run: noop}}},
		{"cycle", []Stage{
			{Name: "a", Deps: []string{"c"}, Run: noop},
			{Name: "b", Deps: []string{"a"}, Run: noop},
			{Name: "c", Deps: []string{"b"}, Run: noop},
		}},
		{"no run func", []Stage{{Name: "a"}}},
		{"no name", []Stage{{Run: noop}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGraph(tt.stages...)
			if !errors.Is(err, ErrInvalidGraph) {
				t.Errorf("expected ErrInvalidGraph, got %v", err)
			}
		})
	}
}

func TestDefaultGraph(t *testing.T) {
	cfg := config.Default()
	g, err := DefaultGraph(cfg, newFakeRunner(), passingSLA())
	if err != nil {
		t.Fatalf("DefaultGraph: %v", err)
	}

	if n := len(g.Stages()); n != 27 {
		t.Errorf("expected 27 stages, got %d", n)
	}

	levels := g.Levels()
	if len(levels) != 7 {
		t.Fatalf("expected 7 levels, got %d: %v", len(levels), levels)
	}
	if fmt.Sprint(levels[0]) != "[elt_extract_load]" {
		t.Errorf("first level: %v", levels[0])
	}
	if fmt.Sprint(levels[4]) != "[fact_order_items]" {
		t.Errorf("fact level: %v", levels[4])
	}

	tests := []struct {
		stage   string
		table   string
		timeout time.Duration
	}{
		{StageExtractLoad, "", 900 * time.Second},
		{"stg_orders", "olist_data_staging.stg_orders", 300 * time.Second},
		{"stg_geolocations", "olist_data_staging.stg_geolocations", 300 * time.Second},
		{"fact_order_items", "olist_data_warehouse.fact_order_items", 600 * time.Second},
		{"seller_analytics_obt", "olist_analytics.seller_analytics_obt", 600 * time.Second},
		{StageSLAAnalysis, "olist_analytics.sla_aggregates", 600 * time.Second},
	}
	for _, tt := range tests {
		s, ok := g.Stage(tt.stage)
		if !ok {
			t.Errorf("missing stage %s", tt.stage)
			continue
		}
		if s.Table != tt.table || s.Timeout != tt.timeout {
			t.Errorf("%s: table %q timeout %s, want %q %s", tt.stage, s.Table, s.Timeout, tt.table, tt.timeout)
		}
	}

	geo, _ := g.Stage("stg_geolocations")
	if fmt.Sprint(geo.Deps) != "[elt_extract_load stg_sellers stg_customers]" {
		t.Errorf("stg_geolocations deps: %v", geo.Deps)
	}

	noSLA, err := DefaultGraph(cfg, newFakeRunner(), nil)
	if err != nil {
		t.Fatalf("DefaultGraph without analysis: %v", err)
	}
	if _, ok := noSLA.Stage(StageSLAAnalysis); ok {
		t.Error("analysis stage should be omitted without a runner")
	}
}

func TestOrchestrator_Run_AllSucceed(t *testing.T) {
	ctx := context.Background()
	runs := memory.NewRunStore()
	notifier := &fakeNotifier{}
	sla := passingSLA()

	orch := newTestOrchestrator(t, newFakeRunner(), sla, Options{
		RunStore:     runs,
		TableCounter: fakeCounter{},
		Notifier:     notifier,
		Concurrency:  3,
	})

	result, err := orch.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	s := result.Summary
	if s.Status != domain.RunStatusSuccess {
		t.Errorf("status: got %s, want SUCCESS", s.Status)
	}
	if s.Total != 27 || s.Succeeded != 27 || s.Failed != 0 || s.SuccessRatePct != 100 {
		t.Errorf("tally: %+v", s)
	}
	if len(sla.runIDs) != 1 || sla.runIDs[0] != "run-1" {
		t.Errorf("analysis run ids: %v", sla.runIDs)
	}

	// dim_date count fails and is left out
	if _, ok := s.TableCounts["olist_data_warehouse.dim_date"]; ok {
		t.Error("failed count should be missing")
	}
	if s.TableCounts["olist_data_staging.stg_orders"] == 0 {
		t.Error("expected stg_orders count")
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "dim_date") {
		t.Errorf("errors: %v", result.Errors)
	}

	stored, err := runs.GetByID(ctx, "run-1")
	if err != nil {
		t.Fatalf("run not persisted: %v", err)
	}
	if stored.Status != domain.RunStatusSuccess || len(stored.Stages) != 27 {
		t.Errorf("stored run: status %s, %d stages", stored.Status, len(stored.Stages))
	}

	if notifier.subject != "[Pipeline] SUCCESS - 2024-03-01" {
		t.Errorf("subject: %q", notifier.subject)
	}
	if !strings.Contains(notifier.body, "fact_order_items") {
		t.Error("notification body should list stages")
	}
}

func TestOrchestrator_Run_DependencyFailure(t *testing.T) {
	runner := newFakeRunner()
	runner.failures["stg_sellers"] = fmt.Errorf("%w: exit code 1", toolexec.ErrToolFailed)

	orch := newTestOrchestrator(t, runner, passingSLA(), Options{})
	result, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	s := result.Summary
	if s.Status != domain.RunStatusPartialSuccess {
		t.Errorf("status: got %s, want PARTIAL_SUCCESS", s.Status)
	}

	byStage := resultsByStage(s)
	failed, ok := byStage["stg_sellers"].Failure()
	if !ok || failed.Kind != domain.FailureToolError {
		t.Fatalf("stg_sellers: %+v", byStage["stg_sellers"].Outcome)
	}
	if !strings.Contains(failed.Stderr, "Database Error") {
		t.Errorf("stderr not kept: %q", failed.Stderr)
	}

	downstream := []string{
		"stg_geolocations", "dim_seller", "dim_geolocation", "fact_order_items",
		"revenue_analytics_obt", "seller_analytics_obt", StageSLAAnalysis,
	}
	for _, name := range downstream {
		f, ok := byStage[name].Failure()
		if !ok || f.Kind != domain.FailureDependencyFailure {
			t.Errorf("%s: expected dependency_failure, got %+v", name, byStage[name].Outcome)
		}
		if runner.called(name) {
			t.Errorf("%s should not have run", name)
		}
	}

	// Independent branches still run
	for _, name := range []string{"stg_orders", "stg_customers", "dim_customer", "dim_orders", "dim_date"} {
		if byStage[name].Status() != domain.StageStatusSuccess {
			t.Errorf("%s: got %s, want success", name, byStage[name].Status())
		}
	}

	// stg_sellers, stg_geolocations, dim_seller, dim_geolocation, fact, 7 OBTs, sla_analysis
	if s.Failed != 13 || s.Succeeded != 14 {
		t.Errorf("tally: failed %d succeeded %d", s.Failed, s.Succeeded)
	}
}

func TestOrchestrator_Run_ExtractLoadFails(t *testing.T) {
	runner := newFakeRunner()
	runner.failures["meltano"] = fmt.Errorf("%w after 15m0s", toolexec.ErrTimeout)

	orch := newTestOrchestrator(t, runner, passingSLA(), Options{})
	result, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	s := result.Summary
	if s.Status != domain.RunStatusFailure || s.Succeeded != 0 || s.SuccessRatePct != 0 {
		t.Errorf("summary: status %s succeeded %d rate %.1f", s.Status, s.Succeeded, s.SuccessRatePct)
	}
	f, _ := resultsByStage(s)[StageExtractLoad].Failure()
	if f.Kind != domain.FailureTimeout {
		t.Errorf("extract kind: got %s, want timeout", f.Kind)
	}
	if len(runner.calls) != 1 {
		t.Errorf("only the extract should run, got %v", runner.calls)
	}
}

func TestOrchestrator_Run_Warnings(t *testing.T) {
	runner := newFakeRunner()
	runner.silent["dim_payments"] = true
	sla := &fakeSLA{result: &pipeline.Result{
		Analysis: &domain.Analysis{},
		Sufficiency: &pipeline.SufficiencyResult{Checks: []pipeline.SufficiencyCheck{
			{Name: "Delivered items", Pass: false},
			{Name: "Geolocation coverage", Pass: true},
		}},
	}}

	orch := newTestOrchestrator(t, runner, sla, Options{})
	result, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	s := result.Summary
	if s.Status != domain.RunStatusSuccess || s.Warned != 2 || s.Succeeded != 27 {
		t.Errorf("summary: status %s warned %d succeeded %d", s.Status, s.Warned, s.Succeeded)
	}

	byStage := resultsByStage(s)
	w, ok := byStage["dim_payments"].Outcome.(domain.Warned)
	if !ok || w.Note != "could not confirm dim_payments creation" {
		t.Errorf("dim_payments: %+v", byStage["dim_payments"].Outcome)
	}
	w, ok = byStage[StageSLAAnalysis].Outcome.(domain.Warned)
	if !ok || w.Note != "sufficiency checks failed: Delivered items" {
		t.Errorf("sla_analysis: %+v", byStage[StageSLAAnalysis].Outcome)
	}
	// A warning does not block downstream stages
	if byStage["fact_order_items"].Status() != domain.StageStatusSuccess {
		t.Error("fact_order_items should run after a warned dependency")
	}
}

func TestOrchestrator_Run_AnalysisError(t *testing.T) {
	sla := &fakeSLA{err: fmt.Errorf("extract: %w", context.DeadlineExceeded)}

	orch := newTestOrchestrator(t, newFakeRunner(), sla, Options{})
	result, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	f, ok := resultsByStage(result.Summary)[StageSLAAnalysis].Failure()
	if !ok || f.Kind != domain.FailureTimeout || f.Table != "olist_analytics."+SLATable {
		t.Errorf("sla_analysis: %+v", f)
	}
	if result.Summary.Status != domain.RunStatusPartialSuccess {
		t.Errorf("status: %s", result.Summary.Status)
	}
}

func TestOrchestrator_Run_NotificationFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	runs := memory.NewRunStore()
	notifier := &fakeNotifier{err: errors.New("sendgrid returned 401")}

	orch := newTestOrchestrator(t, newFakeRunner(), passingSLA(), Options{RunStore: runs, Notifier: notifier})
	result, err := orch.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Summary.Status != domain.RunStatusSuccess {
		t.Errorf("status: %s", result.Summary.Status)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "notify") {
		t.Errorf("errors: %v", result.Errors)
	}
	if _, err := runs.GetByID(ctx, "run-1"); err != nil {
		t.Errorf("run should be persisted: %v", err)
	}
}

func TestOrchestrator_Run_DuplicateRunID(t *testing.T) {
	ctx := context.Background()
	runs := memory.NewRunStore()
	orch := newTestOrchestrator(t, newFakeRunner(), nil, Options{RunStore: runs})

	if _, err := orch.Run(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	result, err := orch.Run(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], storage.ErrDuplicateKey.Error()) {
		t.Errorf("errors: %v", result.Errors)
	}
}

func TestOrchestrator_Run_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	orch := newTestOrchestrator(t, newFakeRunner(), nil, Options{})
	result, err := orch.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result.Summary.Status != domain.RunStatusFailure {
		t.Errorf("status: %s", result.Summary.Status)
	}
}

func TestOrchestrator_Run_StagePanics(t *testing.T) {
	g := MustGraph(
		Stage{Name: "boom", Run: func(context.Context, string) domain.Outcome { panic("bad input") }},
		Stage{Name: "after", Deps: []string{"boom"}, Run: func(context.Context, string) domain.Outcome {
			return domain.Succeeded{}
		}},
	)

	result, err := New(Options{Graph: g}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	byStage := resultsByStage(result.Summary)
	if f, _ := byStage["boom"].Failure(); f.Kind != domain.FailureExecution || !strings.Contains(f.Reason, "bad input") {
		t.Errorf("boom: %+v", byStage["boom"].Outcome)
	}
	if f, _ := byStage["after"].Failure(); f.Kind != domain.FailureDependencyFailure {
		t.Errorf("after: %+v", byStage["after"].Outcome)
	}
}

func TestOrchestrator_Run_WithSLAPipeline(t *testing.T) {
	cfg := config.Default()
	cfg.Analysis.OutputDir = t.TempDir()

	opts := memory.DefaultFixtureOptions()
	opts.Orders = 1000
	src := memory.NewDeliverySource(memory.GenerateDeliveries(opts))
	ex := extract.New(src, cache.NewStore(cfg.Analysis.OutputDir), cfg.Analysis.ExtractSinceTime(), nil)
	analytics := memory.NewAnalyticsStore()
	sla := pipeline.NewSLAPipeline(ex, cfg.Analysis).
		WithClock(func() time.Time { return fixedTime }).
		WithAnalyticsStore(analytics)

	g, err := DefaultGraph(cfg, newFakeRunner(), sla)
	if err != nil {
		t.Fatalf("DefaultGraph: %v", err)
	}
	orch := New(Options{Graph: g}).WithIDGenerator(func() string { return "run-sla" })

	result, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	r := resultsByStage(result.Summary)[StageSLAAnalysis]
	if r.Status() == domain.StageStatusFailed {
		t.Fatalf("sla_analysis failed: %+v", r.Outcome)
	}
	var meta map[string]string
	switch o := r.Outcome.(type) {
	case domain.Succeeded:
		meta = o.Metadata
	case domain.Warned:
		meta = o.Metadata
	}
	if meta["rows"] == "" || meta["rows"] == "0" {
		t.Errorf("metadata: %v", meta)
	}
	if _, err := analytics.GetAggregates(context.Background(), "run-sla", domain.DimensionState); err != nil {
		t.Errorf("aggregates not published under the run id: %v", err)
	}
}

func TestSummarize(t *testing.T) {
	ok := domain.StageResult{Stage: "a", Outcome: domain.Succeeded{}}
	warn := domain.StageResult{Stage: "b", Outcome: domain.Warned{}}
	fail := domain.StageResult{Stage: "c", Outcome: domain.Failed{Kind: domain.FailureToolError}}

	tests := []struct {
		name    string
		results []domain.StageResult
		status  domain.RunStatus
		rate    float64
	}{
		{"empty", nil, domain.RunStatusSuccess, 0},
		{"all ok", []domain.StageResult{ok, warn}, domain.RunStatusSuccess, 100},
		{"partial", []domain.StageResult{ok, warn, fail, fail}, domain.RunStatusPartialSuccess, 50},
		{"all failed", []domain.StageResult{fail}, domain.RunStatusFailure, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Summarize("r", fixedTime, fixedTime.Add(time.Minute), tt.results)
			if s.Status != tt.status {
				t.Errorf("status: got %s, want %s", s.Status, tt.status)
			}
			if s.SuccessRatePct != tt.rate {
				t.Errorf("rate: got %.1f, want %.1f", s.SuccessRatePct, tt.rate)
			}
			if s.Duration() != time.Minute {
				t.Errorf("duration: %s", s.Duration())
			}
		})
	}
}
