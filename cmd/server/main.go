// Package main provides the long-running service:
// - Scheduler: the full stage graph once a day at the configured UTC time
// - HTTP: /metrics, /healthz and /runs/latest
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"delivery-sla-lab/internal/app"
	"delivery-sla-lab/internal/config"
	"delivery-sla-lab/internal/domain"
	"delivery-sla-lab/internal/observability"
	"delivery-sla-lab/internal/orchestrator"
	"delivery-sla-lab/internal/storage"
	"delivery-sla-lab/internal/toolexec"
)

// Server holds the scheduler state.
type Server struct {
	orch     *orchestrator.Orchestrator
	runs     storage.RunStore
	schedule config.Schedule
	logger   *zap.Logger
	now      func() time.Time

	mu         sync.Mutex
	running    bool
	started    time.Time
	lastRun    time.Time
	runsTotal  int
	nextRunUTC time.Time
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config (defaults are used when empty)")
	useFixtures := flag.Bool("use-fixtures", false, "Analyse seeded in-memory deliveries instead of the warehouse")
	runNow := flag.Bool("run-now", false, "Run the pipeline once at startup")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := app.NewLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, cleanup, err := app.OpenStores(ctx, cfg, *useFixtures, logger)
	if err != nil {
		logger.Fatal("open stores", zap.Error(err))
	}
	defer cleanup()

	graph, err := orchestrator.DefaultGraph(cfg, toolexec.NewExecRunner(), app.NewSLAPipeline(cfg, stores, logger))
	if err != nil {
		logger.Fatal("build stage graph", zap.Error(err))
	}

	server := &Server{
		orch: orchestrator.New(orchestrator.Options{
			Graph:        graph,
			RunStore:     stores.Runs,
			TableCounter: stores.Counter,
			Notifier:     app.NewNotifier(cfg.Notify, logger),
			Concurrency:  cfg.Tools.Concurrency,
			Logger:       logger,
			Verbose:      *verbose,
		}),
		runs:     stores.Runs,
		schedule: cfg.Schedule,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		started:  time.Now().UTC(),
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	if *runNow {
		server.runPipeline(ctx)
	}
	err = server.runScheduler(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// nextRun returns the first hour:minute UTC strictly after now.
func nextRun(now time.Time, hour, minute int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// runScheduler fires the pipeline daily until ctx is done. With Skip set the
// schedule is kept but never fires.
func (s *Server) runScheduler(ctx context.Context) error {
	hour, minute := s.schedule.DailyAtUTC()

	for {
		next := nextRun(s.now(), hour, minute)
		s.mu.Lock()
		s.nextRunUTC = next
		s.mu.Unlock()
		s.logger.Info("next scheduled run", zap.Time("at", next), zap.Bool("skip", s.schedule.Skip))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if s.schedule.Skip {
			s.logger.Info("scheduled run skipped")
			continue
		}
		s.runPipeline(ctx)
	}
}

// runPipeline executes one run unless one is already in progress.
func (s *Server) runPipeline(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("pipeline already running, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.lastRun = s.now()
		s.runsTotal++
		s.mu.Unlock()
	}()

	result, err := s.orch.Run(ctx)
	if err != nil {
		s.logger.Error("pipeline run interrupted", zap.Error(err))
		return
	}
	for _, e := range result.Errors {
		s.logger.Warn("pipeline run error", zap.String("run_id", result.Summary.RunID), zap.String("error", e))
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/runs/latest", s.handleLatestRun)
	return mux
}

// HealthResponse is the JSON response for /healthz.
type HealthResponse struct {
	Status    string    `json:"status"`
	Uptime    string    `json:"uptime"`
	Running   bool      `json:"running"`
	RunsTotal int       `json:"runs_total"`
	LastRun   time.Time `json:"last_run,omitempty"`
	NextRun   time.Time `json:"next_run,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	resp := HealthResponse{
		Status:    "ok",
		Uptime:    s.now().Sub(s.started).Round(time.Second).String(),
		Running:   s.running,
		RunsTotal: s.runsTotal,
		LastRun:   s.lastRun,
		NextRun:   s.nextRunUTC,
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// RunResponse is the JSON form of a run summary.
type RunResponse struct {
	RunID          string           `json:"run_id"`
	Status         string           `json:"status"`
	StartedAt      time.Time        `json:"started_at"`
	FinishedAt     time.Time        `json:"finished_at"`
	Total          int              `json:"total"`
	Succeeded      int              `json:"succeeded"`
	Warned         int              `json:"warned"`
	Failed         int              `json:"failed"`
	SuccessRatePct float64          `json:"success_rate_pct"`
	Stages         []StageResponse  `json:"stages"`
	TableCounts    map[string]int64 `json:"table_counts"`
}

// StageResponse is one stage result.
type StageResponse struct {
	Stage      string            `json:"stage"`
	Status     string            `json:"status"`
	Table      string            `json:"table_name,omitempty"`
	DurationMs int64             `json:"duration_ms"`
	Note       string            `json:"note,omitempty"`
	Error      string            `json:"error,omitempty"`
	Failure    string            `json:"failure_type,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.GetLatest(r.Context())
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no runs yet"})
		return
	}
	if err != nil {
		s.logger.Error("load latest run", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "load latest run"})
		return
	}
	writeJSON(w, http.StatusOK, toRunResponse(run))
}

func toRunResponse(run *domain.RunSummary) RunResponse {
	resp := RunResponse{
		RunID:          run.RunID,
		Status:         string(run.Status),
		StartedAt:      run.StartedAt,
		FinishedAt:     run.FinishedAt,
		Total:          run.Total,
		Succeeded:      run.Succeeded,
		Warned:         run.Warned,
		Failed:         run.Failed,
		SuccessRatePct: run.SuccessRatePct,
		TableCounts:    run.TableCounts,
	}
	for _, st := range run.Stages {
		sr := StageResponse{
			Stage:      st.Stage,
			Status:     string(st.Status()),
			DurationMs: st.Duration.Milliseconds(),
		}
		switch o := st.Outcome.(type) {
		case domain.Succeeded:
			sr.Table, sr.Metadata = o.Table, o.Metadata
		case domain.Warned:
			sr.Table, sr.Note, sr.Metadata = o.Table, o.Note, o.Metadata
		case domain.Failed:
			sr.Table, sr.Error, sr.Failure = o.Table, o.Reason, string(o.Kind)
		}
		resp.Stages = append(resp.Stages, sr)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
