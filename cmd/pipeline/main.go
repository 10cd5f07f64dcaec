// Package main runs the full stage graph once.
// Executes: extract-load → staging → warehouse → analytics + SLA analysis → summary email
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"delivery-sla-lab/internal/app"
	"delivery-sla-lab/internal/config"
	"delivery-sla-lab/internal/domain"
	"delivery-sla-lab/internal/orchestrator"
	"delivery-sla-lab/internal/toolexec"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to YAML config (defaults are used when empty)")
	useFixtures := flag.Bool("use-fixtures", false, "Analyse seeded in-memory deliveries instead of the warehouse")
	skipAnalysis := flag.Bool("skip-analysis", false, "Run only the ELT and transform stages")
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

	// Cancel running stages on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, cleanup, err := app.OpenStores(ctx, cfg, *useFixtures, logger)
	if err != nil {
		logger.Fatal("open stores", zap.Error(err))
	}
	defer cleanup()

	var sla orchestrator.SLARunner
	if !*skipAnalysis {
		sla = app.NewSLAPipeline(cfg, stores, logger)
	}
	graph, err := orchestrator.DefaultGraph(cfg, toolexec.NewExecRunner(), sla)
	if err != nil {
		logger.Fatal("build stage graph", zap.Error(err))
	}

	orch := orchestrator.New(orchestrator.Options{
		Graph:        graph,
		RunStore:     stores.Runs,
		TableCounter: stores.Counter,
		Notifier:     app.NewNotifier(cfg.Notify, logger),
		Concurrency:  cfg.Tools.Concurrency,
		Logger:       logger,
		Verbose:      *verbose,
	})

	result, err := orch.Run(ctx)
	if err != nil {
		logger.Error("pipeline interrupted", zap.Error(err))
	}
	if result == nil {
		os.Exit(1)
	}

	s := result.Summary
	fmt.Printf("Pipeline %s: %s\n", s.RunID, s.Status)
	fmt.Printf("  Stages: %d succeeded (%d warned), %d failed of %d (%.1f%%)\n",
		s.Succeeded, s.Warned, s.Failed, s.Total, s.SuccessRatePct)
	for _, st := range s.Stages {
		if f, ok := st.Failure(); ok {
			fmt.Printf("    - %s: %s: %s\n", st.Stage, f.Kind, f.Reason)
		}
	}
	if len(result.Errors) > 0 {
		fmt.Printf("  Errors: %d\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}

	if s.Status != domain.RunStatusSuccess {
		os.Exit(1)
	}
}
