// Package main runs the SLA analysis once and writes the report files.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"delivery-sla-lab/internal/app"
	"delivery-sla-lab/internal/binning"
	"delivery-sla-lab/internal/cache"
	"delivery-sla-lab/internal/config"
	"delivery-sla-lab/internal/domain"
	"delivery-sla-lab/internal/extract"
	"delivery-sla-lab/internal/verification"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to YAML config (defaults are used when empty)")
	outputDir := flag.String("output-dir", "", "Output directory for reports and the cache (overrides config)")
	limit := flag.Int("limit", 0, "Extract at most this many rows (bypasses the cache)")
	noCache := flag.Bool("no-cache", false, "Force a fresh extraction")
	binningFlag := flag.String("binning", "", "Binning strategy: fixed or kmeans (overrides config)")
	useFixtures := flag.Bool("use-fixtures", false, "Use seeded in-memory deliveries instead of the warehouse")
	noPublish := flag.Bool("no-publish", false, "Do not write aggregates to the analytics store")
	verifyCache := flag.Bool("verify-cache", false, "Compare the cached snapshot with a fresh extraction and exit")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *outputDir != "" {
		cfg.Analysis.OutputDir = *outputDir
	}
	if *binningFlag != "" {
		cfg.Analysis.Binning = *binningFlag
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

	if *verifyCache {
		os.Exit(runVerify(ctx, cfg, stores, logger))
	}

	p := app.NewSLAPipeline(cfg, stores, logger).WithBinning(binning.Strategy(cfg.Analysis.Binning))
	if *noPublish {
		p.WithAnalyticsStore(nil)
	}

	runID := uuid.NewString()
	res, err := p.Run(ctx, runID, extract.Options{Limit: *limit, NoCache: *noCache})
	if err != nil {
		logger.Fatal("analysis failed", zap.String("run_id", runID), zap.Error(err))
	}

	fmt.Printf("SLA analysis %s completed in %s\n", runID, res.Duration.Round(time.Millisecond))
	fmt.Printf("  Items: %d (cache %s, %d filtered)\n", res.Analysis.Key.TotalItems, res.Extract.Cache, res.Filtered)
	fmt.Printf("  Late rate: %.2f%%\n", res.Analysis.Key.LateRatePct)
	if !res.Sufficiency.AllPass {
		fmt.Println("  Warning: data sufficiency checks failed, see the Data Quality section")
	}
	if res.Files.Markdown != "" {
		fmt.Printf("  - %s\n", res.Files.Markdown)
		fmt.Printf("  - %s\n", res.Files.Workbook)
		for _, f := range res.Files.CSV {
			fmt.Printf("  - %s\n", f)
		}
	}
	if res.PublishedRows > 0 {
		fmt.Printf("  Published %d aggregate rows\n", res.PublishedRows)
	}
}

// runVerify compares the cache file with a fresh extraction. Returns the exit code.
func runVerify(ctx context.Context, cfg *config.Config, stores *app.Stores, logger *zap.Logger) int {
	store := cache.NewStore(cfg.Analysis.OutputDir)
	if !store.Exists() {
		fmt.Printf("No cache at %s, nothing to verify\n", store.Path())
		return 1
	}
	fresh := extract.New(stores.Source, nil, cfg.Analysis.ExtractSinceTime(), logger)

	report, err := verification.Verify(ctx,
		func(context.Context) (*domain.Dataset, error) { return store.Load() },
		func(ctx context.Context) (*domain.Dataset, error) {
			res, err := fresh.Extract(ctx, extract.Options{NoCache: true})
			if err != nil {
				return nil, err
			}
			return res.Dataset, nil
		},
	)
	if err != nil {
		logger.Error("cache verification failed", zap.Error(err))
		return 1
	}

	fmt.Printf("Cache %s: %d cached rows, %d fresh rows, %d matched\n",
		store.Path(), report.CachedRows, report.FreshRows, report.MatchedRows)
	if report.Match() {
		fmt.Println("  OK: cache matches a fresh extraction")
		return 0
	}

	fmt.Printf("  Divergent: %d, missing: %d, extra: %d\n",
		report.DivergentRows, len(report.MissingRows), len(report.ExtraRows))
	for _, r := range report.Results {
		for _, d := range r.Divergences {
			fmt.Printf("    %s %s: cached=%v fresh=%v\n", r.Key, d.Field, d.Expected, d.Actual)
		}
	}
	return 2
}
