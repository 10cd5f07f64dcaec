// Package pipeline wires extraction, analysis and reporting into one SLA run.
package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"delivery-sla-lab/internal/binning"
	"delivery-sla-lab/internal/config"
	"delivery-sla-lab/internal/domain"
	"delivery-sla-lab/internal/extract"
	"delivery-sla-lab/internal/idhash"
	"delivery-sla-lab/internal/insights"
	"delivery-sla-lab/internal/metrics"
	"delivery-sla-lab/internal/observability"
	"delivery-sla-lab/internal/reporting"
	"delivery-sla-lab/internal/storage"
)

// SLAPipeline runs extract, global filter, binning, aggregation, insights,
// report generation and optional warehouse publication.
type SLAPipeline struct {
	extractor   *extract.Extractor
	cfg         config.Analysis
	binning     binning.Strategy
	outputDir   string // empty skips report files
	analytics   storage.AnalyticsStore
	sufficiency *SufficiencyChecker
	reportGen   *reporting.Generator
	clock       func() time.Time
	logger      *zap.Logger
}

// Result holds everything one run produced.
type Result struct {
	RunID         string
	Extract       *extract.Result
	Filtered      int
	Sufficiency   *SufficiencyResult
	Analysis      *domain.Analysis
	Insights      []domain.Insight
	Report        *reporting.Report
	Files         reporting.Files
	PublishedRows int
	DataVersion   string
	Duration      time.Duration
}

// NewSLAPipeline creates a pipeline writing reports to cfg.OutputDir.
func NewSLAPipeline(extractor *extract.Extractor, cfg config.Analysis) *SLAPipeline {
	return &SLAPipeline{
		extractor:   extractor,
		cfg:         cfg,
		binning:     binning.Strategy(cfg.Binning),
		outputDir:   cfg.OutputDir,
		sufficiency: NewSufficiencyChecker(),
		reportGen:   reporting.NewGenerator(),
		clock:       func() time.Time { return time.Now().UTC() },
		logger:      zap.NewNop(),
	}
}

// WithClock sets a custom clock function for deterministic output.
func (p *SLAPipeline) WithClock(clock func() time.Time) *SLAPipeline {
	p.clock = clock
	p.reportGen = p.reportGen.WithClock(clock)
	return p
}

// WithLogger sets the logger.
func (p *SLAPipeline) WithLogger(logger *zap.Logger) *SLAPipeline {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// WithAnalyticsStore enables publication of aggregate tables.
func (p *SLAPipeline) WithAnalyticsStore(store storage.AnalyticsStore) *SLAPipeline {
	p.analytics = store
	return p
}

// WithBinning overrides the configured binning strategy.
func (p *SLAPipeline) WithBinning(s binning.Strategy) *SLAPipeline {
	p.binning = s
	return p
}

// WithOutputDir overrides the report directory. Empty disables report files.
func (p *SLAPipeline) WithOutputDir(dir string) *SLAPipeline {
	p.outputDir = dir
	return p
}

// WithSufficiencyChecker replaces the default checker.
func (p *SLAPipeline) WithSufficiencyChecker(c *SufficiencyChecker) *SLAPipeline {
	p.sufficiency = c
	return p
}

// Run executes one analysis. Extraction, report write and publication errors
// are returned; thin data only fails sufficiency checks.
func (p *SLAPipeline) Run(ctx context.Context, runID string, opts extract.Options) (*Result, error) {
	start := time.Now()
	log := p.logger.With(zap.String("run_id", runID))

	binners, err := binning.NewBinners(p.binning, p.kmeansConfig())
	if err != nil {
		return nil, err
	}

	// 1. Extract (cache-aware), already reconciled and enriched
	ext, err := p.extractor.Extract(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	ds := ext.Dataset
	log.Info("extracted delivery table",
		zap.Int("rows", ds.Len()),
		zap.String("cache", ext.Cache),
		zap.Duration("duration", ext.Duration))

	// 2. Global filter
	filtered := extract.ApplyGlobalFilter(ds, p.cfg.GlobalFilterTime())
	log.Info("applied global filter",
		zap.String("since", p.cfg.GlobalFilterSince),
		zap.Int("removed", filtered),
		zap.Int("rows", ds.Len()))

	// 3. Re-bin on the filtered population unless bins are the fixed ones from extraction
	if p.binning != binning.StrategyFixed && p.binning != "" {
		binning.Categorize(ds, binners)
		log.Info("re-binned price and distance", zap.String("strategy", string(p.binning)))
	}

	// 4. Sufficiency
	suff := p.sufficiency.Check(ds)
	for _, c := range suff.Checks {
		if !c.Pass {
			log.Warn("sufficiency check failed",
				zap.String("check", c.Name),
				zap.String("threshold", c.Threshold),
				zap.String("actual", c.Actual))
		}
	}

	// 5. Aggregate and derive insights
	analysisStart := time.Now()
	analysis := metrics.NewAggregator(p.cfg.MinSupportFor).Analyze(ds)
	found := insights.NewGenerator().Generate(analysis)
	observability.RecordAnalysis(time.Since(analysisStart).Seconds(), analysis.Key.LateRatePct,
		droppedByDimension(analysis), p.clock().Unix())
	log.Info("analysis complete",
		zap.Int("items", analysis.Key.TotalItems),
		zap.Float64("late_rate_pct", analysis.Key.LateRatePct))

	result := &Result{
		RunID:       runID,
		Extract:     ext,
		Filtered:    filtered,
		Sufficiency: suff,
		Analysis:    analysis,
		Insights:    found,
		DataVersion: idhash.ComputeDatasetVersion(ds),
	}

	// 6. Reports
	result.Report = p.reportGen.Generate(reporting.Input{
		RunID:     runID,
		Binning:   string(p.binning),
		Dataset:   ds,
		Analysis:  analysis,
		Insights:  found,
		Reconcile: ext.Reconcile,
		Cache:     ext.Cache,
		Filtered:  filtered,
		Checks:    convertToReportRows(suff),
	})
	if p.outputDir != "" {
		files, err := reporting.WriteAll(p.outputDir, result.Report)
		if err != nil {
			return nil, fmt.Errorf("write reports: %w", err)
		}
		result.Files = files
		log.Info("wrote reports", zap.String("markdown", files.Markdown), zap.Int("csv", len(files.CSV)))
	}

	// 7. Publish aggregates
	if p.analytics != nil {
		rows, err := reporting.Publish(ctx, p.analytics, runID, p.clock(), analysis)
		if err != nil {
			return nil, err
		}
		result.PublishedRows = rows
		log.Info("published aggregates", zap.Int("rows", rows))
	}

	result.Duration = time.Since(start)
	return result, nil
}

// Metadata summarizes the result for a stage record.
func (r *Result) Metadata() map[string]string {
	m := map[string]string{
		"rows":           strconv.Itoa(r.Analysis.Key.TotalItems),
		"late_rate_pct":  strconv.FormatFloat(r.Analysis.Key.LateRatePct, 'f', 2, 64),
		"filtered":       strconv.Itoa(r.Filtered),
		"data_version":   r.DataVersion,
		"published_rows": strconv.Itoa(r.PublishedRows),
	}
	if r.Extract != nil {
		m["cache"] = r.Extract.Cache
	}
	if r.Files.Markdown != "" {
		m["report"] = r.Files.Markdown
	}
	return m
}

func (p *SLAPipeline) kmeansConfig() binning.KMeansConfig {
	k := p.cfg.KMeans
	if k.K == 0 {
		return binning.DefaultKMeansConfig()
	}
	return binning.KMeansConfig{K: k.K, Seed: k.Seed, NInit: k.NInit, MaxIter: k.MaxIter}
}

func droppedByDimension(a *domain.Analysis) map[string]int {
	out := make(map[string]int)
	for _, t := range a.Tables() {
		if t != nil && t.Dropped > 0 {
			out[string(t.Dimension)] = t.Dropped
		}
	}
	return out
}
