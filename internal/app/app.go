// Package app wires stores, loggers and notifiers from config for the commands.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"delivery-sla-lab/internal/cache"
	"delivery-sla-lab/internal/config"
	"delivery-sla-lab/internal/extract"
	"delivery-sla-lab/internal/notify"
	"delivery-sla-lab/internal/pipeline"
	"delivery-sla-lab/internal/storage"
	"delivery-sla-lab/internal/storage/memory"
	"delivery-sla-lab/internal/storage/migrations"
	pgstore "delivery-sla-lab/internal/storage/postgres"
	chstore "delivery-sla-lab/internal/storage/clickhouse"
)

// Stores holds the storage implementations of one process.
type Stores struct {
	Source    storage.DeliverySource
	Analytics storage.AnalyticsStore
	Counter   storage.TableCounter // nil with fixtures
	Runs      storage.RunStore
}

// NewLogger builds a production logger, or a development one when verbose,
// and installs it as the global logger.
func NewLogger(verbose bool) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// OpenStores connects the warehouse and the run ledger. With useFixtures the
// warehouse is replaced by seeded in-memory data. An empty ledger DSN keeps
// runs in memory.
func OpenStores(ctx context.Context, cfg *config.Config, useFixtures bool, logger *zap.Logger) (*Stores, func(), error) {
	stores := &Stores{}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if useFixtures {
		rows := memory.GenerateDeliveries(memory.DefaultFixtureOptions())
		stores.Source = memory.NewDeliverySource(rows)
		stores.Analytics = memory.NewAnalyticsStore()
		logger.Info("using fixture deliveries", zap.Int("rows", len(rows)))
	} else {
		if cfg.Warehouse.DSN == "" {
			return nil, nil, fmt.Errorf("%w: warehouse dsn is required (set CLICKHOUSE_DSN or use fixtures)", config.ErrInvalidConfig)
		}
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Warehouse.DSN, cfg.Warehouse.AnalyticsDataset, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		closers = append(closers, func() { conn.Close() })

		stores.Source = chstore.NewDeliverySource(conn, cfg.Warehouse.WarehouseDataset)
		analytics, err := chstore.NewAnalyticsStore(conn, cfg.Warehouse.AnalyticsDataset)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		stores.Analytics = analytics
		stores.Counter = chstore.NewTableCounter(conn)
	}

	if cfg.Ledger.DSN == "" {
		stores.Runs = memory.NewRunStore()
		return stores, cleanup, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.Ledger.DSN)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, pool.Close)
	if err := migrations.RunPostgresMigrations(ctx, pool, logger); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}
	stores.Runs = pgstore.NewRunStore(pool)

	return stores, cleanup, nil
}

// NewNotifier returns a SendGrid client when email is configured and a
// log-only notifier otherwise.
func NewNotifier(cfg config.Notify, logger *zap.Logger) notify.Notifier {
	if !cfg.Enabled() {
		logger.Warn("email notification not configured, logging summaries instead")
		return notify.NewLogNotifier(logger)
	}

	var opts []notify.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, notify.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, notify.WithTimeout(cfg.Timeout))
	}
	return notify.NewSendGridClient(cfg.APIKey, cfg.Sender, cfg.Recipients, opts...)
}

// NewSLAPipeline builds the analysis pipeline over the given stores.
func NewSLAPipeline(cfg *config.Config, stores *Stores, logger *zap.Logger) *pipeline.SLAPipeline {
	var cacheStore *cache.Store
	if cfg.Analysis.CacheEnabled {
		cacheStore = cache.NewStore(cfg.Analysis.OutputDir)
	}
	ex := extract.New(stores.Source, cacheStore, cfg.Analysis.ExtractSinceTime(), logger)

	p := pipeline.NewSLAPipeline(ex, cfg.Analysis).
		WithLogger(logger).
		WithAnalyticsStore(stores.Analytics)
	if cfg.Analysis.MinItems > 0 {
		p = p.WithSufficiencyChecker(pipeline.NewSufficiencyChecker().WithMinItems(cfg.Analysis.MinItems))
	}
	return p
}
