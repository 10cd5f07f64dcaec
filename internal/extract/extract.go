// Package extract loads the enriched delivery table, from the cache when allowed
// and from the warehouse otherwise.
//
// A fresh extraction runs fetch, timestamp reconciliation, derived metrics and
// fixed-bin categorization before the snapshot is cached, so a cache hit yields
// exactly what a full extraction would.
package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"delivery-sla-lab/internal/binning"
	"delivery-sla-lab/internal/cache"
	"delivery-sla-lab/internal/domain"
	"delivery-sla-lab/internal/features"
	"delivery-sla-lab/internal/observability"
	"delivery-sla-lab/internal/reconcile"
	"delivery-sla-lab/internal/storage"
)

// Cache lookup results, used as metric labels.
const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheBypass = "bypass"
)

// Options controls one extraction.
type Options struct {
	Limit   int  // 0 means all rows; a limit bypasses the cache entirely
	NoCache bool // force a fresh extraction and skip the cache write
}

// Result is an extracted dataset plus what happened on the way.
type Result struct {
	Dataset   *domain.Dataset
	Cache     string // CacheHit, CacheMiss or CacheBypass
	Reconcile reconcile.Report
	Duration  time.Duration
}

// Extractor produces the enriched delivery table.
type Extractor struct {
	source storage.DeliverySource
	cache  *cache.Store // nil disables caching
	since  time.Time
	logger *zap.Logger
}

// New creates an Extractor. cacheStore may be nil.
func New(source storage.DeliverySource, cacheStore *cache.Store, since time.Time, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		source: source,
		cache:  cacheStore,
		since:  since.UTC(),
		logger: logger,
	}
}

// Extract returns the enriched table. The cache is read only when enabled and
// no limit is set, and written only after a full extraction. Cache read and
// write failures other than a missing file are returned as errors.
func (e *Extractor) Extract(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	if opts.Limit < 0 {
		return nil, fmt.Errorf("%w: negative limit %d", storage.ErrInvalidInput, opts.Limit)
	}

	useCache := e.cache != nil && !opts.NoCache && opts.Limit == 0
	result := &Result{Cache: CacheBypass}

	if useCache {
		ds, err := e.cache.Load()
		switch {
		case err == nil:
			result.Dataset = ds
			result.Cache = CacheHit
			result.Duration = time.Since(start)
			e.logger.Info("loaded delivery table from cache",
				zap.String("path", e.cache.Path()),
				zap.Int("rows", ds.Len()))
			observability.RecordExtract("cache", CacheHit, ds.Len())
			return result, nil
		case errors.Is(err, cache.ErrCacheMiss):
			result.Cache = CacheMiss
		case errors.Is(err, cache.ErrVersionMismatch):
			e.logger.Warn("cache written by another format version, rebuilding", zap.Error(err))
			result.Cache = CacheMiss
		default:
			return nil, fmt.Errorf("read cache: %w", err)
		}
	}

	fetchStart := time.Now()
	records, err := e.source.FetchDeliveries(ctx, storage.FetchQuery{Since: e.since, Limit: opts.Limit})
	observability.RecordDBQuery("warehouse", "fetch_deliveries", time.Since(fetchStart).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("fetch deliveries: %w", err)
	}
	e.logger.Info("fetched deliveries",
		zap.Int("rows", len(records)),
		zap.Int("limit", opts.Limit),
		zap.Duration("duration", time.Since(fetchStart)))

	ds := &domain.Dataset{Records: records}
	result.Dataset = ds
	result.Reconcile = Enrich(ds)

	rep := result.Reconcile
	observability.RecordReconcile(rep.CarrierClamped, rep.ApprovalClamped, rep.DeliveredBeforePurchase)
	e.logger.Info("reconciled timestamps",
		zap.Int("carrier_clamped", rep.CarrierClamped),
		zap.Int("approval_clamped", rep.ApprovalClamped),
		zap.Int("delivered_before_purchase", rep.DeliveredBeforePurchase))
	if rep.DeliveredBeforePurchase > 0 {
		e.logger.Warn("rows delivered before purchase left uncorrected",
			zap.Int("rows", rep.DeliveredBeforePurchase))
	}

	if useCache {
		if err := e.cache.Save(ds); err != nil {
			return nil, fmt.Errorf("write cache: %w", err)
		}
		e.logger.Info("cached delivery table", zap.String("path", e.cache.Path()))
	}

	observability.RecordExtract("warehouse", result.Cache, ds.Len())
	result.Duration = time.Since(start)
	return result, nil
}

// Enrich runs reconciliation, derived metrics and fixed-bin categorization in place.
func Enrich(ds *domain.Dataset) reconcile.Report {
	rep := reconcile.Reconcile(ds)
	features.Compute(ds)
	binning.Categorize(ds, binning.Binners{
		Price:    binning.NewFixedPriceBinner(),
		Distance: binning.NewFixedDistanceBinner(),
	})
	return rep
}

// ApplyGlobalFilter keeps delivered rows purchased at or after epoch and
// returns how many rows were removed.
func ApplyGlobalFilter(ds *domain.Dataset, epoch time.Time) int {
	removed := ds.Filter(func(r *domain.OrderItemRecord) bool {
		return r.OrderStatus == domain.OrderStatusDelivered &&
			r.PurchaseAt != nil && !r.PurchaseAt.Before(epoch)
	})
	observability.RecordFiltered(removed)
	return removed
}
