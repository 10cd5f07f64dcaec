// Package verification checks that a cached delivery snapshot matches a fresh
// extraction row for row.
package verification

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"delivery-sla-lab/internal/domain"
	"delivery-sla-lab/internal/idhash"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-7

// maxReported bounds the per-row results kept in a report.
const maxReported = 50

// FieldDivergence represents a mismatch between cached and fresh values.
type FieldDivergence struct {
	Field    string // field name
	Expected any    // cached value
	Actual   any    // fresh value
}

// RowResult lists the divergences of one row.
type RowResult struct {
	Key         string // order_id|order_item_id
	Divergences []FieldDivergence
}

// Report summarizes a dataset comparison.
type Report struct {
	CachedRows    int
	FreshRows     int
	MatchedRows   int
	DivergentRows int
	MissingRows   []string // in cache, not in fresh extraction
	ExtraRows     []string // in fresh extraction, not in cache
	Results       []RowResult
}

// Match reports whether both datasets hold the same rows with equal values.
func (r *Report) Match() bool {
	return r.DivergentRows == 0 && len(r.MissingRows) == 0 && len(r.ExtraRows) == 0
}

// Loader produces a dataset.
type Loader func(ctx context.Context) (*domain.Dataset, error)

// Verify loads both datasets and compares them.
func Verify(ctx context.Context, cached, fresh Loader) (*Report, error) {
	c, err := cached(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cached: %w", err)
	}
	f, err := fresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("load fresh: %w", err)
	}
	return CompareDatasets(c, f), nil
}

// CompareDatasets matches rows by order_id and order_item_id and compares
// every field. Row order is ignored.
func CompareDatasets(cached, fresh *domain.Dataset) *Report {
	report := &Report{CachedRows: cached.Len(), FreshRows: fresh.Len()}

	freshByKey := make(map[string]*domain.OrderItemRecord, fresh.Len())
	if fresh != nil {
		for i := range fresh.Records {
			r := &fresh.Records[i]
			freshByKey[idhash.ComputeRecordKey(r.OrderID, r.OrderItemID)] = r
		}
	}

	seen := make(map[string]bool, cached.Len())
	if cached != nil {
		for i := range cached.Records {
			c := &cached.Records[i]
			key := idhash.ComputeRecordKey(c.OrderID, c.OrderItemID)
			seen[key] = true

			f, ok := freshByKey[key]
			if !ok {
				report.MissingRows = append(report.MissingRows, key)
				continue
			}
			divs := CompareRecords(c, f)
			if len(divs) == 0 {
				report.MatchedRows++
				continue
			}
			report.DivergentRows++
			if len(report.Results) < maxReported {
				report.Results = append(report.Results, RowResult{Key: key, Divergences: divs})
			}
		}
	}

	for key := range freshByKey {
		if !seen[key] {
			report.ExtraRows = append(report.ExtraRows, key)
		}
	}

	// Sort for deterministic output
	sort.Strings(report.MissingRows)
	sort.Strings(report.ExtraRows)
	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].Key < report.Results[j].Key
	})
	return report
}

// CompareRecords compares two records and returns divergences.
// Uses FloatTolerance for float64 comparisons.
func CompareRecords(cached, fresh *domain.OrderItemRecord) []FieldDivergence {
	var d diff

	d.cmpStr("ProductID", cached.ProductID, fresh.ProductID)
	d.cmpStr("SellerID", cached.SellerID, fresh.SellerID)
	d.cmpStr("CustomerID", cached.CustomerID, fresh.CustomerID)
	d.cmpStr("OrderStatus", cached.OrderStatus, fresh.OrderStatus)

	// Timestamps
	d.cmpTime("PurchaseAt", cached.PurchaseAt, fresh.PurchaseAt)
	d.cmpTime("ApprovedAt", cached.ApprovedAt, fresh.ApprovedAt)
	d.cmpTime("CarrierAt", cached.CarrierAt, fresh.CarrierAt)
	d.cmpTime("DeliveredAt", cached.DeliveredAt, fresh.DeliveredAt)
	d.cmpTime("EstimatedAt", cached.EstimatedAt, fresh.EstimatedAt)

	// Durations
	d.cmpInt("ApprovalDays", cached.ApprovalDays, fresh.ApprovalDays)
	d.cmpInt("HandlingDays", cached.HandlingDays, fresh.HandlingDays)
	d.cmpInt("InTransitDays", cached.InTransitDays, fresh.InTransitDays)
	d.cmpInt("TotalDeliveryDays", cached.TotalDeliveryDays, fresh.TotalDeliveryDays)
	d.cmpInt("EDDHorizonDays", cached.EDDHorizonDays, fresh.EDDHorizonDays)
	d.cmpInt("EDDDeltaDays", cached.EDDDeltaDays, fresh.EDDDeltaDays)
	if cached.LateToEDD != fresh.LateToEDD {
		d.add("LateToEDD", cached.LateToEDD, fresh.LateToEDD)
	}
	if cached.EarlyDays != fresh.EarlyDays {
		d.add("EarlyDays", cached.EarlyDays, fresh.EarlyDays)
	}
	if cached.DaysLateToEDD != fresh.DaysLateToEDD {
		d.add("DaysLateToEDD", cached.DaysLateToEDD, fresh.DaysLateToEDD)
	}

	// Money and product
	d.cmpFloat("Price", &cached.Price, &fresh.Price)
	d.cmpFloat("FreightValue", &cached.FreightValue, &fresh.FreightValue)
	d.cmpStr("CategoryName", cached.CategoryName, fresh.CategoryName)
	d.cmpStr("CategoryNameEnglish", cached.CategoryNameEnglish, fresh.CategoryNameEnglish)
	d.cmpFloat("WeightG", cached.WeightG, fresh.WeightG)
	d.cmpFloat("VolumeCm3", cached.VolumeCm3, fresh.VolumeCm3)
	d.cmpFloat("DensityRatio", cached.DensityRatio, fresh.DensityRatio)

	// Geography
	d.cmpStr("CustomerState", cached.CustomerState, fresh.CustomerState)
	d.cmpStr("SellerState", cached.SellerState, fresh.SellerState)
	d.cmpFloat("DistanceKm", cached.DistanceKm, fresh.DistanceKm)

	// Buckets and labels
	d.cmpStr("YearMonth", cached.YearMonth, fresh.YearMonth)
	if cached.OrderDOW != fresh.OrderDOW {
		d.add("OrderDOW", cached.OrderDOW, fresh.OrderDOW)
	}
	d.cmpStr("PerformanceCategory", string(cached.PerformanceCategory), string(fresh.PerformanceCategory))
	d.cmpStr("PriceBin", cached.PriceBin, fresh.PriceBin)
	d.cmpStr("DistanceBin", cached.DistanceBin, fresh.DistanceBin)

	return d.out
}

type diff struct {
	out []FieldDivergence
}

func (d *diff) add(field string, expected, actual any) {
	d.out = append(d.out, FieldDivergence{Field: field, Expected: expected, Actual: actual})
}

func (d *diff) cmpStr(field, a, b string) {
	if a != b {
		d.add(field, a, b)
	}
}

func (d *diff) cmpInt(field string, a, b *int) {
	if (a == nil) != (b == nil) || (a != nil && *a != *b) {
		d.add(field, deref(a), deref(b))
	}
}

func (d *diff) cmpTime(field string, a, b *time.Time) {
	if (a == nil) != (b == nil) || (a != nil && !a.Equal(*b)) {
		d.add(field, deref(a), deref(b))
	}
}

func (d *diff) cmpFloat(field string, a, b *float64) {
	if !floatPtrEquals(a, b) {
		d.add(field, deref(a), deref(b))
	}
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}

// floatPtrEquals compares two *float64 values within FloatTolerance.
// Returns true if both are nil, or both are non-nil and equal.
func floatPtrEquals(a, b *float64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return floatEquals(*a, *b)
}
