package metrics

import (
	"delivery-sla-lab/internal/domain"
)

// MinMonthsForSeasonality is the number of distinct months required before the
// by-month table is reported.
const MinMonthsForSeasonality = 3

// SupportFunc returns the minimum group size for a dimension.
type SupportFunc func(dimension string) int

// Aggregator computes the full analysis from a reconciled, categorized dataset.
type Aggregator struct {
	minSupport SupportFunc
}

// NewAggregator creates a new aggregator. A nil SupportFunc disables support filtering.
func NewAggregator(minSupport SupportFunc) *Aggregator {
	if minSupport == nil {
		minSupport = func(string) int { return 0 }
	}
	return &Aggregator{minSupport: minSupport}
}

// Analyze builds every aggregate table, key metrics and the bottleneck attribution.
// An empty dataset yields empty tables, never an error.
func (a *Aggregator) Analyze(ds *domain.Dataset) *domain.Analysis {
	var records []domain.OrderItemRecord
	if ds != nil {
		records = ds.Records
	}

	group := func(dim domain.Dimension) *domain.AggregateTable {
		return GroupBy(records, dim, a.minSupport(string(dim)))
	}

	analysis := &domain.Analysis{
		Key:           ComputeKeyMetrics(records),
		Performance:   ComputePerformanceSummary(records),
		Bottleneck:    DetectBottleneck(records),
		ByState:       group(domain.DimensionState),
		ByCategory:    group(domain.DimensionCategory),
		ByDayOfWeek:   group(domain.DimensionDayOfWeek),
		ByYearMonth:   group(domain.DimensionYearMonth),
		ByPriceBin:    group(domain.DimensionPriceBin),
		ByDistanceBin: group(domain.DimensionDistanceBin),
	}

	if distinctMonths(records) > MinMonthsForSeasonality {
		analysis.ByMonth = group(domain.DimensionMonth)
	} else {
		analysis.ByMonth = &domain.AggregateTable{
			Dimension:  domain.DimensionMonth,
			MinSupport: a.minSupport(string(domain.DimensionMonth)),
		}
	}

	return analysis
}

func distinctMonths(records []domain.OrderItemRecord) int {
	seen := make(map[int]struct{})
	for i := range records {
		if m := records[i].OrderMonth; m > 0 {
			seen[m] = struct{}{}
		}
	}
	return len(seen)
}
