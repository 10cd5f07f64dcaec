package domain

// KeyMetrics are the headline SLA figures for the filtered dataset.
type KeyMetrics struct {
	TotalItems          int     // order line items
	TotalOrders         int     // distinct order ids
	LateRatePct         float64 // delivered after EDD
	OnTimeRatePct       float64 // 100 - LateRatePct
	StrictOnTimeRatePct float64 // on_time category share
	EarlyRatePct        float64 // very_early category share
	AvgEarlyMarginDays  float64 // mean of EarlyDays over all items
	AvgLateDays         float64 // mean of DaysLateToEDD over late items
	AvgTotalDays        *float64
	AvgApprovalDays     *float64
	AvgHandlingDays     *float64
	AvgInTransitDays    *float64

	// Total delivery day percentiles. Values outside the histogram range are
	// clamped to its bounds and counted in TotalDaysClamped.
	TotalDaysP50     int64
	TotalDaysP90     int64
	TotalDaysP99     int64
	TotalDaysClamped int
}

// PerformanceSummaryRow describes one performance category.
type PerformanceSummaryRow struct {
	Category       PerformanceCategory
	Count          int
	Pct            float64
	MeanEDDDelta   float64
	MedianEDDDelta float64
	MeanTotalDays  *float64
}

// StageImpact compares one lifecycle stage between late and on-time items.
type StageImpact struct {
	Stage      string // approval_days | handling_days | in_transit_days
	LateMean   float64
	OnTimeMean float64
	ImpactPct  float64 // (late - on_time) / on_time * 100
}

// Bottleneck is a heuristic attribution of lateness to a lifecycle stage.
// The primary stage is the one whose mean grows the most, relatively, on late
// items; it is a correlation, not a cause.
type Bottleneck struct {
	Stages  []StageImpact // sorted by ImpactPct desc
	Primary *StageImpact  // nil when no stage is comparable
}

// Analysis is the full aggregate output of one analysis run.
type Analysis struct {
	Key         KeyMetrics
	Performance []PerformanceSummaryRow
	Bottleneck  Bottleneck

	ByState       *AggregateTable
	ByCategory    *AggregateTable
	ByDayOfWeek   *AggregateTable
	ByMonth       *AggregateTable // empty unless more than 3 distinct months
	ByYearMonth   *AggregateTable
	ByPriceBin    *AggregateTable
	ByDistanceBin *AggregateTable
}

// Tables returns all aggregate tables in report order.
func (a *Analysis) Tables() []*AggregateTable {
	return []*AggregateTable{
		a.ByState, a.ByCategory, a.ByDayOfWeek, a.ByMonth,
		a.ByYearMonth, a.ByPriceBin, a.ByDistanceBin,
	}
}

// Insight is a natural-language finding derived from aggregate extremes.
type Insight struct {
	Kind    string // geographic | bottleneck | temporal
	Title   string
	Finding string
	Ok      bool // false when the underlying table had insufficient data
}
