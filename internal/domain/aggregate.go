package domain

// Dimension names a grouping key for aggregate tables.
type Dimension string

// Supported grouping dimensions.
const (
	DimensionState       Dimension = "customer_state"
	DimensionCategory    Dimension = "product_category"
	DimensionDayOfWeek   Dimension = "day_of_week"
	DimensionMonth       Dimension = "order_month"
	DimensionYearMonth   Dimension = "year_month"
	DimensionPriceBin    Dimension = "price_bin"
	DimensionDistanceBin Dimension = "distance_bin"
)

// AggregateRow holds per-group delivery statistics.
type AggregateRow struct {
	Key            string
	Count          int
	LateRatePct    float64  // share of LateToEDD records, 0..100
	MeanEDDDelta   *float64 // nil when no record in the group has a delta
	MedianEDDDelta *float64
	MeanTotalDays  *float64
}

// AggregateTable is a support-filtered, ranked group-by result.
type AggregateTable struct {
	Dimension  Dimension
	MinSupport int
	Dropped    int // groups removed by the support filter
	Rows       []AggregateRow
}

// Empty reports whether the table has no rows.
func (t *AggregateTable) Empty() bool {
	return t == nil || len(t.Rows) == 0
}
