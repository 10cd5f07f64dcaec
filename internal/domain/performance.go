package domain

// PerformanceCategory buckets delivery against the estimated delivery date.
type PerformanceCategory string

// Performance categories ordered from earliest to latest.
const (
	PerformanceVeryEarly PerformanceCategory = "very_early" // delta <= -3
	PerformanceOnTime    PerformanceCategory = "on_time"    // -3 < delta <= 0
	PerformanceLate      PerformanceCategory = "late"       // 0 < delta <= 7
	PerformanceVeryLate  PerformanceCategory = "very_late"  // delta > 7
)

// PerformanceCategories lists all categories in ordinal order.
var PerformanceCategories = []PerformanceCategory{
	PerformanceVeryEarly,
	PerformanceOnTime,
	PerformanceLate,
	PerformanceVeryLate,
}

// Ordinal bin labels shared by fixed-breakpoint and clustering binners.
var (
	PriceBinLabels    = []string{"Very Low", "Low", "Medium", "High", "Very High"}
	DistanceBinLabels = []string{"Very Short", "Short", "Medium", "Long", "Very Long"}
)
