package binning

import "delivery-sla-lab/internal/domain"

// Performance thresholds on EDD delta days (inclusive upper bounds).
const (
	VeryEarlyMaxDelta = -3
	OnTimeMaxDelta    = 0
	LateMaxDelta      = 7
)

// ClassifyPerformance maps a signed EDD delta to exactly one category.
func ClassifyPerformance(delta int) domain.PerformanceCategory {
	switch {
	case delta <= VeryEarlyMaxDelta:
		return domain.PerformanceVeryEarly
	case delta <= OnTimeMaxDelta:
		return domain.PerformanceOnTime
	case delta <= LateMaxDelta:
		return domain.PerformanceLate
	default:
		return domain.PerformanceVeryLate
	}
}
