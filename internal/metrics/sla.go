package metrics

import (
	"github.com/HdrHistogram/hdrhistogram-go"

	"delivery-sla-lab/internal/domain"
)

// maxTrackedDays is the largest total delivery time the percentile histogram holds.
const maxTrackedDays = 10000

// recordClamped records v, clamped to [0, maxTrackedDays]. It reports whether
// v was inside that range.
func recordClamped(hist *hdrhistogram.Histogram, v int64) bool {
	inRange := true
	switch {
	case v < 0:
		v, inRange = 0, false
	case v > maxTrackedDays:
		v, inRange = maxTrackedDays, false
	}
	if err := hist.RecordValue(v); err != nil {
		return false
	}
	return inRange
}

// ComputeKeyMetrics returns headline SLA figures. Empty input yields zero metrics.
func ComputeKeyMetrics(records []domain.OrderItemRecord) domain.KeyMetrics {
	n := len(records)
	if n == 0 {
		return domain.KeyMetrics{}
	}

	orders := make(map[string]struct{})
	late, onTimeCat, veryEarlyCat := 0, 0, 0
	earlySum := 0.0
	var lateDays, totals, approvals, handlings, transits []float64

	// Delivery days span 0..a few hundred, exact at 3 significant figures.
	hist := hdrhistogram.New(1, maxTrackedDays, 3)
	clamped := 0

	for i := range records {
		r := &records[i]
		orders[r.OrderID] = struct{}{}

		if r.LateToEDD {
			late++
			lateDays = append(lateDays, float64(r.DaysLateToEDD))
		}
		switch r.PerformanceCategory {
		case domain.PerformanceOnTime:
			onTimeCat++
		case domain.PerformanceVeryEarly:
			veryEarlyCat++
		}
		earlySum += float64(r.EarlyDays)

		if r.TotalDeliveryDays != nil {
			totals = append(totals, float64(*r.TotalDeliveryDays))
			if !recordClamped(hist, int64(*r.TotalDeliveryDays)) {
				clamped++
			}
		}
		if r.ApprovalDays != nil {
			approvals = append(approvals, float64(*r.ApprovalDays))
		}
		if r.HandlingDays != nil {
			handlings = append(handlings, float64(*r.HandlingDays))
		}
		if r.InTransitDays != nil {
			transits = append(transits, float64(*r.InTransitDays))
		}
	}

	lateRate := computeRatePct(late, n)
	km := domain.KeyMetrics{
		TotalItems:          n,
		TotalOrders:         len(orders),
		LateRatePct:         lateRate,
		OnTimeRatePct:       100 - lateRate,
		StrictOnTimeRatePct: computeRatePct(onTimeCat, n),
		EarlyRatePct:        computeRatePct(veryEarlyCat, n),
		AvgEarlyMarginDays:  earlySum / float64(n),
		AvgLateDays:         valueOr(computeMean(lateDays), 0),
		AvgTotalDays:        computeMean(totals),
		AvgApprovalDays:     computeMean(approvals),
		AvgHandlingDays:     computeMean(handlings),
		AvgInTransitDays:    computeMean(transits),
		TotalDaysClamped:    clamped,
	}
	if hist.TotalCount() > 0 {
		km.TotalDaysP50 = hist.ValueAtQuantile(50)
		km.TotalDaysP90 = hist.ValueAtQuantile(90)
		km.TotalDaysP99 = hist.ValueAtQuantile(99)
	}
	return km
}

// ComputePerformanceSummary describes each performance category present in the data.
func ComputePerformanceSummary(records []domain.OrderItemRecord) []domain.PerformanceSummaryRow {
	if len(records) == 0 {
		return nil
	}

	deltas := make(map[domain.PerformanceCategory][]float64)
	totals := make(map[domain.PerformanceCategory][]float64)
	counts := make(map[domain.PerformanceCategory]int)
	for i := range records {
		r := &records[i]
		if r.PerformanceCategory == "" {
			continue
		}
		counts[r.PerformanceCategory]++
		if r.EDDDeltaDays != nil {
			deltas[r.PerformanceCategory] = append(deltas[r.PerformanceCategory], float64(*r.EDDDeltaDays))
		}
		if r.TotalDeliveryDays != nil {
			totals[r.PerformanceCategory] = append(totals[r.PerformanceCategory], float64(*r.TotalDeliveryDays))
		}
	}

	var rows []domain.PerformanceSummaryRow
	for _, c := range domain.PerformanceCategories {
		if counts[c] == 0 {
			continue
		}
		rows = append(rows, domain.PerformanceSummaryRow{
			Category:       c,
			Count:          counts[c],
			Pct:            computeRatePct(counts[c], len(records)),
			MeanEDDDelta:   valueOr(computeMean(deltas[c]), 0),
			MedianEDDDelta: valueOr(computeMedian(deltas[c]), 0),
			MeanTotalDays:  computeMean(totals[c]),
		})
	}
	return rows
}
