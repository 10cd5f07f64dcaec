package metrics

import (
	"fmt"
	"sort"

	"delivery-sla-lab/internal/domain"
	"delivery-sla-lab/internal/features"
)

// keyFunc extracts a group label and its natural ordinal. ok=false skips the record.
type keyFunc func(r *domain.OrderItemRecord) (label string, ordinal int, ok bool)

// grouping describes how a dimension is keyed and ordered.
type grouping struct {
	key    keyFunc
	ranked bool // true: late rate desc; false: natural ordinal order
}

var groupings = map[domain.Dimension]grouping{
	domain.DimensionState: {ranked: true, key: func(r *domain.OrderItemRecord) (string, int, bool) {
		return r.CustomerState, 0, r.CustomerState != ""
	}},
	domain.DimensionCategory: {ranked: true, key: func(r *domain.OrderItemRecord) (string, int, bool) {
		name := r.CategoryNameEnglish
		if name == "" {
			name = r.CategoryName
		}
		return name, 0, name != ""
	}},
	domain.DimensionDayOfWeek: {key: func(r *domain.OrderItemRecord) (string, int, bool) {
		name, ok := features.DayNames[r.OrderDOW]
		return name, r.OrderDOW, ok
	}},
	domain.DimensionMonth: {key: func(r *domain.OrderItemRecord) (string, int, bool) {
		return fmt.Sprintf("%02d", r.OrderMonth), r.OrderMonth, r.OrderMonth > 0
	}},
	domain.DimensionYearMonth: {key: func(r *domain.OrderItemRecord) (string, int, bool) {
		return r.YearMonth, r.OrderYear*100 + r.OrderMonth, r.YearMonth != ""
	}},
	domain.DimensionPriceBin: {key: labelOrdinal(func(r *domain.OrderItemRecord) string { return r.PriceBin }, domain.PriceBinLabels)},
	domain.DimensionDistanceBin: {key: labelOrdinal(func(r *domain.OrderItemRecord) string { return r.DistanceBin }, domain.DistanceBinLabels)},
}

func labelOrdinal(get func(r *domain.OrderItemRecord) string, labels []string) keyFunc {
	order := make(map[string]int, len(labels))
	for i, l := range labels {
		order[l] = i
	}
	return func(r *domain.OrderItemRecord) (string, int, bool) {
		l := get(r)
		if l == "" {
			return "", 0, false
		}
		return l, order[l], true
	}
}

type groupAcc struct {
	label   string
	ordinal int
	count   int
	late    int
	deltas  []float64
	totals  []float64
}

// GroupBy aggregates records by dimension and drops groups smaller than minSupport.
// Empty input returns an empty table.
func GroupBy(records []domain.OrderItemRecord, dim domain.Dimension, minSupport int) *domain.AggregateTable {
	table := &domain.AggregateTable{Dimension: dim, MinSupport: minSupport}

	g, ok := groupings[dim]
	if !ok || len(records) == 0 {
		return table
	}

	groups := make(map[string]*groupAcc)
	for i := range records {
		r := &records[i]
		label, ordinal, ok := g.key(r)
		if !ok {
			continue
		}
		acc, exists := groups[label]
		if !exists {
			acc = &groupAcc{label: label, ordinal: ordinal}
			groups[label] = acc
		}
		acc.count++
		if r.LateToEDD {
			acc.late++
		}
		if r.EDDDeltaDays != nil {
			acc.deltas = append(acc.deltas, float64(*r.EDDDeltaDays))
		}
		if r.TotalDeliveryDays != nil {
			acc.totals = append(acc.totals, float64(*r.TotalDeliveryDays))
		}
	}

	accs := make([]*groupAcc, 0, len(groups))
	for _, acc := range groups {
		if acc.count < minSupport {
			table.Dropped++
			continue
		}
		accs = append(accs, acc)
	}

	rows := make([]domain.AggregateRow, 0, len(accs))
	for _, acc := range accs {
		rows = append(rows, domain.AggregateRow{
			Key:            acc.label,
			Count:          acc.count,
			LateRatePct:    computeRatePct(acc.late, acc.count),
			MeanEDDDelta:   computeMean(acc.deltas),
			MedianEDDDelta: computeMedian(acc.deltas),
			MeanTotalDays:  computeMean(acc.totals),
		})
	}

	ordinals := make(map[string]int, len(accs))
	for _, acc := range accs {
		ordinals[acc.label] = acc.ordinal
	}

	sort.Slice(rows, func(i, j int) bool {
		if g.ranked {
			if rows[i].LateRatePct != rows[j].LateRatePct {
				return rows[i].LateRatePct > rows[j].LateRatePct
			}
			return rows[i].Key < rows[j].Key
		}
		if ordinals[rows[i].Key] != ordinals[rows[j].Key] {
			return ordinals[rows[i].Key] < ordinals[rows[j].Key]
		}
		return rows[i].Key < rows[j].Key
	})

	table.Rows = rows
	return table
}

// Best returns the row with the lowest late rate, ties broken by key.
func Best(t *domain.AggregateTable) (domain.AggregateRow, bool) {
	return extreme(t, func(a, b domain.AggregateRow) bool { return a.LateRatePct < b.LateRatePct })
}

// Worst returns the row with the highest late rate, ties broken by key.
func Worst(t *domain.AggregateTable) (domain.AggregateRow, bool) {
	return extreme(t, func(a, b domain.AggregateRow) bool { return a.LateRatePct > b.LateRatePct })
}

func extreme(t *domain.AggregateTable, better func(a, b domain.AggregateRow) bool) (domain.AggregateRow, bool) {
	if t.Empty() {
		return domain.AggregateRow{}, false
	}
	best := t.Rows[0]
	for _, r := range t.Rows[1:] {
		if better(r, best) || (r.LateRatePct == best.LateRatePct && r.Key < best.Key) {
			best = r
		}
	}
	return best, true
}
