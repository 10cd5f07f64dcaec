package metrics

import (
	"sort"

	"delivery-sla-lab/internal/domain"
)

// Lifecycle stages compared by bottleneck detection.
const (
	StageApproval  = "approval_days"
	StageHandling  = "handling_days"
	StageInTransit = "in_transit_days"
)

var stageColumns = []struct {
	name string
	get  func(r *domain.OrderItemRecord) *int
}{
	{StageApproval, func(r *domain.OrderItemRecord) *int { return r.ApprovalDays }},
	{StageHandling, func(r *domain.OrderItemRecord) *int { return r.HandlingDays }},
	{StageInTransit, func(r *domain.OrderItemRecord) *int { return r.InTransitDays }},
}

// DetectBottleneck compares mean stage durations of late and on-time items.
// Stages without data on either side, or with a zero on-time mean, are skipped.
func DetectBottleneck(records []domain.OrderItemRecord) domain.Bottleneck {
	var b domain.Bottleneck

	for _, col := range stageColumns {
		var late, onTime []*int
		for i := range records {
			v := col.get(&records[i])
			if records[i].LateToEDD {
				late = append(late, v)
			} else {
				onTime = append(onTime, v)
			}
		}

		lateMean := computeMean(intValues(late))
		onTimeMean := computeMean(intValues(onTime))
		if lateMean == nil || onTimeMean == nil || *onTimeMean == 0 {
			continue
		}
		b.Stages = append(b.Stages, domain.StageImpact{
			Stage:      col.name,
			LateMean:   *lateMean,
			OnTimeMean: *onTimeMean,
			ImpactPct:  (*lateMean - *onTimeMean) / *onTimeMean * 100,
		})
	}

	sort.SliceStable(b.Stages, func(i, j int) bool { return b.Stages[i].ImpactPct > b.Stages[j].ImpactPct })
	if len(b.Stages) > 0 {
		primary := b.Stages[0]
		b.Primary = &primary
	}
	return b
}
