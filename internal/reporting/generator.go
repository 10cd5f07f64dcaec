package reporting

import (
	"time"

	"delivery-sla-lab/internal/domain"
)

// Generator assembles reports from analysis output.
type Generator struct {
	now func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator() *Generator {
	return &Generator{
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds a Report. A nil analysis is treated as empty.
func (g *Generator) Generate(in Input) *Report {
	analysis := in.Analysis
	if analysis == nil {
		analysis = &domain.Analysis{}
	}

	allPassed := true
	for _, c := range in.Checks {
		if !c.Pass {
			allPassed = false
			break
		}
	}

	return &Report{
		RunID:       in.RunID,
		GeneratedAt: g.now(),
		Binning:     in.Binning,
		Data:        summarizeData(in.Dataset, in.Cache, in.Filtered),
		DataQuality: DataQualitySection{
			SufficiencyChecks: in.Checks,
			Reconcile:         in.Reconcile,
			AllChecksPassed:   allPassed,
		},
		Analysis: analysis,
		Insights: in.Insights,
	}
}

func summarizeData(ds *domain.Dataset, cache string, filtered int) DataSummary {
	s := DataSummary{Cache: cache, Filtered: filtered}
	if ds == nil {
		return s
	}

	orders := make(map[string]struct{})
	for i := range ds.Records {
		r := &ds.Records[i]
		orders[r.OrderID] = struct{}{}
		if r.PurchaseAt == nil {
			continue
		}
		if s.PurchaseFrom == nil || r.PurchaseAt.Before(*s.PurchaseFrom) {
			t := *r.PurchaseAt
			s.PurchaseFrom = &t
		}
		if s.PurchaseTo == nil || r.PurchaseAt.After(*s.PurchaseTo) {
			t := *r.PurchaseAt
			s.PurchaseTo = &t
		}
	}
	s.Items = ds.Len()
	s.Orders = len(orders)
	return s
}
