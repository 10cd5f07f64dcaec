package insights

import (
	"fmt"
	"strings"

	"delivery-sla-lab/internal/domain"
	"delivery-sla-lab/internal/metrics"
)

// Insight kinds.
const (
	KindGeographic = "geographic"
	KindBottleneck = "bottleneck"
	KindTemporal   = "temporal"
)

// Generator turns aggregate extremes into short findings. It only locates
// extreme rows of the support-filtered tables and does no further inference.
type Generator struct{}

// NewGenerator creates a new insight generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate returns the geographic, bottleneck and temporal findings in that order.
// Missing data produces an insight with Ok=false instead of an error.
func (g *Generator) Generate(a *domain.Analysis) []domain.Insight {
	if a == nil {
		a = &domain.Analysis{}
	}
	return []domain.Insight{
		g.geographic(a.ByState),
		g.bottleneck(a.Bottleneck),
		g.temporal(a.ByDayOfWeek),
	}
}

func (g *Generator) geographic(t *domain.AggregateTable) domain.Insight {
	in := domain.Insight{Kind: KindGeographic, Title: "Geographic disparity"}

	worst, okWorst := metrics.Worst(t)
	best, okBest := metrics.Best(t)
	if !okWorst || !okBest || worst.Key == best.Key {
		in.Finding = insufficient("states", t)
		return in
	}

	in.Ok = true
	in.Finding = fmt.Sprintf("%s has the highest late rate at %.1f%% versus %.1f%% in %s (%.1f pp gap over states with at least %d items).",
		worst.Key, worst.LateRatePct, best.LateRatePct, best.Key,
		worst.LateRatePct-best.LateRatePct, t.MinSupport)
	return in
}

func (g *Generator) bottleneck(b domain.Bottleneck) domain.Insight {
	in := domain.Insight{Kind: KindBottleneck, Title: "Primary bottleneck"}
	if b.Primary == nil {
		in.Finding = "Insufficient data: no stage has both late and on-time observations."
		return in
	}

	p := b.Primary
	in.Ok = true
	in.Finding = fmt.Sprintf("%s averages %.1f days on late items versus %.1f on time (%+.1f%%). Largest relative increase across stages; correlation only.",
		stageName(p.Stage), p.LateMean, p.OnTimeMean, p.ImpactPct)
	return in
}

func (g *Generator) temporal(t *domain.AggregateTable) domain.Insight {
	in := domain.Insight{Kind: KindTemporal, Title: "Worst purchase day"}

	worst, ok := metrics.Worst(t)
	if !ok {
		in.Finding = insufficient("days of week", t)
		return in
	}

	in.Ok = true
	in.Finding = fmt.Sprintf("Orders placed on %s are late %.1f%% of the time (%d items).",
		worst.Key, worst.LateRatePct, worst.Count)
	return in
}

func insufficient(what string, t *domain.AggregateTable) string {
	if t == nil {
		return fmt.Sprintf("Insufficient data: no %s to compare.", what)
	}
	return fmt.Sprintf("Insufficient data: fewer than two %s with at least %d items.", what, t.MinSupport)
}

func stageName(stage string) string {
	name := strings.TrimSuffix(stage, "_days")
	name = strings.ReplaceAll(name, "_", "-")
	if name == "" {
		return stage
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
