package binning

import (
	"fmt"
	"math"

	"delivery-sla-lab/internal/domain"
)

// Binner assigns an ordinal label to every non-nil value. Nil and NaN values get "".
type Binner interface {
	Assign(values []*float64) []string
}

// FixedBinner bins by right-inclusive upper edges. A value <= Edges[i] gets
// Labels[i]; values above the last edge get the last label.
type FixedBinner struct {
	Edges  []float64
	Labels []string
}

// Canonical breakpoints. Lower bound 0 is implicit.
var (
	PriceEdges    = []float64{30, 60, 120, 250}
	DistanceEdges = []float64{50, 150, 300, 600}
)

// NewFixedPriceBinner bins price on 0/30/60/120/250/inf.
func NewFixedPriceBinner() *FixedBinner {
	return &FixedBinner{Edges: PriceEdges, Labels: domain.PriceBinLabels}
}

// NewFixedDistanceBinner bins distance (km) on 0/50/150/300/600/inf.
func NewFixedDistanceBinner() *FixedBinner {
	return &FixedBinner{Edges: DistanceEdges, Labels: domain.DistanceBinLabels}
}

// Label returns the bin label for a single value.
func (b *FixedBinner) Label(v float64) string {
	for i, edge := range b.Edges {
		if v <= edge {
			return b.Labels[i]
		}
	}
	return b.Labels[len(b.Labels)-1]
}

// Assign implements Binner.
func (b *FixedBinner) Assign(values []*float64) []string {
	out := make([]string, len(values))
	for i, v := range values {
		if v != nil && !math.IsNaN(*v) {
			out[i] = b.Label(*v)
		}
	}
	return out
}

// RangeLabel renders the numeric range of a label, e.g. "30-60" or ">250".
func (b *FixedBinner) RangeLabel(label string) string {
	for i, l := range b.Labels {
		if l != label {
			continue
		}
		switch {
		case i == 0:
			return fmt.Sprintf("<=%g", b.Edges[0])
		case i >= len(b.Edges):
			return fmt.Sprintf(">%g", b.Edges[len(b.Edges)-1])
		default:
			return fmt.Sprintf("%g-%g", b.Edges[i-1], b.Edges[i])
		}
	}
	return ""
}
