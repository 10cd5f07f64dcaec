package binning

import (
	"fmt"

	"delivery-sla-lab/internal/domain"
)

// Strategy selects how price and distance bins are formed.
type Strategy string

// Binning strategies.
const (
	StrategyFixed  Strategy = "fixed"
	StrategyKMeans Strategy = "kmeans"
)

// Binners holds the price and distance binners for one run.
type Binners struct {
	Price    Binner
	Distance Binner
}

// NewBinners builds the binner pair for a strategy.
func NewBinners(s Strategy, cfg KMeansConfig) (Binners, error) {
	switch s {
	case StrategyFixed, "":
		return Binners{Price: NewFixedPriceBinner(), Distance: NewFixedDistanceBinner()}, nil
	case StrategyKMeans:
		return Binners{Price: NewKMeansPriceBinner(cfg), Distance: NewKMeansDistanceBinner(cfg)}, nil
	default:
		return Binners{}, fmt.Errorf("unknown binning strategy %q", s)
	}
}

// Categorize assigns performance category, price bin and distance bin in place.
func Categorize(ds *domain.Dataset, b Binners) {
	if ds.Len() == 0 {
		return
	}

	for i := range ds.Records {
		r := &ds.Records[i]
		r.PerformanceCategory = ""
		if r.EDDDeltaDays != nil {
			r.PerformanceCategory = ClassifyPerformance(*r.EDDDeltaDays)
		}
	}

	prices := make([]*float64, ds.Len())
	for i := range ds.Records {
		p := ds.Records[i].Price
		prices[i] = &p
	}
	priceBins := b.Price.Assign(prices)

	distances := ds.Float64Column(func(r *domain.OrderItemRecord) *float64 { return r.DistanceKm })
	distanceBins := b.Distance.Assign(distances)

	for i := range ds.Records {
		ds.Records[i].PriceBin = priceBins[i]
		ds.Records[i].DistanceBin = distanceBins[i]
	}
}
