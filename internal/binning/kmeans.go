package binning

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// KMeansConfig configures one-dimensional k-means.
type KMeansConfig struct {
	K       int
	Seed    int64
	NInit   int // independent restarts, best inertia wins
	MaxIter int
}

// DefaultKMeansConfig matches the reference clustering setup.
func DefaultKMeansConfig() KMeansConfig {
	return KMeansConfig{K: 5, Seed: 42, NInit: 10, MaxIter: 300}
}

// Clustering is a fitted model. Cluster ids are arbitrary; use Ranks for order.
type Clustering struct {
	Centroids []float64
	Assign    []int // cluster id per input value
	Inertia   float64
}

// KMeans clusters values with k-means++ seeding and Lloyd iterations.
// The same config and input always yield the same result.
func KMeans(values []float64, cfg KMeansConfig) Clustering {
	rng := rand.New(rand.NewSource(cfg.Seed))
	nInit := cfg.NInit
	if nInit < 1 {
		nInit = 1
	}

	var best Clustering
	best.Inertia = math.Inf(1)
	for run := 0; run < nInit; run++ {
		c := lloyd(values, seedCentroids(values, cfg.K, rng), cfg.MaxIter)
		if c.Inertia < best.Inertia {
			best = c
		}
	}
	return best
}

// seedCentroids picks k initial centroids using k-means++.
func seedCentroids(values []float64, k int, rng *rand.Rand) []float64 {
	centroids := make([]float64, 0, k)
	centroids = append(centroids, values[rng.Intn(len(values))])

	dist := make([]float64, len(values))
	for len(centroids) < k {
		total := 0.0
		for i, v := range values {
			d := nearestDistance(v, centroids)
			dist[i] = d * d
			total += dist[i]
		}
		if total == 0 {
			centroids = append(centroids, values[rng.Intn(len(values))])
			continue
		}
		target := rng.Float64() * total
		idx := len(values) - 1
		for i, d := range dist {
			target -= d
			if target <= 0 {
				idx = i
				break
			}
		}
		centroids = append(centroids, values[idx])
	}
	return centroids
}

func lloyd(values, centroids []float64, maxIter int) Clustering {
	k := len(centroids)
	assign := make([]int, len(values))
	members := make([][]float64, k)

	for iter := 0; iter < maxIter; iter++ {
		changed := iter == 0
		for i, v := range values {
			c := nearest(v, centroids)
			if c != assign[i] {
				assign[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}

		for c := range members {
			members[c] = members[c][:0]
		}
		for i, v := range values {
			members[assign[i]] = append(members[assign[i]], v)
		}
		for c := range centroids {
			// Empty clusters keep their previous centroid.
			if len(members[c]) > 0 {
				centroids[c] = stat.Mean(members[c], nil)
			}
		}
	}

	inertia := 0.0
	for i, v := range values {
		assign[i] = nearest(v, centroids)
		d := v - centroids[assign[i]]
		inertia += d * d
	}
	return Clustering{Centroids: centroids, Assign: assign, Inertia: inertia}
}

func nearest(v float64, centroids []float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, m := range centroids {
		if d := math.Abs(v - m); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func nearestDistance(v float64, centroids []float64) float64 {
	return math.Abs(v - centroids[nearest(v, centroids)])
}

// Ranks maps each cluster id to its position in ascending centroid order.
// Cluster ids from k-means carry no order; labels must come from this mapping.
func Ranks(centroids []float64) []int {
	ids := make([]int, len(centroids))
	for i := range ids {
		ids[i] = i
	}
	sort.SliceStable(ids, func(a, b int) bool { return centroids[ids[a]] < centroids[ids[b]] })

	ranks := make([]int, len(centroids))
	for rank, id := range ids {
		ranks[id] = rank
	}
	return ranks
}

// KMeansBinner bins values by clustering and relabels clusters by ascending centroid.
// With fewer than K non-nil observations, or fewer than K distinct values, it
// delegates to Fallback.
type KMeansBinner struct {
	Config   KMeansConfig
	Labels   []string
	Fallback *FixedBinner

	// Last holds the most recent fit, nil after a fallback.
	Last *Clustering
}

// NewKMeansPriceBinner clusters price into the price labels.
func NewKMeansPriceBinner(cfg KMeansConfig) *KMeansBinner {
	fb := NewFixedPriceBinner()
	return &KMeansBinner{Config: cfg, Labels: fb.Labels, Fallback: fb}
}

// NewKMeansDistanceBinner clusters distance into the distance labels.
func NewKMeansDistanceBinner(cfg KMeansConfig) *KMeansBinner {
	fb := NewFixedDistanceBinner()
	return &KMeansBinner{Config: cfg, Labels: fb.Labels, Fallback: fb}
}

// Assign implements Binner.
func (b *KMeansBinner) Assign(values []*float64) []string {
	b.Last = nil

	var present []float64
	var index []int
	distinct := make(map[float64]struct{})
	for i, v := range values {
		if v == nil || math.IsNaN(*v) {
			continue
		}
		present = append(present, *v)
		index = append(index, i)
		distinct[*v] = struct{}{}
	}

	k := b.Config.K
	if k > len(b.Labels) {
		k = len(b.Labels)
	}
	if len(present) < k || len(distinct) < k {
		return b.Fallback.Assign(values)
	}

	cfg := b.Config
	cfg.K = k
	fit := KMeans(present, cfg)
	b.Last = &fit
	ranks := Ranks(fit.Centroids)

	out := make([]string, len(values))
	for j, i := range index {
		out[i] = b.Labels[ranks[fit.Assign[j]]]
	}
	return out
}
