package dailybars

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"

	"tickpulse/pkg/contracts/domain"
)

// Clustering defaults
const (
	DefaultClusters = 3
	DefaultSeed     = 42
	maxIterations   = 300
	tolerance       = 1e-4
)

// ClusterOptions configures ClusterVolatility
type ClusterOptions struct {
	K    int
	Seed uint64
}

// ClusterVolatility splits the rows with finite Volatility20 and Returns into
// K regimes with k-means and writes the label into VolCluster. Labels are
// ordered by ascending centroid volatility, so 0 is the calmest regime. Rows
// without both inputs keep -1. With fewer usable rows than K nothing is
// clustered. The same rows and seed always give the same labels.
func ClusterVolatility(rows []domain.BarIndicators, opts ClusterOptions) []domain.ClusterCentroid {
	k := opts.K
	if k <= 0 {
		k = DefaultClusters
	}

	var (
		idx    []int
		points [][]float64
	)
	for i := range rows {
		rows[i].VolCluster = -1
		v, r := rows[i].Volatility20, rows[i].Returns
		if isFinite(v) && isFinite(r) {
			idx = append(idx, i)
			points = append(points, []float64{v, r})
		}
	}
	if len(points) < k {
		return []domain.ClusterCentroid{}
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))
	centroids, labels := kmeans(points, k, rng)

	// relabel by volatility
	order := make([]int, k)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return centroids[order[a]][0] < centroids[order[b]][0] })
	relabel := make([]int, k)
	for newLabel, old := range order {
		relabel[old] = newLabel
	}

	out := make([]domain.ClusterCentroid, k)
	for newLabel, old := range order {
		out[newLabel] = domain.ClusterCentroid{
			Label:        newLabel,
			Volatility20: centroids[old][0],
			Returns:      centroids[old][1],
		}
	}
	for p, row := range idx {
		label := relabel[labels[p]]
		rows[row].VolCluster = label
		out[label].Members++
	}
	return out
}

// kmeans runs Lloyd's algorithm from a k-means++ seeding
func kmeans(points [][]float64, k int, rng *rand.Rand) ([][]float64, []int) {
	centroids := seedPlusPlus(points, k, rng)
	labels := make([]int, len(points))

	for iter := 0; iter < maxIterations; iter++ {
		for i, p := range points {
			labels[i] = nearest(p, centroids)
		}

		next := make([][]float64, k)
		counts := make([]int, k)
		for c := range next {
			next[c] = make([]float64, len(points[0]))
		}
		for i, p := range points {
			floats.Add(next[labels[i]], p)
			counts[labels[i]]++
		}

		var shift float64
		for c := range next {
			if counts[c] == 0 {
				// an empty cluster keeps its centre
				copy(next[c], centroids[c])
			} else {
				floats.Scale(1/float64(counts[c]), next[c])
			}
			d := floats.Distance(next[c], centroids[c], 2)
			shift += d * d
		}
		centroids = next
		if shift <= tolerance*tolerance {
			break
		}
	}

	for i, p := range points {
		labels[i] = nearest(p, centroids)
	}
	return centroids, labels
}

// seedPlusPlus picks the first centre uniformly, then each next one with
// probability proportional to its squared distance from the closest centre
func seedPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	first := points[rng.IntN(len(points))]
	centroids = append(centroids, append([]float64(nil), first...))

	dist := make([]float64, len(points))
	for len(centroids) < k {
		var total float64
		for i, p := range points {
			d := floats.Distance(p, centroids[nearest(p, centroids)], 2)
			dist[i] = d * d
			total += dist[i]
		}

		next := len(centroids) % len(points)
		if total > 0 {
			target := rng.Float64() * total
			for i, d := range dist {
				target -= d
				if target < 0 {
					next = i
					break
				}
			}
		}
		centroids = append(centroids, append([]float64(nil), points[next]...))
	}
	return centroids
}

func nearest(p []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centre := range centroids {
		if d := floats.Distance(p, centre, 2); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
