package microstructure

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"tickpulse/pkg/contracts/domain"
)

// groupBySymbol partitions row indexes by symbol, keeping input order inside
// each partition. Symbols are returned ascending.
func groupBySymbol(features []domain.Feature) ([]string, map[string][]int) {
	groups := make(map[string][]int)
	for i, f := range features {
		groups[f.Symbol] = append(groups[f.Symbol], i)
	}
	symbols := make([]string, 0, len(groups))
	for s := range groups {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols, groups
}

// dropNaN returns the non-missing values. Infinities are kept.
func dropNaN(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}

// nanMean is the mean of the non-missing values, NaN when there are none
func nanMean(xs []float64) float64 {
	v := dropNaN(xs)
	if len(v) == 0 {
		return math.NaN()
	}
	return stat.Mean(v, nil)
}

// nanPopStd is the population (ddof=0) standard deviation of the non-missing
// values, NaN when there are none
func nanPopStd(xs []float64) float64 {
	v := dropNaN(xs)
	if len(v) == 0 {
		return math.NaN()
	}
	if len(v) == 1 {
		return 0
	}
	_, std := stat.PopMeanStdDev(v, nil)
	return std
}

// nanSum treats missing values as zero
func nanSum(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		if !math.IsNaN(x) {
			sum += x
		}
	}
	return sum
}

func countValid(xs []float64) int {
	n := 0
	for _, x := range xs {
		if !math.IsNaN(x) {
			n++
		}
	}
	return n
}

// Percentile linearly interpolates between the closest ranks of the
// non-missing values at rank q*(n-1). It returns NaN when nothing is left.
func Percentile(xs []float64, q float64) float64 {
	sorted := dropNaN(xs)
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	sort.Float64s(sorted)

	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[n-1]
	}

	index := q * float64(n-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}

	weight := index - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func column(features []domain.Feature, rows []int, get func(domain.Feature) float64) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = get(features[r])
	}
	return out
}
