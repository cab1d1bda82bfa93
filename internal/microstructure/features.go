package microstructure

import (
	"math"
	"sort"

	"tickpulse/pkg/contracts/domain"
)

// BasisPoints converts a ratio to basis points
const BasisPoints = 10000.0

// AddFeatures derives mid, spread, spread_bps and the per-symbol simple return.
// The result is a new slice sorted by symbol then timestamp; ties keep input
// order. It never fails: a zero mid yields a non-finite SpreadBps.
func AddFeatures(ticks []domain.Tick) []domain.Feature {
	features := make([]domain.Feature, len(ticks))
	for i, t := range ticks {
		mid := (t.Bid + t.Ask) / 2
		spread := t.Ask - t.Bid
		features[i] = domain.Feature{
			Tick:      t,
			Mid:       mid,
			Spread:    spread,
			SpreadBps: spread / mid * BasisPoints,
		}
	}

	sort.SliceStable(features, func(a, b int) bool {
		if features[a].Symbol != features[b].Symbol {
			return features[a].Symbol < features[b].Symbol
		}
		return features[a].Timestamp.Before(features[b].Timestamp)
	})

	fillReturns(features)
	return features
}

// fillReturns computes the percent change of mid within each symbol run of a
// sorted slice. A missing mid is padded with the last valid one first, and
// NaN changes (no previous value, or 0 to 0) become 0.
func fillReturns(features []domain.Feature) {
	var prev float64
	for i := range features {
		padded := features[i].Mid
		if i == 0 || features[i].Symbol != features[i-1].Symbol {
			if math.IsNaN(padded) {
				prev = math.NaN()
			} else {
				prev = padded
			}
			features[i].Ret = 0
			continue
		}

		if math.IsNaN(padded) {
			padded = prev
		}
		ret := padded/prev - 1
		if math.IsNaN(ret) {
			ret = 0
		}
		features[i].Ret = ret
		prev = padded
	}
}

// CountAnomalies reports how many rows carry a non-finite SpreadBps
func CountAnomalies(features []domain.Feature) int {
	n := 0
	for _, f := range features {
		if !f.HasFiniteSpread() {
			n++
		}
	}
	return n
}
