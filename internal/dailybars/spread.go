package dailybars

import (
	"math"

	"tickpulse/pkg/contracts/domain"
)

// csK is 3 - 2*sqrt(2) from the Corwin-Schultz (2012) estimator
var csK = 3 - 2*math.Sqrt2

// HighLowSpread estimates the relative bid-ask spread of each bar from its
// high and low and those of the previous bar (Corwin and Schultz, 2012).
// Negative estimates are set to zero. The first bar and any bar whose pair
// holds a missing or non-positive price, or a high below its low, are NaN.
func HighLowSpread(bars []domain.DailyBar) []float64 {
	out := make([]float64, len(bars))
	for i := range bars {
		out[i] = math.NaN()
		if i == 0 {
			continue
		}
		prev, cur := bars[i-1], bars[i]
		if !validRange(prev.High, prev.Low) || !validRange(cur.High, cur.Low) {
			continue
		}
		out[i] = corwinSchultz(prev.High, prev.Low, cur.High, cur.Low)
	}
	return out
}

func validRange(high, low float64) bool {
	// NaN fails every comparison
	return low > 0 && high >= low
}

func corwinSchultz(high1, low1, high2, low2 float64) float64 {
	r1 := math.Log(high1 / low1)
	r2 := math.Log(high2 / low2)
	beta := r1*r1 + r2*r2

	r := math.Log(math.Max(high1, high2) / math.Min(low1, low2))
	gamma := r * r

	alpha := (math.Sqrt(2*beta)-math.Sqrt(beta))/csK - math.Sqrt(gamma/csK)
	spread := 2 * math.Expm1(alpha) / (1 + math.Exp(alpha))
	if spread < 0 {
		return 0
	}
	return spread
}
