package dailybars

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"tickpulse/pkg/contracts/domain"
)

// Indicator lookbacks
const (
	ShortMA   = 20
	LongMA    = 50
	VolWindow = 20
)

// Indicators computes Returns, MA20, MA50, Volatility20 and SpreadHL for bars
// sorted by date. A rolling value needs its whole window present; otherwise
// it is NaN. VolCluster starts at -1.
func Indicators(bars []domain.DailyBar) []domain.BarIndicators {
	out := make([]domain.BarIndicators, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	returns := pctChange(closes)
	ma20 := rollingMean(closes, ShortMA)
	ma50 := rollingMean(closes, LongMA)
	vol := rollingStd(returns, VolWindow)
	spread := HighLowSpread(bars)

	for i, b := range bars {
		out[i] = domain.BarIndicators{
			DailyBar:     b,
			Returns:      returns[i],
			MA20:         ma20[i],
			MA50:         ma50[i],
			Volatility20: vol[i],
			SpreadHL:     spread[i],
			VolCluster:   -1,
		}
	}
	return out
}

// Complete reports whether the row has every field the regression and
// clustering use. SpreadHL is not one of them.
func Complete(b domain.BarIndicators) bool {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume, b.Returns, b.MA20, b.MA50, b.Volatility20} {
		if math.IsNaN(v) {
			return false
		}
	}
	return true
}

func pctChange(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		if i == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = xs[i]/xs[i-1] - 1
	}
	return out
}

// fullWindows calls fn with each trailing window that holds no NaN
func fullWindows(xs []float64, window int, fn func(w []float64) float64) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		out[i] = math.NaN()
		if i+1 < window {
			continue
		}
		w := xs[i+1-window : i+1]
		if hasNaN(w) {
			continue
		}
		out[i] = fn(w)
	}
	return out
}

func rollingMean(xs []float64, window int) []float64 {
	return fullWindows(xs, window, func(w []float64) float64 { return stat.Mean(w, nil) })
}

// rollingStd is the sample (ddof=1) standard deviation
func rollingStd(xs []float64, window int) []float64 {
	return fullWindows(xs, window, func(w []float64) float64 { return stat.StdDev(w, nil) })
}

func hasNaN(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}
