package microstructure

import (
	"math"

	"tickpulse/internal/errors"
	"tickpulse/pkg/contracts/domain"
)

// DefaultWindow is the trailing window length used by the report
const DefaultWindow = 120

// Minimum valid samples before a rolling value is reported
const (
	minPeriodsMean = 1
	minPeriodsStd  = 2
)

// RollingMetrics adds a trailing mean of SpreadBps and a trailing population
// std-dev of Ret over the last window rows of the same symbol, current row
// included. Output row i corresponds to input row i. Values whose window
// holds too few samples are NaN.
func RollingMetrics(features []domain.Feature, window int) ([]domain.RollingFeature, error) {
	if window < 1 {
		return nil, errors.NewAppValidationError("rolling window must be at least 1").
			WithContext("window", window)
	}

	out := make([]domain.RollingFeature, len(features))
	for i, f := range features {
		out[i] = domain.RollingFeature{Feature: f}
	}

	_, groups := groupBySymbol(features)
	for _, rows := range groups {
		spreads := column(features, rows, func(f domain.Feature) float64 { return f.SpreadBps })
		rets := column(features, rows, func(f domain.Feature) float64 { return f.Ret })

		for pos, r := range rows {
			lo := pos - window + 1
			if lo < 0 {
				lo = 0
			}
			out[r].RollSpreadBps = windowMean(spreads[lo : pos+1])
			out[r].RollVol = windowPopStd(rets[lo : pos+1])
		}
	}
	return out, nil
}

func windowMean(xs []float64) float64 {
	if countValid(xs) < minPeriodsMean {
		return math.NaN()
	}
	return nanMean(xs)
}

func windowPopStd(xs []float64) float64 {
	if countValid(xs) < minPeriodsStd {
		return math.NaN()
	}
	return nanPopStd(xs)
}
