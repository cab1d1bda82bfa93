package microstructure

import (
	"math"

	"tickpulse/pkg/contracts/domain"
)

// DefaultZ is the outlier threshold in standard deviations
const DefaultZ = 4.0

// DistributionStats summarises spread_bps and size per symbol, sorted by
// symbol. Missing values are skipped; a symbol without valid values gets NaN.
func DistributionStats(features []domain.Feature) []domain.SymbolStats {
	symbols, groups := groupBySymbol(features)
	out := make([]domain.SymbolStats, 0, len(symbols))
	for _, symbol := range symbols {
		rows := groups[symbol]
		spreads := column(features, rows, func(f domain.Feature) float64 { return f.SpreadBps })
		sizes := column(features, rows, func(f domain.Feature) float64 { return f.Size })
		mids := column(features, rows, func(f domain.Feature) float64 { return f.Mid })

		out = append(out, domain.SymbolStats{
			Symbol:        symbol,
			SpreadBpsMean: nanMean(spreads),
			SpreadBpsP95:  Percentile(spreads, 0.95),
			SpreadBpsP99:  Percentile(spreads, 0.99),
			SizeMean:      nanMean(sizes),
			SizeP95:       Percentile(sizes, 0.95),
			Ticks:         countValid(mids),
		})
	}
	return out
}

// DetectOutliers flags rows whose SpreadBps lies more than z population
// std-devs from the symbol mean. A symbol with zero dispersion has no
// outliers, and missing values are never flagged. Output row i corresponds
// to input row i.
func DetectOutliers(features []domain.Feature, z float64) []domain.OutlierFeature {
	out := make([]domain.OutlierFeature, len(features))
	for i, f := range features {
		out[i] = domain.OutlierFeature{Feature: f}
	}

	_, groups := groupBySymbol(features)
	for _, rows := range groups {
		spreads := column(features, rows, func(f domain.Feature) float64 { return f.SpreadBps })
		mu, sd := nanMean(spreads), nanPopStd(spreads)
		if sd == 0 || math.IsNaN(sd) {
			continue
		}
		for i, r := range rows {
			// NaN compares false
			out[r].SpreadOutlier = math.Abs((spreads[i]-mu)/sd) > z
		}
	}
	return out
}
