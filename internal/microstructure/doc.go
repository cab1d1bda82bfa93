// Package microstructure derives market microstructure features from tick
// records and aggregates them.
//
// AddFeatures is the entry point: it sorts a copy of the ticks by symbol and
// time and adds mid, spread, spread in basis points and the per-symbol simple
// return. The analyzers then read that feature table without modifying it:
//
//	ResampleAgg        time buckets per symbol with an annualized volatility
//	RollingMetrics     trailing-window spread mean and return volatility
//	DistributionStats  per-symbol spread and size percentiles
//	DetectOutliers     z-score flags on spread
//	MinuteHeatmap      minute-of-day by symbol mean spread
//
// Missing values are NaN throughout. Aggregations skip them, and a value that
// cannot be computed is reported as NaN rather than zero.
package microstructure
