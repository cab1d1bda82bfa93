// Package dailybars computes the daily OHLCV dashboard for one ticker:
// moving averages, rolling volatility, a high-low spread estimate, a
// single-regressor OLS of returns on volatility and a k-means split of days
// into volatility regimes.
//
// Bars are read from {data_dir}/{TICKER}.csv; fetching them is left to
// whatever fills that directory.
package dailybars
