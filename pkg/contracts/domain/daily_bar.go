package domain

import "time"

// DailyBar is one OHLCV row for a single ticker
type DailyBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// BarIndicators extends a bar with the dashboard indicators.
// NaN marks an indicator whose lookback is not yet filled.
type BarIndicators struct {
	DailyBar
	Returns      float64 `json:"returns"`
	MA20         float64 `json:"ma20"`
	MA50         float64 `json:"ma50"`
	Volatility20 float64 `json:"volatility20"`
	SpreadHL     float64 `json:"spread_hl"`   // high-low spread estimate
	VolCluster   int     `json:"vol_cluster"` // -1 when the row was not clustered
}

// RegressionSummary is the OLS fit of Returns on a constant and Volatility20
type RegressionSummary struct {
	N          int     `json:"n"`
	Alpha      float64 `json:"alpha"`
	Beta       float64 `json:"beta"`
	RSquared   float64 `json:"r_squared"`
	AlphaSE    float64 `json:"alpha_se"`
	BetaSE     float64 `json:"beta_se"`
	AlphaTStat float64 `json:"alpha_t"`
	BetaTStat  float64 `json:"beta_t"`
}

// ClusterCentroid is the centre of one volatility regime
type ClusterCentroid struct {
	Label        int     `json:"label"`
	Volatility20 float64 `json:"volatility20"`
	Returns      float64 `json:"returns"`
	Members      int     `json:"members"`
}

// DashboardView is the payload served for a ticker
type DashboardView struct {
	Ticker     string             `json:"ticker"`
	Bars       []BarIndicators    `json:"bars"`
	Regression *RegressionSummary `json:"regression,omitempty"`
	Centroids  []ClusterCentroid  `json:"centroids"`
}
