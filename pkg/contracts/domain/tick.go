package domain

import (
	"math"
	"time"
)

// Tick represents a single bid/ask/size observation for a symbol
type Tick struct {
	Symbol    string    `json:"symbol" validate:"required"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Size      float64   `json:"size"` // NaN when the source cell was empty
}

// Feature is a tick enriched with the derived microstructure fields
type Feature struct {
	Tick
	Mid       float64 `json:"mid"`
	Spread    float64 `json:"spread"`
	SpreadBps float64 `json:"spread_bps"` // non-finite when Mid is zero
	Ret       float64 `json:"ret"`        // simple return vs. the previous tick of the same symbol
}

// HasFiniteSpread reports whether SpreadBps is a usable number
func (f Feature) HasFiniteSpread() bool {
	return !math.IsNaN(f.SpreadBps) && !math.IsInf(f.SpreadBps, 0)
}

// Bucket is one (symbol, time bucket) aggregate
type Bucket struct {
	Symbol        string    `json:"symbol"`
	Start         time.Time `json:"timestamp"`
	MidMean       float64   `json:"mid_mean"`
	MidLast       float64   `json:"mid_last"`
	SpreadMean    float64   `json:"spread_mean"`
	SpreadBpsMean float64   `json:"spread_bps_mean"`
	Ticks         int       `json:"ticks"`
	SizeSum       float64   `json:"size_sum"`
	Vol           float64   `json:"vol"`
}

// IsEmpty reports whether the bucket was materialized without observations
func (b Bucket) IsEmpty() bool {
	return b.Ticks == 0
}

// RollingFeature carries trailing-window statistics next to the feature row.
// NaN marks a value whose window did not hold enough samples.
type RollingFeature struct {
	Feature
	RollSpreadBps float64 `json:"roll_spread_bps"`
	RollVol       float64 `json:"roll_vol"`
}

// SymbolStats summarises the spread and size distribution of one symbol
type SymbolStats struct {
	Symbol        string  `json:"symbol"`
	SpreadBpsMean float64 `json:"spread_bps_mean"`
	SpreadBpsP95  float64 `json:"spread_bps_p95"`
	SpreadBpsP99  float64 `json:"spread_bps_p99"`
	SizeMean      float64 `json:"size_mean"`
	SizeP95       float64 `json:"size_p95"`
	Ticks         int     `json:"ticks"`
}

// OutlierFeature flags spreads that sit far from their symbol's mean
type OutlierFeature struct {
	Feature
	SpreadOutlier bool `json:"spread_outlier"`
}

// Heatmap is a minute-of-day by symbol matrix of mean spread in bps.
// Cells[i][j] belongs to Minutes[i] and Symbols[j]; NaN marks no observations.
type Heatmap struct {
	Minutes []int       `json:"minutes"`
	Symbols []string    `json:"symbols"`
	Cells   [][]float64 `json:"cells"`
}

// Value returns the cell for a minute and symbol, and whether it was observed
func (h Heatmap) Value(minute int, symbol string) (float64, bool) {
	row, col := -1, -1
	for i, m := range h.Minutes {
		if m == minute {
			row = i
			break
		}
	}
	for j, s := range h.Symbols {
		if s == symbol {
			col = j
			break
		}
	}
	if row < 0 || col < 0 {
		return math.NaN(), false
	}
	v := h.Cells[row][col]
	return v, !math.IsNaN(v)
}

// IsEmpty reports whether the heatmap has no rows
func (h Heatmap) IsEmpty() bool {
	return len(h.Minutes) == 0
}
