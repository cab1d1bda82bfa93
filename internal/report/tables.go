package report

import (
	"time"

	"tickpulse/internal/pipeline"
	"tickpulse/pkg/contracts/domain"
)

// Sheet names in workbook order
const (
	SheetTicks     = "ticks"
	SheetResampled = "resampled"
	SheetStats     = "stats"
	SheetRolling   = "rolling"
	SheetOutliers  = "outliers"
	SheetHeatmap   = "heatmap"
	SheetCharts    = "charts"
)

// Table is one rectangular output: a sheet or a CSV file. Cell values are
// string, float64, int, bool or time.Time; NaN marks a missing value.
type Table struct {
	Name    string
	Headers []string
	Rows    [][]interface{}
}

var featureHeaders = []string{"symbol", "timestamp", "bid", "ask", "size", "mid", "spread", "spread_bps", "ret"}

func featureRow(f domain.Feature, extra ...interface{}) []interface{} {
	row := []interface{}{f.Symbol, f.Timestamp, f.Bid, f.Ask, f.Size, f.Mid, f.Spread, f.SpreadBps, f.Ret}
	return append(row, extra...)
}

func withHeaders(extra ...string) []string {
	return append(append([]string(nil), featureHeaders...), extra...)
}

// Tables lays out every table of a result in workbook order
func Tables(r *pipeline.Result) []Table {
	return []Table{
		TicksTable(r.Features),
		ResampledTable(r.Buckets),
		StatsTable(r.Stats),
		RollingTable(r.Rolling),
		OutliersTable(r.Outliers),
		HeatmapTable(r.Heatmap),
	}
}

// TicksTable is the sorted feature table
func TicksTable(features []domain.Feature) Table {
	t := Table{Name: SheetTicks, Headers: withHeaders(), Rows: make([][]interface{}, len(features))}
	for i, f := range features {
		t.Rows[i] = featureRow(f)
	}
	return t
}

// ResampledTable has one row per (symbol, bucket)
func ResampledTable(buckets []domain.Bucket) Table {
	t := Table{
		Name: SheetResampled,
		Headers: []string{"symbol", "timestamp", "mid_mean", "mid_last", "spread_mean",
			"spread_bps_mean", "ticks", "size_sum", "vol"},
		Rows: make([][]interface{}, len(buckets)),
	}
	for i, b := range buckets {
		t.Rows[i] = []interface{}{b.Symbol, b.Start, b.MidMean, b.MidLast, b.SpreadMean,
			b.SpreadBpsMean, b.Ticks, b.SizeSum, b.Vol}
	}
	return t
}

// StatsTable has one row per symbol
func StatsTable(stats []domain.SymbolStats) Table {
	t := Table{
		Name: SheetStats,
		Headers: []string{"symbol", "spread_bps_mean", "spread_bps_p95", "spread_bps_p99",
			"size_mean", "size_p95", "ticks"},
		Rows: make([][]interface{}, len(stats)),
	}
	for i, s := range stats {
		t.Rows[i] = []interface{}{s.Symbol, s.SpreadBpsMean, s.SpreadBpsP95, s.SpreadBpsP99,
			s.SizeMean, s.SizeP95, s.Ticks}
	}
	return t
}

// RollingTable is the feature table plus the trailing-window columns
func RollingTable(rolling []domain.RollingFeature) Table {
	t := Table{Name: SheetRolling, Headers: withHeaders("roll_spread_bps", "roll_vol"), Rows: make([][]interface{}, len(rolling))}
	for i, r := range rolling {
		t.Rows[i] = featureRow(r.Feature, r.RollSpreadBps, r.RollVol)
	}
	return t
}

// OutliersTable is the feature table plus the outlier flag
func OutliersTable(outliers []domain.OutlierFeature) Table {
	t := Table{Name: SheetOutliers, Headers: withHeaders("spread_outlier"), Rows: make([][]interface{}, len(outliers))}
	for i, o := range outliers {
		t.Rows[i] = featureRow(o.Feature, o.SpreadOutlier)
	}
	return t
}

// HeatmapTable has a minute_of_day column followed by one column per symbol
func HeatmapTable(h domain.Heatmap) Table {
	t := Table{
		Name:    SheetHeatmap,
		Headers: append([]string{"minute_of_day"}, h.Symbols...),
		Rows:    make([][]interface{}, len(h.Minutes)),
	}
	for i, m := range h.Minutes {
		row := make([]interface{}, 0, len(h.Symbols)+1)
		row = append(row, m)
		for _, v := range h.Cells[i] {
			row = append(row, v)
		}
		t.Rows[i] = row
	}
	return t
}

// symbolSpan is the 1-based, inclusive range of data rows a symbol occupies
// in the resampled table
type symbolSpan struct {
	Symbol   string
	From, To int
}

// symbolSpans relies on buckets being sorted by symbol
func symbolSpans(buckets []domain.Bucket) []symbolSpan {
	var spans []symbolSpan
	for i, b := range buckets {
		row := i + 2 // header is row 1
		if n := len(spans); n > 0 && spans[n-1].Symbol == b.Symbol {
			spans[n-1].To = row
			continue
		}
		spans = append(spans, symbolSpan{Symbol: b.Symbol, From: row, To: row})
	}
	return spans
}

// wallClock keeps the local date and time of t and drops the zone. Spreadsheet
// date cells carry no zone.
func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
