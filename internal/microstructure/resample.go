package microstructure

import (
	"math"
	"sort"
	"time"

	"tickpulse/internal/errors"
	"tickpulse/pkg/contracts/domain"
)

// TradingCalendar describes how much trading time a day holds
type TradingCalendar struct {
	HoursPerDay float64
}

// DefaultCalendar is a six-hour trading day
var DefaultCalendar = TradingCalendar{HoursPerDay: 6}

// AnnualizationScale is sqrt(periods of width freq in one trading day). At
// one minute and six hours that is sqrt(360).
func AnnualizationScale(freq time.Duration, cal TradingCalendar) float64 {
	if freq <= 0 || cal.HoursPerDay <= 0 {
		return math.NaN()
	}
	return math.Sqrt(cal.HoursPerDay * float64(time.Hour) / float64(freq))
}

// ResampleOptions configures ResampleAgg
type ResampleOptions struct {
	Freq time.Duration
	// VolScale multiplies each bucket's return std-dev. Zero selects
	// AnnualizationScale(Freq, DefaultCalendar).
	VolScale float64
	// FillEmpty materializes the buckets between a symbol's first and last
	// observation that hold no ticks.
	FillEmpty bool
}

// BucketStart floors t to a multiple of freq counted from the Unix epoch on
// its own wall clock, so an hourly bucket in a +05:30 zone starts on the
// local hour. Widths that do not divide a day drift against midnight.
func BucketStart(t time.Time, freq time.Duration) time.Time {
	_, offset := t.Zone()
	shift := time.Duration(offset) * time.Second
	ns := t.Add(shift).UnixNano()
	start := ns - floorMod(ns, int64(freq))
	return time.Unix(0, start).Add(-shift).In(t.Location())
}

// floorMod is a mod b with the sign of b, so times before 1970 floor down
func floorMod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// ResampleAgg aggregates features into per-symbol buckets of width Freq,
// sorted by symbol then bucket start.
func ResampleAgg(features []domain.Feature, opts ResampleOptions) ([]domain.Bucket, error) {
	if opts.Freq <= 0 {
		return nil, errors.NewAppValidationError("resample frequency must be positive").
			WithContext("freq", opts.Freq.String())
	}
	scale := opts.VolScale
	if scale == 0 {
		scale = AnnualizationScale(opts.Freq, DefaultCalendar)
	}

	buckets := make([]domain.Bucket, 0)
	symbols, groups := groupBySymbol(features)
	for _, symbol := range symbols {
		rows := groups[symbol]
		sort.SliceStable(rows, func(a, b int) bool {
			return features[rows[a]].Timestamp.Before(features[rows[b]].Timestamp)
		})

		var starts []time.Time
		members := make(map[int64][]int)
		for _, r := range rows {
			start := BucketStart(features[r].Timestamp, opts.Freq)
			key := start.UnixNano()
			if _, ok := members[key]; !ok {
				starts = append(starts, start)
			}
			members[key] = append(members[key], r)
		}

		sort.Slice(starts, func(a, b int) bool { return starts[a].Before(starts[b]) })
		if opts.FillEmpty && len(starts) > 0 {
			starts = fillStarts(starts[0], starts[len(starts)-1], opts.Freq)
		}

		for _, start := range starts {
			buckets = append(buckets, aggregateBucket(features, symbol, start, members[start.UnixNano()], scale))
		}
	}
	return buckets, nil
}

func fillStarts(first, last time.Time, freq time.Duration) []time.Time {
	var starts []time.Time
	for s := first; !s.After(last); {
		starts = append(starts, s)
		next := BucketStart(s.Add(freq), freq)
		if !next.After(s) {
			next = s.Add(freq)
		}
		s = next
	}
	return starts
}

func aggregateBucket(features []domain.Feature, symbol string, start time.Time, rows []int, scale float64) domain.Bucket {
	b := domain.Bucket{
		Symbol:        symbol,
		Start:         start,
		MidMean:       math.NaN(),
		MidLast:       math.NaN(),
		SpreadMean:    math.NaN(),
		SpreadBpsMean: math.NaN(),
	}
	if len(rows) == 0 {
		return b
	}

	mids := column(features, rows, func(f domain.Feature) float64 { return f.Mid })
	b.MidMean = nanMean(mids)
	for i := len(mids) - 1; i >= 0; i-- {
		if !math.IsNaN(mids[i]) {
			b.MidLast = mids[i]
			break
		}
	}
	b.SpreadMean = nanMean(column(features, rows, func(f domain.Feature) float64 { return f.Spread }))
	b.SpreadBpsMean = nanMean(column(features, rows, func(f domain.Feature) float64 { return f.SpreadBps }))
	b.Ticks = countValid(mids)
	b.SizeSum = nanSum(column(features, rows, func(f domain.Feature) float64 { return f.Size }))

	// a lone tick has no dispersion
	if len(rows) > 1 {
		b.Vol = nanPopStd(column(features, rows, func(f domain.Feature) float64 { return f.Ret })) * scale
	}
	return b
}
