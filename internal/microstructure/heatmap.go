package microstructure

import (
	"math"
	"sort"

	"tickpulse/pkg/contracts/domain"
)

// MinuteOfDay is hour*60+minute on the timestamp's own wall clock
func MinuteOfDay(f domain.Feature) int {
	return f.Timestamp.Hour()*60 + f.Timestamp.Minute()
}

// MinuteHeatmap pivots mean SpreadBps by minute of day and symbol, pooling all
// dates. Minutes and symbols without a single valid spread are left out;
// remaining cells without observations are NaN.
func MinuteHeatmap(features []domain.Feature) domain.Heatmap {
	type cellKey struct {
		minute int
		symbol string
	}
	type acc struct {
		sum float64
		n   int
	}

	cells := make(map[cellKey]*acc)
	minutes := make(map[int]struct{})
	symbols := make(map[string]struct{})
	for _, f := range features {
		if math.IsNaN(f.SpreadBps) {
			continue
		}
		key := cellKey{MinuteOfDay(f), f.Symbol}
		a, ok := cells[key]
		if !ok {
			a = &acc{}
			cells[key] = a
		}
		a.sum += f.SpreadBps
		a.n++
		minutes[key.minute] = struct{}{}
		symbols[key.symbol] = struct{}{}
	}

	h := domain.Heatmap{
		Minutes: make([]int, 0, len(minutes)),
		Symbols: make([]string, 0, len(symbols)),
		Cells:   make([][]float64, 0, len(minutes)),
	}
	for m := range minutes {
		h.Minutes = append(h.Minutes, m)
	}
	sort.Ints(h.Minutes)
	for s := range symbols {
		h.Symbols = append(h.Symbols, s)
	}
	sort.Strings(h.Symbols)

	for _, m := range h.Minutes {
		row := make([]float64, len(h.Symbols))
		for j, s := range h.Symbols {
			row[j] = math.NaN()
			if a, ok := cells[cellKey{m, s}]; ok {
				row[j] = a.sum / float64(a.n)
			}
		}
		h.Cells = append(h.Cells, row)
	}
	return h
}
