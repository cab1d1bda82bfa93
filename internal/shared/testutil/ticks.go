package testutil

import (
	"time"

	"tickpulse/pkg/contracts/domain"
)

// BaseTime is the reference instant used by tick fixtures
var BaseTime = time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)

// Tick builds a tick offset from BaseTime
func Tick(symbol string, offset time.Duration, bid, ask, size float64) domain.Tick {
	return domain.Tick{
		Symbol:    symbol,
		Timestamp: BaseTime.Add(offset),
		Bid:       bid,
		Ask:       ask,
		Size:      size,
	}
}

// FlatTicks builds n ticks one second apart where bid equals ask equals mids[i]
func FlatTicks(symbol string, mids ...float64) []domain.Tick {
	ticks := make([]domain.Tick, len(mids))
	for i, m := range mids {
		ticks[i] = Tick(symbol, time.Duration(i)*time.Second, m, m, 1)
	}
	return ticks
}

// SampleTicks returns a small interleaved two-symbol tape in arbitrary order
func SampleTicks() []domain.Tick {
	return []domain.Tick{
		Tick("MSFT", 2*time.Second, 399.90, 400.10, 300),
		Tick("AAPL", 0, 189.98, 190.02, 100),
		Tick("AAPL", 61*time.Second, 190.10, 190.16, 50),
		Tick("MSFT", 0, 399.80, 400.00, 200),
		Tick("AAPL", 30*time.Second, 190.00, 190.06, 200),
		Tick("MSFT", 65*time.Second, 400.20, 400.30, 100),
	}
}
