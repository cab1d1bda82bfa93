package dailybars

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickpulse/pkg/contracts/domain"
)

func rangeBar(high, low float64) domain.DailyBar {
	return domain.DailyBar{Open: low, High: high, Low: low, Close: high, Volume: 1}
}

func TestHighLowSpread(t *testing.T) {
	// identical ranges: beta = 2r^2, gamma = r^2, so alpha = r and S = 2tanh(r/2)
	r := 0.02
	high, low := 100*math.Exp(r), 100.0

	tests := []struct {
		name string
		bars []domain.DailyBar
		want []float64
	}{
		{
			name: "equal ranges",
			bars: []domain.DailyBar{rangeBar(high, low), rangeBar(high, low)},
			want: []float64{math.NaN(), 2 * math.Tanh(r/2)},
		},
		{
			name: "overnight gap clamps to zero",
			bars: []domain.DailyBar{rangeBar(101, 100), rangeBar(121, 120)},
			want: []float64{math.NaN(), 0},
		},
		{
			name: "invalid prices",
			bars: []domain.DailyBar{rangeBar(101, 100), rangeBar(99, 100), rangeBar(101, math.NaN()), rangeBar(101, 100)},
			want: []float64{math.NaN(), math.NaN(), math.NaN(), math.NaN()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HighLowSpread(tt.bars)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				if math.IsNaN(tt.want[i]) {
					assert.True(t, math.IsNaN(got[i]), "row %d: %v", i, got[i])
					continue
				}
				assert.InDelta(t, tt.want[i], got[i], 1e-12, "row %d", i)
			}
		})
	}
}

func TestHighLowSpreadEmpty(t *testing.T) {
	assert.Empty(t, HighLowSpread(nil))
}
