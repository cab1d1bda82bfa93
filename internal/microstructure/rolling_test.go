package microstructure

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickpulse/internal/errors"
	"tickpulse/internal/shared/testutil"
	"tickpulse/pkg/contracts/domain"
)

func refPopStd(xs ...float64) float64 {
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return math.Sqrt(ss / float64(len(xs)))
}

func TestRollingWindowBounds(t *testing.T) {
	features := AddFeatures(testutil.FlatTicks("X", 1, 2, 3, 4, 5))

	rolling, err := RollingMetrics(features, 3)
	require.NoError(t, err)
	require.Len(t, rolling, 5)

	// returns are 0, 1, 1/2, 1/3, 1/4
	wantVol := []float64{
		math.NaN(),
		refPopStd(0, 1),
		refPopStd(0, 1, 0.5),
		refPopStd(1, 0.5, 1.0/3),
		refPopStd(0.5, 1.0/3, 0.25),
	}
	for i, r := range rolling {
		assert.Equal(t, 0.0, r.RollSpreadBps, "row %d: bid equals ask", i)
		if math.IsNaN(wantVol[i]) {
			assert.True(t, math.IsNaN(r.RollVol), "row %d needs two samples", i)
			continue
		}
		assert.InDelta(t, wantVol[i], r.RollVol, 1e-12, "row %d", i)
	}
}

func TestRollingSpreadMean(t *testing.T) {
	features := []domain.Feature{
		{Tick: domain.Tick{Symbol: "X"}, SpreadBps: 2},
		{Tick: domain.Tick{Symbol: "X"}, SpreadBps: math.NaN()},
		{Tick: domain.Tick{Symbol: "X"}, SpreadBps: 4},
		{Tick: domain.Tick{Symbol: "X"}, SpreadBps: 9},
	}

	rolling, err := RollingMetrics(features, 2)
	require.NoError(t, err)

	assert.Equal(t, 2.0, rolling[0].RollSpreadBps)
	assert.Equal(t, 2.0, rolling[1].RollSpreadBps, "one valid sample is enough")
	assert.Equal(t, 4.0, rolling[2].RollSpreadBps)
	assert.Equal(t, 6.5, rolling[3].RollSpreadBps)
}

func TestRollingNeverCrossesSymbols(t *testing.T) {
	ticks := append(testutil.FlatTicks("A", 1, 2, 4), testutil.FlatTicks("B", 10, 20)...)
	features := AddFeatures(ticks)

	rolling, err := RollingMetrics(features, 10)
	require.NoError(t, err)

	for i := range rolling {
		assert.Equal(t, features[i], rolling[i].Feature, "row %d keeps its position", i)
	}
	assert.True(t, math.IsNaN(rolling[3].RollVol), "first B row starts a fresh window")
	assert.InDelta(t, refPopStd(0, 1), rolling[4].RollVol, 1e-12)
}

func TestRollingKeepsInputOrder(t *testing.T) {
	a := testutil.FlatTicks("A", 1, 2)
	b := testutil.FlatTicks("B", 5, 10)
	features := AddFeatures([]domain.Tick{a[0], b[0], a[1], b[1]})
	interleaved := []domain.Feature{features[0], features[2], features[1], features[3]}

	rolling, err := RollingMetrics(interleaved, 5)
	require.NoError(t, err)

	assert.Equal(t, "A", rolling[0].Symbol)
	assert.Equal(t, "B", rolling[1].Symbol)
	assert.InDelta(t, refPopStd(0, 1), rolling[2].RollVol, 1e-12)
	assert.Equal(t, testutil.BaseTime.Add(time.Second), rolling[3].Timestamp)
}

func TestRollingWindowOfOne(t *testing.T) {
	features := AddFeatures(testutil.SampleTicks())

	rolling, err := RollingMetrics(features, 1)
	require.NoError(t, err)
	for i, r := range rolling {
		assert.Equal(t, features[i].SpreadBps, r.RollSpreadBps)
		assert.True(t, math.IsNaN(r.RollVol))
	}
}

func TestRollingRejectsBadWindow(t *testing.T) {
	_, err := RollingMetrics(nil, 0)
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}
