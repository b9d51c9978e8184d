package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupportResistancePivots(t *testing.T) {
	n := 15
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		highs[i] = 100
		lows[i] = 100
		closes[i] = 100
	}
	highs[6] = 110 // pivot high
	lows[7] = 95   // pivot low

	r := SupportResistance(highs, lows, closes, 5)

	require.NotNil(t, r.NearestSupport)
	require.NotNil(t, r.NearestResistance)
	assert.Equal(t, 95.0, *r.NearestSupport)
	assert.Equal(t, 110.0, *r.NearestResistance)
	assert.Contains(t, r.Supports, 95.0)
	assert.Contains(t, r.Resistances, 110.0)
}

func TestSupportResistanceShortSeries(t *testing.T) {
	series := []float64{1, 2, 3}
	r := SupportResistance(series, series, series, 5)
	assert.Empty(t, r.Supports)
	assert.Empty(t, r.Resistances)
	assert.Nil(t, r.NearestSupport)
	assert.Nil(t, r.NearestResistance)
}

func TestSupportResistanceNoLevelsBeyondPrice(t *testing.T) {
	// strictly rising series: every low is below the last close, every
	// pivot high too, so no resistance above remains
	n := 30
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		base := 100 + float64(i)
		highs[i] = base + 0.5
		lows[i] = base - 0.5
		closes[i] = base
	}

	r := SupportResistance(highs, lows, closes, 5)
	assert.Nil(t, r.NearestResistance)
}

func TestDedupeLevelsCapsAndSorts(t *testing.T) {
	levels := []float64{5, 3, 5, 9, 1, 7, 2, 8, 6, 4, 10, 11}
	out := dedupeLevels(levels)
	assert.LessOrEqual(t, len(out), 5)
	for i := 1; i < len(out); i++ {
		assert.Less(t, out[i-1], out[i])
	}
}
