package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBollingerShortSeriesCollapses(t *testing.T) {
	b := Bollinger([]float64{100, 101, 102}, 20, 2.0)
	assert.Equal(t, 102.0, b.Upper)
	assert.Equal(t, 102.0, b.Middle)
	assert.Equal(t, 102.0, b.Lower)
	assert.Equal(t, 0.5, b.PercentB)
	assert.Equal(t, 0.0, b.Bandwidth)
}

func TestBollingerEmptySeries(t *testing.T) {
	b := Bollinger(nil, 20, 2.0)
	assert.Equal(t, 0.0, b.Middle)
	assert.Equal(t, 0.5, b.PercentB)
}

func TestBollingerKnownValues(t *testing.T) {
	// alternating 9/11: mean 10, population std 1
	closes := make([]float64, 20)
	for i := range closes {
		if i%2 == 0 {
			closes[i] = 9
		} else {
			closes[i] = 11
		}
	}

	b := Bollinger(closes, 20, 2.0)
	assert.InDelta(t, 12.0, b.Upper, 1e-9)
	assert.InDelta(t, 10.0, b.Middle, 1e-9)
	assert.InDelta(t, 8.0, b.Lower, 1e-9)
	assert.InDelta(t, 0.4, b.Bandwidth, 1e-9)
	assert.InDelta(t, 0.75, b.PercentB, 1e-9) // price 11 in [8,12]
}

func TestBollingerFlatSeries(t *testing.T) {
	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 100
	}

	b := Bollinger(closes, 20, 2.0)
	assert.Equal(t, 100.0, b.Upper)
	assert.Equal(t, 100.0, b.Lower)
	assert.Equal(t, 0.5, b.PercentB)
	assert.Equal(t, 0.0, b.Bandwidth)
}
