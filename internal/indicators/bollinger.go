package indicators

import "math"

// BollingerResult holds Bollinger band levels relative to last close
type BollingerResult struct {
	Upper     float64 `json:"upper"`
	Middle    float64 `json:"middle"`
	Lower     float64 `json:"lower"`
	Bandwidth float64 `json:"bandwidth"`
	PercentB  float64 `json:"percent_b"`
}

// Bollinger computes Bollinger Bands over the final period closes
// using the population standard deviation. Short series collapse all
// bands onto the current price with percent_b 0.5.
func Bollinger(closes []float64, period int, stdDev float64) BollingerResult {
	if period <= 0 {
		period = 20
	}
	if stdDev <= 0 {
		stdDev = 2.0
	}

	if len(closes) < period {
		price := 0.0
		if len(closes) > 0 {
			price = closes[len(closes)-1]
		}
		return BollingerResult{
			Upper:    price,
			Middle:   price,
			Lower:    price,
			PercentB: 0.5,
		}
	}

	window := closes[len(closes)-period:]
	sma := mean(window)

	variance := 0.0
	for _, v := range window {
		variance += (v - sma) * (v - sma)
	}
	std := math.Sqrt(variance / float64(len(window)))

	upper := sma + stdDev*std
	lower := sma - stdDev*std
	price := closes[len(closes)-1]

	bandwidth := 0.0
	if sma > 0 {
		bandwidth = (upper - lower) / sma
	}
	percentB := 0.5
	if upper-lower > 0 {
		percentB = (price - lower) / (upper - lower)
	}

	return BollingerResult{
		Upper:     upper,
		Middle:    sma,
		Lower:     lower,
		Bandwidth: bandwidth,
		PercentB:  percentB,
	}
}
