package indicators

import "math"

// ATR computes the average true range over the last period bars.
// Series shorter than period+1 fall back to the mean high-low range.
func ATR(candles []Candle, period int) float64 {
	if period <= 0 {
		period = 14
	}
	if len(candles) == 0 {
		return 0
	}

	if len(candles) < period+1 {
		sum := 0.0
		for _, c := range candles {
			sum += c.High - c.Low
		}
		return sum / float64(len(candles))
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		cur := candles[i]
		prevClose := candles[i-1].Close
		tr := math.Max(cur.High-cur.Low,
			math.Max(math.Abs(cur.High-prevClose), math.Abs(cur.Low-prevClose)))
		sum += tr
	}
	return sum / float64(period)
}
