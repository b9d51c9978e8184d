package indicators

// RSIResult holds the outcome of an RSI computation
type RSIResult struct {
	Current    float64   `json:"current"`
	Values     []float64 `json:"values"` // last 20 smoothed values
	Overbought bool      `json:"overbought"`
	Oversold   bool      `json:"oversold"`
}

// RSI computes Wilder's smoothed Relative Strength Index. Series
// shorter than period+1 yield the neutral result (50, no flags).
func RSI(closes []float64, period int) RSIResult {
	if period <= 0 {
		period = 14
	}
	if len(closes) < period+1 {
		return RSIResult{Current: 50.0}
	}

	deltas := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		deltas[i-1] = closes[i] - closes[i-1]
	}

	gains := make([]float64, len(deltas))
	losses := make([]float64, len(deltas))
	for i, d := range deltas {
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}

	avgGain := mean(gains[:period])
	avgLoss := mean(losses[:period])

	var values []float64
	for i := period; i < len(deltas); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)

		if avgLoss == 0 {
			values = append(values, 100.0)
		} else {
			rs := avgGain / avgLoss
			values = append(values, 100.0-(100.0/(1.0+rs)))
		}
	}

	current := 50.0
	if len(values) > 0 {
		current = values[len(values)-1]
	}
	if len(values) > 20 {
		values = values[len(values)-20:]
	}

	return RSIResult{
		Current:    current,
		Values:     values,
		Overbought: current > 70,
		Oversold:   current < 30,
	}
}
