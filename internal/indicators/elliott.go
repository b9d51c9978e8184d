package indicators

import "math"

// Pivot is a swing high or low in the close series
type Pivot struct {
	Index int     `json:"index"`
	Price float64 `json:"price"`
	Type  string  `json:"type"` // "high" or "low"
}

// Wave is one move between consecutive pivots
type Wave struct {
	FromPrice float64 `json:"from_price"`
	ToPrice   float64 `json:"to_price"`
	Type      string  `json:"type"` // "impulse" or "correction"
	MovePct   float64 `json:"move_pct"`
}

// ElliottResult holds the simplified wave count
type ElliottResult struct {
	WaveCount       int     `json:"wave_count"` // 1-5 impulse, 1=A 2=B 3=C correction
	TotalWaves      int     `json:"total_waves_detected"`
	Pivots          []Pivot `json:"pivots"` // last 10
	Trend           string  `json:"trend"`  // "bullish", "bearish", "unknown"
	CurrentWaveType string  `json:"current_wave_type"`
}

// ElliottWave counts waves from swing pivots. Alternating moves of at
// least minWavePct qualify as waves; the count cycles through the
// 5-impulse + 3-correction sequence.
func ElliottWave(closes []float64, minWavePct float64) ElliottResult {
	if minWavePct <= 0 {
		minWavePct = 0.02
	}
	if len(closes) < 20 {
		return ElliottResult{Trend: "unknown"}
	}

	pivots := findPivots(closes, 5)
	if len(pivots) < 3 {
		return ElliottResult{Pivots: pivots, Trend: "unknown"}
	}

	var waves []Wave
	for i := 1; i < len(pivots); i++ {
		prev := pivots[i-1]
		cur := pivots[i]
		movePct := math.Abs(cur.Price-prev.Price) / prev.Price
		if movePct >= minWavePct {
			waveType := "correction"
			if cur.Type != prev.Type {
				waveType = "impulse"
			}
			waves = append(waves, Wave{
				FromPrice: prev.Price,
				ToPrice:   cur.Price,
				Type:      waveType,
				MovePct:   movePct,
			})
		}
	}

	// 5 impulse + 3 correction = 8 per full cycle
	rawCount := len(waves) % 8
	waveCount := rawCount
	if waveCount > 5 {
		waveCount = waveCount - 5 // correction phase: 1=A, 2=B, 3=C
	}

	trend := "bearish"
	if pivots[len(pivots)-1].Price > pivots[len(pivots)-2].Price {
		trend = "bullish"
	}

	waveType := "correction"
	if rawCount <= 5 {
		waveType = "impulse"
	}

	if len(pivots) > 10 {
		pivots = pivots[len(pivots)-10:]
	}

	return ElliottResult{
		WaveCount:       waveCount,
		TotalWaves:      len(waves),
		Pivots:          pivots,
		Trend:           trend,
		CurrentWaveType: waveType,
	}
}

func findPivots(closes []float64, lookback int) []Pivot {
	var pivots []Pivot
	for i := lookback; i < len(closes)-lookback; i++ {
		window := closes[i-lookback : i+lookback+1]
		switch {
		case closes[i] == windowMax(window):
			pivots = append(pivots, Pivot{Index: i, Price: closes[i], Type: "high"})
		case closes[i] == windowMin(window):
			pivots = append(pivots, Pivot{Index: i, Price: closes[i], Type: "low"})
		}
	}
	return pivots
}
