package indicators

import "math"

// OrderBlock is the zone of the last opposing candle before a strong
// impulsive move.
type OrderBlock struct {
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Index    int     `json:"index"`
	Strength float64 `json:"strength"` // successor body / own body
}

// OrderBlocksResult holds detected order blocks per side
type OrderBlocksResult struct {
	Bullish []OrderBlock `json:"bullish"`
	Bearish []OrderBlock `json:"bearish"`
}

// OrderBlocks scans the last lookback candles for order blocks. A
// bullish OB is a bearish candle whose successor's bullish body is at
// least 1.5x its own; mirror for bearish. The last 5 per side are kept.
func OrderBlocks(candles []Candle, lookback int) OrderBlocksResult {
	if lookback <= 0 {
		lookback = 50
	}
	if len(candles) < 3 {
		return OrderBlocksResult{}
	}

	recent := candles
	if len(recent) > lookback {
		recent = recent[len(recent)-lookback:]
	}

	var bullish, bearish []OrderBlock
	for i := 1; i < len(recent)-1; i++ {
		cur := recent[i]
		next := recent[i+1]

		curBody := cur.Close - cur.Open
		nextBody := next.Close - next.Open

		if curBody < 0 && nextBody > 0 && math.Abs(nextBody) > math.Abs(curBody)*1.5 {
			bullish = append(bullish, OrderBlock{
				High:     cur.High,
				Low:      cur.Low,
				Index:    i,
				Strength: blockStrength(nextBody, curBody),
			})
		}
		if curBody > 0 && nextBody < 0 && math.Abs(nextBody) > math.Abs(curBody)*1.5 {
			bearish = append(bearish, OrderBlock{
				High:     cur.High,
				Low:      cur.Low,
				Index:    i,
				Strength: blockStrength(nextBody, curBody),
			})
		}
	}

	return OrderBlocksResult{
		Bullish: lastBlocks(bullish, 5),
		Bearish: lastBlocks(bearish, 5),
	}
}

func blockStrength(nextBody, curBody float64) float64 {
	if math.Abs(curBody) == 0 {
		return 0
	}
	return math.Abs(nextBody) / math.Abs(curBody)
}

func lastBlocks(blocks []OrderBlock, n int) []OrderBlock {
	if len(blocks) > n {
		return blocks[len(blocks)-n:]
	}
	return blocks
}

// FVG is a three-candle price imbalance
type FVG struct {
	Top     float64 `json:"top"`
	Bottom  float64 `json:"bottom"`
	GapSize float64 `json:"gap_size"`
	Index   int     `json:"index"`
}

// FVGResult holds detected fair value gaps per side
type FVGResult struct {
	Bullish []FVG `json:"bullish"`
	Bearish []FVG `json:"bearish"`
}

// FairValueGaps detects three-candle gaps: bullish when the third
// candle's low clears the first candle's high, bearish on the mirror.
// The last 5 per side are kept.
func FairValueGaps(candles []Candle, lookback int) FVGResult {
	if lookback <= 0 {
		lookback = 50
	}
	if len(candles) < 3 {
		return FVGResult{}
	}

	recent := candles
	if len(recent) > lookback {
		recent = recent[len(recent)-lookback:]
	}

	var bullish, bearish []FVG
	for i := 2; i < len(recent); i++ {
		c1 := recent[i-2]
		c3 := recent[i]

		if c3.Low > c1.High {
			bullish = append(bullish, FVG{
				Top:     c3.Low,
				Bottom:  c1.High,
				GapSize: c3.Low - c1.High,
				Index:   i,
			})
		}
		if c3.High < c1.Low {
			bearish = append(bearish, FVG{
				Top:     c1.Low,
				Bottom:  c3.High,
				GapSize: c1.Low - c3.High,
				Index:   i,
			})
		}
	}

	if len(bullish) > 5 {
		bullish = bullish[len(bullish)-5:]
	}
	if len(bearish) > 5 {
		bearish = bearish[len(bearish)-5:]
	}

	return FVGResult{Bullish: bullish, Bearish: bearish}
}
