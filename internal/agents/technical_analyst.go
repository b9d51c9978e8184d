package agents

import (
	"context"
	"fmt"

	"github.com/ualgo/engine/internal/bus"
	"github.com/ualgo/engine/internal/db"
	"github.com/ualgo/engine/internal/indicators"
)

// minCandles is the minimum history required for reliable analysis
const minCandles = 50

// Indicator weights in the sub-signal vote. Order blocks carry the
// highest weight as the institutional-bias signal.
var indicatorWeights = map[string]float64{
	"rsi":                0.20,
	"bollinger":          0.18,
	"order_block":        0.22,
	"fvg":                0.15,
	"support_resistance": 0.15,
	"elliott_wave":       0.10,
}

const (
	atrMultiplierSL = 1.5
	atrMultiplierTP = 2.5
)

// TechnicalResult is the Technical Analyst's output. Err is set
// instead of failing when the input is insufficient; callers treat
// such results as skips.
type TechnicalResult struct {
	Agent       string       `json:"agent"`
	Symbol      string       `json:"symbol"`
	Timeframe   string       `json:"timeframe"`
	Direction   db.Direction `json:"direction"`
	Confidence  float64      `json:"confidence"`
	EntryPrice  *float64     `json:"entry_price"`
	StopLoss    *float64     `json:"stop_loss"`
	TakeProfit  *float64     `json:"take_profit"`
	RiskReward  *float64     `json:"risk_reward"`
	ATR         float64      `json:"atr"`
	Reasoning   []string     `json:"reasoning"`
	SignalCount int          `json:"signal_count"`
	Err         string       `json:"error,omitempty"`
}

// subSignal is one indicator's weighted directional opinion
type subSignal struct {
	direction db.Direction
	conf      float64
	weight    float64
	label     string
}

// TechnicalAnalyst synthesizes RSI, Bollinger, order blocks, fair
// value gaps, support/resistance and Elliott waves into one
// directional conviction with ATR-based trade levels.
type TechnicalAnalyst struct {
	*BaseAgent
}

// NewTechnicalAnalyst creates the technical analysis agent
func NewTechnicalAnalyst(repo Repository, b *bus.Bus) *TechnicalAnalyst {
	return &TechnicalAnalyst{
		BaseAgent: NewBaseAgent(
			"technical_analyst",
			"Technical Analysis - SMC, RSI, Bollinger, Elliott, S/R",
			"1.3.0",
			repo, b,
		),
	}
}

// Analyze runs the full indicator stack over the candles
func (a *TechnicalAnalyst) Analyze(ctx context.Context, symbol string, candles []indicators.Candle, timeframe string) (*TechnicalResult, error) {
	return runTracked(ctx, a.BaseAgent, symbol, func(ctx context.Context) (*TechnicalResult, error) {
		return a.analyze(ctx, symbol, candles, timeframe)
	})
}

func (a *TechnicalAnalyst) analyze(ctx context.Context, symbol string, candles []indicators.Candle, timeframe string) (*TechnicalResult, error) {
	if timeframe == "" {
		timeframe = "1h"
	}
	if len(candles) < minCandles {
		return &TechnicalResult{
			Agent:     a.Name(),
			Symbol:    symbol,
			Timeframe: timeframe,
			Direction: db.DirectionNeutral,
			Err:       fmt.Sprintf("insufficient candle data: %d < %d required", len(candles), minCandles),
		}, nil
	}

	closes := indicators.Closes(candles)
	highs := indicators.Highs(candles)
	lows := indicators.Lows(candles)
	currentPrice := closes[len(closes)-1]

	rsi := indicators.RSI(closes, 14)
	boll := indicators.Bollinger(closes, 20, 2.0)
	levels := indicators.SupportResistance(highs, lows, closes, 5)
	blocks := indicators.OrderBlocks(candles, 50)
	gaps := indicators.FairValueGaps(candles, 50)
	elliott := indicators.ElliottWave(closes, 0.02)
	atr := indicators.ATR(candles, 14)

	var signals []subSignal

	// RSI momentum
	switch {
	case rsi.Current < 30:
		signals = append(signals, subSignal{db.DirectionLong, 0.80, indicatorWeights["rsi"], fmt.Sprintf("RSI oversold (%.1f)", rsi.Current)})
	case rsi.Current < 40:
		signals = append(signals, subSignal{db.DirectionLong, 0.50, indicatorWeights["rsi"], fmt.Sprintf("RSI approaching oversold (%.1f)", rsi.Current)})
	case rsi.Current > 70:
		signals = append(signals, subSignal{db.DirectionShort, 0.80, indicatorWeights["rsi"], fmt.Sprintf("RSI overbought (%.1f)", rsi.Current)})
	case rsi.Current > 60:
		signals = append(signals, subSignal{db.DirectionShort, 0.50, indicatorWeights["rsi"], fmt.Sprintf("RSI approaching overbought (%.1f)", rsi.Current)})
	default:
		signals = append(signals, subSignal{db.DirectionNeutral, 0.30, indicatorWeights["rsi"], fmt.Sprintf("RSI neutral (%.1f)", rsi.Current)})
	}

	// Bollinger envelope
	switch {
	case currentPrice <= boll.Lower:
		signals = append(signals, subSignal{db.DirectionLong, 0.75, indicatorWeights["bollinger"], "Price at/below lower Bollinger, mean reversion likely"})
	case currentPrice >= boll.Upper:
		signals = append(signals, subSignal{db.DirectionShort, 0.75, indicatorWeights["bollinger"], "Price at/above upper Bollinger, mean reversion likely"})
	case currentPrice > boll.Middle && boll.Bandwidth < 0.02:
		signals = append(signals, subSignal{db.DirectionLong, 0.35, indicatorWeights["bollinger"], "Bollinger squeeze, breakout pending"})
	default:
		signals = append(signals, subSignal{db.DirectionNeutral, 0.20, indicatorWeights["bollinger"], "Price within Bollinger bands"})
	}

	// Support / resistance proximity
	if levels.NearestSupport != nil && currentPrice <= *levels.NearestSupport*1.008 {
		proximity := absFloat(currentPrice-*levels.NearestSupport) / currentPrice
		conf := maxFloat(0.70-proximity*10, 0.40)
		signals = append(signals, subSignal{db.DirectionLong, conf, indicatorWeights["support_resistance"],
			fmt.Sprintf("Near support %.4f (%.2f%% away)", *levels.NearestSupport, proximity*100)})
	} else if levels.NearestResistance != nil && currentPrice >= *levels.NearestResistance*0.992 {
		proximity := absFloat(currentPrice-*levels.NearestResistance) / currentPrice
		conf := maxFloat(0.70-proximity*10, 0.40)
		signals = append(signals, subSignal{db.DirectionShort, conf, indicatorWeights["support_resistance"],
			fmt.Sprintf("Near resistance %.4f (%.2f%% away)", *levels.NearestResistance, proximity*100)})
	}

	// Order blocks
	if len(blocks.Bullish) > 0 {
		ob := blocks.Bullish[len(blocks.Bullish)-1]
		if currentPrice <= ob.High*1.005 {
			signals = append(signals, subSignal{db.DirectionLong, 0.75, indicatorWeights["order_block"],
				fmt.Sprintf("Bullish OB at %.4f-%.4f", ob.Low, ob.High)})
		}
	}
	if len(blocks.Bearish) > 0 {
		ob := blocks.Bearish[len(blocks.Bearish)-1]
		if currentPrice >= ob.Low*0.995 {
			signals = append(signals, subSignal{db.DirectionShort, 0.75, indicatorWeights["order_block"],
				fmt.Sprintf("Bearish OB at %.4f-%.4f", ob.Low, ob.High)})
		}
	}

	// Fair value gaps
	if len(gaps.Bullish) > 0 {
		signals = append(signals, subSignal{db.DirectionLong, 0.60, indicatorWeights["fvg"],
			fmt.Sprintf("%d bullish FVG(s), price likely to fill gap upward", len(gaps.Bullish))})
	}
	if len(gaps.Bearish) > 0 {
		signals = append(signals, subSignal{db.DirectionShort, 0.60, indicatorWeights["fvg"],
			fmt.Sprintf("%d bearish FVG(s), price likely to fill gap downward", len(gaps.Bearish))})
	}

	// Elliott wave context
	switch elliott.WaveCount {
	case 2, 4:
		signals = append(signals, subSignal{db.DirectionLong, 0.55, indicatorWeights["elliott_wave"],
			fmt.Sprintf("Elliott wave %d (corrective end, impulse expected)", elliott.WaveCount)})
	case 3:
		signals = append(signals, subSignal{db.DirectionShort, 0.45, indicatorWeights["elliott_wave"],
			"Elliott wave 3 (impulse peak region)"})
	case 5:
		signals = append(signals, subSignal{db.DirectionShort, 0.60, indicatorWeights["elliott_wave"],
			"Elliott wave 5 (terminal impulse, reversal likely)"})
	}

	direction, confidence, reasoning := synthesizeWeighted(signals)

	result := &TechnicalResult{
		Agent:       a.Name(),
		Symbol:      symbol,
		Timeframe:   timeframe,
		Direction:   direction,
		Confidence:  confidence,
		ATR:         atr,
		Reasoning:   reasoning,
		SignalCount: len(signals),
	}

	if direction != db.DirectionNeutral {
		result.EntryPrice = ptr(currentPrice)
		var stopLoss, takeProfit float64
		if direction == db.DirectionLong {
			stopLoss = currentPrice - atrMultiplierSL*atr
			takeProfit = currentPrice + atrMultiplierTP*atr
		} else {
			stopLoss = currentPrice + atrMultiplierSL*atr
			takeProfit = currentPrice - atrMultiplierTP*atr
		}
		result.StopLoss = ptr(stopLoss)
		result.TakeProfit = ptr(takeProfit)

		slDist := absFloat(stopLoss - currentPrice)
		if slDist > 0 {
			result.RiskReward = ptr(absFloat(takeProfit-currentPrice) / slDist)
		}
	}

	if _, err := a.memory.StoreDecision(ctx, symbol, map[string]any{
		"direction":   string(direction),
		"confidence":  confidence,
		"entry_price": currentPrice,
		"timeframe":   timeframe,
	}, 0); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to store technical decision")
	}

	return result, nil
}

// synthesizeWeighted folds the sub-signals into one conviction. A
// directional call needs a lead of at least 0.15 over the opposing
// side to filter out noise trades.
func synthesizeWeighted(signals []subSignal) (db.Direction, float64, []string) {
	if len(signals) == 0 {
		return db.DirectionNeutral, 0, nil
	}

	var longScore, shortScore float64
	reasoning := make([]string, 0, len(signals))
	for _, s := range signals {
		reasoning = append(reasoning, s.label)
		switch s.direction {
		case db.DirectionLong:
			longScore += s.conf * s.weight
		case db.DirectionShort:
			shortScore += s.conf * s.weight
		}
	}

	total := longScore + shortScore
	if total == 0 {
		return db.DirectionNeutral, 0.25, reasoning
	}

	winner, winning := db.DirectionLong, longScore
	if shortScore > longScore {
		winner, winning = db.DirectionShort, shortScore
	} else if shortScore == longScore {
		return db.DirectionNeutral, 0.50, reasoning
	}

	if absFloat(longScore-shortScore)/total < 0.15 {
		return db.DirectionNeutral, 0.35, reasoning
	}
	return winner, minFloat(winning/total, 0.95), reasoning
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
