package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ualgo/engine/internal/db"
	"github.com/ualgo/engine/internal/indicators"
)

// decliningCandles builds a strict one-point-per-bar downtrend. RSI
// pins at 0 while the structural indicators stay silent, giving a
// clean oversold long setup. ATR is exactly 2.0.
func decliningCandles(n int) []indicators.Candle {
	candles := make([]indicators.Candle, n)
	for i := range candles {
		open := 200.0 - float64(i)
		candles[i] = indicators.Candle{
			Open:  open,
			Close: open - 1,
			High:  open + 0.5,
			Low:   open - 1.5,
		}
	}
	return candles
}

func risingCandles(n int) []indicators.Candle {
	candles := make([]indicators.Candle, n)
	for i := range candles {
		open := 100.0 + float64(i)
		candles[i] = indicators.Candle{
			Open:  open,
			Close: open + 1,
			High:  open + 1.5,
			Low:   open - 0.5,
		}
	}
	return candles
}

func newTestAnalyst(t *testing.T) (*TechnicalAnalyst, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	return NewTechnicalAnalyst(repo, newTestBus(t)), repo
}

func TestAnalyzeInsufficientCandles(t *testing.T) {
	analyst, _ := newTestAnalyst(t)

	result, err := analyst.Analyze(context.Background(), "BTCUSDT", decliningCandles(49), "1h")
	require.NoError(t, err)

	assert.Equal(t, "insufficient candle data: 49 < 50 required", result.Err)
	assert.Equal(t, db.DirectionNeutral, result.Direction)
	assert.Nil(t, result.EntryPrice)
}

func TestAnalyzeOversoldDowntrendGoesLong(t *testing.T) {
	analyst, repo := newTestAnalyst(t)

	result, err := analyst.Analyze(context.Background(), "BTCUSDT", decliningCandles(50), "1h")
	require.NoError(t, err)

	assert.Empty(t, result.Err)
	assert.Equal(t, db.DirectionLong, result.Direction)
	assert.Equal(t, 0.95, result.Confidence)
	assert.InDelta(t, 2.0, result.ATR, 1e-9)

	require.NotNil(t, result.EntryPrice)
	assert.InDelta(t, 150.0, *result.EntryPrice, 1e-9)
	require.NotNil(t, result.StopLoss)
	assert.InDelta(t, 147.0, *result.StopLoss, 1e-9)
	require.NotNil(t, result.TakeProfit)
	assert.InDelta(t, 155.0, *result.TakeProfit, 1e-9)
	require.NotNil(t, result.RiskReward)
	assert.InDelta(t, 5.0/3.0, *result.RiskReward, 1e-9)

	assert.Contains(t, result.Reasoning, "RSI oversold (0.0)")

	decisions := repo.memoriesOfType(db.MemoryTypeDecision)
	require.Len(t, decisions, 1)
	assert.Equal(t, "LONG", decisions[0].Content["direction"])
}

func TestAnalyzeOverboughtUptrendGoesShort(t *testing.T) {
	analyst, _ := newTestAnalyst(t)

	result, err := analyst.Analyze(context.Background(), "ETHUSDT", risingCandles(50), "1h")
	require.NoError(t, err)

	assert.Equal(t, db.DirectionShort, result.Direction)
	assert.Equal(t, 0.95, result.Confidence)

	require.NotNil(t, result.EntryPrice)
	assert.InDelta(t, 150.0, *result.EntryPrice, 1e-9)
	require.NotNil(t, result.StopLoss)
	assert.InDelta(t, 153.0, *result.StopLoss, 1e-9)
	require.NotNil(t, result.TakeProfit)
	assert.InDelta(t, 145.0, *result.TakeProfit, 1e-9)
}

func TestAnalyzeDefaultsTimeframe(t *testing.T) {
	analyst, _ := newTestAnalyst(t)

	result, err := analyst.Analyze(context.Background(), "BTCUSDT", decliningCandles(50), "")
	require.NoError(t, err)
	assert.Equal(t, "1h", result.Timeframe)
}

func TestSynthesizeWeighted(t *testing.T) {
	wRSI := indicatorWeights["rsi"]

	t.Run("no signals", func(t *testing.T) {
		direction, conf, _ := synthesizeWeighted(nil)
		assert.Equal(t, db.DirectionNeutral, direction)
		assert.Zero(t, conf)
	})

	t.Run("only neutral signals", func(t *testing.T) {
		direction, conf, _ := synthesizeWeighted([]subSignal{
			{db.DirectionNeutral, 0.30, wRSI, "RSI neutral (50.0)"},
		})
		assert.Equal(t, db.DirectionNeutral, direction)
		assert.Equal(t, 0.25, conf)
	})

	t.Run("exact tie", func(t *testing.T) {
		direction, conf, _ := synthesizeWeighted([]subSignal{
			{db.DirectionLong, 0.50, wRSI, "long"},
			{db.DirectionShort, 0.50, wRSI, "short"},
		})
		assert.Equal(t, db.DirectionNeutral, direction)
		assert.Equal(t, 0.50, conf)
	})

	t.Run("lead below threshold", func(t *testing.T) {
		direction, conf, _ := synthesizeWeighted([]subSignal{
			{db.DirectionLong, 0.50, wRSI, "long"},
			{db.DirectionShort, 0.45, wRSI, "short"},
		})
		assert.Equal(t, db.DirectionNeutral, direction)
		assert.Equal(t, 0.35, conf)
	})

	t.Run("clear winner", func(t *testing.T) {
		direction, conf, reasoning := synthesizeWeighted([]subSignal{
			{db.DirectionLong, 0.80, 0.5, "long case"},
			{db.DirectionShort, 0.10, 0.5, "short case"},
		})
		assert.Equal(t, db.DirectionLong, direction)
		assert.InDelta(t, 0.40/0.45, conf, 1e-9)
		assert.Equal(t, []string{"long case", "short case"}, reasoning)
	})
}
