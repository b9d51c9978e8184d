package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ualgo/engine/internal/db"
)

func newTestLab(t *testing.T) (*QuantLab, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	return NewQuantLab(repo, newTestBus(t)), repo
}

func closedPosition(pnl float64, openedAt time.Time) db.Position {
	closedAt := openedAt.Add(2 * time.Hour)
	return db.Position{
		Symbol:        "BTCUSDT",
		Side:          db.DirectionLong,
		EntryPrice:    100,
		Quantity:      1,
		UnrealizedPnL: ptr(pnl),
		Status:        "closed",
		StrategyID:    "default",
		OpenedAt:      openedAt,
		ClosedAt:      &closedAt,
	}
}

func TestRunOptimizationNoTrades(t *testing.T) {
	lab, repo := newTestLab(t)

	result, err := lab.RunOptimization(context.Background(), "", 0)
	require.NoError(t, err)

	assert.Equal(t, "default", result.StrategyID)
	assert.Equal(t, 30, result.LookbackDays)
	assert.Equal(t, int64(1), result.OptimizationNumber)
	assert.Equal(t, "UNKNOWN", result.Regime)
	assert.Zero(t, result.Performance.TotalTrades)
	assert.Contains(t, result.Recommendations,
		"🔴 No closed trades in lookback window, verify database connectivity and position status updates")

	// the empty window still snapshots the default portfolio value
	assert.True(t, result.SnapshotCreated)
	require.Len(t, repo.upsertedSnapshots, 1)
	assert.Equal(t, 10_000.0, repo.upsertedSnapshots[0].TotalValue)

	learnings := repo.memoriesOfType(db.MemoryTypeLearning)
	require.Len(t, learnings, 1)
	assert.Equal(t, 0.5, learnings[0].Importance)
	require.NotNil(t, learnings[0].ExpiresAt)

	result, err = lab.RunOptimization(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.OptimizationNumber)
}

func TestRunOptimizationUnfavorableRegime(t *testing.T) {
	lab, repo := newTestLab(t)

	// 11 small wins then 19 losses: win rate 36.7%, drawdown -7.98%
	opened := time.Now().UTC().Add(-48 * time.Hour)
	for i := 0; i < 11; i++ {
		repo.closedPositions = append(repo.closedPositions, closedPosition(0.01, opened))
	}
	for i := 0; i < 19; i++ {
		repo.closedPositions = append(repo.closedPositions, closedPosition(-0.0042, opened))
	}

	result, err := lab.RunOptimization(context.Background(), "default", 30)
	require.NoError(t, err)

	perf := result.Performance
	assert.Equal(t, 30, perf.TotalTrades)
	assert.Equal(t, 11, perf.WinningTrades)
	assert.Equal(t, 19, perf.LosingTrades)
	assert.InDelta(t, 11.0/30.0, perf.WinRate, 1e-9)
	require.NotNil(t, perf.MaxDrawdown)
	assert.InDelta(t, -0.0798, *perf.MaxDrawdown, 1e-9)
	require.NotNil(t, perf.AvgHoldingHours)
	assert.InDelta(t, 2.0, *perf.AvgHoldingHours, 1e-9)

	assert.Equal(t, "UNFAVORABLE", result.Regime)
	assert.Contains(t, result.Recommendations,
		"🟡 Win rate below target (36.7%), tighten consensus threshold by +5% and review RSI/Bollinger weights")
	assert.Contains(t, result.Recommendations,
		"🟡 Drawdown elevated (-8.0%), tighten stop-loss and reduce leverage for next 5 trades")
}

func TestRunOptimizationCriticalWinRate(t *testing.T) {
	lab, repo := newTestLab(t)

	opened := time.Now().UTC().Add(-48 * time.Hour)
	for i := 0; i < 3; i++ {
		repo.closedPositions = append(repo.closedPositions, closedPosition(0.01, opened))
	}
	for i := 0; i < 7; i++ {
		repo.closedPositions = append(repo.closedPositions, closedPosition(-0.02, opened))
	}

	result, err := lab.RunOptimization(context.Background(), "default", 30)
	require.NoError(t, err)

	assert.Equal(t, "UNFAVORABLE", result.Regime)
	assert.Contains(t, result.Recommendations,
		"🔴 Win rate critically low (30.0%), increase min_consensus_confidence to ≥0.65 and review indicator weights")
	require.NotNil(t, result.Performance.ProfitFactor)
	assert.Less(t, *result.Performance.ProfitFactor, 1.0)
}

func TestClassifyRegime(t *testing.T) {
	cases := []struct {
		name string
		perf Performance
		want string
	}{
		{"no trades", Performance{}, "UNKNOWN"},
		{"high win rate no sharpe", Performance{TotalTrades: 10, WinRate: 0.65}, "TRENDING_FAVORABLE"},
		{"high win rate strong sharpe", Performance{TotalTrades: 10, WinRate: 0.62, SharpeRatio: ptr(1.4)}, "TRENDING_FAVORABLE"},
		{"high win rate weak sharpe", Performance{TotalTrades: 10, WinRate: 0.65, SharpeRatio: ptr(0.5)}, "STABLE"},
		{"steady shallow drawdown", Performance{TotalTrades: 10, WinRate: 0.52, MaxDrawdown: ptr(-0.02)}, "STABLE"},
		{"low win rate", Performance{TotalTrades: 10, WinRate: 0.30}, "UNFAVORABLE"},
		{"deep drawdown", Performance{TotalTrades: 10, WinRate: 0.50, MaxDrawdown: ptr(-0.12)}, "UNFAVORABLE"},
		{"flat chop", Performance{TotalTrades: 10, WinRate: 0.45, MaxDrawdown: ptr(-0.01)}, "RANGING"},
		{"mixed", Performance{TotalTrades: 10, WinRate: 0.45, MaxDrawdown: ptr(-0.06)}, "MIXED"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyRegime(tc.perf))
		})
	}
}

func TestAnalyzeAgentAccuracy(t *testing.T) {
	lab, repo := newTestLab(t)
	repo.voteOutcomes["technical_analyst"] = []db.VoteOutcome{
		{Vote: db.VoteApprove, Confidence: 0.90, Status: db.SignalStatusExecuted},
		{Vote: db.VoteApprove, Confidence: 0.70, Status: db.SignalStatusRejected},
		{Vote: db.VoteReject, Confidence: 0.85, Status: db.SignalStatusRejected},
	}

	accuracy := lab.analyzeAgentAccuracy(context.Background(), 7)

	ta := accuracy["technical_analyst"]
	assert.Equal(t, 3, ta.TotalVotes)
	assert.Equal(t, 2, ta.CorrectVotes)
	require.NotNil(t, ta.Accuracy)
	assert.InDelta(t, 2.0/3.0, *ta.Accuracy, 1e-9)
	assert.InDelta(t, 2.0/3.0, ta.Overconfident, 1e-9)

	// agents with no vote history report empty accuracy, not an error
	alpha := accuracy["alpha_scout"]
	assert.Zero(t, alpha.TotalVotes)
	assert.Nil(t, alpha.Accuracy)
}

func TestAnalyzeSignalHealth(t *testing.T) {
	lab, repo := newTestLab(t)
	repo.signals = []db.Signal{
		{Symbol: "BTCUSDT", Direction: db.DirectionLong, Status: db.SignalStatusApproved, Confidence: 0.6},
		{Symbol: "BTCUSDT", Direction: db.DirectionLong, Status: db.SignalStatusApproved, Confidence: 0.8},
		{Symbol: "BTCUSDT", Direction: db.DirectionLong, Status: db.SignalStatusExecuted, Confidence: 0.7},
		{Symbol: "ETHUSDT", Direction: db.DirectionShort, Status: db.SignalStatusPending, Confidence: 0.5},
		{Symbol: "SOLUSDT", Direction: db.DirectionNeutral, Status: db.SignalStatusPending, Confidence: 0.9},
	}

	health := lab.analyzeSignalHealth(context.Background(), 30)

	assert.Equal(t, 5, health.TotalSignals)
	assert.Equal(t, 3, health.LongCount)
	assert.Equal(t, 1, health.ShortCount)
	assert.Equal(t, 1, health.NeutralCount)
	assert.InDelta(t, 0.6, health.DirectionBalance, 1e-9)
	assert.InDelta(t, 0.4, health.ApprovalRate, 1e-9)
	assert.InDelta(t, 0.2, health.ExecutionRate, 1e-9)
	require.NotNil(t, health.AvgConfidence)
	assert.InDelta(t, 0.7, *health.AvgConfidence, 1e-9)
	assert.Equal(t, 3, health.UniqueSymbols)
	require.NotNil(t, health.TopSymbol)
	assert.Equal(t, "BTCUSDT", health.TopSymbol.Symbol)
	assert.Equal(t, 3, health.TopSymbol.Count)
}

func TestAnalyzeSignalHealthTopSymbolTieBreak(t *testing.T) {
	lab, repo := newTestLab(t)
	repo.signals = []db.Signal{
		{Symbol: "BBBUSDT", Direction: db.DirectionLong, Confidence: 0.5},
		{Symbol: "AAAUSDT", Direction: db.DirectionLong, Confidence: 0.5},
	}

	health := lab.analyzeSignalHealth(context.Background(), 30)
	require.NotNil(t, health.TopSymbol)
	assert.Equal(t, "AAAUSDT", health.TopSymbol.Symbol)
}

func TestCreateSnapshotValuesOpenPositions(t *testing.T) {
	lab, repo := newTestLab(t)
	repo.openPositions = []db.Position{
		{Symbol: "BTCUSDT", Quantity: 2, EntryPrice: 100, CurrentPrice: ptr(110)},
		{Symbol: "ETHUSDT", Quantity: 1, EntryPrice: 50},
	}

	created := lab.createSnapshot(context.Background(), Performance{TotalPnL: 27})
	assert.True(t, created)

	require.Len(t, repo.upsertedSnapshots, 1)
	snap := repo.upsertedSnapshots[0]
	assert.InDelta(t, 270.0, snap.TotalValue, 1e-9)
	assert.Equal(t, 2, snap.OpenPositions)
	assert.InDelta(t, 27.0, snap.TotalPnL, 1e-9)
	assert.InDelta(t, 10.0, snap.TotalPnLPct, 1e-9)
}
