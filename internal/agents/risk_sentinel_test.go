package agents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ualgo/engine/internal/bus"
	"github.com/ualgo/engine/internal/config"
	"github.com/ualgo/engine/internal/db"
)

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxOpenPositions:     5,
		MaxDailyTrades:       10,
		DailyLossLimitPct:    -3.0,
		KillSwitchDrawdown:   -10.0,
		CooldownAfterLossSec: 3600,
		MaxRiskPerTrade:      0.02,
		MaxSingleAssetRatio:  0.25,
		MaxConcentrationPct:  0.40,
		VolatilityThreshold:  0.30,
	}
}

func newTestSentinel(t *testing.T) (*RiskSentinel, *fakeRepo, *bus.Bus) {
	t.Helper()
	repo := newFakeRepo()
	b := newTestBus(t)
	return NewRiskSentinel(repo, b, testRiskConfig()), repo, b
}

// two unrelated open positions keep the concentration estimate for a
// new symbol at 1/3
func seedOtherPositions(repo *fakeRepo) {
	repo.openPositions = []db.Position{
		{Symbol: "ETHUSDT"},
		{Symbol: "SOLUSDT"},
	}
}

func smallProposal() *ProposedSignal {
	return &ProposedSignal{
		Direction:  db.DirectionLong,
		EntryPrice: 100,
		StopLoss:   97,
		Quantity:   0.1,
	}
}

func TestAnalyzeCleanPortfolioApproves(t *testing.T) {
	sentinel, repo, _ := newTestSentinel(t)
	seedOtherPositions(repo)

	result, err := sentinel.Analyze(context.Background(), "BTCUSDT", smallProposal())
	require.NoError(t, err)

	assert.Equal(t, db.VoteApprove, result.Vote)
	assert.Equal(t, 1.0, result.Confidence)
	assert.Equal(t, db.DirectionLong, result.Direction)
	assert.Zero(t, result.RiskScore)
	assert.Empty(t, result.Flags)
	assert.False(t, result.KillSwitchActive)
	assert.Equal(t, 10_000.0, result.Portfolio.TotalValue)
}

func TestAnalyzeMaxPositionsReached(t *testing.T) {
	sentinel, repo, _ := newTestSentinel(t)
	repo.openPositions = []db.Position{
		{Symbol: "ETHUSDT"}, {Symbol: "SOLUSDT"}, {Symbol: "ADAUSDT"},
		{Symbol: "DOTUSDT"}, {Symbol: "AVAXUSDT"},
	}

	result, err := sentinel.Analyze(context.Background(), "BTCUSDT", smallProposal())
	require.NoError(t, err)

	assert.Equal(t, db.VoteReject, result.Vote)
	assert.Contains(t, result.Flags, "MAX_POSITIONS_REACHED (5/5)")
	assert.Equal(t, 0.75, result.RiskScore)
	assert.Equal(t, 0.75, result.Confidence)
	assert.Equal(t, db.DirectionNeutral, result.Direction)
}

func TestAnalyzeDrawdownTripsKillSwitch(t *testing.T) {
	sentinel, repo, b := newTestSentinel(t)
	seedOtherPositions(repo)
	repo.snapshot = &db.PortfolioSnapshot{TotalValue: 10_000, MaxDrawdown: -0.12}

	killEvents := make(chan *bus.Message, 2)
	_, err := b.Subscribe("risk.kill_switch", func(msg *bus.Message) {
		killEvents <- msg
	})
	require.NoError(t, err)

	ctx := context.Background()
	result, err := sentinel.Analyze(ctx, "BTCUSDT", smallProposal())
	require.NoError(t, err)

	assert.Equal(t, db.VoteReject, result.Vote)
	assert.Contains(t, result.Flags, "MAX_DRAWDOWN_EXCEEDED (-12.00% < -10.00% limit)")
	assert.Equal(t, 0.95, result.RiskScore)
	assert.True(t, result.KillSwitchActive)
	assert.True(t, sentinel.KillSwitchActive())

	select {
	case msg := <-killEvents:
		assert.Equal(t, true, msg.Payload["active"])
		assert.Equal(t, "Max drawdown exceeded: -12.00%", msg.Payload["reason"])
	case <-time.After(2 * time.Second):
		t.Fatal("no kill switch broadcast received")
	}

	patterns := repo.memoriesOfType(db.MemoryTypePattern)
	require.Len(t, patterns, 1)
	assert.Equal(t, 1.0, patterns[0].Importance)
	assert.Equal(t, "kill_switch_activated", patterns[0].Content["event"])

	// while latched, every evaluation rejects at maximum severity
	result, err = sentinel.Analyze(ctx, "BTCUSDT", smallProposal())
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.RiskScore)
	assert.Contains(t, result.Flags, "KILL_SWITCH_ACTIVE (reason: Max drawdown exceeded: -12.00%)")

	sentinel.DeactivateKillSwitch(ctx, "ops")
	assert.False(t, sentinel.KillSwitchActive())

	select {
	case msg := <-killEvents:
		assert.Equal(t, false, msg.Payload["active"])
		assert.Equal(t, "ops", msg.Payload["operator"])
	case <-time.After(2 * time.Second):
		t.Fatal("no deactivation broadcast received")
	}
}

func TestAnalyzeDailyLossTripsKillSwitch(t *testing.T) {
	sentinel, repo, _ := newTestSentinel(t)
	repo.openPositions = []db.Position{
		{Symbol: "ETHUSDT", UnrealizedPnL: ptr(-250)},
		{Symbol: "SOLUSDT", UnrealizedPnL: ptr(-150)},
	}
	repo.snapshot = &db.PortfolioSnapshot{TotalValue: 10_000}

	result, err := sentinel.Analyze(context.Background(), "BTCUSDT", smallProposal())
	require.NoError(t, err)

	assert.Equal(t, db.VoteReject, result.Vote)
	assert.Contains(t, result.Flags, "DAILY_LOSS_EXCEEDED (-4.00% < -3.00% limit)")
	assert.Equal(t, 0.90, result.RiskScore)
	assert.True(t, sentinel.KillSwitchActive())
	assert.InDelta(t, -0.04, result.Portfolio.DailyPnLPct, 1e-9)
}

func TestAnalyzeTradeRiskExceeded(t *testing.T) {
	sentinel, repo, _ := newTestSentinel(t)
	seedOtherPositions(repo)

	proposed := &ProposedSignal{
		Direction:  db.DirectionLong,
		EntryPrice: 100,
		StopLoss:   50,
		Quantity:   10,
	}

	result, err := sentinel.Analyze(context.Background(), "BTCUSDT", proposed)
	require.NoError(t, err)

	assert.Equal(t, db.VoteReject, result.Vote)
	assert.Contains(t, result.Flags, "TRADE_RISK_EXCEEDED (5.00% > 2.00% max per trade)")
}

func TestAnalyzeSingleAssetOverweight(t *testing.T) {
	sentinel, repo, _ := newTestSentinel(t)
	seedOtherPositions(repo)

	proposed := &ProposedSignal{
		Direction:  db.DirectionLong,
		EntryPrice: 100,
		StopLoss:   99,
		Quantity:   30,
	}

	result, err := sentinel.Analyze(context.Background(), "BTCUSDT", proposed)
	require.NoError(t, err)

	assert.Equal(t, db.VoteReject, result.Vote)
	assert.Contains(t, result.Flags, "SINGLE_ASSET_OVERWEIGHT (30% > 25% max)")
	assert.Equal(t, 0.70, result.RiskScore)
}

func TestAnalyzeCoolDownAfterLoss(t *testing.T) {
	sentinel, repo, _ := newTestSentinel(t)
	seedOtherPositions(repo)

	t0 := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	sentinel.clock = func() time.Time { return t0 }
	sentinel.RecordLoss()

	sentinel.clock = func() time.Time { return t0.Add(100 * time.Second) }
	result, err := sentinel.Analyze(context.Background(), "BTCUSDT", smallProposal())
	require.NoError(t, err)

	assert.Equal(t, db.VoteReject, result.Vote)
	assert.Contains(t, result.Flags, "COOL_DOWN_ACTIVE (3500s remaining after last loss)")
	assert.Equal(t, 0.65, result.RiskScore)

	// clear of the window
	sentinel.clock = func() time.Time { return t0.Add(2 * time.Hour) }
	result, err = sentinel.Analyze(context.Background(), "BTCUSDT", smallProposal())
	require.NoError(t, err)
	assert.Equal(t, db.VoteApprove, result.Vote)
}

func TestAnalyzeDailyTradeLimitResetsAtMidnightUTC(t *testing.T) {
	sentinel, repo, _ := newTestSentinel(t)
	seedOtherPositions(repo)

	day1 := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	sentinel.clock = func() time.Time { return day1 }
	for i := 0; i < 10; i++ {
		sentinel.RecordTradeExecuted()
	}

	result, err := sentinel.Analyze(context.Background(), "BTCUSDT", smallProposal())
	require.NoError(t, err)
	assert.Equal(t, db.VoteReject, result.Vote)
	assert.Contains(t, result.Flags, "DAILY_TRADE_LIMIT (10/10)")

	sentinel.clock = func() time.Time { return day1.Add(2 * time.Hour) }
	result, err = sentinel.Analyze(context.Background(), "BTCUSDT", smallProposal())
	require.NoError(t, err)
	assert.Equal(t, db.VoteApprove, result.Vote)
	assert.Empty(t, result.Flags)
}

func TestAnalyzeExtremeVolatility(t *testing.T) {
	sentinel, repo, _ := newTestSentinel(t)
	seedOtherPositions(repo)
	repo.confidences = []float64{0.1, 0.9, 0.1, 0.9}

	result, err := sentinel.Analyze(context.Background(), "BTCUSDT", smallProposal())
	require.NoError(t, err)

	assert.Equal(t, db.VoteReject, result.Vote)
	assert.Contains(t, result.Flags, "EXTREME_VOLATILITY (signal_std=0.400 > 0.30)")
	assert.True(t, result.Volatility.IsExtreme)
	assert.Equal(t, 4, result.Volatility.SampleSize)
}

func TestAnalyzeVolatilityNeedsThreeSamples(t *testing.T) {
	sentinel, repo, _ := newTestSentinel(t)
	seedOtherPositions(repo)
	repo.confidences = []float64{0.1, 0.9}

	result, err := sentinel.Analyze(context.Background(), "BTCUSDT", smallProposal())
	require.NoError(t, err)
	assert.False(t, result.Volatility.IsExtreme)
	assert.Empty(t, result.Flags)
}

func TestAnalyzeConcentrationRisk(t *testing.T) {
	sentinel, repo, _ := newTestSentinel(t)
	repo.openPositions = []db.Position{{Symbol: "BTCUSDT"}}

	result, err := sentinel.Analyze(context.Background(), "BTCUSDT", smallProposal())
	require.NoError(t, err)

	assert.Equal(t, db.VoteReject, result.Vote)
	assert.Contains(t, result.Flags, "CONCENTRATION_RISK (BTCUSDT: 100% of open positions)")
	assert.Equal(t, 0.60, result.RiskScore)
}

func TestAnalyzeDegradesOnRepositoryFailure(t *testing.T) {
	sentinel, repo, _ := newTestSentinel(t)
	repo.err = errors.New("connection refused")

	result, err := sentinel.Analyze(context.Background(), "BTCUSDT", nil)
	require.NoError(t, err)

	assert.Equal(t, db.VoteApprove, result.Vote)
	assert.Equal(t, 10_000.0, result.Portfolio.TotalValue)
	assert.Zero(t, result.Portfolio.OpenPositions)
	assert.Empty(t, result.Flags)
}

func TestKillSwitchActivationIsIdempotent(t *testing.T) {
	sentinel, repo, _ := newTestSentinel(t)
	ctx := context.Background()

	sentinel.ActivateKillSwitch(ctx, "first reason")
	sentinel.ActivateKillSwitch(ctx, "second reason")

	patterns := repo.memoriesOfType(db.MemoryTypePattern)
	require.Len(t, patterns, 1)
	assert.Equal(t, "first reason", patterns[0].Content["reason"])
}

func TestSummaryReportsPosture(t *testing.T) {
	sentinel, _, _ := newTestSentinel(t)

	summary := sentinel.Summary()
	assert.Equal(t, false, summary["kill_switch_active"])
	assert.Equal(t, false, summary["cool_down_active"])
	assert.NotContains(t, summary, "kill_switch_reason")

	sentinel.RecordLoss()
	sentinel.ActivateKillSwitch(context.Background(), "manual halt")

	summary = sentinel.Summary()
	assert.Equal(t, true, summary["kill_switch_active"])
	assert.Equal(t, true, summary["cool_down_active"])
	assert.Equal(t, "manual halt", summary["kill_switch_reason"])
}
