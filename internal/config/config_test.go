package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, cfg.Trading.Symbols)
	assert.Equal(t, 60, cfg.Scheduler.ScanIntervalSeconds)
	assert.Equal(t, 5, cfg.Scheduler.RiskCheckIntervalSeconds)
	assert.Equal(t, 30, cfg.Scheduler.HeartbeatIntervalSeconds)
	assert.Equal(t, 0.55, cfg.Trading.MinConsensusConfidence)
	assert.Equal(t, 0.01, cfg.Trading.DefaultQuantity)
	assert.Equal(t, 5, cfg.Risk.MaxOpenPositions)
	assert.Equal(t, 10, cfg.Risk.MaxDailyTrades)
	assert.Equal(t, -3.0, cfg.Risk.DailyLossLimitPct)
	assert.Equal(t, -10.0, cfg.Risk.KillSwitchDrawdown)
	assert.Equal(t, 3600, cfg.Risk.CooldownAfterLossSec)
	assert.Equal(t, 0.02, cfg.Risk.MaxRiskPerTrade)
	assert.Equal(t, 0.25, cfg.Risk.MaxSingleAssetRatio)
	assert.Equal(t, 0.40, cfg.Risk.MaxConcentrationPct)
	assert.Equal(t, 0.30, cfg.Risk.VolatilityThreshold)
	assert.Equal(t, ":8000", cfg.API.Addr)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("U2ALGO_DEFAULT_SYMBOLS", "dogeusdt, btcusdt")
	t.Setenv("U2ALGO_SCAN_INTERVAL_SECONDS", "15")
	t.Setenv("U2ALGO_MIN_CONSENSUS_CONFIDENCE", "0.7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"DOGEUSDT", "BTCUSDT"}, cfg.Trading.Symbols)
	assert.Equal(t, 15, cfg.Scheduler.ScanIntervalSeconds)
	assert.Equal(t, 0.7, cfg.Trading.MinConsensusConfidence)
}

func TestValidate(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Risk.DailyLossLimitPct = 3.0
	assert.Error(t, cfg.Validate())

	cfg.Risk.DailyLossLimitPct = -3.0
	cfg.Trading.Symbols = nil
	assert.Error(t, cfg.Validate())
}
