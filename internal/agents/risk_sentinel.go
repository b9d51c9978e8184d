package agents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/ualgo/engine/internal/bus"
	"github.com/ualgo/engine/internal/config"
	"github.com/ualgo/engine/internal/db"
)

// ProposedSignal is the trade a cycle asks the Risk Sentinel to judge
type ProposedSignal struct {
	Direction  db.Direction `json:"direction"`
	EntryPrice float64      `json:"entry_price"`
	StopLoss   float64      `json:"stop_loss"`
	Quantity   float64      `json:"quantity"`
}

// PortfolioState is the portfolio snapshot the checks run against.
// Safe defaults apply when the repository is unreachable.
type PortfolioState struct {
	OpenPositions  int     `json:"open_positions"`
	TotalValue     float64 `json:"total_value"`
	UnrealizedPnL  float64 `json:"unrealized_pnl"`
	DailyPnLPct    float64 `json:"daily_pnl_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
}

// VolatilityCheck summarizes recent signal-confidence variance, used
// as a cheap volatility regime proxy.
type VolatilityCheck struct {
	Value      float64 `json:"value"`
	IsExtreme  bool    `json:"is_extreme"`
	SampleSize int     `json:"sample_size"`
}

// RiskResult is the Risk Sentinel's evaluation of a proposal (or of
// the portfolio alone when no proposal is given).
type RiskResult struct {
	Agent            string          `json:"agent"`
	Symbol           string          `json:"symbol"`
	Direction        db.Direction    `json:"direction"`
	Confidence       float64         `json:"confidence"`
	Vote             db.VoteChoice   `json:"vote"`
	RiskScore        float64         `json:"risk_score"`
	Flags            []string        `json:"risk_flags"`
	KillSwitchActive bool            `json:"kill_switch_active"`
	KillSwitchReason string          `json:"kill_switch_reason,omitempty"`
	Portfolio        PortfolioState  `json:"portfolio"`
	Volatility       VolatilityCheck `json:"volatility"`
}

// RiskSentinel is the guardian agent. It has veto power over every
// signal and exclusively owns the kill-switch latch: while active, all
// cycles reject without collecting votes, until an operator clears it.
type RiskSentinel struct {
	*BaseAgent

	maxDailyLossPct     float64 // positive ratio, e.g. 0.03
	maxDrawdownPct      float64 // positive ratio, e.g. 0.10
	maxOpenPositions    int
	maxDailyTrades      int
	coolDownAfterLoss   time.Duration
	maxSingleAssetRatio float64
	volatilityThreshold float64
	maxRiskPerTrade     float64
	maxConcentrationPct float64

	mu                sync.Mutex
	killSwitchActive  bool
	killSwitchReason  string
	killSwitchAt      time.Time
	lastLossAt        time.Time
	dailyTradeCount   int
	dailyTradeResetAt string // UTC date of the last counter reset
}

// NewRiskSentinel creates the risk guardian from the risk limits
func NewRiskSentinel(repo Repository, b *bus.Bus, cfg config.RiskConfig) *RiskSentinel {
	return &RiskSentinel{
		BaseAgent: NewBaseAgent(
			"risk_sentinel",
			"Risk Guardian - portfolio protection, kill switch, trade vetting",
			"1.2.0",
			repo, b,
		),
		maxDailyLossPct:     -cfg.DailyLossLimitPct / 100,
		maxDrawdownPct:      -cfg.KillSwitchDrawdown / 100,
		maxOpenPositions:    cfg.MaxOpenPositions,
		maxDailyTrades:      cfg.MaxDailyTrades,
		coolDownAfterLoss:   cfg.TradeCooldown(),
		maxSingleAssetRatio: cfg.MaxSingleAssetRatio,
		volatilityThreshold: cfg.VolatilityThreshold,
		maxRiskPerTrade:     cfg.MaxRiskPerTrade,
		maxConcentrationPct: cfg.MaxConcentrationPct,
	}
}

// Analyze evaluates risk for a proposed signal, or the portfolio state
// alone when proposed is nil. The checks run in fixed severity order;
// the final score is the maximum triggered severity.
func (a *RiskSentinel) Analyze(ctx context.Context, symbol string, proposed *ProposedSignal) (*RiskResult, error) {
	return runTracked(ctx, a.BaseAgent, symbol, func(ctx context.Context) (*RiskResult, error) {
		return a.analyze(ctx, symbol, proposed)
	})
}

func (a *RiskSentinel) analyze(ctx context.Context, symbol string, proposed *ProposedSignal) (*RiskResult, error) {
	portfolio := a.portfolioState(ctx)
	volatility := a.checkVolatility(ctx, symbol)

	var flags []string
	riskScore := 0.0
	raise := func(severity float64, flag string) {
		flags = append(flags, flag)
		if severity > riskScore {
			riskScore = severity
		}
	}

	a.mu.Lock()
	killActive, killReason := a.killSwitchActive, a.killSwitchReason
	a.resetDailyCounterLocked()
	dailyTrades := a.dailyTradeCount
	lastLoss := a.lastLossAt
	a.mu.Unlock()

	if killActive {
		raise(1.0, fmt.Sprintf("KILL_SWITCH_ACTIVE (reason: %s)", killReason))
	}

	if portfolio.DailyPnLPct < -a.maxDailyLossPct {
		raise(0.90, fmt.Sprintf("DAILY_LOSS_EXCEEDED (%.2f%% < -%.2f%% limit)",
			portfolio.DailyPnLPct*100, a.maxDailyLossPct*100))
		a.ActivateKillSwitch(ctx, fmt.Sprintf("Daily loss limit exceeded: %.2f%%", portfolio.DailyPnLPct*100))
	}

	if portfolio.MaxDrawdownPct < -a.maxDrawdownPct {
		raise(0.95, fmt.Sprintf("MAX_DRAWDOWN_EXCEEDED (%.2f%% < -%.2f%% limit)",
			portfolio.MaxDrawdownPct*100, a.maxDrawdownPct*100))
		a.ActivateKillSwitch(ctx, fmt.Sprintf("Max drawdown exceeded: %.2f%%", portfolio.MaxDrawdownPct*100))
	}

	if portfolio.OpenPositions >= a.maxOpenPositions {
		raise(0.75, fmt.Sprintf("MAX_POSITIONS_REACHED (%d/%d)", portfolio.OpenPositions, a.maxOpenPositions))
	}

	if dailyTrades >= a.maxDailyTrades {
		raise(0.70, fmt.Sprintf("DAILY_TRADE_LIMIT (%d/%d)", dailyTrades, a.maxDailyTrades))
	}

	if !lastLoss.IsZero() {
		elapsed := a.clock().Sub(lastLoss)
		if elapsed < a.coolDownAfterLoss {
			remaining := int((a.coolDownAfterLoss - elapsed).Seconds())
			raise(0.65, fmt.Sprintf("COOL_DOWN_ACTIVE (%ds remaining after last loss)", remaining))
		}
	}

	if proposed != nil && portfolio.TotalValue > 0 {
		assetRatio := proposed.EntryPrice * proposed.Quantity / portfolio.TotalValue
		if assetRatio > a.maxSingleAssetRatio {
			raise(0.70, fmt.Sprintf("SINGLE_ASSET_OVERWEIGHT (%.0f%% > %.0f%% max)",
				assetRatio*100, a.maxSingleAssetRatio*100))
		}
	}

	if volatility.IsExtreme {
		raise(0.55, fmt.Sprintf("EXTREME_VOLATILITY (signal_std=%.3f > %.2f)",
			volatility.Value, a.volatilityThreshold))
	}

	if proposed != nil {
		tradeRisk := computeTradeRisk(proposed, portfolio.TotalValue)
		if tradeRisk > a.maxRiskPerTrade {
			raise(0.80, fmt.Sprintf("TRADE_RISK_EXCEEDED (%.2f%% > %.2f%% max per trade)",
				tradeRisk*100, a.maxRiskPerTrade*100))
		}
	}

	if proposed != nil {
		ratio := a.checkConcentration(ctx, symbol)
		if ratio > a.maxConcentrationPct {
			raise(0.60, fmt.Sprintf("CONCENTRATION_RISK (%s: %.0f%% of open positions)", symbol, ratio*100))
		}
	}

	vote := db.VoteApprove
	direction := db.DirectionNeutral
	confidence := 1 - riskScore
	if riskScore >= 0.50 {
		vote = db.VoteReject
		confidence = riskScore
	} else if proposed != nil {
		direction = proposed.Direction
	}

	a.mu.Lock()
	killActive, killReason = a.killSwitchActive, a.killSwitchReason
	a.mu.Unlock()

	result := &RiskResult{
		Agent:            a.Name(),
		Symbol:           symbol,
		Direction:        direction,
		Confidence:       confidence,
		Vote:             vote,
		RiskScore:        riskScore,
		Flags:            flags,
		KillSwitchActive: killActive,
		KillSwitchReason: killReason,
		Portfolio:        portfolio,
		Volatility:       volatility,
	}

	if _, err := a.memory.StoreDecision(ctx, symbol, map[string]any{
		"vote":        string(vote),
		"risk_score":  riskScore,
		"flags":       flags,
		"kill_switch": killActive,
	}, 0); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to store risk decision")
	}

	if len(flags) > 0 {
		a.logger.Warn().Str("symbol", symbol).Str("vote", string(vote)).Strs("flags", flags).Msg("Risk flags raised")
	} else {
		a.logger.Info().Str("symbol", symbol).Str("vote", string(vote)).Msg("No risk flags")
	}

	return result, nil
}

// portfolioState queries portfolio metrics, degrading to safe
// defaults on repository errors so risk checks never block.
func (a *RiskSentinel) portfolioState(ctx context.Context) PortfolioState {
	state := PortfolioState{TotalValue: 10_000}

	openCount, err := a.repo.CountOpenPositions(ctx, "")
	if err != nil {
		a.logger.Error().Err(err).Msg("Portfolio query failed")
		return state
	}
	state.OpenPositions = openCount

	positions, err := a.repo.GetOpenPositions(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("Portfolio query failed")
		return state
	}
	for _, p := range positions {
		if p.UnrealizedPnL != nil {
			state.UnrealizedPnL += *p.UnrealizedPnL
		}
	}

	snapshot, err := a.repo.LatestSnapshot(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("Snapshot query failed")
		return state
	}
	if snapshot != nil {
		state.TotalValue = snapshot.TotalValue
		state.MaxDrawdownPct = snapshot.MaxDrawdown
	}
	if state.TotalValue > 0 {
		state.DailyPnLPct = state.UnrealizedPnL / state.TotalValue
	}
	return state
}

// checkVolatility uses recent signal-confidence dispersion as a
// volatility proxy; fewer than 3 samples is never extreme.
func (a *RiskSentinel) checkVolatility(ctx context.Context, symbol string) VolatilityCheck {
	confidences, err := a.repo.RecentSignalConfidences(ctx, symbol, 24)
	if err != nil {
		a.logger.Error().Err(err).Msg("Volatility check failed")
		return VolatilityCheck{}
	}
	if len(confidences) < 3 {
		return VolatilityCheck{SampleSize: len(confidences)}
	}

	value := stat.PopStdDev(confidences, nil)
	return VolatilityCheck{
		Value:      value,
		IsExtreme:  value > a.volatilityThreshold,
		SampleSize: len(confidences),
	}
}

// checkConcentration estimates the open-position share this symbol
// would hold if the proposal executed.
func (a *RiskSentinel) checkConcentration(ctx context.Context, symbol string) float64 {
	totalOpen, err := a.repo.CountOpenPositions(ctx, "")
	if err != nil {
		a.logger.Error().Err(err).Msg("Concentration check failed")
		return 0
	}
	symbolOpen, err := a.repo.CountOpenPositions(ctx, symbol)
	if err != nil {
		a.logger.Error().Err(err).Msg("Concentration check failed")
		return 0
	}
	return float64(symbolOpen+1) / float64(totalOpen+1)
}

// computeTradeRisk is |entry - stop| * quantity / total portfolio value
func computeTradeRisk(proposed *ProposedSignal, totalValue float64) float64 {
	if proposed.EntryPrice == 0 || proposed.StopLoss == 0 || proposed.Quantity == 0 || totalValue == 0 {
		return 0
	}
	return absFloat(proposed.EntryPrice-proposed.StopLoss) * proposed.Quantity / totalValue
}

// ActivateKillSwitch latches the kill switch. Idempotent: a second
// activation with any reason is a no-op while already active.
func (a *RiskSentinel) ActivateKillSwitch(ctx context.Context, reason string) {
	a.mu.Lock()
	if a.killSwitchActive {
		a.mu.Unlock()
		return
	}
	a.killSwitchActive = true
	a.killSwitchReason = reason
	a.killSwitchAt = a.clock()
	activatedAt := a.killSwitchAt
	a.mu.Unlock()

	a.logger.Error().Str("reason", reason).Msg("KILL SWITCH ACTIVATED")

	if err := a.bus.Broadcast(a.Name(), "risk.kill_switch", map[string]any{
		"active":       true,
		"reason":       reason,
		"activated_at": activatedAt.Format(time.RFC3339),
	}); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to broadcast kill switch")
	}

	// stored at maximum importance so it is never evicted from recall
	if _, err := a.memory.Store(ctx, db.MemoryTypePattern, map[string]any{
		"event":        "kill_switch_activated",
		"reason":       reason,
		"activated_at": activatedAt.Format(time.RFC3339),
	}, "", 1.0, 0); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to store kill switch memory")
	}
}

// DeactivateKillSwitch clears the latch. Only an explicit operator
// call transitions active back to inactive.
func (a *RiskSentinel) DeactivateKillSwitch(ctx context.Context, operator string) {
	if operator == "" {
		operator = "manual"
	}

	a.mu.Lock()
	prevReason := a.killSwitchReason
	a.killSwitchActive = false
	a.killSwitchReason = ""
	a.killSwitchAt = time.Time{}
	a.mu.Unlock()

	a.logger.Info().Str("operator", operator).Str("previous_reason", prevReason).Msg("Kill switch deactivated")

	if err := a.bus.Broadcast(a.Name(), "risk.kill_switch", map[string]any{
		"active":          false,
		"operator":        operator,
		"previous_reason": prevReason,
		"deactivated_at":  a.clock().Format(time.RFC3339),
	}); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to broadcast kill switch")
	}
}

// KillSwitchActive reports the latch state
func (a *RiskSentinel) KillSwitchActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.killSwitchActive
}

// RecordTradeExecuted bumps the daily trade counter. The orchestrator
// calls this after each approved signal.
func (a *RiskSentinel) RecordTradeExecuted() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetDailyCounterLocked()
	a.dailyTradeCount++
}

// RecordLoss starts the after-loss cool-down clock
func (a *RiskSentinel) RecordLoss() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastLossAt = a.clock()
}

// resetDailyCounterLocked zeroes the trade counter at the UTC day
// boundary. Caller holds a.mu.
func (a *RiskSentinel) resetDailyCounterLocked() {
	today := a.clock().Format("2006-01-02")
	if a.dailyTradeResetAt != today {
		a.dailyTradeCount = 0
		a.dailyTradeResetAt = today
	}
}

// Summary reports the current risk posture for the status API
func (a *RiskSentinel) Summary() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()

	coolDownActive := !a.lastLossAt.IsZero() && a.clock().Sub(a.lastLossAt) < a.coolDownAfterLoss

	summary := map[string]any{
		"kill_switch_active": a.killSwitchActive,
		"daily_trade_count":  a.dailyTradeCount,
		"cool_down_active":   coolDownActive,
		"thresholds": map[string]any{
			"max_daily_loss_pct":     a.maxDailyLossPct,
			"max_drawdown_pct":       a.maxDrawdownPct,
			"max_open_positions":     a.maxOpenPositions,
			"max_daily_trades":       a.maxDailyTrades,
			"max_risk_per_trade":     a.maxRiskPerTrade,
			"max_single_asset_ratio": a.maxSingleAssetRatio,
			"max_concentration_pct":  a.maxConcentrationPct,
			"volatility_threshold":   a.volatilityThreshold,
		},
	}
	if a.killSwitchActive {
		summary["kill_switch_reason"] = a.killSwitchReason
		summary["kill_switch_activated_at"] = a.killSwitchAt.Format(time.RFC3339)
	}
	return summary
}
