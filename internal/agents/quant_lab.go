package agents

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ualgo/engine/internal/bus"
	"github.com/ualgo/engine/internal/db"
)

// Performance summarizes closed-position results over the lookback
type Performance struct {
	TotalTrades     int      `json:"total_trades"`
	WinningTrades   int      `json:"winning_trades"`
	LosingTrades    int      `json:"losing_trades"`
	WinRate         float64  `json:"win_rate"`
	TotalPnL        float64  `json:"total_pnl"`
	AvgPnL          float64  `json:"avg_pnl"`
	BestTrade       *float64 `json:"best_trade"`
	WorstTrade      *float64 `json:"worst_trade"`
	AvgWin          *float64 `json:"avg_win"`
	AvgLoss         *float64 `json:"avg_loss"`
	ProfitFactor    *float64 `json:"profit_factor"`
	SharpeRatio     *float64 `json:"sharpe_ratio"`
	CalmarRatio     *float64 `json:"calmar_ratio"`
	MaxDrawdown     *float64 `json:"max_drawdown"`
	AvgHoldingHours *float64 `json:"avg_holding_period_hours"`
}

// AgentAccuracy measures one agent's votes against realized signal
// outcomes.
type AgentAccuracy struct {
	TotalVotes    int      `json:"total_votes"`
	CorrectVotes  int      `json:"correct_votes"`
	Accuracy      *float64 `json:"accuracy"`
	AvgConfidence *float64 `json:"avg_confidence"`
	Overconfident float64  `json:"overconfident"`
}

// SignalHealth summarizes signal generation quality and balance
type SignalHealth struct {
	TotalSignals     int            `json:"total_signals"`
	LongCount        int            `json:"long_count"`
	ShortCount       int            `json:"short_count"`
	NeutralCount     int            `json:"neutral_count"`
	DirectionBalance float64        `json:"direction_balance"`
	ApprovalRate     float64        `json:"approval_rate"`
	ExecutionRate    float64        `json:"execution_rate"`
	AvgConfidence    *float64       `json:"avg_confidence"`
	ConfidenceStd    *float64       `json:"confidence_std"`
	TopSymbol        *SymbolCount   `json:"top_symbol"`
	UniqueSymbols    int            `json:"unique_symbols"`
}

// SymbolCount is the most signaled symbol with its count
type SymbolCount struct {
	Symbol string `json:"symbol"`
	Count  int    `json:"count"`
}

// OptimizationResult is the full nightly analysis record
type OptimizationResult struct {
	Agent              string                   `json:"agent"`
	StrategyID         string                   `json:"strategy_id"`
	LookbackDays       int                      `json:"lookback_days"`
	Performance        Performance              `json:"performance"`
	AgentAccuracy      map[string]AgentAccuracy `json:"agent_accuracy"`
	SignalHealth       SignalHealth             `json:"signal_health"`
	Regime             string                   `json:"regime"`
	Recommendations    []string                 `json:"recommendations"`
	SnapshotCreated    bool                     `json:"snapshot_created"`
	OptimizationNumber int64                    `json:"optimization_number"`
	DurationMs         int64                    `json:"duration_ms"`
	Timestamp          time.Time                `json:"timestamp"`
}

// votedAgents are the agents whose consensus accuracy is scored
var votedAgents = []string{"alpha_scout", "technical_analyst", "risk_sentinel"}

// QuantLab is the optimizer agent. It runs nightly (or on demand) to
// score trading performance, per-agent vote accuracy and signal
// health, classify the market regime, and emit parameter tuning
// recommendations.
type QuantLab struct {
	*BaseAgent
	optimizationCount atomic.Int64
}

// NewQuantLab creates the optimizer agent
func NewQuantLab(repo Repository, b *bus.Bus) *QuantLab {
	return &QuantLab{
		BaseAgent: NewBaseAgent(
			"quant_lab",
			"Optimizer - performance analysis, Sharpe/Calmar metrics, agent calibration",
			"1.2.0",
			repo, b,
		),
	}
}

// RunOptimization executes the full analysis pipeline
func (a *QuantLab) RunOptimization(ctx context.Context, strategyID string, lookbackDays int) (*OptimizationResult, error) {
	return runTracked(ctx, a.BaseAgent, strategyID, func(ctx context.Context) (*OptimizationResult, error) {
		return a.runOptimization(ctx, strategyID, lookbackDays)
	})
}

func (a *QuantLab) runOptimization(ctx context.Context, strategyID string, lookbackDays int) (*OptimizationResult, error) {
	if strategyID == "" {
		strategyID = "default"
	}
	if lookbackDays <= 0 {
		lookbackDays = 30
	}

	count := a.optimizationCount.Add(1)
	start := a.clock()
	a.logger.Info().
		Int64("optimization", count).
		Str("strategy_id", strategyID).
		Int("lookback_days", lookbackDays).
		Msg("Starting optimization")

	performance := a.computePerformance(ctx, strategyID, lookbackDays)
	accuracy := a.analyzeAgentAccuracy(ctx, 7)
	health := a.analyzeSignalHealth(ctx, lookbackDays)
	regime := classifyRegime(performance)
	recommendations := generateRecommendations(performance, accuracy, health)
	snapshotCreated := a.createSnapshot(ctx, performance)

	if _, err := a.memory.StoreLearning(ctx, map[string]any{
		"strategy_id":         strategyID,
		"lookback_days":       lookbackDays,
		"optimization_number": count,
		"performance":         performance,
		"agent_accuracy":      accuracy,
		"signal_health":       health,
		"regime":              regime,
		"recommendations":     recommendations,
	}); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to store optimization learning")
	}

	result := &OptimizationResult{
		Agent:              a.Name(),
		StrategyID:         strategyID,
		LookbackDays:       lookbackDays,
		Performance:        performance,
		AgentAccuracy:      accuracy,
		SignalHealth:       health,
		Regime:             regime,
		Recommendations:    recommendations,
		SnapshotCreated:    snapshotCreated,
		OptimizationNumber: count,
		DurationMs:         time.Since(start).Milliseconds(),
		Timestamp:          start,
	}

	a.logger.Info().
		Float64("win_rate", performance.WinRate).
		Str("regime", regime).
		Int("recommendations", len(recommendations)).
		Msg("Optimization complete")

	return result, nil
}

// computePerformance derives trading metrics from closed positions.
// Repository errors degrade to an empty window.
func (a *QuantLab) computePerformance(ctx context.Context, strategyID string, lookbackDays int) Performance {
	since := a.clock().AddDate(0, 0, -lookbackDays)
	positions, err := a.repo.GetClosedPositions(ctx, strategyID, since)
	if err != nil {
		a.logger.Error().Err(err).Msg("Performance query failed")
		positions = nil
	}
	if len(positions) == 0 {
		return Performance{}
	}

	pnls := make([]float64, 0, len(positions))
	var wins, losses []float64
	var holds []float64
	for _, p := range positions {
		pnl := 0.0
		if p.UnrealizedPnL != nil {
			pnl = *p.UnrealizedPnL
		}
		pnls = append(pnls, pnl)
		if pnl > 0 {
			wins = append(wins, pnl)
		} else {
			losses = append(losses, pnl)
		}
		if p.ClosedAt != nil {
			holds = append(holds, p.ClosedAt.Sub(p.OpenedAt).Hours())
		}
	}

	perf := Performance{
		TotalTrades:   len(pnls),
		WinningTrades: len(wins),
		LosingTrades:  len(losses),
		WinRate:       float64(len(wins)) / float64(len(pnls)),
		TotalPnL:      floats.Sum(pnls),
		AvgPnL:        stat.Mean(pnls, nil),
		BestTrade:     ptr(floats.Max(pnls)),
		WorstTrade:    ptr(floats.Min(pnls)),
	}

	if len(wins) > 0 {
		perf.AvgWin = ptr(stat.Mean(wins, nil))
	}
	if len(losses) > 0 {
		perf.AvgLoss = ptr(stat.Mean(losses, nil))
		if lossSum := floats.Sum(losses); lossSum != 0 {
			perf.ProfitFactor = ptr(math.Abs(floats.Sum(wins)) / math.Abs(lossSum))
		}
	}

	if len(pnls) >= 2 {
		if std := stat.PopStdDev(pnls, nil); std > 0 {
			perf.SharpeRatio = ptr(stat.Mean(pnls, nil) / std * math.Sqrt(252))
		}
	}

	// drawdown from the running peak of cumulative pnl
	cumulative, peak, maxDD := 0.0, 0.0, 0.0
	for _, pnl := range pnls {
		cumulative += pnl
		if cumulative > peak {
			peak = cumulative
		}
		if dd := cumulative - peak; dd < maxDD {
			maxDD = dd
		}
	}
	perf.MaxDrawdown = ptr(maxDD)

	if maxDD < 0 && perf.TotalPnL != 0 {
		annualized := perf.TotalPnL * (365 / float64(lookbackDays))
		perf.CalmarRatio = ptr(annualized / math.Abs(maxDD))
	}

	if len(holds) > 0 {
		perf.AvgHoldingHours = ptr(stat.Mean(holds, nil))
	}

	return perf
}

// analyzeAgentAccuracy joins each agent's votes with the final status
// of the voted signals.
func (a *QuantLab) analyzeAgentAccuracy(ctx context.Context, lookbackDays int) map[string]AgentAccuracy {
	since := a.clock().AddDate(0, 0, -lookbackDays)
	accuracy := make(map[string]AgentAccuracy, len(votedAgents))

	for _, agentName := range votedAgents {
		outcomes, err := a.repo.VoteOutcomes(ctx, agentName, since)
		if err != nil {
			a.logger.Error().Err(err).Str("agent", agentName).Msg("Accuracy query failed")
			outcomes = nil
		}
		if len(outcomes) == 0 {
			accuracy[agentName] = AgentAccuracy{}
			continue
		}

		total := len(outcomes)
		correct := 0
		overconfident := 0
		confidences := make([]float64, 0, total)
		for _, o := range outcomes {
			approvedOutcome := o.Status == db.SignalStatusApproved || o.Status == db.SignalStatusExecuted
			if (o.Vote == db.VoteApprove && approvedOutcome) || (o.Vote == db.VoteReject && o.Status == db.SignalStatusRejected) {
				correct++
			}
			if o.Confidence > 0.8 {
				overconfident++
			}
			confidences = append(confidences, o.Confidence)
		}

		accuracy[agentName] = AgentAccuracy{
			TotalVotes:    total,
			CorrectVotes:  correct,
			Accuracy:      ptr(float64(correct) / float64(total)),
			AvgConfidence: ptr(stat.Mean(confidences, nil)),
			Overconfident: float64(overconfident) / float64(total),
		}
	}

	return accuracy
}

// analyzeSignalHealth summarizes recent signal generation patterns
func (a *QuantLab) analyzeSignalHealth(ctx context.Context, lookbackDays int) SignalHealth {
	since := a.clock().AddDate(0, 0, -lookbackDays)
	signals, err := a.repo.SignalsSince(ctx, since)
	if err != nil {
		a.logger.Error().Err(err).Msg("Signal health query failed")
		return SignalHealth{}
	}
	if len(signals) == 0 {
		return SignalHealth{}
	}

	total := len(signals)
	health := SignalHealth{TotalSignals: total}
	approved, executed := 0, 0
	confidences := make([]float64, 0, total)
	symbolCounts := make(map[string]int)

	for _, s := range signals {
		switch s.Direction {
		case db.DirectionLong:
			health.LongCount++
		case db.DirectionShort:
			health.ShortCount++
		}
		switch s.Status {
		case db.SignalStatusApproved:
			approved++
		case db.SignalStatusExecuted:
			executed++
		}
		confidences = append(confidences, s.Confidence)
		symbolCounts[s.Symbol]++
	}

	health.NeutralCount = total - health.LongCount - health.ShortCount
	health.DirectionBalance = float64(health.LongCount) / float64(total)
	health.ApprovalRate = float64(approved) / float64(total)
	health.ExecutionRate = float64(executed) / float64(total)
	health.AvgConfidence = ptr(stat.Mean(confidences, nil))
	health.ConfidenceStd = ptr(stat.PopStdDev(confidences, nil))
	health.UniqueSymbols = len(symbolCounts)

	for symbol, count := range symbolCounts {
		if health.TopSymbol == nil || count > health.TopSymbol.Count ||
			(count == health.TopSymbol.Count && symbol < health.TopSymbol.Symbol) {
			health.TopSymbol = &SymbolCount{Symbol: symbol, Count: count}
		}
	}

	return health
}

// classifyRegime labels recent performance
func classifyRegime(p Performance) string {
	if p.TotalTrades == 0 {
		return "UNKNOWN"
	}
	maxDD := 0.0
	if p.MaxDrawdown != nil {
		maxDD = *p.MaxDrawdown
	}
	switch {
	case p.WinRate >= 0.6 && (p.SharpeRatio == nil || *p.SharpeRatio >= 1.0):
		return "TRENDING_FAVORABLE"
	case p.WinRate >= 0.5 && maxDD > -0.05:
		return "STABLE"
	case p.WinRate < 0.4 || maxDD < -0.10:
		return "UNFAVORABLE"
	case math.Abs(maxDD) < 0.03 && p.WinRate < 0.55:
		return "RANGING"
	default:
		return "MIXED"
	}
}

// generateRecommendations emits prioritized parameter tuning guidance
func generateRecommendations(p Performance, accuracy map[string]AgentAccuracy, health SignalHealth) []string {
	var recs []string

	maxDD := 0.0
	if p.MaxDrawdown != nil {
		maxDD = *p.MaxDrawdown
	}

	switch {
	case p.TotalTrades == 0:
		recs = append(recs, "🔴 No closed trades in lookback window, verify database connectivity and position status updates")
	case p.WinRate < 0.35:
		recs = append(recs, fmt.Sprintf("🔴 Win rate critically low (%.1f%%), increase min_consensus_confidence to ≥0.65 and review indicator weights", p.WinRate*100))
	case p.WinRate < 0.45:
		recs = append(recs, fmt.Sprintf("🟡 Win rate below target (%.1f%%), tighten consensus threshold by +5%% and review RSI/Bollinger weights", p.WinRate*100))
	case p.WinRate > 0.72:
		recs = append(recs, fmt.Sprintf("🟢 Win rate strong (%.1f%%), consider lowering consensus threshold by 3-5%% to capture more opportunities", p.WinRate*100))
	}

	if maxDD < -0.10 {
		recs = append(recs, fmt.Sprintf("🔴 Max drawdown severe (%.1f%%), reduce position sizes by 30%% and tighten stop-loss multiplier from 1.5 to 1.2 ATR", maxDD*100))
	} else if maxDD < -0.05 {
		recs = append(recs, fmt.Sprintf("🟡 Drawdown elevated (%.1f%%), tighten stop-loss and reduce leverage for next 5 trades", maxDD*100))
	}

	if p.SharpeRatio != nil {
		sharpe := *p.SharpeRatio
		switch {
		case sharpe < 0.3:
			recs = append(recs, fmt.Sprintf("🔴 Sharpe ratio very low (%.2f), strategy is not generating risk-adjusted returns; consider pausing and reviewing", sharpe))
		case sharpe < 0.8:
			recs = append(recs, fmt.Sprintf("🟡 Sharpe ratio below target (%.2f), improve entry timing or reduce position size variance", sharpe))
		case sharpe > 2.0:
			recs = append(recs, fmt.Sprintf("🟢 Excellent Sharpe (%.2f), current parameters well-calibrated", sharpe))
		}
	}

	if p.ProfitFactor != nil {
		pf := *p.ProfitFactor
		if pf < 1.0 {
			recs = append(recs, fmt.Sprintf("🔴 Profit factor < 1.0 (%.2f), losing strategy; halt live trading until resolved", pf))
		} else if pf < 1.3 {
			recs = append(recs, fmt.Sprintf("🟡 Profit factor marginal (%.2f), target ≥1.5 by improving TP/SL ratio", pf))
		}
	}

	if health.TotalSignals > 0 {
		if health.DirectionBalance < 0.30 {
			recs = append(recs, fmt.Sprintf("🟡 SHORT bias detected (%.0f%% LONG), check if sentiment agent is over-calibrated bearish", health.DirectionBalance*100))
		} else if health.DirectionBalance > 0.70 {
			recs = append(recs, fmt.Sprintf("🟡 LONG bias detected (%.0f%% LONG), alpha_scout bias_correction may need negative adjustment", health.DirectionBalance*100))
		}

		if health.ApprovalRate < 0.20 {
			recs = append(recs, fmt.Sprintf("🟡 Low approval rate (%.0f%%), risk_sentinel may be too conservative; review volatility_threshold", health.ApprovalRate*100))
		} else if health.ApprovalRate > 0.80 {
			recs = append(recs, fmt.Sprintf("🟡 High approval rate (%.0f%%), risk_sentinel may be too permissive; tighten risk_score threshold", health.ApprovalRate*100))
		}
	}

	for _, agentName := range votedAgents {
		acc, ok := accuracy[agentName]
		if !ok || acc.Accuracy == nil {
			continue
		}
		if *acc.Accuracy < 0.45 {
			recs = append(recs, fmt.Sprintf("🟡 Agent '%s' vote accuracy low (%.1f%%), reduce its consensus weight or review its signal logic", agentName, *acc.Accuracy*100))
		} else if *acc.Accuracy > 0.70 {
			recs = append(recs, fmt.Sprintf("🟢 Agent '%s' performing well (%.1f%%), consider increasing its consensus vote weight", agentName, *acc.Accuracy*100))
		}
	}

	if p.AvgHoldingHours != nil {
		hold := *p.AvgHoldingHours
		if hold < 1.0 {
			recs = append(recs, fmt.Sprintf("🟡 Very short avg hold (%.1fh), signals may be closing too early; widen TP by 20%%", hold))
		} else if hold > 72 {
			recs = append(recs, fmt.Sprintf("🟡 Long avg hold (%.1fh), consider time-based exits for stale positions", hold))
		}
	}

	if len(recs) == 0 {
		recs = append(recs, "🟢 All metrics within target ranges, no parameter changes recommended")
	}

	return recs
}

// createSnapshot upserts today's portfolio snapshot. Portfolio value
// defaults to 10,000 when no positions are open or the query fails.
func (a *QuantLab) createSnapshot(ctx context.Context, p Performance) bool {
	totalValue := 10_000.0
	openCount := 0

	positions, err := a.repo.GetOpenPositions(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("Snapshot position query failed")
	} else if len(positions) > 0 {
		openCount = len(positions)
		totalValue = 0
		for _, pos := range positions {
			price := pos.EntryPrice
			if pos.CurrentPrice != nil {
				price = *pos.CurrentPrice
			}
			totalValue += pos.Quantity * price
		}
	}

	totalPnLPct := 0.0
	if totalValue > 0 {
		totalPnLPct = p.TotalPnL / totalValue * 100
	}

	snapshot := &db.PortfolioSnapshot{
		SnapshotDate:  a.clock().Truncate(24 * time.Hour),
		TotalValue:    totalValue,
		TotalPnL:      p.TotalPnL,
		TotalPnLPct:   totalPnLPct,
		OpenPositions: openCount,
		WinRate:       p.WinRate,
	}
	if p.SharpeRatio != nil {
		snapshot.SharpeRatio = *p.SharpeRatio
	}
	if p.MaxDrawdown != nil {
		snapshot.MaxDrawdown = *p.MaxDrawdown
	}

	if err := a.repo.UpsertSnapshot(ctx, snapshot); err != nil {
		a.logger.Error().Err(err).Msg("Snapshot upsert failed")
		return false
	}
	return true
}
