// Package orchestrator coordinates the agent swarm: it runs scan
// cycles, blends sentiment with technical conviction, collects the
// consensus ballot and applies the final approval decision.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ualgo/engine/internal/agents"
	"github.com/ualgo/engine/internal/bus"
	"github.com/ualgo/engine/internal/config"
	"github.com/ualgo/engine/internal/db"
	"github.com/ualgo/engine/internal/indicators"
	"github.com/ualgo/engine/internal/market"
	"github.com/ualgo/engine/internal/memory"
	"github.com/ualgo/engine/internal/metrics"
)

const (
	orchestratorVersion = "1.0.0"
	taskLogSize         = 50

	// a NEUTRAL technical read below this confidence skips the cycle
	neutralSkipConfidence = 0.40

	// blend weights: technical conviction dominates, sentiment
	// reinforces agreement and mildly penalizes disagreement
	blendTechWeight      = 0.70
	blendAlphaAgree      = 0.30
	blendAlphaDisagree   = 0.15
	maxBlendedConfidence = 0.95
)

// Cycle actions
const (
	ActionExecute = "execute"
	ActionReject  = "reject"
	ActionSkip    = "skip"
)

// SentimentAnalyst is the alpha scout surface the cycle needs
type SentimentAnalyst interface {
	Analyze(ctx context.Context, symbol string, includeMacro bool) (*agents.SentimentResult, error)
}

// TechnicalSource is the technical analyst surface the cycle needs
type TechnicalSource interface {
	Analyze(ctx context.Context, symbol string, candles []indicators.Candle, timeframe string) (*agents.TechnicalResult, error)
}

// RiskGuardian is the risk sentinel surface the cycle needs
type RiskGuardian interface {
	Analyze(ctx context.Context, symbol string, proposed *agents.ProposedSignal) (*agents.RiskResult, error)
	KillSwitchActive() bool
	RecordTradeExecuted()
}

// Repository is the persistence surface the orchestrator needs
type Repository interface {
	memory.Repo
	InsertPendingSignal(ctx context.Context, signal *db.Signal) error
	UpdateSignalStatus(ctx context.Context, id uuid.UUID, status db.SignalStatus) error
	InsertVote(ctx context.Context, vote *db.ConsensusVote) error
	UpsertHeartbeat(ctx context.Context, hb *db.AgentHeartbeat) error
}

// ConsensusSummary is the consensus slice of a cycle result
type ConsensusSummary struct {
	Approved           bool    `json:"approved"`
	ApproveCount       int     `json:"approve_count"`
	RejectCount        int     `json:"reject_count"`
	WeightedConfidence float64 `json:"weighted_confidence"`
	MinRequired        float64 `json:"min_required"`
}

// RiskSummary is the risk slice of a cycle result
type RiskSummary struct {
	Score      float64  `json:"score"`
	Flags      []string `json:"flags"`
	KillSwitch bool     `json:"kill_switch"`
}

// SentimentSummary is the sentiment slice of a cycle result
type SentimentSummary struct {
	Direction db.Direction `json:"direction"`
	Score     float64      `json:"score"`
	Regime    string       `json:"regime"`
	Agreement bool         `json:"agreement"`
}

// CycleResult is the full record of one scan cycle
type CycleResult struct {
	Symbol            string            `json:"symbol"`
	SignalID          *uuid.UUID        `json:"signal_id"`
	Direction         db.Direction      `json:"direction"`
	Action            string            `json:"action"`
	Confidence        float64           `json:"confidence"`
	BlendedConfidence float64           `json:"blended_confidence"`
	EntryPrice        *float64          `json:"entry_price"`
	StopLoss          *float64          `json:"stop_loss"`
	TakeProfit        *float64          `json:"take_profit"`
	RiskReward        *float64          `json:"risk_reward"`
	Timeframe         string            `json:"timeframe"`
	Reason            string            `json:"reason,omitempty"`
	Consensus         *ConsensusSummary `json:"consensus,omitempty"`
	Risk              *RiskSummary      `json:"risk,omitempty"`
	Sentiment         *SentimentSummary `json:"sentiment,omitempty"`
	Cycle             int64             `json:"cycle"`
	DurationMs        int64             `json:"duration_ms"`
	Timestamp         time.Time         `json:"timestamp"`
}

// TaskEntry is one row of the bounded cycle task log
type TaskEntry struct {
	Symbol     string     `json:"symbol"`
	Action     string     `json:"action"`
	SignalID   *uuid.UUID `json:"signal_id,omitempty"`
	DurationMs int64      `json:"duration_ms"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Orchestrator owns the agent references and drives scan cycles.
// Cycles are reentrant per symbol; counters and the task log are the
// only shared state.
type Orchestrator struct {
	repo      Repository
	bus       *bus.Bus
	candles   market.CandleSource
	alpha     SentimentAnalyst
	technical TechnicalSource
	risk      RiskGuardian
	engine    *DecisionEngine
	sizer     PositionSizer
	memory    *memory.Store
	logger    zerolog.Logger

	minConsensus   float64
	candleLimit    int
	candleInterval string

	started time.Time
	clock   func() time.Time

	cyclesRun       atomic.Int64
	signalsApproved atomic.Int64
	signalsRejected atomic.Int64

	mu      sync.Mutex
	taskLog []TaskEntry
}

// New creates the orchestrator. The decision engine is constructed
// with the configured consensus threshold, which the cycle also
// enforces as a post-approval override.
func New(repo Repository, b *bus.Bus, candles market.CandleSource, alpha SentimentAnalyst, technical TechnicalSource, risk RiskGuardian, trading config.TradingConfig) *Orchestrator {
	minConsensus := trading.MinConsensusConfidence
	if minConsensus <= 0 {
		minConsensus = 0.55
	}
	candleLimit := trading.CandleLimit
	if candleLimit <= 0 {
		candleLimit = 100
	}
	interval := trading.CandleInterval
	if interval == "" {
		interval = "1h"
	}

	return &Orchestrator{
		repo:           repo,
		bus:            b,
		candles:        candles,
		alpha:          alpha,
		technical:      technical,
		risk:           risk,
		engine:         NewDecisionEngine(repo, minConsensus, config.NewLogger("decision_engine")),
		sizer:          FixedSizer{Quantity: 0.01},
		memory:         memory.NewStore(repo, "orchestrator", config.NewLogger("memory.orchestrator")),
		logger:         config.NewAgentLogger("orchestrator", "The Brain - cycle coordination, consensus voting"),
		minConsensus:   minConsensus,
		candleLimit:    candleLimit,
		candleInterval: interval,
		started:        time.Now().UTC(),
		clock:          func() time.Time { return time.Now().UTC() },
	}
}

// WithSizer overrides the position sizing policy
func (o *Orchestrator) WithSizer(sizer PositionSizer) *Orchestrator {
	o.sizer = sizer
	return o
}

// RunScanAll runs one scan cycle per symbol, sequentially
func (o *Orchestrator) RunScanAll(ctx context.Context, symbols []string, strategyID string) []*CycleResult {
	results := make([]*CycleResult, 0, len(symbols))
	for _, symbol := range symbols {
		results = append(results, o.RunScanCycle(ctx, symbol, strategyID, ""))
	}
	return results
}

// RunScanCycle executes the full pipeline for one symbol: candles,
// parallel analysis, blend, persistence, risk vetting, consensus and
// final status. It never returns an error; failures degrade into skip
// or reject results.
func (o *Orchestrator) RunScanCycle(ctx context.Context, symbol, strategyID, timeframe string) *CycleResult {
	start := time.Now()
	cycle := o.cyclesRun.Add(1)
	if strategyID == "" {
		strategyID = "default"
	}
	if timeframe == "" {
		timeframe = o.candleInterval
	}

	o.logger.Info().
		Int64("cycle", cycle).
		Str("symbol", symbol).
		Str("timeframe", timeframe).
		Msg("Scan cycle started")

	candles := o.candles.GetRecentCandles(ctx, symbol, timeframe, o.candleLimit)

	var alphaRes *agents.SentimentResult
	var techRes *agents.TechnicalResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := o.alpha.Analyze(gctx, symbol, true)
		if err != nil {
			o.logger.Warn().Err(err).Str("symbol", symbol).Msg("Sentiment analysis failed")
			return nil
		}
		alphaRes = res
		return nil
	})
	g.Go(func() error {
		res, err := o.technical.Analyze(gctx, symbol, candles, timeframe)
		if err != nil {
			o.logger.Warn().Err(err).Str("symbol", symbol).Msg("Technical analysis failed")
			return nil
		}
		techRes = res
		return nil
	})
	_ = g.Wait()

	result := &CycleResult{
		Symbol:    symbol,
		Timeframe: timeframe,
		Direction: db.DirectionNeutral,
		Cycle:     cycle,
	}

	if techRes == nil || techRes.Err != "" {
		result.Action = ActionSkip
		result.Reason = "technical analysis unavailable"
		if techRes != nil {
			result.Reason = techRes.Err
		}
		return o.finish(result, start)
	}
	if techRes.Direction == db.DirectionNeutral && techRes.Confidence < neutralSkipConfidence {
		result.Action = ActionSkip
		result.Reason = fmt.Sprintf("No clear direction (confidence %.2f)", techRes.Confidence)
		return o.finish(result, start)
	}

	alphaDir := db.DirectionNeutral
	alphaConf, alphaScore := 0.0, 0.0
	regime := "UNKNOWN"
	if alphaRes != nil {
		alphaDir = alphaRes.Direction
		alphaConf = alphaRes.Confidence
		alphaScore = alphaRes.Score
		regime = alphaRes.Regime
	}
	agreement := alphaDir == techRes.Direction

	var blended float64
	if agreement || alphaDir == db.DirectionNeutral {
		blended = blendTechWeight*techRes.Confidence + blendAlphaAgree*alphaConf
	} else {
		blended = blendTechWeight*techRes.Confidence - blendAlphaDisagree*alphaConf
	}
	blended = clampFloat(blended, 0, maxBlendedConfidence)

	result.Direction = techRes.Direction
	result.Confidence = techRes.Confidence
	result.BlendedConfidence = blended
	result.EntryPrice = techRes.EntryPrice
	result.StopLoss = techRes.StopLoss
	result.TakeProfit = techRes.TakeProfit
	result.RiskReward = techRes.RiskReward
	result.Sentiment = &SentimentSummary{
		Direction: alphaDir,
		Score:     alphaScore,
		Regime:    regime,
		Agreement: agreement,
	}

	signal := &db.Signal{
		Symbol:      symbol,
		Timeframe:   timeframe,
		StrategyID:  strategyID,
		Direction:   techRes.Direction,
		Confidence:  blended,
		SourceAgent: "orchestrator",
		EntryPrice:  techRes.EntryPrice,
		StopLoss:    techRes.StopLoss,
		TakeProfit:  techRes.TakeProfit,
		RiskReward:  techRes.RiskReward,
		Reasoning: map[string]any{
			"technical": topReasons(techRes.Reasoning, 5),
			"sentiment": map[string]any{
				"direction": string(alphaDir),
				"score":     alphaScore,
				"regime":    regime,
			},
			"blend": map[string]any{
				"technical_confidence": techRes.Confidence,
				"sentiment_confidence": alphaConf,
				"blended":              blended,
				"agreement":            agreement,
			},
		},
	}
	if err := o.repo.InsertPendingSignal(ctx, signal); err != nil {
		o.logger.Error().Err(err).Str("symbol", symbol).Msg("Failed to persist signal")
		result.Action = ActionSkip
		result.Reason = fmt.Sprintf("failed to persist signal: %v", err)
		return o.finish(result, start)
	}
	result.SignalID = &signal.ID

	entry := 0.0
	if techRes.EntryPrice != nil {
		entry = *techRes.EntryPrice
	}
	stopLoss := 0.0
	if techRes.StopLoss != nil {
		stopLoss = *techRes.StopLoss
	}
	proposed := &agents.ProposedSignal{
		Direction:  techRes.Direction,
		EntryPrice: entry,
		StopLoss:   stopLoss,
		Quantity:   o.sizer.Size(ctx, symbol, entry),
	}

	riskRes, err := o.risk.Analyze(ctx, symbol, proposed)
	if err != nil {
		o.rejectSignal(ctx, signal.ID)
		result.Action = ActionReject
		result.Reason = fmt.Sprintf("risk evaluation failed: %v", err)
		return o.finish(result, start)
	}
	result.Risk = &RiskSummary{
		Score:      riskRes.RiskScore,
		Flags:      riskRes.Flags,
		KillSwitch: riskRes.KillSwitchActive,
	}
	metrics.RecordRiskFlags(riskRes.Flags, riskRes.RiskScore)
	metrics.SetKillSwitch(riskRes.KillSwitchActive)

	// kill switch short-circuits the ballot entirely
	if riskRes.KillSwitchActive {
		o.rejectSignal(ctx, signal.ID)
		result.Action = ActionReject
		result.Reason = fmt.Sprintf("kill switch active: %s", riskRes.KillSwitchReason)
		o.storeCycleMemory(ctx, symbol, cycle, false, 0, blended, riskRes.Flags, agreement)
		return o.finish(result, start)
	}

	alphaVote := db.ConsensusVote{
		AgentName:  "alpha_scout",
		Vote:       db.VoteAbstain,
		Confidence: alphaConf,
		Reasoning: map[string]any{
			"direction": string(alphaDir),
			"regime":    regime,
		},
	}
	if agreement {
		alphaVote.Vote = db.VoteApprove
	}
	techVote := db.ConsensusVote{
		AgentName:  "technical_analyst",
		Vote:       db.VoteApprove,
		Confidence: techRes.Confidence,
		Reasoning:  map[string]any{"indicators": topReasons(techRes.Reasoning, 5)},
	}
	riskVote := db.ConsensusVote{
		AgentName:  "risk_sentinel",
		Vote:       riskRes.Vote,
		Confidence: riskRes.Confidence,
		Reasoning: map[string]any{
			"risk_score": riskRes.RiskScore,
			"flags":      riskRes.Flags,
		},
	}

	consensus, err := o.engine.Decide(ctx, signal.ID, []db.ConsensusVote{alphaVote, techVote, riskVote})
	if err != nil {
		o.rejectSignal(ctx, signal.ID)
		result.Action = ActionReject
		result.Reason = fmt.Sprintf("consensus failed: %v", err)
		return o.finish(result, start)
	}

	approved := consensus.Approved
	if approved && consensus.WeightedConfidence < o.minConsensus {
		approved = false
	}
	metrics.RecordConsensusDecision(approved, consensus.WeightedConfidence)
	metrics.BlendedConfidence.WithLabelValues(symbol).Set(blended)
	result.Consensus = &ConsensusSummary{
		Approved:           approved,
		ApproveCount:       consensus.ApproveCount,
		RejectCount:        consensus.RejectCount,
		WeightedConfidence: consensus.WeightedConfidence,
		MinRequired:        o.minConsensus,
	}

	status, topic := db.SignalStatusRejected, "signal.rejected"
	result.Action = ActionReject
	if approved {
		status, topic = db.SignalStatusApproved, "signal.approved"
		result.Action = ActionExecute
		o.risk.RecordTradeExecuted()
		o.signalsApproved.Add(1)
	} else {
		o.signalsRejected.Add(1)
	}
	if err := o.repo.UpdateSignalStatus(ctx, signal.ID, status); err != nil {
		o.logger.Error().Err(err).Str("signal_id", signal.ID.String()).Msg("Failed to update signal status")
	}
	metrics.RecordSignal(string(status))

	if err := o.bus.Broadcast("orchestrator", topic, map[string]any{
		"symbol":              symbol,
		"signal_id":           signal.ID.String(),
		"direction":           string(techRes.Direction),
		"confidence":          blended,
		"weighted_confidence": consensus.WeightedConfidence,
		"flags":               riskRes.Flags,
	}); err != nil {
		o.logger.Warn().Err(err).Msg("Failed to broadcast decision")
	}

	o.storeCycleMemory(ctx, symbol, cycle, approved, consensus.WeightedConfidence, blended, riskRes.Flags, agreement)

	return o.finish(result, start)
}

// rejectSignal marks the signal rejected and bumps the counter
func (o *Orchestrator) rejectSignal(ctx context.Context, id uuid.UUID) {
	o.signalsRejected.Add(1)
	if err := o.repo.UpdateSignalStatus(ctx, id, db.SignalStatusRejected); err != nil {
		o.logger.Error().Err(err).Str("signal_id", id.String()).Msg("Failed to update signal status")
	}
}

func (o *Orchestrator) storeCycleMemory(ctx context.Context, symbol string, cycle int64, approved bool, weighted, blended float64, flags []string, agreement bool) {
	flagsAny := make([]any, len(flags))
	for i, f := range flags {
		flagsAny[i] = f
	}
	if _, err := o.memory.StoreDecision(ctx, symbol, map[string]any{
		"cycle":               cycle,
		"approved":            approved,
		"weighted_confidence": weighted,
		"blended_confidence":  blended,
		"risk_flags":          flagsAny,
		"agreement":           agreement,
	}, 0.8); err != nil {
		o.logger.Warn().Err(err).Msg("Failed to store cycle memory")
	}
}

func (o *Orchestrator) finish(result *CycleResult, start time.Time) *CycleResult {
	result.DurationMs = time.Since(start).Milliseconds()
	result.Timestamp = o.clock()
	metrics.RecordScanCycle(result.Action, float64(result.DurationMs))

	o.appendTask(TaskEntry{
		Symbol:     result.Symbol,
		Action:     result.Action,
		SignalID:   result.SignalID,
		DurationMs: result.DurationMs,
		Timestamp:  result.Timestamp,
	})

	o.logger.Info().
		Int64("cycle", result.Cycle).
		Str("symbol", result.Symbol).
		Str("action", result.Action).
		Str("direction", string(result.Direction)).
		Int64("duration_ms", result.DurationMs).
		Msg("Scan cycle finished")

	return result
}

func (o *Orchestrator) appendTask(entry TaskEntry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.taskLog = append(o.taskLog, entry)
	if len(o.taskLog) > taskLogSize {
		o.taskLog = o.taskLog[len(o.taskLog)-taskLogSize:]
	}
}

// Tasks returns a copy of the task log, oldest first
func (o *Orchestrator) Tasks() []TaskEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]TaskEntry, len(o.taskLog))
	copy(out, o.taskLog)
	return out
}

// Stats reports the per-process cycle counters
func (o *Orchestrator) Stats() map[string]any {
	o.mu.Lock()
	taskCount := len(o.taskLog)
	o.mu.Unlock()

	return map[string]any{
		"cycles_run":       o.cyclesRun.Load(),
		"signals_approved": o.signalsApproved.Load(),
		"signals_rejected": o.signalsRejected.Load(),
		"task_log_size":    taskCount,
		"uptime_seconds":   time.Since(o.started).Seconds(),
	}
}

// Heartbeat upserts the orchestrator's own liveness row
func (o *Orchestrator) Heartbeat(ctx context.Context) error {
	return o.repo.UpsertHeartbeat(ctx, &db.AgentHeartbeat{
		AgentName:     "orchestrator",
		Status:        "alive",
		LastHeartbeat: o.clock(),
		Version:       orchestratorVersion,
		UptimeSeconds: time.Since(o.started).Seconds(),
	})
}

func topReasons(reasons []string, n int) []string {
	if len(reasons) > n {
		reasons = reasons[:n]
	}
	return reasons
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
