// Package metrics exposes Prometheus collectors for the swarm: scan
// cycles, consensus outcomes, risk posture, agent liveness and the
// supporting infrastructure.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bounded cardinality constants for metric labels. Risk flags carry
// free-form detail text, so they are normalized before labeling.
const (
	RiskFlagKillSwitch    = "kill_switch"
	RiskFlagDailyLoss     = "daily_loss"
	RiskFlagDrawdown      = "drawdown"
	RiskFlagMaxPositions  = "max_positions"
	RiskFlagTradeLimit    = "trade_limit"
	RiskFlagCooldown      = "cooldown"
	RiskFlagOverweight    = "overweight"
	RiskFlagVolatility    = "volatility"
	RiskFlagTradeRisk     = "trade_risk"
	RiskFlagConcentration = "concentration"
	RiskFlagOther         = "other"
)

// NormalizeRiskFlag maps a raised risk flag to its bounded label
func NormalizeRiskFlag(flag string) string {
	upper := strings.ToUpper(flag)
	switch {
	case strings.HasPrefix(upper, "KILL_SWITCH_ACTIVE"):
		return RiskFlagKillSwitch
	case strings.HasPrefix(upper, "DAILY_LOSS_EXCEEDED"):
		return RiskFlagDailyLoss
	case strings.HasPrefix(upper, "MAX_DRAWDOWN_EXCEEDED"):
		return RiskFlagDrawdown
	case strings.HasPrefix(upper, "MAX_POSITIONS_REACHED"):
		return RiskFlagMaxPositions
	case strings.HasPrefix(upper, "DAILY_TRADE_LIMIT"):
		return RiskFlagTradeLimit
	case strings.HasPrefix(upper, "COOL_DOWN_ACTIVE"):
		return RiskFlagCooldown
	case strings.HasPrefix(upper, "SINGLE_ASSET_OVERWEIGHT"):
		return RiskFlagOverweight
	case strings.HasPrefix(upper, "EXTREME_VOLATILITY"):
		return RiskFlagVolatility
	case strings.HasPrefix(upper, "TRADE_RISK_EXCEEDED"):
		return RiskFlagTradeRisk
	case strings.HasPrefix(upper, "CONCENTRATION_RISK"):
		return RiskFlagConcentration
	default:
		return RiskFlagOther
	}
}

// Scan cycle metrics
var (
	ScanCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ualgo_scan_cycles_total",
		Help: "Total scan cycles by final action",
	}, []string{"action"})

	ScanCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ualgo_scan_cycle_duration_ms",
		Help:    "Scan cycle duration in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000},
	})

	SignalsByStatus = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ualgo_signals_total",
		Help: "Total signals by final status",
	}, []string{"status"})

	BlendedConfidence = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ualgo_blended_confidence",
		Help: "Most recent blended signal confidence by symbol",
	}, []string{"symbol"})
)

// Consensus metrics
var (
	ConsensusVotes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ualgo_consensus_votes_total",
		Help: "Total consensus votes by agent and choice",
	}, []string{"agent", "vote"})

	ConsensusDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ualgo_consensus_decisions_total",
		Help: "Total consensus decisions by outcome",
	}, []string{"outcome"})

	WeightedConfidence = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ualgo_consensus_weighted_confidence",
		Help: "Most recent weighted consensus confidence",
	})
)

// Risk metrics
var (
	RiskFlagsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ualgo_risk_flags_total",
		Help: "Total risk flags raised by normalized category",
	}, []string{"flag"})

	RiskScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ualgo_risk_score",
		Help: "Most recent portfolio risk score (0.0 to 1.0)",
	})

	KillSwitchStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ualgo_kill_switch_active",
		Help: "Kill switch status (1 = active, 0 = inactive)",
	})

	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ualgo_open_positions",
		Help: "Number of currently open positions",
	})

	PositionValueBySymbol = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ualgo_position_value_by_symbol",
		Help: "Open position value in quote currency by symbol",
	}, []string{"symbol"})

	TotalPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ualgo_total_pnl",
		Help: "Total unrealized plus realized P&L in quote currency",
	})
)

// Agent metrics
var (
	AgentUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ualgo_agent_up",
		Help: "Agent liveness (1 = heartbeat fresh, 0 = stale)",
	}, []string{"agent"})

	AgentAnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ualgo_agent_analysis_duration_ms",
		Help:    "Agent analysis duration in milliseconds",
		Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500},
	}, []string{"agent"})

	AgentErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ualgo_agent_errors_total",
		Help: "Total agent analysis errors",
	}, []string{"agent"})
)

// Infrastructure metrics
var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ualgo_http_requests_total",
		Help: "Total HTTP requests by method, route and status",
	}, []string{"method", "path", "status_code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ualgo_http_request_duration_ms",
		Help:    "HTTP request duration in milliseconds",
		Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500},
	}, []string{"method", "path"})

	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ualgo_ws_clients",
		Help: "Number of connected WebSocket clients",
	})

	BusMessagesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ualgo_bus_messages_published_total",
		Help: "Total messages published on the internal bus",
	})

	CandleCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ualgo_candle_cache_hits_total",
		Help: "Total candle cache hits",
	})

	CandleCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ualgo_candle_cache_misses_total",
		Help: "Total candle cache misses",
	})

	FeedFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ualgo_feed_fetches_total",
		Help: "Total RSS feed fetches by outcome",
	}, []string{"outcome"})

	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ualgo_database_connections_active",
		Help: "Number of active database connections",
	})

	DatabaseConnectionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ualgo_database_connections_idle",
		Help: "Number of idle database connections",
	})
)

// RecordScanCycle records a finished scan cycle
func RecordScanCycle(action string, durationMs float64) {
	ScanCycles.WithLabelValues(action).Inc()
	ScanCycleDuration.Observe(durationMs)
}

// RecordSignal records a signal reaching a final status
func RecordSignal(status string) {
	SignalsByStatus.WithLabelValues(status).Inc()
}

// RecordVote records one consensus vote
func RecordVote(agent, vote string) {
	ConsensusVotes.WithLabelValues(agent, vote).Inc()
}

// RecordConsensusDecision records the engine verdict
func RecordConsensusDecision(approved bool, weightedConfidence float64) {
	outcome := "rejected"
	if approved {
		outcome = "approved"
	}
	ConsensusDecisions.WithLabelValues(outcome).Inc()
	WeightedConfidence.Set(weightedConfidence)
}

// RecordRiskFlags records raised flags with normalized labels and the
// resulting score.
func RecordRiskFlags(flags []string, score float64) {
	for _, flag := range flags {
		RiskFlagsRaised.WithLabelValues(NormalizeRiskFlag(flag)).Inc()
	}
	RiskScore.Set(score)
}

// SetKillSwitch sets the kill switch gauge
func SetKillSwitch(active bool) {
	v := 0.0
	if active {
		v = 1.0
	}
	KillSwitchStatus.Set(v)
}

// SetAgentUp sets an agent's liveness gauge
func SetAgentUp(agent string, up bool) {
	v := 0.0
	if up {
		v = 1.0
	}
	AgentUp.WithLabelValues(agent).Set(v)
}

// RecordAgentAnalysis records one agent analysis run
func RecordAgentAnalysis(agent string, durationMs float64, err error) {
	AgentAnalysisDuration.WithLabelValues(agent).Observe(durationMs)
	if err != nil {
		AgentErrors.WithLabelValues(agent).Inc()
	}
}

// RecordHTTPRequest records an API request
func RecordHTTPRequest(method, path, statusCode string, durationMs float64) {
	HTTPRequests.WithLabelValues(method, path, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(durationMs)
}

// RecordFeedFetch records an RSS fetch outcome
func RecordFeedFetch(ok bool) {
	outcome := "error"
	if ok {
		outcome = "ok"
	}
	FeedFetches.WithLabelValues(outcome).Inc()
}

// UpdateDatabaseConnections updates the pool gauges
func UpdateDatabaseConnections(active, idle int32) {
	DatabaseConnectionsActive.Set(float64(active))
	DatabaseConnectionsIdle.Set(float64(idle))
}
