package db

import (
	"time"

	"github.com/google/uuid"
)

// Direction represents a signal direction
type Direction string

const (
	DirectionLong    Direction = "LONG"
	DirectionShort   Direction = "SHORT"
	DirectionNeutral Direction = "NEUTRAL"
)

// SignalStatus represents the lifecycle state of a signal
type SignalStatus string

const (
	SignalStatusPending  SignalStatus = "pending"
	SignalStatusApproved SignalStatus = "approved"
	SignalStatusRejected SignalStatus = "rejected"
	SignalStatusExecuted SignalStatus = "executed"
	SignalStatusExpired  SignalStatus = "expired"
)

// VoteChoice represents an agent's consensus judgment
type VoteChoice string

const (
	VoteApprove VoteChoice = "approve"
	VoteReject  VoteChoice = "reject"
	VoteAbstain VoteChoice = "abstain"
)

// MemoryType classifies a stored memory entry
type MemoryType string

const (
	MemoryTypeDecision MemoryType = "decision"
	MemoryTypeLearning MemoryType = "learning"
	MemoryTypePattern  MemoryType = "pattern"
	MemoryTypeError    MemoryType = "error"
)

// Signal is the central artifact of a scan cycle
type Signal struct {
	ID          uuid.UUID      `db:"id" json:"id"`
	Symbol      string         `db:"symbol" json:"symbol"`
	Timeframe   string         `db:"timeframe" json:"timeframe"`
	StrategyID  string         `db:"strategy_id" json:"strategy_id"`
	Direction   Direction      `db:"direction" json:"direction"`
	Confidence  float64        `db:"confidence" json:"confidence"`
	SourceAgent string         `db:"source_agent" json:"source_agent"`
	EntryPrice  *float64       `db:"entry_price" json:"entry_price"`
	StopLoss    *float64       `db:"stop_loss" json:"stop_loss"`
	TakeProfit  *float64       `db:"take_profit" json:"take_profit"`
	RiskReward  *float64       `db:"risk_reward" json:"risk_reward"`
	Status      SignalStatus   `db:"status" json:"status"`
	Reasoning   map[string]any `db:"reasoning" json:"reasoning"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// ConsensusVote is one agent's judgment of a candidate signal
type ConsensusVote struct {
	ID         uuid.UUID      `db:"id" json:"id"`
	SignalID   uuid.UUID      `db:"signal_id" json:"signal_id"`
	AgentName  string         `db:"agent_name" json:"agent_name"`
	Vote       VoteChoice     `db:"vote" json:"vote"`
	Confidence float64        `db:"confidence" json:"confidence"`
	Reasoning  map[string]any `db:"reasoning" json:"reasoning"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// VoteOutcome joins a vote with the final status of its signal
// (used for agent accuracy analysis)
type VoteOutcome struct {
	AgentName  string
	Vote       VoteChoice
	Confidence float64
	Status     SignalStatus
}

// Position is a trading position; the engine only reads them
type Position struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	Symbol        string     `db:"symbol" json:"symbol"`
	Side          Direction  `db:"side" json:"side"`
	EntryPrice    float64    `db:"entry_price" json:"entry_price"`
	CurrentPrice  *float64   `db:"current_price" json:"current_price"`
	Quantity      float64    `db:"quantity" json:"quantity"`
	UnrealizedPnL *float64   `db:"unrealized_pnl" json:"unrealized_pnl"`
	Status        string     `db:"status" json:"status"`
	StrategyID    string     `db:"strategy_id" json:"strategy_id"`
	OpenedAt      time.Time  `db:"opened_at" json:"opened_at"`
	ClosedAt      *time.Time `db:"closed_at" json:"closed_at"`
}

// PortfolioSnapshot is the daily portfolio metrics row, keyed by date
type PortfolioSnapshot struct {
	SnapshotDate  time.Time `db:"snapshot_date" json:"snapshot_date"`
	TotalValue    float64   `db:"total_value" json:"total_value"`
	TotalPnL      float64   `db:"total_pnl" json:"total_pnl"`
	TotalPnLPct   float64   `db:"total_pnl_pct" json:"total_pnl_pct"`
	OpenPositions int       `db:"open_positions" json:"open_positions"`
	WinRate       float64   `db:"win_rate" json:"win_rate"`
	SharpeRatio   float64   `db:"sharpe_ratio" json:"sharpe_ratio"`
	MaxDrawdown   float64   `db:"max_drawdown" json:"max_drawdown"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// AgentHeartbeat is the per-agent liveness row (one per agent, upserted)
type AgentHeartbeat struct {
	AgentName     string    `db:"agent_name" json:"agent_name"`
	Status        string    `db:"status" json:"status"`
	LastHeartbeat time.Time `db:"last_heartbeat" json:"last_heartbeat"`
	ActiveTasks   int       `db:"active_tasks" json:"active_tasks"`
	Version       string    `db:"version" json:"version"`
	UptimeSeconds float64   `db:"uptime_seconds" json:"uptime_seconds"`
}

// MemoryEntry is one append-only agent memory row
type MemoryEntry struct {
	ID         uuid.UUID      `db:"id" json:"id"`
	AgentName  string         `db:"agent_name" json:"agent_name"`
	MemoryType MemoryType     `db:"memory_type" json:"memory_type"`
	Symbol     *string        `db:"symbol" json:"symbol"`
	Content    map[string]any `db:"content" json:"content"`
	Importance float64        `db:"importance" json:"importance"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	ExpiresAt  *time.Time     `db:"expires_at" json:"expires_at"`
}
