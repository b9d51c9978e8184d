// Package agents implements the trading agent swarm: alpha scout
// (sentiment), technical analyst, risk sentinel and quant lab. Agents
// hold no references to each other; the orchestrator owns them all.
package agents

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ualgo/engine/internal/db"
)

// Repository is the persistence surface the agents need. *db.DB
// satisfies it; tests use fakes.
type Repository interface {
	GetOpenPositions(ctx context.Context) ([]db.Position, error)
	CountOpenPositions(ctx context.Context, symbol string) (int, error)
	GetClosedPositions(ctx context.Context, strategyID string, since time.Time) ([]db.Position, error)
	CountSignalsToday(ctx context.Context) (int, error)
	RecentSignalConfidences(ctx context.Context, symbol string, hours int) ([]float64, error)
	SignalsSince(ctx context.Context, since time.Time) ([]db.Signal, error)
	VoteOutcomes(ctx context.Context, agentName string, since time.Time) ([]db.VoteOutcome, error)
	LatestSnapshot(ctx context.Context) (*db.PortfolioSnapshot, error)
	UpsertSnapshot(ctx context.Context, snapshot *db.PortfolioSnapshot) error
	UpsertHeartbeat(ctx context.Context, hb *db.AgentHeartbeat) error
	InsertMemory(ctx context.Context, entry *db.MemoryEntry) (uuid.UUID, error)
	ListMemory(ctx context.Context, agentName string, memType db.MemoryType, symbol string, limit int) ([]db.MemoryEntry, error)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func ptr(v float64) *float64 { return &v }
