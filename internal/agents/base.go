package agents

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ualgo/engine/internal/bus"
	"github.com/ualgo/engine/internal/config"
	"github.com/ualgo/engine/internal/db"
	"github.com/ualgo/engine/internal/memory"
	"github.com/ualgo/engine/internal/metrics"
)

// BaseAgent carries the identity and shared plumbing every agent
// embeds: repository access, message bus, persistent memory, health
// reporting and task accounting.
type BaseAgent struct {
	name    string
	role    string
	version string

	repo   Repository
	bus    *bus.Bus
	memory *memory.Store
	logger zerolog.Logger

	started     time.Time
	activeTasks atomic.Int64
	clock       func() time.Time
}

// NewBaseAgent creates the shared agent core
func NewBaseAgent(name, role, version string, repo Repository, b *bus.Bus) *BaseAgent {
	return &BaseAgent{
		name:    name,
		role:    role,
		version: version,
		repo:    repo,
		bus:     b,
		memory:  memory.NewStore(repo, name, config.NewLogger("memory."+name)),
		logger:  config.NewAgentLogger(name, role),
		started: time.Now(),
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// Name returns the agent's name
func (a *BaseAgent) Name() string { return a.name }

// Role returns the agent's role description
func (a *BaseAgent) Role() string { return a.role }

// Version returns the agent's version
func (a *BaseAgent) Version() string { return a.version }

// Memory returns the agent's persistent memory store
func (a *BaseAgent) Memory() *memory.Store { return a.memory }

// UptimeSeconds returns seconds since construction, measured on the
// monotonic clock.
func (a *BaseAgent) UptimeSeconds() float64 {
	return time.Since(a.started).Seconds()
}

// ActiveTasks returns the number of analyses currently in flight
func (a *BaseAgent) ActiveTasks() int {
	return int(a.activeTasks.Load())
}

// Heartbeat upserts the agent's liveness row
func (a *BaseAgent) Heartbeat(ctx context.Context) error {
	return a.repo.UpsertHeartbeat(ctx, &db.AgentHeartbeat{
		AgentName:     a.name,
		Status:        "alive",
		LastHeartbeat: a.clock(),
		ActiveTasks:   a.ActiveTasks(),
		Version:       a.version,
		UptimeSeconds: a.UptimeSeconds(),
	})
}

// runTracked wraps one analysis call with task accounting, a
// heartbeat, a result broadcast on analysis.<agent>, and error
// memoization. Failures never escape an agent beyond the returned
// error; callers treat errored results as inputs.
func runTracked[T any](ctx context.Context, a *BaseAgent, symbol string, fn func(context.Context) (T, error)) (T, error) {
	a.activeTasks.Add(1)
	defer a.activeTasks.Add(-1)

	if err := a.Heartbeat(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("Heartbeat failed")
	}

	start := time.Now()
	result, err := fn(ctx)
	metrics.RecordAgentAnalysis(a.name, float64(time.Since(start).Milliseconds()), err)
	if err != nil {
		a.logger.Error().Err(err).Str("symbol", symbol).Msg("Analysis failed")
		if _, memErr := a.memory.StoreError(ctx, map[string]any{
			"symbol": symbol,
			"error":  err.Error(),
		}); memErr != nil {
			a.logger.Warn().Err(memErr).Msg("Failed to memoize error")
		}
		return result, err
	}

	if busErr := a.bus.Broadcast(a.name, "analysis."+a.name, map[string]any{
		"symbol": symbol,
		"result": result,
	}); busErr != nil {
		a.logger.Warn().Err(busErr).Msg("Failed to broadcast analysis")
	}

	return result, nil
}
