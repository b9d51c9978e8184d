package db

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// migrations are applied in order; every statement is idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS ualgo_signal (
		id UUID PRIMARY KEY,
		symbol VARCHAR(20) NOT NULL,
		timeframe VARCHAR(10) NOT NULL DEFAULT '1h',
		strategy_id VARCHAR(100) NOT NULL DEFAULT 'default',
		direction VARCHAR(10) NOT NULL,
		confidence NUMERIC(20,8) NOT NULL,
		source_agent VARCHAR(50) NOT NULL,
		entry_price NUMERIC(20,8),
		stop_loss NUMERIC(20,8),
		take_profit NUMERIC(20,8),
		risk_reward NUMERIC(20,8),
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		reasoning JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ualgo_signal_symbol_created
		ON ualgo_signal (symbol, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_ualgo_signal_status
		ON ualgo_signal (status)`,

	`CREATE TABLE IF NOT EXISTS ualgo_consensus_vote (
		id UUID PRIMARY KEY,
		signal_id UUID NOT NULL REFERENCES ualgo_signal(id) ON DELETE CASCADE,
		agent_name VARCHAR(50) NOT NULL,
		vote VARCHAR(10) NOT NULL,
		confidence NUMERIC(20,8) NOT NULL,
		reasoning JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ualgo_vote_signal
		ON ualgo_consensus_vote (signal_id)`,
	`CREATE INDEX IF NOT EXISTS idx_ualgo_vote_agent_created
		ON ualgo_consensus_vote (agent_name, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS ualgo_position (
		id UUID PRIMARY KEY,
		symbol VARCHAR(20) NOT NULL,
		side VARCHAR(10) NOT NULL,
		entry_price NUMERIC(20,8) NOT NULL,
		current_price NUMERIC(20,8),
		quantity NUMERIC(20,8) NOT NULL,
		unrealized_pnl NUMERIC(20,8),
		status VARCHAR(20) NOT NULL DEFAULT 'open',
		strategy_id VARCHAR(100) NOT NULL DEFAULT 'default',
		opened_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		closed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ualgo_position_status
		ON ualgo_position (status, symbol)`,

	`CREATE TABLE IF NOT EXISTS ualgo_portfolio_snapshot (
		snapshot_date DATE PRIMARY KEY,
		total_value NUMERIC(20,8) NOT NULL,
		total_pnl NUMERIC(20,8) NOT NULL DEFAULT 0,
		total_pnl_pct NUMERIC(20,8) NOT NULL DEFAULT 0,
		open_positions INT NOT NULL DEFAULT 0,
		win_rate NUMERIC(20,8) NOT NULL DEFAULT 0,
		sharpe_ratio NUMERIC(20,8) NOT NULL DEFAULT 0,
		max_drawdown NUMERIC(20,8) NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS ualgo_agent_heartbeat (
		agent_name VARCHAR(50) PRIMARY KEY,
		status VARCHAR(20) NOT NULL DEFAULT 'alive',
		last_heartbeat TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		active_tasks INT NOT NULL DEFAULT 0,
		version VARCHAR(20) NOT NULL DEFAULT '',
		uptime_seconds NUMERIC(20,8) NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS ualgo_agent_memory (
		id UUID PRIMARY KEY,
		agent_name VARCHAR(50) NOT NULL,
		memory_type VARCHAR(20) NOT NULL,
		symbol VARCHAR(20),
		content JSONB NOT NULL,
		importance NUMERIC(20,8) NOT NULL DEFAULT 0.5,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ualgo_memory_agent_type
		ON ualgo_agent_memory (agent_name, memory_type, importance DESC)`,
}

// Migrate applies the schema
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", i+1, err)
		}
	}

	log.Info().Int("statements", len(migrations)).Msg("Schema migrations applied")
	return nil
}
