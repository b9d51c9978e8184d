package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ualgo/engine/internal/config"
)

// heartbeatStaleAfter marks an agent down when its liveness row is
// older than this.
const heartbeatStaleAfter = 90 * time.Second

// Updater periodically refreshes the database-derived gauges: open
// positions, P&L and agent liveness.
type Updater struct {
	pool     *pgxpool.Pool
	interval time.Duration
	logger   zerolog.Logger
	stopCh   chan struct{}
}

// NewUpdater creates a metrics updater polling at the given interval
func NewUpdater(pool *pgxpool.Pool, interval time.Duration) *Updater {
	return &Updater{
		pool:     pool,
		interval: interval,
		logger:   config.NewLogger("metrics_updater"),
		stopCh:   make(chan struct{}),
	}
}

// Start runs the update loop until Stop or context cancellation
func (u *Updater) Start(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	u.update(ctx)

	for {
		select {
		case <-ticker.C:
			u.update(ctx)
		case <-u.stopCh:
			u.logger.Info().Msg("Metrics updater stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts the update loop
func (u *Updater) Stop() {
	close(u.stopCh)
}

func (u *Updater) update(ctx context.Context) {
	u.updatePositions(ctx)
	u.updateAgents(ctx)
	u.updatePool()
}

func (u *Updater) updatePositions(ctx context.Context) {
	var open int
	var totalPnL float64
	err := u.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(unrealized_pnl), 0)
		FROM ualgo_position
		WHERE status = 'open'`).Scan(&open, &totalPnL)
	if err != nil {
		u.logger.Warn().Err(err).Msg("Failed to refresh position metrics")
		return
	}
	OpenPositions.Set(float64(open))
	TotalPnL.Set(totalPnL)

	rows, err := u.pool.Query(ctx, `
		SELECT symbol, SUM(COALESCE(current_price, entry_price) * quantity)
		FROM ualgo_position
		WHERE status = 'open'
		GROUP BY symbol`)
	if err != nil {
		u.logger.Warn().Err(err).Msg("Failed to refresh position values")
		return
	}
	defer rows.Close()

	for rows.Next() {
		var symbol string
		var value float64
		if err := rows.Scan(&symbol, &value); err != nil {
			u.logger.Warn().Err(err).Msg("Failed to scan position value row")
			return
		}
		PositionValueBySymbol.WithLabelValues(symbol).Set(value)
	}
}

func (u *Updater) updateAgents(ctx context.Context) {
	rows, err := u.pool.Query(ctx, `
		SELECT agent_name, last_heartbeat
		FROM ualgo_agent_heartbeat`)
	if err != nil {
		u.logger.Warn().Err(err).Msg("Failed to refresh agent metrics")
		return
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var last time.Time
		if err := rows.Scan(&name, &last); err != nil {
			u.logger.Warn().Err(err).Msg("Failed to scan heartbeat row")
			return
		}
		SetAgentUp(name, time.Since(last) < heartbeatStaleAfter)
	}
}

func (u *Updater) updatePool() {
	if u.pool == nil {
		return
	}
	stat := u.pool.Stat()
	UpdateDatabaseConnections(stat.AcquiredConns(), stat.IdleConns())
}
