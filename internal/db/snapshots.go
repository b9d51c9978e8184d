package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// UpsertSnapshot inserts or replaces the portfolio snapshot for a date
func (db *DB) UpsertSnapshot(ctx context.Context, snapshot *PortfolioSnapshot) error {
	query := `
		INSERT INTO ualgo_portfolio_snapshot (
			snapshot_date, total_value, total_pnl, total_pnl_pct,
			open_positions, win_rate, sharpe_ratio, max_drawdown, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		ON CONFLICT (snapshot_date) DO UPDATE SET
			total_value = EXCLUDED.total_value,
			total_pnl = EXCLUDED.total_pnl,
			total_pnl_pct = EXCLUDED.total_pnl_pct,
			open_positions = EXCLUDED.open_positions,
			win_rate = EXCLUDED.win_rate,
			sharpe_ratio = EXCLUDED.sharpe_ratio,
			max_drawdown = EXCLUDED.max_drawdown,
			updated_at = EXCLUDED.updated_at
	`

	snapshot.UpdatedAt = time.Now().UTC()

	_, err := db.pool.Exec(ctx, query,
		snapshot.SnapshotDate,
		snapshot.TotalValue,
		snapshot.TotalPnL,
		snapshot.TotalPnLPct,
		snapshot.OpenPositions,
		snapshot.WinRate,
		snapshot.SharpeRatio,
		snapshot.MaxDrawdown,
		snapshot.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}

	return nil
}

// LatestSnapshot returns the most recent portfolio snapshot, or nil
// when none exists yet.
func (db *DB) LatestSnapshot(ctx context.Context) (*PortfolioSnapshot, error) {
	query := `
		SELECT snapshot_date, total_value, total_pnl, total_pnl_pct,
		       open_positions, win_rate, sharpe_ratio, max_drawdown, updated_at
		FROM ualgo_portfolio_snapshot
		ORDER BY snapshot_date DESC
		LIMIT 1
	`

	var s PortfolioSnapshot
	err := db.pool.QueryRow(ctx, query).Scan(
		&s.SnapshotDate, &s.TotalValue, &s.TotalPnL, &s.TotalPnLPct,
		&s.OpenPositions, &s.WinRate, &s.SharpeRatio, &s.MaxDrawdown,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest snapshot: %w", err)
	}

	return &s, nil
}

// SnapshotsSince returns snapshots newer than the given date, oldest first
func (db *DB) SnapshotsSince(ctx context.Context, since time.Time) ([]PortfolioSnapshot, error) {
	query := `
		SELECT snapshot_date, total_value, total_pnl, total_pnl_pct,
		       open_positions, win_rate, sharpe_ratio, max_drawdown, updated_at
		FROM ualgo_portfolio_snapshot
		WHERE snapshot_date >= $1
		ORDER BY snapshot_date ASC
	`

	rows, err := db.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []PortfolioSnapshot
	for rows.Next() {
		var s PortfolioSnapshot
		if err := rows.Scan(
			&s.SnapshotDate, &s.TotalValue, &s.TotalPnL, &s.TotalPnLPct,
			&s.OpenPositions, &s.WinRate, &s.SharpeRatio, &s.MaxDrawdown,
			&s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshots: %w", err)
	}

	return snapshots, nil
}
