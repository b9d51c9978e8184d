package db

import (
	"context"
	"fmt"
	"time"
)

const positionColumns = `
	id, symbol, side, entry_price, current_price, quantity,
	unrealized_pnl, status, strategy_id, opened_at, closed_at
`

func scanPositions(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Position, error) {
	var positions []Position
	for rows.Next() {
		var p Position
		if err := rows.Scan(
			&p.ID, &p.Symbol, &p.Side, &p.EntryPrice, &p.CurrentPrice,
			&p.Quantity, &p.UnrealizedPnL, &p.Status, &p.StrategyID,
			&p.OpenedAt, &p.ClosedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate positions: %w", err)
	}
	return positions, nil
}

// GetOpenPositions returns all open positions
func (db *DB) GetOpenPositions(ctx context.Context) ([]Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM ualgo_position
		WHERE status = 'open'
		ORDER BY opened_at ASC
	`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query open positions: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// CountOpenPositions counts open positions, optionally for one symbol
func (db *DB) CountOpenPositions(ctx context.Context, symbol string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM ualgo_position
		WHERE status = 'open' AND ($1 = '' OR symbol = $1)
	`

	var count int
	if err := db.pool.QueryRow(ctx, query, symbol).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count open positions: %w", err)
	}

	return count, nil
}

// GetClosedPositions returns closed positions for a strategy since the
// given time (quant lab performance input).
func (db *DB) GetClosedPositions(ctx context.Context, strategyID string, since time.Time) ([]Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM ualgo_position
		WHERE status = 'closed'
		  AND ($1 = '' OR strategy_id = $1)
		  AND closed_at >= $2
		ORDER BY closed_at ASC
	`

	rows, err := db.pool.Query(ctx, query, strategyID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query closed positions: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}
