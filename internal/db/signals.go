package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertPendingSignal persists a candidate signal with status=pending
// and assigns its ID.
func (db *DB) InsertPendingSignal(ctx context.Context, signal *Signal) error {
	query := `
		INSERT INTO ualgo_signal (
			id, symbol, timeframe, strategy_id, direction, confidence, source_agent,
			entry_price, stop_loss, take_profit, risk_reward, status, reasoning,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
	`

	if signal.ID == uuid.Nil {
		signal.ID = uuid.New()
	}
	if signal.CreatedAt.IsZero() {
		signal.CreatedAt = time.Now().UTC()
	}
	signal.UpdatedAt = signal.CreatedAt
	signal.Status = SignalStatusPending

	_, err := db.pool.Exec(ctx, query,
		signal.ID,
		signal.Symbol,
		signal.Timeframe,
		signal.StrategyID,
		signal.Direction,
		signal.Confidence,
		signal.SourceAgent,
		signal.EntryPrice,
		signal.StopLoss,
		signal.TakeProfit,
		signal.RiskReward,
		signal.Status,
		signal.Reasoning,
		signal.CreatedAt,
		signal.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert signal: %w", err)
	}

	return nil
}

// UpdateSignalStatus transitions a signal to a new lifecycle state
func (db *DB) UpdateSignalStatus(ctx context.Context, id uuid.UUID, status SignalStatus) error {
	query := `
		UPDATE ualgo_signal
		SET status = $2, updated_at = $3
		WHERE id = $1
	`

	result, err := db.pool.Exec(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update signal status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("signal not found: %s", id)
	}

	return nil
}

// ListRecentSignals returns recent signals, newest first, optionally
// filtered by symbol and status.
func (db *DB) ListRecentSignals(ctx context.Context, symbol string, status SignalStatus, limit int) ([]Signal, error) {
	query := `
		SELECT id, symbol, timeframe, strategy_id, direction, confidence, source_agent,
		       entry_price, stop_loss, take_profit, risk_reward, status, reasoning,
		       created_at, updated_at
		FROM ualgo_signal
		WHERE ($1 = '' OR symbol = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`

	if limit <= 0 || limit > 100 {
		limit = 100
	}

	rows, err := db.pool.Query(ctx, query, symbol, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list signals: %w", err)
	}
	defer rows.Close()

	var signals []Signal
	for rows.Next() {
		var s Signal
		if err := rows.Scan(
			&s.ID, &s.Symbol, &s.Timeframe, &s.StrategyID, &s.Direction,
			&s.Confidence, &s.SourceAgent, &s.EntryPrice, &s.StopLoss,
			&s.TakeProfit, &s.RiskReward, &s.Status, &s.Reasoning,
			&s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		signals = append(signals, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate signals: %w", err)
	}

	return signals, nil
}

// RecentSignalConfidences returns confidences of signals for a symbol
// within the last N hours (volatility input for the risk sweep).
func (db *DB) RecentSignalConfidences(ctx context.Context, symbol string, hours int) ([]float64, error) {
	query := `
		SELECT confidence
		FROM ualgo_signal
		WHERE symbol = $1 AND created_at >= $2
		ORDER BY created_at DESC
	`

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	rows, err := db.pool.Query(ctx, query, symbol, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query signal confidences: %w", err)
	}
	defer rows.Close()

	var confidences []float64
	for rows.Next() {
		var c float64
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan confidence: %w", err)
		}
		confidences = append(confidences, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate confidences: %w", err)
	}

	return confidences, nil
}

// CountSignalsToday counts signals created since the UTC day boundary
func (db *DB) CountSignalsToday(ctx context.Context) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM ualgo_signal
		WHERE created_at >= date_trunc('day', now() AT TIME ZONE 'utc')
	`

	var count int
	if err := db.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count signals: %w", err)
	}

	return count, nil
}

// SignalsSince returns all signals created after the given time
// (quant lab signal-health input).
func (db *DB) SignalsSince(ctx context.Context, since time.Time) ([]Signal, error) {
	query := `
		SELECT id, symbol, timeframe, strategy_id, direction, confidence, source_agent,
		       entry_price, stop_loss, take_profit, risk_reward, status, reasoning,
		       created_at, updated_at
		FROM ualgo_signal
		WHERE created_at >= $1
		ORDER BY created_at ASC
	`

	rows, err := db.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var signals []Signal
	for rows.Next() {
		var s Signal
		if err := rows.Scan(
			&s.ID, &s.Symbol, &s.Timeframe, &s.StrategyID, &s.Direction,
			&s.Confidence, &s.SourceAgent, &s.EntryPrice, &s.StopLoss,
			&s.TakeProfit, &s.RiskReward, &s.Status, &s.Reasoning,
			&s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		signals = append(signals, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate signals: %w", err)
	}

	return signals, nil
}
