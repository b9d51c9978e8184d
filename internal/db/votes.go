package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertVote persists one consensus vote
func (db *DB) InsertVote(ctx context.Context, vote *ConsensusVote) error {
	query := `
		INSERT INTO ualgo_consensus_vote (
			id, signal_id, agent_name, vote, confidence, reasoning, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	if vote.ID == uuid.Nil {
		vote.ID = uuid.New()
	}
	if vote.CreatedAt.IsZero() {
		vote.CreatedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx, query,
		vote.ID,
		vote.SignalID,
		vote.AgentName,
		vote.Vote,
		vote.Confidence,
		vote.Reasoning,
		vote.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert vote: %w", err)
	}

	return nil
}

// ListVotes returns the votes for a signal in insertion order
func (db *DB) ListVotes(ctx context.Context, signalID uuid.UUID) ([]ConsensusVote, error) {
	query := `
		SELECT id, signal_id, agent_name, vote, confidence, reasoning, created_at
		FROM ualgo_consensus_vote
		WHERE signal_id = $1
		ORDER BY created_at ASC
	`

	rows, err := db.pool.Query(ctx, query, signalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}
	defer rows.Close()

	var votes []ConsensusVote
	for rows.Next() {
		var v ConsensusVote
		if err := rows.Scan(
			&v.ID, &v.SignalID, &v.AgentName, &v.Vote,
			&v.Confidence, &v.Reasoning, &v.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate votes: %w", err)
	}

	return votes, nil
}

// VoteOutcomes joins an agent's votes with the final status of the
// voted signals within the window (quant lab accuracy input).
func (db *DB) VoteOutcomes(ctx context.Context, agentName string, since time.Time) ([]VoteOutcome, error) {
	query := `
		SELECT v.agent_name, v.vote, v.confidence, s.status
		FROM ualgo_consensus_vote v
		JOIN ualgo_signal s ON s.id = v.signal_id
		WHERE v.agent_name = $1 AND v.created_at >= $2
		ORDER BY v.created_at ASC
	`

	rows, err := db.pool.Query(ctx, query, agentName, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query vote outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []VoteOutcome
	for rows.Next() {
		var o VoteOutcome
		if err := rows.Scan(&o.AgentName, &o.Vote, &o.Confidence, &o.Status); err != nil {
			return nil, fmt.Errorf("failed to scan vote outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vote outcomes: %w", err)
	}

	return outcomes, nil
}
