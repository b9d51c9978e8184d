package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InsertMemory appends one agent memory row and returns its id
func (db *DB) InsertMemory(ctx context.Context, entry *MemoryEntry) (uuid.UUID, error) {
	query := `
		INSERT INTO ualgo_agent_memory (
			id, agent_name, memory_type, symbol, content, importance,
			created_at, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx, query,
		entry.ID,
		entry.AgentName,
		entry.MemoryType,
		entry.Symbol,
		entry.Content,
		entry.Importance,
		entry.CreatedAt,
		entry.ExpiresAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert memory: %w", err)
	}

	return entry.ID, nil
}

// ListMemory returns non-expired memories for an agent, ordered by
// importance then recency. Empty memType/symbol disable those filters.
func (db *DB) ListMemory(ctx context.Context, agentName string, memType MemoryType, symbol string, limit int) ([]MemoryEntry, error) {
	query := `
		SELECT id, agent_name, memory_type, symbol, content, importance,
		       created_at, expires_at
		FROM ualgo_agent_memory
		WHERE agent_name = $1
		  AND ($2 = '' OR memory_type = $2)
		  AND ($3 = '' OR symbol = $3)
		  AND (expires_at IS NULL OR expires_at > $4)
		ORDER BY importance DESC, created_at DESC
		LIMIT $5
	`

	if limit <= 0 {
		limit = 20
	}

	rows, err := db.pool.Query(ctx, query, agentName, string(memType), symbol, time.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	defer rows.Close()

	var entries []MemoryEntry
	for rows.Next() {
		var e MemoryEntry
		if err := rows.Scan(
			&e.ID, &e.AgentName, &e.MemoryType, &e.Symbol, &e.Content,
			&e.Importance, &e.CreatedAt, &e.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memories: %w", err)
	}

	return entries, nil
}

// DeleteExpiredMemories removes rows whose expiry has passed.
// Expiry is logical (recall filters them out); this is housekeeping.
func (db *DB) DeleteExpiredMemories(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM ualgo_agent_memory
		WHERE expires_at IS NOT NULL AND expires_at <= $1
	`

	result, err := db.pool.Exec(ctx, query, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired memories: %w", err)
	}

	return result.RowsAffected(), nil
}
