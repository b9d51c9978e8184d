package db

import (
	"context"
	"fmt"
	"time"
)

// UpsertHeartbeat records agent liveness (one row per agent)
func (db *DB) UpsertHeartbeat(ctx context.Context, hb *AgentHeartbeat) error {
	query := `
		INSERT INTO ualgo_agent_heartbeat (
			agent_name, status, last_heartbeat, active_tasks, version, uptime_seconds
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
		ON CONFLICT (agent_name) DO UPDATE SET
			status = EXCLUDED.status,
			last_heartbeat = EXCLUDED.last_heartbeat,
			active_tasks = EXCLUDED.active_tasks,
			version = EXCLUDED.version,
			uptime_seconds = EXCLUDED.uptime_seconds
	`

	if hb.LastHeartbeat.IsZero() {
		hb.LastHeartbeat = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx, query,
		hb.AgentName,
		hb.Status,
		hb.LastHeartbeat,
		hb.ActiveTasks,
		hb.Version,
		hb.UptimeSeconds,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert heartbeat: %w", err)
	}

	return nil
}

// ListHeartbeats returns the heartbeat row of every known agent
func (db *DB) ListHeartbeats(ctx context.Context) ([]AgentHeartbeat, error) {
	query := `
		SELECT agent_name, status, last_heartbeat, active_tasks, version, uptime_seconds
		FROM ualgo_agent_heartbeat
		ORDER BY agent_name ASC
	`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list heartbeats: %w", err)
	}
	defer rows.Close()

	var heartbeats []AgentHeartbeat
	for rows.Next() {
		var hb AgentHeartbeat
		if err := rows.Scan(
			&hb.AgentName, &hb.Status, &hb.LastHeartbeat,
			&hb.ActiveTasks, &hb.Version, &hb.UptimeSeconds,
		); err != nil {
			return nil, fmt.Errorf("failed to scan heartbeat: %w", err)
		}
		heartbeats = append(heartbeats, hb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate heartbeats: %w", err)
	}

	return heartbeats, nil
}
