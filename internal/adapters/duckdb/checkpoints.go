package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
)

// Get loads the checkpointed state for a thread. A missing checkpoint is
// a valid miss, not an error.
func (r *Repository) Get(ctx context.Context, threadID string) (*domain.AgentState, bool, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT state FROM checkpoints WHERE thread_id = ?`, threadID)

	var raw string
	err := row.Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get checkpoint: %w", err)
	}

	var state domain.AgentState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, false, fmt.Errorf("decode checkpoint %s: %w", threadID, err)
	}
	return &state, true, nil
}

// Put stores the full state for a thread, replacing any previous checkpoint.
func (r *Repository) Put(ctx context.Context, threadID string, state *domain.AgentState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO checkpoints (thread_id, state, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (thread_id) DO UPDATE SET
			state      = excluded.state,
			updated_at = excluded.updated_at`,
		threadID, string(raw), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("put checkpoint: %w", err)
	}
	return nil
}

// Delete removes the checkpoint for a thread, if any.
func (r *Repository) Delete(ctx context.Context, threadID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE thread_id = ?`, threadID)
	if err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}
