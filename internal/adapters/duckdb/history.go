package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/SkybrushThriftwood/processIQ/internal/core/ports"
)

// SaveRun inserts the record, or updates it when the id is already known.
// The creation time of an existing record is preserved.
func (r *Repository) SaveRun(ctx context.Context, rec ports.RunRecord) error {
	traceJSON, _ := json.Marshal(rec.ReasoningTrace)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (id, thread_id, user_id, process_name, phase,
		                  issue_count, recommendation_count, confidence,
		                  error, reasoning_trace, created_at_unix, updated_at_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			thread_id            = excluded.thread_id,
			user_id              = excluded.user_id,
			process_name         = excluded.process_name,
			phase                = excluded.phase,
			issue_count          = excluded.issue_count,
			recommendation_count = excluded.recommendation_count,
			confidence           = excluded.confidence,
			error                = excluded.error,
			reasoning_trace      = excluded.reasoning_trace,
			updated_at_unix      = excluded.updated_at_unix`,
		rec.ID, rec.ThreadID, rec.UserID, rec.ProcessName, rec.Phase,
		rec.IssueCount, rec.RecommendationCount, rec.Confidence,
		rec.Error, string(traceJSON), rec.CreatedAtUnix, rec.UpdatedAtUnix,
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.ID, err)
	}
	return nil
}

// GetRun returns a single run record by id.
func (r *Repository) GetRun(ctx context.Context, id string) (ports.RunRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, thread_id, user_id, process_name, phase,
		       issue_count, recommendation_count, confidence,
		       error, reasoning_trace, created_at_unix, updated_at_unix
		FROM runs WHERE id = ?`, id)

	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return ports.RunRecord{}, fmt.Errorf("run %s: %w", id, ports.ErrNotFound)
	}
	if err != nil {
		return ports.RunRecord{}, fmt.Errorf("get run: %w", err)
	}
	return rec, nil
}

// ListRunsByUser returns the user's runs, most recent first. limit <= 0
// means no limit.
func (r *Repository) ListRunsByUser(ctx context.Context, userID string, limit int) ([]ports.RunRecord, error) {
	query := `
		SELECT id, thread_id, user_id, process_name, phase,
		       issue_count, recommendation_count, confidence,
		       error, reasoning_trace, created_at_unix, updated_at_unix
		FROM runs WHERE user_id = ?
		ORDER BY created_at_unix DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := []ports.RunRecord{}
	for rows.Next() {
		rec, err := scanRunRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// scanRun scans a single row into a RunRecord.
func scanRun(row *sql.Row) (ports.RunRecord, error) {
	var rec ports.RunRecord
	var traceJSON string
	err := row.Scan(
		&rec.ID, &rec.ThreadID, &rec.UserID, &rec.ProcessName, &rec.Phase,
		&rec.IssueCount, &rec.RecommendationCount, &rec.Confidence,
		&rec.Error, &traceJSON, &rec.CreatedAtUnix, &rec.UpdatedAtUnix,
	)
	if err != nil {
		return ports.RunRecord{}, err
	}
	decodeTrace(traceJSON, &rec)
	return rec, nil
}

// scanRunRows scans from sql.Rows (same logic, different interface).
func scanRunRows(rows *sql.Rows) (ports.RunRecord, error) {
	var rec ports.RunRecord
	var traceJSON string
	err := rows.Scan(
		&rec.ID, &rec.ThreadID, &rec.UserID, &rec.ProcessName, &rec.Phase,
		&rec.IssueCount, &rec.RecommendationCount, &rec.Confidence,
		&rec.Error, &traceJSON, &rec.CreatedAtUnix, &rec.UpdatedAtUnix,
	)
	if err != nil {
		return ports.RunRecord{}, err
	}
	decodeTrace(traceJSON, &rec)
	return rec, nil
}

func decodeTrace(traceJSON string, rec *ports.RunRecord) {
	if traceJSON != "" && traceJSON != "null" {
		_ = json.Unmarshal([]byte(traceJSON), &rec.ReasoningTrace)
	}
}
