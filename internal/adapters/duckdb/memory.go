package duckdb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
)

// SaveMemory persists one analysis outcome record.
func (r *Repository) SaveMemory(ctx context.Context, mem domain.AnalysisMemory) error {
	bottlenecks, _ := json.Marshal(mem.BottlenecksFound)
	offered, _ := json.Marshal(mem.SuggestionsOffered)
	accepted, _ := json.Marshal(mem.SuggestionsAccepted)
	rejected, _ := json.Marshal(mem.SuggestionsRejected)
	reasons, _ := json.Marshal(mem.RejectionReasons)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO memories (id, created_at, process_name,
		                      bottlenecks_found, suggestions_offered,
		                      suggestions_accepted, suggestions_rejected,
		                      rejection_reasons, outcome_notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			suggestions_accepted = excluded.suggestions_accepted,
			suggestions_rejected = excluded.suggestions_rejected,
			rejection_reasons    = excluded.rejection_reasons,
			outcome_notes        = excluded.outcome_notes`,
		mem.ID, mem.Timestamp.UTC(), mem.ProcessName,
		string(bottlenecks), string(offered),
		string(accepted), string(rejected),
		string(reasons), mem.OutcomeNotes,
	)
	if err != nil {
		return fmt.Errorf("save memory %s: %w", mem.ID, err)
	}
	return nil
}

// ListMemories returns the newest records for the process, most recent
// first. Process names match case-insensitively. limit <= 0 means no
// limit.
func (r *Repository) ListMemories(ctx context.Context, processName string, limit int) ([]domain.AnalysisMemory, error) {
	query := `
		SELECT id, created_at, process_name,
		       bottlenecks_found, suggestions_offered,
		       suggestions_accepted, suggestions_rejected,
		       rejection_reasons, outcome_notes
		FROM memories WHERE lower(process_name) = lower(?)
		ORDER BY created_at DESC, id DESC`
	args := []any{processName}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	out := []domain.AnalysisMemory{}
	for rows.Next() {
		var mem domain.AnalysisMemory
		var bottlenecks, offered, accepted, rejected, reasons string
		err := rows.Scan(
			&mem.ID, &mem.Timestamp, &mem.ProcessName,
			&bottlenecks, &offered, &accepted, &rejected,
			&reasons, &mem.OutcomeNotes,
		)
		if err != nil {
			return nil, err
		}
		decodeList(bottlenecks, &mem.BottlenecksFound)
		decodeList(offered, &mem.SuggestionsOffered)
		decodeList(accepted, &mem.SuggestionsAccepted)
		decodeList(rejected, &mem.SuggestionsRejected)
		decodeList(reasons, &mem.RejectionReasons)
		out = append(out, mem)
	}
	return out, rows.Err()
}

func decodeList(raw string, dst *[]string) {
	if raw != "" && raw != "null" {
		_ = json.Unmarshal([]byte(raw), dst)
	}
}
