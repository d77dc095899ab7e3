// Package duckdb persists checkpoints, run history, analysis memories
// and settings in an embedded DuckDB database through database/sql.
package duckdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/SkybrushThriftwood/processIQ/internal/core/ports"
)

// Repository is the single handle to the database. It implements the
// checkpoint, run history, memory and settings ports.
type Repository struct {
	db *sql.DB
}

var (
	_ ports.CheckpointStore      = (*Repository)(nil)
	_ ports.RunHistoryRepository = (*Repository)(nil)
	_ ports.MemoryRepository     = (*Repository)(nil)
	_ ports.SettingsRepository   = (*Repository)(nil)
)

// NewRepository opens (or creates) the database at path and applies the
// schema. An empty path opens an in-memory database.
func NewRepository(path string) (*Repository, error) {
	if path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	// DuckDB allows a single writer per database file.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS checkpoints (
  thread_id  VARCHAR PRIMARY KEY,
  state      VARCHAR NOT NULL,
  updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
  id                   VARCHAR PRIMARY KEY,
  thread_id            VARCHAR NOT NULL,
  user_id              VARCHAR NOT NULL,
  process_name         VARCHAR NOT NULL,
  phase                VARCHAR NOT NULL,
  issue_count          INTEGER NOT NULL DEFAULT 0,
  recommendation_count INTEGER NOT NULL DEFAULT 0,
  confidence           DOUBLE NOT NULL DEFAULT 0,
  error                VARCHAR NOT NULL DEFAULT '',
  reasoning_trace      VARCHAR NOT NULL DEFAULT '[]',
  created_at_unix      BIGINT NOT NULL,
  updated_at_unix      BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_user ON runs(user_id, created_at_unix);
CREATE TABLE IF NOT EXISTS memories (
  id                   VARCHAR PRIMARY KEY,
  created_at           TIMESTAMP NOT NULL,
  process_name         VARCHAR NOT NULL,
  bottlenecks_found    VARCHAR NOT NULL DEFAULT '[]',
  suggestions_offered  VARCHAR NOT NULL DEFAULT '[]',
  suggestions_accepted VARCHAR NOT NULL DEFAULT '[]',
  suggestions_rejected VARCHAR NOT NULL DEFAULT '[]',
  rejection_reasons    VARCHAR NOT NULL DEFAULT '[]',
  outcome_notes        VARCHAR NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_memories_process ON memories(process_name);
CREATE TABLE IF NOT EXISTS settings (
  key   VARCHAR PRIMARY KEY,
  value VARCHAR NOT NULL
);`)
	return err
}
