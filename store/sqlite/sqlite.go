/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements engine.Store using SQLite. In production, the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  engine.ConfigStore: Staged configuration snapshots per dataset
  engine.RunStore:    Append-only run summaries

WHAT IS (AND ISN'T) PERSISTED:
  Staged configuration (latest document per dataset, served back by the
  config endpoint) and run summaries. Output rows are not persisted: a
  ledger's lifecycle ends when the run's output is exported, so the runs
  table only keeps row counts and warnings.

KEY TABLES:
  staged_configs: Latest staged config document per dataset (upsert)
  runs:           Immutable run summaries

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/discount.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/discount-engine/engine"
)

// Store implements engine.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Latest staged configuration per dataset
	CREATE TABLE IF NOT EXISTS staged_configs (
		dataset_id TEXT PRIMARY KEY,
		config_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Run summaries (append-only; output rows are never persisted)
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		dataset_id TEXT NOT NULL,
		row_count INTEGER NOT NULL,
		warnings_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_dataset ON runs(dataset_id);
	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CONFIG STORE
// =============================================================================

// SaveConfig upserts the staged configuration for a dataset.
func (s *Store) SaveConfig(ctx context.Context, rec engine.ConfigRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO staged_configs (dataset_id, config_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(dataset_id) DO UPDATE SET
			config_json = excluded.config_json,
			updated_at = excluded.updated_at`,
		rec.DatasetID, rec.ConfigJSON, rec.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// GetConfig returns the staged configuration for a dataset.
func (s *Store) GetConfig(ctx context.Context, datasetID string) (engine.ConfigRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec engine.ConfigRecord
	var updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT dataset_id, config_json, updated_at
		FROM staged_configs WHERE dataset_id = ?`, datasetID).
		Scan(&rec.DatasetID, &rec.ConfigJSON, &updatedAt)
	if err == sql.ErrNoRows {
		return engine.ConfigRecord{}, engine.ErrNotFound
	}
	if err != nil {
		return engine.ConfigRecord{}, fmt.Errorf("get config: %w", err)
	}
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return rec, nil
}

// =============================================================================
// RUN STORE
// =============================================================================

// SaveRun records one run summary.
func (s *Store) SaveRun(ctx context.Context, run engine.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	warnings, err := json.Marshal(run.Warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, dataset_id, row_count, warnings_json, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.DatasetID, run.RowCount, string(warnings),
		run.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// GetRun returns one run summary by ID.
func (s *Store) GetRun(ctx context.Context, id string) (engine.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, dataset_id, row_count, warnings_json, created_at
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return engine.RunRecord{}, engine.ErrNotFound
	}
	return run, err
}

// ListRuns returns all run summaries, oldest first.
func (s *Store) ListRuns(ctx context.Context) ([]engine.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dataset_id, row_count, warnings_json, created_at
		FROM runs ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []engine.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (engine.RunRecord, error) {
	var run engine.RunRecord
	var warningsJSON sql.NullString
	var createdAt string
	if err := s.Scan(&run.ID, &run.DatasetID, &run.RowCount, &warningsJSON, &createdAt); err != nil {
		return engine.RunRecord{}, err
	}
	if warningsJSON.Valid && warningsJSON.String != "" {
		if err := json.Unmarshal([]byte(warningsJSON.String), &run.Warnings); err != nil {
			return engine.RunRecord{}, fmt.Errorf("decode warnings: %w", err)
		}
	}
	run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return run, nil
}
