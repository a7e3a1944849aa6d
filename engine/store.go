/*
store.go - Persistence interfaces for staged configuration and run history

PURPOSE:
  Rows themselves are never persisted: a ledger is uploaded, computed and
  exported within one session, and a row's lifecycle ends at the net
  composer. What IS persisted is what the caller explicitly staged - tier
  matrices, rule stacks, formulas - keyed by dataset and readable back
  through GetConfig, plus a summary of each run for auditability.

INTERFACES:
  ConfigStore: staged configuration snapshots, keyed by dataset
  RunStore:    append-only run summaries

IMPLEMENTATIONS:
  store/sqlite:       SQLite-backed, used by the server
  engine/store:       in-memory, used by tests

SEE ALSO:
  - store/sqlite/sqlite.go
  - engine/store/memory.go
*/
package engine

import (
	"context"
	"time"
)

// ConfigRecord is one staged configuration snapshot, serialized as the
// declarative config document (see package factory).
type ConfigRecord struct {
	DatasetID  string
	ConfigJSON string
	UpdatedAt  time.Time
}

// RunRecord summarizes one computation run. Output rows are not persisted.
type RunRecord struct {
	ID        string
	DatasetID string
	RowCount  int
	Warnings  []string
	CreatedAt time.Time
}

// ConfigStore persists staged configuration per dataset.
type ConfigStore interface {
	SaveConfig(ctx context.Context, rec ConfigRecord) error
	GetConfig(ctx context.Context, datasetID string) (ConfigRecord, error)
}

// RunStore persists run summaries, append-only.
type RunStore interface {
	SaveRun(ctx context.Context, run RunRecord) error
	GetRun(ctx context.Context, id string) (RunRecord, error)
	ListRuns(ctx context.Context) ([]RunRecord, error)
}

// Store is the full persistence surface the server wires in.
type Store interface {
	ConfigStore
	RunStore
	Close() error
}
