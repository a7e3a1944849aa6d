// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/discount-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	configs map[string]engine.ConfigRecord
	runs    map[string]engine.RunRecord
}

func NewMemory() *Memory {
	return &Memory{
		configs: make(map[string]engine.ConfigRecord),
		runs:    make(map[string]engine.RunRecord),
	}
}

func (m *Memory) SaveConfig(_ context.Context, rec engine.ConfigRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[rec.DatasetID] = rec
	return nil
}

func (m *Memory) GetConfig(_ context.Context, datasetID string) (engine.ConfigRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.configs[datasetID]
	if !ok {
		return engine.ConfigRecord{}, engine.ErrNotFound
	}
	return rec, nil
}

func (m *Memory) SaveRun(_ context.Context, run engine.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) GetRun(_ context.Context, id string) (engine.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return engine.RunRecord{}, engine.ErrNotFound
	}
	return run, nil
}

func (m *Memory) ListRuns(_ context.Context) ([]engine.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	runs := make([]engine.RunRecord, 0, len(m.runs))
	for _, run := range m.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.Before(runs[j].CreatedAt) })
	return runs, nil
}

func (m *Memory) Close() error { return nil }
