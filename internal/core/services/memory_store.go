package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
	"github.com/SkybrushThriftwood/processIQ/internal/core/ports"
)

// In-memory implementations of the persistence ports. They back the system
// when persistence is disabled and serve as the store in tests. All of
// them are safe for concurrent runs.

// MemoryCheckpointStore keeps run state per thread in a map. States are
// deep-copied on the way in and out so callers never alias store memory.
type MemoryCheckpointStore struct {
	mu     sync.RWMutex
	states map[string]*domain.AgentState
}

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{states: make(map[string]*domain.AgentState)}
}

func (s *MemoryCheckpointStore) Get(_ context.Context, threadID string) (*domain.AgentState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[threadID]
	if !ok {
		return nil, false, nil
	}
	return state.Clone(), true, nil
}

func (s *MemoryCheckpointStore) Put(_ context.Context, threadID string, state *domain.AgentState) error {
	clone := state.Clone()
	s.mu.Lock()
	s.states[threadID] = clone
	s.mu.Unlock()
	return nil
}

func (s *MemoryCheckpointStore) Delete(_ context.Context, threadID string) error {
	s.mu.Lock()
	delete(s.states, threadID)
	s.mu.Unlock()
	return nil
}

// MemoryRunHistory keeps finished run records in insertion order.
type MemoryRunHistory struct {
	mu   sync.RWMutex
	runs []ports.RunRecord
}

func NewMemoryRunHistory() *MemoryRunHistory {
	return &MemoryRunHistory{}
}

// SaveRun inserts the record, or replaces it when the id is already known,
// keeping the original creation time.
func (h *MemoryRunHistory) SaveRun(_ context.Context, rec ports.RunRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.runs {
		if h.runs[i].ID == rec.ID {
			rec.CreatedAtUnix = h.runs[i].CreatedAtUnix
			h.runs[i] = rec
			return nil
		}
	}
	h.runs = append(h.runs, rec)
	return nil
}

func (h *MemoryRunHistory) GetRun(_ context.Context, id string) (ports.RunRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for i := range h.runs {
		if h.runs[i].ID == id {
			return h.runs[i], nil
		}
	}
	return ports.RunRecord{}, fmt.Errorf("run %s: %w", id, ports.ErrNotFound)
}

// ListRunsByUser returns the user's runs, most recent first. limit <= 0
// means no limit.
func (h *MemoryRunHistory) ListRunsByUser(_ context.Context, userID string, limit int) ([]ports.RunRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []ports.RunRecord
	for i := len(h.runs) - 1; i >= 0; i-- {
		if h.runs[i].UserID != userID {
			continue
		}
		out = append(out, h.runs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// MemoryAnalysisMemories keeps analysis outcome records in insertion
// order. Process names match case-insensitively, same as the step-merge
// rules elsewhere.
type MemoryAnalysisMemories struct {
	mu      sync.RWMutex
	records []domain.AnalysisMemory
}

func NewMemoryAnalysisMemories() *MemoryAnalysisMemories {
	return &MemoryAnalysisMemories{}
}

func (m *MemoryAnalysisMemories) SaveMemory(_ context.Context, mem domain.AnalysisMemory) error {
	m.mu.Lock()
	m.records = append(m.records, mem)
	m.mu.Unlock()
	return nil
}

// ListMemories returns the newest records for the process, most recent
// first. limit <= 0 means no limit.
func (m *MemoryAnalysisMemories) ListMemories(_ context.Context, processName string, limit int) ([]domain.AnalysisMemory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.AnalysisMemory
	for i := len(m.records) - 1; i >= 0; i-- {
		if !strings.EqualFold(m.records[i].ProcessName, processName) {
			continue
		}
		out = append(out, m.records[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// MemorySettings keeps settings in a map. Values written here do not
// survive a restart.
type MemorySettings struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemorySettings() *MemorySettings {
	return &MemorySettings{values: make(map[string]string)}
}

func (s *MemorySettings) GetSetting(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	if !ok {
		return "", fmt.Errorf("setting %s: %w", key, ports.ErrNotFound)
	}
	return value, nil
}

func (s *MemorySettings) SaveSetting(_ context.Context, key string, value string) error {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
	return nil
}
