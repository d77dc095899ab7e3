package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
	"github.com/SkybrushThriftwood/processIQ/internal/core/ports"
)

// RunStatus is the scheduler-level state of a run, coarser than the
// orchestrator phase.
type RunStatus string

const (
	RunStatusQueued        RunStatus = "queued"
	RunStatusRunning       RunStatus = "running"
	RunStatusAwaitingInput RunStatus = "awaiting_input"
	RunStatusCompleted     RunStatus = "completed"
	RunStatusFailed        RunStatus = "failed"
)

// RunSnapshot is the registry's view of one run. Report is set once the
// run finishes or pauses for clarification. Timestamps are unix
// milliseconds, zero when the stage was not reached.
type RunSnapshot struct {
	RunID       string          `json:"run_id"`
	ThreadID    string          `json:"thread_id"`
	UserID      string          `json:"user_id,omitempty"`
	ProcessName string          `json:"process_name,omitempty"`
	Status      RunStatus       `json:"status"`
	Phase       domain.Phase    `json:"phase,omitempty"`
	Report      *AnalysisReport `json:"report,omitempty"`
	Error       string          `json:"error,omitempty"`
	EnqueuedAt  int64           `json:"enqueued_at"`
	StartedAt   int64           `json:"started_at,omitempty"`
	FinishedAt  int64           `json:"finished_at,omitempty"`
}

// Active reports whether the run can still change state.
func (s *RunSnapshot) Active() bool {
	return s.Status == RunStatusQueued || s.Status == RunStatusRunning
}

// RunStore is the in-memory registry of runs the kernel can answer status
// queries from. Active runs are pinned; settled runs are evicted oldest
// first once the registry exceeds its capacity. Runs that survive a
// restart are served from the run history repository instead.
type RunStore struct {
	mu       sync.RWMutex
	runs     map[string]*RunSnapshot
	byThread map[string]string // thread id -> latest run id
	order    []string          // settled run ids, oldest first
	maxKept  int
}

// NewRunStore creates a registry keeping at most maxKept settled runs.
func NewRunStore(maxKept int) *RunStore {
	if maxKept <= 0 {
		maxKept = 256
	}
	return &RunStore{
		runs:     make(map[string]*RunSnapshot),
		byThread: make(map[string]string),
		maxKept:  maxKept,
	}
}

// Register adds a queued run and makes it the thread's latest.
func (s *RunStore) Register(runID, threadID, userID, processName string) RunSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &RunSnapshot{
		RunID:       runID,
		ThreadID:    threadID,
		UserID:      userID,
		ProcessName: processName,
		Status:      RunStatusQueued,
		EnqueuedAt:  time.Now().UnixMilli(),
	}
	s.runs[runID] = snap
	s.byThread[threadID] = runID
	return *snap
}

// Requeue puts an awaiting-input run back in the queued state for a
// resume; any other status fails. The previous report stays visible until
// the new attempt replaces it.
func (s *RunStore) Requeue(runID string) (RunSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.runs[runID]
	if !ok || snap.Status != RunStatusAwaitingInput {
		return RunSnapshot{}, false
	}
	s.unsettleLocked(runID)
	snap.Status = RunStatusQueued
	snap.Error = ""
	snap.EnqueuedAt = time.Now().UnixMilli()
	snap.StartedAt = 0
	snap.FinishedAt = 0
	s.byThread[snap.ThreadID] = runID
	return *snap, true
}

// MarkRunning flips a queued run to running.
func (s *RunStore) MarkRunning(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap, ok := s.runs[runID]; ok {
		snap.Status = RunStatusRunning
		snap.StartedAt = time.Now().UnixMilli()
	}
}

// UpdatePhase records the orchestrator phase of a live run.
func (s *RunStore) UpdatePhase(runID string, phase domain.Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap, ok := s.runs[runID]; ok {
		snap.Phase = phase
	}
}

// Finish settles a run. A report that still needs input parks the run as
// awaiting input so a clarification response can requeue it; runErr marks
// infrastructure failure.
func (s *RunStore) Finish(runID string, report *AnalysisReport, runErr error) (RunSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.runs[runID]
	if !ok {
		return RunSnapshot{}, false
	}
	snap.FinishedAt = time.Now().UnixMilli()
	switch {
	case runErr != nil:
		snap.Status = RunStatusFailed
		snap.Error = runErr.Error()
	case report != nil && report.NeedsInput:
		snap.Status = RunStatusAwaitingInput
		snap.Report = report
	default:
		snap.Status = RunStatusCompleted
		snap.Report = report
	}
	s.order = append(s.order, runID)
	s.evictLocked()
	return *snap, true
}

// Drop removes a run outright, for submissions that never got queued.
func (s *RunStore) Drop(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(runID)
}

// Get returns a copy of the run's snapshot.
func (s *RunStore) Get(runID string) (RunSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.runs[runID]
	if !ok {
		return RunSnapshot{}, false
	}
	return *snap, true
}

// ByThread returns the latest run registered for a thread.
func (s *RunStore) ByThread(threadID string) (RunSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runID, ok := s.byThread[threadID]
	if !ok {
		return RunSnapshot{}, false
	}
	snap, ok := s.runs[runID]
	if !ok {
		return RunSnapshot{}, false
	}
	return *snap, true
}

// unsettleLocked takes the run off the eviction order.
func (s *RunStore) unsettleLocked(runID string) {
	for i, id := range s.order {
		if id == runID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func (s *RunStore) removeLocked(runID string) {
	snap, ok := s.runs[runID]
	if !ok {
		return
	}
	delete(s.runs, runID)
	if s.byThread[snap.ThreadID] == runID {
		delete(s.byThread, snap.ThreadID)
	}
	s.unsettleLocked(runID)
}

func (s *RunStore) evictLocked() {
	for len(s.order) > s.maxKept {
		oldest := s.order[0]
		s.order = s.order[1:]
		snap, ok := s.runs[oldest]
		if !ok {
			continue
		}
		delete(s.runs, oldest)
		if s.byThread[snap.ThreadID] == oldest {
			delete(s.byThread, snap.ThreadID)
		}
	}
}

// TrackedCheckpoints decorates a CheckpointStore so that every saved state
// also updates the live run registry and publishes a phase event for the
// run that owns the thread. Threads without a registered run pass through
// untouched. The registry mirrors the in-memory state even when the inner
// store fails to persist it.
type TrackedCheckpoints struct {
	inner  ports.CheckpointStore
	runs   *RunStore
	events *RunEvents
}

func NewTrackedCheckpoints(inner ports.CheckpointStore, runs *RunStore, events *RunEvents) *TrackedCheckpoints {
	return &TrackedCheckpoints{inner: inner, runs: runs, events: events}
}

func (t *TrackedCheckpoints) Get(ctx context.Context, threadID string) (*domain.AgentState, bool, error) {
	return t.inner.Get(ctx, threadID)
}

func (t *TrackedCheckpoints) Put(ctx context.Context, threadID string, state *domain.AgentState) error {
	if run, ok := t.runs.ByThread(threadID); ok && run.Phase != state.Phase {
		t.runs.UpdatePhase(run.RunID, state.Phase)
		payload, _ := json.Marshal(map[string]string{
			"run_id":    run.RunID,
			"thread_id": threadID,
			"phase":     string(state.Phase),
		})
		t.events.Publish(RunEvent{
			RunID:     run.RunID,
			Type:      RunEventPhase,
			Data:      string(payload),
			Timestamp: time.Now().UnixMilli(),
		})
	}
	return t.inner.Put(ctx, threadID, state)
}

func (t *TrackedCheckpoints) Delete(ctx context.Context, threadID string) error {
	return t.inner.Delete(ctx, threadID)
}
