package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SkybrushThriftwood/processIQ/internal/core/ports"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// AnalysisRunner is the slice of the analysis service the scheduler drives.
type AnalysisRunner interface {
	Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisReport, error)
	RespondToClarification(ctx context.Context, threadID, response string) (*AnalysisReport, error)
}

var (
	// ErrSchedulerClosed rejects submissions after Shutdown.
	ErrSchedulerClosed = errors.New("run scheduler is shut down")
	// ErrRunNotAwaitingInput rejects a clarification response for a run
	// that is not paused on questions.
	ErrRunNotAwaitingInput = errors.New("run is not awaiting input")
)

// defaultMaxConcurrentRuns bounds parallel analyses when config gives no
// limit.
const defaultMaxConcurrentRuns = 4

// RunScheduler bounds how many analyses execute at once. Submit and
// Resume register the run and return immediately; the run executes under
// the scheduler's base context so it outlives the submitting request.
// Lifecycle changes go to the registry and the event bus.
type RunScheduler struct {
	logger  *slog.Logger
	runner  AnalysisRunner
	runs    *RunStore
	events  *RunEvents
	sem     *semaphore.Weighted
	baseCtx context.Context

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// NewRunScheduler wires the scheduler. maxConcurrent <= 0 falls back to
// the default limit.
func NewRunScheduler(logger *slog.Logger, runner AnalysisRunner, runs *RunStore, events *RunEvents, maxConcurrent int64) *RunScheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentRuns
	}
	return &RunScheduler{
		logger:  logger,
		runner:  runner,
		runs:    runs,
		events:  events,
		sem:     semaphore.NewWeighted(maxConcurrent),
		baseCtx: context.Background(),
	}
}

// Start sets the context runs execute under. Cancelling it aborts
// in-flight runs; the orchestrator checkpoints them first.
func (s *RunScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
	s.logger.Info("run scheduler started")
}

// Submit queues a fresh analysis and returns its registry snapshot. An
// empty thread id mints a new thread, scoped to the user when one is
// given.
func (s *RunScheduler) Submit(req AnalysisRequest) (RunSnapshot, error) {
	if req.ThreadID == "" {
		req.ThreadID = NewThreadID(req.UserID)
	}
	name := ""
	if req.Process != nil {
		name = req.Process.Name
	}
	runID := uuid.NewString()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return RunSnapshot{}, ErrSchedulerClosed
	}
	snap := s.runs.Register(runID, req.ThreadID, req.UserID, name)
	s.wg.Add(1)
	ctx := s.baseCtx
	s.mu.Unlock()

	s.logger.Info("run submitted", "run_id", runID, "thread_id", req.ThreadID)
	s.publishStatus(runID, RunStatusQueued, "")
	go s.execute(ctx, runID, func(ctx context.Context) (*AnalysisReport, error) {
		return s.runner.Analyze(ctx, req)
	})
	return snap, nil
}

// Resume queues a clarification response for a run paused on questions.
// Unknown runs fail with ports.ErrNotFound, runs in any other state with
// ErrRunNotAwaitingInput.
func (s *RunScheduler) Resume(runID, response string) (RunSnapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return RunSnapshot{}, ErrSchedulerClosed
	}
	if _, ok := s.runs.Get(runID); !ok {
		s.mu.Unlock()
		return RunSnapshot{}, fmt.Errorf("run %s: %w", runID, ports.ErrNotFound)
	}
	snap, ok := s.runs.Requeue(runID)
	if !ok {
		s.mu.Unlock()
		return RunSnapshot{}, ErrRunNotAwaitingInput
	}
	s.wg.Add(1)
	ctx := s.baseCtx
	s.mu.Unlock()

	s.logger.Info("run resumed", "run_id", runID, "thread_id", snap.ThreadID)
	s.publishStatus(runID, RunStatusQueued, "")
	threadID := snap.ThreadID
	go s.execute(ctx, runID, func(ctx context.Context) (*AnalysisReport, error) {
		return s.runner.RespondToClarification(ctx, threadID, response)
	})
	return snap, nil
}

// Shutdown stops accepting runs and waits for in-flight ones until ctx
// expires.
func (s *RunScheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("run scheduler drained")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *RunScheduler) execute(ctx context.Context, runID string, run func(context.Context) (*AnalysisReport, error)) {
	defer s.wg.Done()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.runs.Finish(runID, nil, err)
		s.publishStatus(runID, RunStatusFailed, err.Error())
		return
	}
	defer s.sem.Release(1)

	s.runs.MarkRunning(runID)
	s.publishStatus(runID, RunStatusRunning, "")

	report, err := run(ctx)
	if err != nil {
		s.runs.Finish(runID, nil, err)
		s.publishStatus(runID, RunStatusFailed, err.Error())
		s.logger.Error("analysis run failed", "run_id", runID, "error", err)
		return
	}
	snap, _ := s.runs.Finish(runID, report, nil)
	s.publishStatus(runID, snap.Status, "")
	s.publishReport(runID, report)
}

func (s *RunScheduler) publishStatus(runID string, status RunStatus, errMsg string) {
	payload, _ := json.Marshal(struct {
		RunID  string    `json:"run_id"`
		Status RunStatus `json:"status"`
		Error  string    `json:"error,omitempty"`
	}{runID, status, errMsg})
	s.events.Publish(RunEvent{
		RunID:     runID,
		Type:      RunEventStatus,
		Data:      string(payload),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *RunScheduler) publishReport(runID string, report *AnalysisReport) {
	if report == nil {
		return
	}
	payload, err := json.Marshal(report)
	if err != nil {
		s.logger.Warn("could not encode report event", "run_id", runID, "error", err)
		return
	}
	s.events.Publish(RunEvent{
		RunID:     runID,
		Type:      RunEventReport,
		Data:      string(payload),
		Timestamp: time.Now().UnixMilli(),
	})
}
