package kernel

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
	"github.com/SkybrushThriftwood/processIQ/internal/core/ports"
	"github.com/SkybrushThriftwood/processIQ/internal/core/services"
)

const defaultHistoryLimit = 20

// analysisSubmission is the submit payload. Everything except the process
// itself is optional and falls back to the configured defaults.
type analysisSubmission struct {
	Process     *domain.ProcessData     `json:"process"`
	Constraints *domain.Constraints     `json:"constraints,omitempty"`
	Profile     *domain.BusinessProfile `json:"profile,omitempty"`
	UserID      string                  `json:"user_id,omitempty"`
	ThreadID    string                  `json:"thread_id,omitempty"`
	Mode        string                  `json:"mode,omitempty"`
	Provider    string                  `json:"provider,omitempty"`
	MaxCycles   *int                    `json:"max_cycles,omitempty"`
}

// handleSubmitAnalysis queues a new analysis run and answers 202 with its
// snapshot. The run executes in the background; progress is available via
// GET /api/v1/analyses/{id} and the event stream.
// POST /api/v1/analyses
func (s *Server) handleSubmitAnalysis(w http.ResponseWriter, r *http.Request) {
	var body analysisSubmission
	if !s.decodeBody(w, r, &body) {
		return
	}
	if body.Process == nil {
		writeError(w, http.StatusBadRequest, "invalid_process", "a process is required")
		return
	}
	if err := body.Process.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_process", err.Error())
		return
	}
	if body.Constraints != nil {
		if err := body.Constraints.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_constraints", err.Error())
			return
		}
	}

	snap, err := s.scheduler.Submit(services.AnalysisRequest{
		Process:     body.Process,
		Constraints: body.Constraints,
		Profile:     body.Profile,
		ThreadID:    body.ThreadID,
		UserID:      body.UserID,
		Mode:        body.Mode,
		Provider:    body.Provider,
		MaxCycles:   body.MaxCycles,
	})
	if err != nil {
		if errors.Is(err, services.ErrSchedulerClosed) {
			writeError(w, http.StatusServiceUnavailable, "shutting_down", "the kernel is shutting down")
			return
		}
		s.logger.Error("failed to submit analysis", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to submit analysis")
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

// handleGetAnalysis returns the live snapshot of a run, falling back to the
// persisted record for runs that have aged out of the registry.
// GET /api/v1/analyses/{id}
func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if snap, ok := s.runs.Get(id); ok {
		writeJSON(w, http.StatusOK, snap)
		return
	}
	if s.history != nil {
		rec, err := s.history.GetRun(r.Context(), id)
		if err == nil {
			writeJSON(w, http.StatusOK, snapshotFromRecord(rec))
			return
		}
		if !errors.Is(err, ports.ErrNotFound) {
			s.logger.Error("failed to load run record", "run_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to load run")
			return
		}
	}
	writeError(w, http.StatusNotFound, "not_found", "no run with id "+id)
}

// handleListAnalyses returns the persisted run history for a user.
// GET /api/v1/analyses?user=alice&limit=20
func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	recs := []ports.RunRecord{}
	if s.history != nil {
		var err error
		recs, err = s.history.ListRunsByUser(r.Context(), userID, limit)
		if err != nil {
			s.logger.Error("failed to list runs", "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to list runs")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  recs,
		"count": len(recs),
	})
}

// handleClarification feeds the user's answer into a paused run and requeues
// it. Answering a run that is not awaiting input is a conflict.
// POST /api/v1/analyses/{id}/clarifications
func (s *Server) handleClarification(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body struct {
		Response string `json:"response"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	snap, err := s.scheduler.Resume(id, body.Response)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, snap)
	case errors.Is(err, ports.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "no run with id "+id)
	case errors.Is(err, services.ErrRunNotAwaitingInput):
		writeError(w, http.StatusConflict, "not_awaiting_input", "run "+id+" is not awaiting input")
	case errors.Is(err, services.ErrSchedulerClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting_down", "the kernel is shutting down")
	default:
		s.logger.Error("failed to resume run", "run_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to resume run")
	}
}

// handleQuestion answers a follow-up question about a finished run. Input
// that reads like an edit to the process data re-enters analysis on the same
// thread instead of being answered from the stored results.
// POST /api/v1/analyses/{id}/questions
func (s *Server) handleQuestion(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	threadID, ok := s.resolveThread(r.Context(), id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no run with id "+id)
		return
	}
	var body struct {
		Question string           `json:"question"`
		History  []domain.Message `json:"history,omitempty"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	state, hasState, err := s.checkpoints.Get(r.Context(), threadID)
	if err != nil {
		s.logger.Error("failed to load checkpoint", "thread_id", threadID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load run state")
		return
	}

	var report *services.AnalysisReport
	if hasState && services.IsLikelyEditRequest(body.Question, state.Process) {
		report, err = s.analyses.RespondToClarification(r.Context(), threadID, body.Question)
	} else {
		report, err = s.analyses.Followup(r.Context(), services.FollowupRequest{
			ThreadID: threadID,
			Question: body.Question,
			History:  body.History,
		})
	}
	if err != nil {
		s.logger.Error("follow-up failed", "run_id", id, "thread_id", threadID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to answer the question")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleEnrich runs the post-extraction enricher against the run's current
// process data and returns the extras without touching the run itself.
// POST /api/v1/analyses/{id}/enrich
func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	threadID, ok := s.resolveThread(r.Context(), id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no run with id "+id)
		return
	}

	state, hasState, err := s.checkpoints.Get(r.Context(), threadID)
	if err != nil {
		s.logger.Error("failed to load checkpoint", "thread_id", threadID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load run state")
		return
	}
	if !hasState || state.Process == nil {
		writeError(w, http.StatusConflict, "no_process", "run "+id+" has no extracted process to enrich")
		return
	}

	confidence := state.Confidence
	if confidence == nil {
		confidence = s.scorer.Score(state.Process, state.Constraints, state.Profile)
	}
	extras := s.enricher.Enrich(r.Context(), state.Process, confidence, state.AnalysisMode, state.Provider)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"improvement_suggestions": extras.ImprovementSuggestions,
		"draft_insight":           extras.DraftInsight,
	})
}

// resolveThread maps a run id to its thread, falling back to history for
// runs that have aged out of the live registry.
func (s *Server) resolveThread(ctx context.Context, runID string) (string, bool) {
	if snap, ok := s.runs.Get(runID); ok {
		return snap.ThreadID, true
	}
	if s.history != nil {
		if rec, err := s.history.GetRun(ctx, runID); err == nil {
			return rec.ThreadID, true
		}
	}
	return "", false
}

// snapshotFromRecord rebuilds a presentable snapshot for a run that only
// survives in persisted history.
func snapshotFromRecord(rec ports.RunRecord) services.RunSnapshot {
	status := services.RunStatusCompleted
	if rec.Error != "" {
		status = services.RunStatusFailed
	}
	return services.RunSnapshot{
		RunID:       rec.ID,
		ThreadID:    rec.ThreadID,
		UserID:      rec.UserID,
		ProcessName: rec.ProcessName,
		Status:      status,
		Phase:       domain.Phase(rec.Phase),
		Error:       rec.Error,
		EnqueuedAt:  rec.CreatedAtUnix * 1000,
		FinishedAt:  rec.UpdatedAtUnix * 1000,
	}
}
