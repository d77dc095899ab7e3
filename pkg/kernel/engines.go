package kernel

import (
	"net/http"

	"github.com/SkybrushThriftwood/processIQ/internal/core/domain"
	"github.com/SkybrushThriftwood/processIQ/internal/core/services"
)

// handleROI estimates the annual savings range for one improvement
// suggestion without running a full analysis.
// POST /api/v1/roi
func (s *Server) handleROI(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Process            *domain.ProcessData   `json:"process"`
		StepName           string                `json:"step_name"`
		SuggestionType     domain.SuggestionType `json:"suggestion_type"`
		ImplementationCost float64               `json:"implementation_cost,omitempty"`
		ExecutionsPerYear  int                   `json:"executions_per_year,omitempty"`
	}
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

	estimate := s.roi.Estimate(body.Process, services.EstimateRequest{
		StepName:           body.StepName,
		Type:               body.SuggestionType,
		ImplementationCost: body.ImplementationCost,
		ExecutionsPerYear:  body.ExecutionsPerYear,
	})
	writeJSON(w, http.StatusOK, estimate)
}

// handleMetrics computes the deterministic metrics profile of a process and
// includes the model-facing Markdown rendering.
// POST /api/v1/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Process *domain.ProcessData `json:"process"`
	}
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

	metrics := s.metrics.Compute(body.Process)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"metrics":   metrics,
		"formatted": services.FormatForModel(metrics),
	})
}

// handleConfidence scores how analyzable the supplied data is. Constraints
// and profile are optional and improve the score when present.
// POST /api/v1/confidence
func (s *Server) handleConfidence(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Process     *domain.ProcessData     `json:"process"`
		Constraints *domain.Constraints     `json:"constraints,omitempty"`
		Profile     *domain.BusinessProfile `json:"profile,omitempty"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	if body.Process == nil {
		writeError(w, http.StatusBadRequest, "invalid_process", "a process is required")
		return
	}

	score := s.scorer.Score(body.Process, body.Constraints, body.Profile)
	writeJSON(w, http.StatusOK, score)
}
