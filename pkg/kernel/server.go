// Package kernel exposes the analysis services over HTTP. Every request is
// validated against the embedded OpenAPI document before it reaches a
// handler, responses are JSON, and errors share a single envelope shape.
package kernel

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"

	"github.com/SkybrushThriftwood/processIQ/internal/config"
	"github.com/SkybrushThriftwood/processIQ/internal/core/ports"
	"github.com/SkybrushThriftwood/processIQ/internal/core/services"
)

// Server wires the HTTP surface to the core services. It owns no state of
// its own; everything lives in the services it fronts.
type Server struct {
	logger      *slog.Logger
	scheduler   *services.RunScheduler
	runs        *services.RunStore
	events      *services.RunEvents
	analyses    *services.AnalysisService
	enricher    *services.PostExtractionEnricher
	metrics     *services.MetricsEngine
	roi         *services.ROICalculator
	scorer      *services.ConfidenceScorer
	settings    *config.SettingsStore
	checkpoints ports.CheckpointStore
	history     ports.RunHistoryRepository
	router      routers.Router
}

// NewServer builds the HTTP layer. It parses the embedded OpenAPI document
// once so request validation costs nothing at startup thereafter.
func NewServer(
	logger *slog.Logger,
	scheduler *services.RunScheduler,
	runs *services.RunStore,
	events *services.RunEvents,
	analyses *services.AnalysisService,
	enricher *services.PostExtractionEnricher,
	metrics *services.MetricsEngine,
	roi *services.ROICalculator,
	scorer *services.ConfidenceScorer,
	settings *config.SettingsStore,
	checkpoints ports.CheckpointStore,
	history ports.RunHistoryRepository,
) (*Server, error) {
	router, err := loadRouter()
	if err != nil {
		return nil, err
	}
	return &Server{
		logger:      logger,
		scheduler:   scheduler,
		runs:        runs,
		events:      events,
		analyses:    analyses,
		enricher:    enricher,
		metrics:     metrics,
		roi:         roi,
		scorer:      scorer,
		settings:    settings,
		checkpoints: checkpoints,
		history:     history,
		router:      router,
	}, nil
}

// Handler returns the full route table wrapped in the request validator.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /api/v1/analyses", s.handleSubmitAnalysis)
	mux.HandleFunc("GET /api/v1/analyses", s.handleListAnalyses)
	mux.HandleFunc("GET /api/v1/analyses/{id}", s.handleGetAnalysis)
	mux.HandleFunc("POST /api/v1/analyses/{id}/clarifications", s.handleClarification)
	mux.HandleFunc("POST /api/v1/analyses/{id}/questions", s.handleQuestion)
	mux.HandleFunc("POST /api/v1/analyses/{id}/enrich", s.handleEnrich)

	mux.HandleFunc("POST /api/v1/roi", s.handleROI)
	mux.HandleFunc("POST /api/v1/metrics", s.handleMetrics)
	mux.HandleFunc("POST /api/v1/confidence", s.handleConfidence)

	mux.HandleFunc("GET /api/v1/events", s.handleEvents)

	mux.HandleFunc("GET /api/v1/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/v1/settings", s.handleUpdateSettings)

	return s.validate(mux)
}

// validate rejects requests that do not match the OpenAPI document before
// they reach a handler. Paths outside the document fall through so the mux
// can answer 404 or 405 itself.
func (s *Server) validate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, pathParams, err := s.router.FindRoute(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		input := &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: pathParams,
			Route:      route,
		}
		if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
			var reqErr *openapi3filter.RequestError
			if errors.As(err, &reqErr) {
				writeError(w, http.StatusBadRequest, "validation_error", reqErr.Error())
				return
			}
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleHealthz reports liveness plus the active provider and mode.
// GET /healthz
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	cfg := s.settings.GetConfig()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"provider": cfg.Providers.Default,
		"mode":     cfg.Analysis.Mode,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// decodeBody reads a JSON request body into dst and answers 400 itself on
// malformed input. The OpenAPI validator has already checked the shape, so
// failures here are limited to genuinely broken JSON.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON: "+err.Error())
		return false
	}
	return true
}
