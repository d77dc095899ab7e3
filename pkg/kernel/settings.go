package kernel

import (
	"net/http"
)

// handleGetSettings returns the active configuration with secrets masked.
// GET /api/v1/settings
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.GetMaskedConfig())
}

// handleUpdateSettings merges the request over the current configuration,
// so partial documents only change the fields they carry. Masked or empty
// secrets keep their stored values.
// PUT /api/v1/settings
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	cfg := s.settings.GetConfig()
	if !s.decodeBody(w, r, cfg) {
		return
	}
	if err := s.settings.UpdateConfig(r.Context(), cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_settings", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.settings.GetMaskedConfig())
}
