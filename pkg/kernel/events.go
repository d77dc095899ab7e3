package kernel

import (
	"fmt"
	"net/http"
	"time"

	"github.com/SkybrushThriftwood/processIQ/internal/core/services"
)

const heartbeatInterval = 15 * time.Second

// handleEvents streams run events over SSE. With ?run={id} only that run's
// events are delivered; without it the stream carries every run.
// GET /api/v1/events?run=01H...
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming is not supported")
		return
	}

	runID := r.URL.Query().Get("run")
	var (
		ch    <-chan services.RunEvent
		unsub func()
	)
	if runID == "" {
		ch, unsub = s.events.SubscribeAll()
	} else {
		ch, unsub = s.events.Subscribe(runID)
	}
	defer unsub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	scope := runID
	if scope == "" {
		scope = "all"
	}
	fmt.Fprintf(w, "event: connected\ndata: %s\n\n", scope)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case evt, open := <-ch:
			if !open {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, evt.Data)
			flusher.Flush()
		}
	}
}
