package api

import (
	"context"
	"net/http"

	"github.com/kurakb/kura/internal/log"
)

type refreshHandler struct {
	scheduler Refresher
	logger    log.Logger
}

// trigger starts a refresh in the background. Returns 202 when a new refresh
// was started, 200 when the request coalesced into one already in flight.
func (h *refreshHandler) trigger(w http.ResponseWriter, r *http.Request) {
	state := h.scheduler.State()
	if state.InProgress {
		writeJSON(w, http.StatusOK, map[string]string{"status": "already_running"})
		return
	}

	// Detach from the request context so the refresh outlives the response.
	go h.scheduler.Trigger(context.WithoutCancel(r.Context()))

	h.logger.Info("refresh triggered",
		"request_id", requestIDFromContext(r.Context()))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// status reports the scheduler's refresh state.
func (h *refreshHandler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.State())
}
