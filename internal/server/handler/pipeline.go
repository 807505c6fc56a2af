package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// SweepTrigger starts an extra settlement sweep without blocking.
type SweepTrigger interface {
	Trigger() bool
}

// PipelineHandler serves pipeline trigger endpoints.
type PipelineHandler struct {
	sweeper SweepTrigger
	logger  *slog.Logger
}

// NewPipelineHandler creates a PipelineHandler. sweeper may be nil when the
// process does not run the sweep.
func NewPipelineHandler(sweeper SweepTrigger, logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{sweeper: sweeper, logger: logHandler(logger, "pipeline")}
}

// TriggerSweep enqueues one settlement sweep.
// POST /api/admin/sweep
func (h *PipelineHandler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		writeError(w, http.StatusServiceUnavailable, "settlement sweep is not running in this mode")
		return
	}
	h.logger.InfoContext(r.Context(), "handler: sweep trigger requested")

	status := "accepted"
	if !h.sweeper.Trigger() {
		status = "already pending"
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       status,
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
