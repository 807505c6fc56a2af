package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/consensusbot/internal/stats"
)

// maxStatsDays bounds the look-back window of the stats endpoints.
const maxStatsDays = 365

// StatsService defines the methods that the stats handler requires from the
// service layer.
type StatsService interface {
	Performance(ctx context.Context, days int) (stats.PerformanceReport, error)
	Agents(ctx context.Context, days int) ([]stats.AgentReport, error)
}

// StatsHandler serves prediction performance and agent accuracy reports.
type StatsHandler struct {
	svc    StatsService
	logger *slog.Logger
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(svc StatsService, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{svc: svc, logger: logHandler(logger, "stats")}
}

func statsDays(r *http.Request) (int, error) {
	days, err := queryInt(r, "days", 30)
	if err != nil {
		return 0, err
	}
	if days > maxStatsDays {
		days = maxStatsDays
	}
	return days, nil
}

// Performance returns prediction accuracy over the last N days.
// GET /api/stats/performance?days=30
func (h *StatsHandler) Performance(w http.ResponseWriter, r *http.Request) {
	days, err := statsDays(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rep, err := h.svc.Performance(r.Context(), days)
	if err != nil {
		writeServiceError(w, r, h.logger, "compute performance", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type agentsResponse struct {
	Days   int                 `json:"days"`
	Agents []stats.AgentReport `json:"agents"`
}

// Agents returns per-agent accuracy over the last N days.
// GET /api/stats/agents?days=30
func (h *StatsHandler) Agents(w http.ResponseWriter, r *http.Request) {
	days, err := statsDays(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reps, err := h.svc.Agents(r.Context(), days)
	if err != nil {
		writeServiceError(w, r, h.logger, "compute agent accuracy", err)
		return
	}
	if reps == nil {
		reps = []stats.AgentReport{}
	}
	writeJSON(w, http.StatusOK, agentsResponse{Days: days, Agents: reps})
}
