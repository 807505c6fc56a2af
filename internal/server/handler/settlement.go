package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/consensusbot/internal/domain"
	"github.com/alanyoungcy/consensusbot/internal/service"
)

// SettlementService defines the methods that the settlement handler requires
// from the service layer.
type SettlementService interface {
	Settle(ctx context.Context, fixtureID int64, score *domain.FinalScore) (domain.SettlementResult, error)
	HandleMatchEnded(ctx context.Context, ev service.MatchEnded) (domain.SettlementResult, error)
	Reset(ctx context.Context, fixtureID int64, actor string) (int64, error)
}

// SettlementHandler serves settlement, webhook and reset endpoints.
type SettlementHandler struct {
	svc    SettlementService
	logger *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler.
func NewSettlementHandler(svc SettlementService, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{svc: svc, logger: logHandler(logger, "settlement")}
}

type settleRequest struct {
	HomeGoals *int   `json:"home_goals"`
	AwayGoals *int   `json:"away_goals"`
	State     string `json:"state,omitempty"`
}

// Settle settles a fixture. Without goals in the body the final score comes
// from the score provider.
// POST /api/fixtures/{id}/settle
func (h *SettlementHandler) Settle(w http.ResponseWriter, r *http.Request) {
	id, err := fixtureID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req settleRequest
	if _, err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var score *domain.FinalScore
	switch {
	case req.HomeGoals != nil && req.AwayGoals != nil:
		if *req.HomeGoals < 0 || *req.AwayGoals < 0 {
			writeError(w, http.StatusBadRequest, "goals must not be negative")
			return
		}
		score = &domain.FinalScore{FixtureID: id, HomeGoals: *req.HomeGoals, AwayGoals: *req.AwayGoals, State: req.State}
	case req.HomeGoals != nil || req.AwayGoals != nil:
		writeError(w, http.StatusBadRequest, "home_goals and away_goals must be given together")
		return
	}

	res, err := h.svc.Settle(r.Context(), id, score)
	if err != nil {
		writeServiceError(w, r, h.logger, "settle fixture", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// MatchEnded handles the match-ended webhook.
// POST /api/webhooks/match-ended
func (h *SettlementHandler) MatchEnded(w http.ResponseWriter, r *http.Request) {
	var ev service.MatchEnded
	present, err := decodeBody(r, &ev)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !present {
		writeError(w, http.StatusBadRequest, "missing webhook payload")
		return
	}
	if (ev.HomeGoals == nil) != (ev.AwayGoals == nil) {
		writeError(w, http.StatusBadRequest, "home_goals and away_goals must be given together")
		return
	}

	res, err := h.svc.HandleMatchEnded(r.Context(), ev)
	if err != nil {
		writeServiceError(w, r, h.logger, "handle match ended", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Reset clears the settlement of a fixture's predictions. The acting
// operator is taken from the X-Actor header.
// POST /api/admin/fixtures/{id}/reset
func (h *SettlementHandler) Reset(w http.ResponseWriter, r *http.Request) {
	id, err := fixtureID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actor := strings.TrimSpace(r.Header.Get("X-Actor"))
	if actor == "" {
		actor = "api"
	}

	n, err := h.svc.Reset(r.Context(), id, actor)
	if err != nil {
		writeServiceError(w, r, h.logger, "reset fixture", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fixture_id":  id,
		"predictions": n,
		"status":      "reset",
	})
}
