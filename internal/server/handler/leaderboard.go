package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

// LeaderboardService defines the methods that the leaderboard handler
// requires from the service layer.
type LeaderboardService interface {
	Period(kind, month string) (string, error)
	Leaderboard(ctx context.Context, period string, limit int) ([]domain.RankedEntry, error)
	User(ctx context.Context, userID, period string) (domain.RankedEntry, error)
	Prizes(ctx context.Context) ([]domain.MonthlyPrize, error)
}

// LeaderboardHandler serves leaderboard and prize endpoints.
type LeaderboardHandler struct {
	svc    LeaderboardService
	logger *slog.Logger
}

// NewLeaderboardHandler creates a LeaderboardHandler.
func NewLeaderboardHandler(svc LeaderboardService, logger *slog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{svc: svc, logger: logHandler(logger, "leaderboard")}
}

type leaderboardResponse struct {
	Period  string               `json:"period"`
	Entries []domain.RankedEntry `json:"entries"`
}

// Leaderboard returns the ranked entries of a period.
// GET /api/leaderboard?period=alltime|monthly&month=YYYY-MM&limit=100
func (h *LeaderboardHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period, err := h.svc.Period(q.Get("period"), q.Get("month"))
	if err != nil {
		writeServiceError(w, r, h.logger, "resolve period", err)
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.svc.Leaderboard(r.Context(), period, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, "list leaderboard", err)
		return
	}
	if entries == nil {
		entries = []domain.RankedEntry{}
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{Period: period, Entries: entries})
}

// UserRank returns one user's ranked entry.
// GET /api/users/{id}/rank?period=alltime|monthly&month=YYYY-MM
func (h *LeaderboardHandler) UserRank(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "id")
	q := r.URL.Query()
	period, err := h.svc.Period(q.Get("period"), q.Get("month"))
	if err != nil {
		writeServiceError(w, r, h.logger, "resolve period", err)
		return
	}
	e, err := h.svc.User(r.Context(), userID, period)
	if err != nil {
		writeServiceError(w, r, h.logger, "get user rank", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

type prizesResponse struct {
	Prizes []domain.MonthlyPrize `json:"prizes"`
}

// Prizes lists the recorded monthly winners, newest first.
// GET /api/prizes
func (h *LeaderboardHandler) Prizes(w http.ResponseWriter, r *http.Request) {
	ps, err := h.svc.Prizes(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "list prizes", err)
		return
	}
	if ps == nil {
		ps = []domain.MonthlyPrize{}
	}
	writeJSON(w, http.StatusOK, prizesResponse{Prizes: ps})
}
