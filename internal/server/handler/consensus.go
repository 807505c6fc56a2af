package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

// ConsensusService defines the methods that the consensus handler requires
// from the service layer.
type ConsensusService interface {
	ProduceConsensus(ctx context.Context, fixtureID int64, facts *domain.MatchFacts) (domain.FixtureConsensus, error)
	Consensus(ctx context.Context, fixtureID int64) (domain.FixtureConsensus, error)
	Opinions(ctx context.Context, fixtureID int64) ([]domain.AgentMarketOpinion, error)
}

// ConsensusHandler serves consensus endpoints.
type ConsensusHandler struct {
	svc    ConsensusService
	logger *slog.Logger
}

// NewConsensusHandler creates a ConsensusHandler.
func NewConsensusHandler(svc ConsensusService, logger *slog.Logger) *ConsensusHandler {
	return &ConsensusHandler{svc: svc, logger: logHandler(logger, "consensus")}
}

// Produce runs a consensus for a fixture. The body may carry the match facts;
// without it they are fetched from the facts provider.
// POST /api/fixtures/{id}/consensus
func (h *ConsensusHandler) Produce(w http.ResponseWriter, r *http.Request) {
	id, err := fixtureID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var facts domain.MatchFacts
	present, err := decodeBody(r, &facts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in *domain.MatchFacts
	if present {
		if facts.FixtureID != 0 && facts.FixtureID != id {
			writeError(w, http.StatusBadRequest, "fixture_id in body does not match path")
			return
		}
		facts.FixtureID = id
		in = &facts
	}

	fc, err := h.svc.ProduceConsensus(r.Context(), id, in)
	if err != nil {
		writeServiceError(w, r, h.logger, "produce consensus", err)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

// Get returns the stored consensus of a fixture with its best bet.
// GET /api/fixtures/{id}/consensus
func (h *ConsensusHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := fixtureID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fc, err := h.svc.Consensus(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get consensus", err)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

type opinionsResponse struct {
	FixtureID int64                       `json:"fixture_id"`
	Opinions  []domain.AgentMarketOpinion `json:"opinions"`
}

// Opinions returns the agent opinions recorded for a fixture.
// GET /api/fixtures/{id}/opinions
func (h *ConsensusHandler) Opinions(w http.ResponseWriter, r *http.Request) {
	id, err := fixtureID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ops, err := h.svc.Opinions(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "list opinions", err)
		return
	}
	if ops == nil {
		ops = []domain.AgentMarketOpinion{}
	}
	writeJSON(w, http.StatusOK, opinionsResponse{FixtureID: id, Opinions: ops})
}
