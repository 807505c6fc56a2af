package domain

import (
	"context"
	"time"
)

// AgentID identifies an independent opinion source.
type AgentID string

// Agent describes an opinion source by identity and the markets it can score.
// Weight is not stored on the agent; it is resolved per context.
type Agent struct {
	ID      AgentID
	Markets []Market
}

// Supports reports whether the agent scores market m.
func (a Agent) Supports(m Market) bool {
	for _, v := range a.Markets {
		if v == m {
			return true
		}
	}
	return false
}

// AgentMarketOpinion is one agent's belief about one market of one fixture.
type AgentMarketOpinion struct {
	FixtureID  int64     `json:"fixture_id"`
	AgentID    AgentID   `json:"agent_id"`
	Market     Market    `json:"market"`
	Label      Label     `json:"label"`
	Confidence float64   `json:"confidence"` // 0..100
	CreatedAt  time.Time `json:"created_at"`

	// Settlement fields, written once.
	IsSettled  bool       `json:"is_settled"`
	WasCorrect *bool      `json:"was_correct,omitempty"`
	SettledAt  *time.Time `json:"settled_at,omitempty"`
}

// Valid reports whether the opinion carries a label of its market and a
// confidence in [0,100].
func (o AgentMarketOpinion) Valid() bool {
	return o.Market.Accepts(o.Label) && o.Confidence >= 0 && o.Confidence <= 100
}

// OpinionProvider produces opinions for a fixture. Implementations may be
// rule based or remote; the consensus core does not care which. Opine should
// return once ctx is done; callers stop waiting at that point regardless, and
// must not modify the returned slice.
type OpinionProvider interface {
	Agent() Agent
	Opine(ctx context.Context, facts MatchFacts) ([]AgentMarketOpinion, error)
}
