// Package consensus merges per-agent market opinions into one calibrated
// prediction per market.
package consensus

import (
	"sort"

	"github.com/alanyoungcy/consensusbot/internal/domain"
	"github.com/alanyoungcy/consensusbot/internal/weights"
)

const scoreEpsilon = 1e-9

type labelTally struct {
	score   float64 // Σ weight × confidence/100
	weight  float64 // Σ weight
	agents  int
	bestOne float64 // highest single-agent confidence
}

// Aggregate reduces the opinions for one market into a RawConsensus.
//
// Only agents that submitted a valid opinion for the market and carry a
// positive weight in profile take part, and profile is re-normalized over
// them. Each label scores Σ weight × confidence/100; the top label wins and
// its raw confidence is its share of the total weighted confidence. Ties go
// to the label whose best single agent is more confident, then to the market's
// fixed label priority.
//
// It returns a *domain.InsufficientDataError when no usable opinion exists.
func Aggregate(fixtureID int64, market domain.Market, opinions []domain.AgentMarketOpinion, profile domain.WeightProfile) (domain.RawConsensus, error) {
	usable := usableOpinions(market, opinions, profile)
	if len(usable) == 0 {
		return domain.RawConsensus{}, &domain.InsufficientDataError{FixtureID: fixtureID, Market: market}
	}

	responding := make([]domain.AgentID, len(usable))
	for i, o := range usable {
		responding[i] = o.AgentID
	}
	w := weights.Restrict(profile, responding)

	tallies := make(map[domain.Label]*labelTally, len(market.Labels()))
	var total float64
	for _, o := range usable {
		t, ok := tallies[o.Label]
		if !ok {
			t = &labelTally{}
			tallies[o.Label] = t
		}
		s := w[o.AgentID] * o.Confidence / 100
		t.score += s
		t.weight += w[o.AgentID]
		t.agents++
		if o.Confidence > t.bestOne {
			t.bestOne = o.Confidence
		}
		total += s
	}

	var (
		winner domain.Label
		best   *labelTally
	)
	for _, label := range market.Labels() {
		t, ok := tallies[label]
		if !ok {
			continue
		}
		if best == nil || beats(t, best) {
			winner, best = label, t
		}
	}

	raw := domain.RawConsensus{
		FixtureID:      fixtureID,
		Market:         market,
		Label:          winner,
		Agreement:      best.weight,
		AgentsTotal:    len(usable),
		AgentsAgreeing: best.agents,
		Weights:        w,
		LabelScores:    make(map[domain.Label]float64, len(tallies)),
	}
	if total > 0 {
		raw.RawConfidence = 100 * best.score / total
	}
	for l, t := range tallies {
		raw.LabelScores[l] = t.score
	}
	return raw, nil
}

// beats reports whether a outranks b. Labels are visited in priority order,
// so an exact tie keeps the earlier label.
func beats(a, b *labelTally) bool {
	if d := a.score - b.score; d > scoreEpsilon {
		return true
	} else if d < -scoreEpsilon {
		return false
	}
	return a.bestOne > b.bestOne
}

// usableOpinions keeps one valid opinion per weighted agent for market,
// sorted by agent id so that floating point sums do not depend on input order.
// If an agent sent several, the most confident one is kept.
func usableOpinions(market domain.Market, opinions []domain.AgentMarketOpinion, profile domain.WeightProfile) []domain.AgentMarketOpinion {
	byAgent := make(map[domain.AgentID]domain.AgentMarketOpinion)
	for _, o := range opinions {
		if o.Market != market || !o.Valid() || profile[o.AgentID] <= 0 {
			continue
		}
		if prev, ok := byAgent[o.AgentID]; ok && prev.Confidence >= o.Confidence {
			continue
		}
		byAgent[o.AgentID] = o
	}
	out := make([]domain.AgentMarketOpinion, 0, len(byAgent))
	for _, o := range byAgent {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}
