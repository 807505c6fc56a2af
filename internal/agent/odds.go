package agent

import (
	"context"
	"time"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

// Odds turns bookmaker prices into opinions: implied probabilities with the
// overround removed, the favourite as label and its probability as confidence.
type Odds struct {
	now func() time.Time
}

// NewOdds creates the odds agent.
func NewOdds() *Odds { return &Odds{now: time.Now} }

func (a *Odds) Agent() domain.Agent {
	return domain.Agent{ID: OddsID, Markets: domain.ConsensusMarkets}
}

func (a *Odds) Opine(_ context.Context, f domain.MatchFacts) ([]domain.AgentMarketOpinion, error) {
	s := &opinionSet{facts: f, agent: OddsID, now: a.now().UTC()}
	o := f.Odds

	if p, ok := NoVig(o.Home, o.Draw, o.Away); ok {
		s.addFavourite(domain.MarketMatchResult, []domain.Label{domain.LabelHome, domain.LabelDraw, domain.LabelAway}, p)
		dc := []float64{p[0] + p[1], p[0] + p[2], p[1] + p[2]}
		s.addFavourite(domain.MarketDoubleChance, []domain.Label{domain.LabelHomeDraw, domain.LabelHomeAway, domain.LabelDrawAway}, dc)
	}
	if p, ok := NoVig(o.Over25, o.Under25); ok {
		s.addFavourite(domain.MarketOverUnder25, []domain.Label{domain.LabelOver, domain.LabelUnder}, p)
	}
	if p, ok := NoVig(o.Over35, o.Under35); ok {
		s.addFavourite(domain.MarketOverUnder35, []domain.Label{domain.LabelOver, domain.LabelUnder}, p)
	}
	if p, ok := NoVig(o.BTTSYes, o.BTTSNo); ok {
		s.addFavourite(domain.MarketBTTS, []domain.Label{domain.LabelYes, domain.LabelNo}, p)
	}
	return s.out, nil
}

// addFavourite adds the most likely label; earlier labels win ties.
func (s *opinionSet) addFavourite(m domain.Market, labels []domain.Label, probs []float64) {
	best := 0
	for i := range probs {
		if probs[i] > probs[best] {
			best = i
		}
	}
	s.add(m, labels[best], probs[best]*100)
}

// NoVig converts decimal odds into probabilities that sum to 1. It reports
// false if any price is missing or at most 1.
func NoVig(odds ...float64) ([]float64, bool) {
	var sum float64
	implied := make([]float64, len(odds))
	for i, o := range odds {
		if o <= 1 {
			return nil, false
		}
		implied[i] = 1 / o
		sum += implied[i]
	}
	for i := range implied {
		implied[i] /= sum
	}
	return implied, true
}
