// Package agent contains opinion providers: deterministic rule-based agents
// that work from match facts alone, and a client for remote agents.
package agent

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

// Rule-based agent ids. They double as weight table keys.
const (
	FormID  domain.AgentID = "form"
	StatsID domain.AgentID = "stats"
	OddsID  domain.AgentID = "odds"
	H2HID   domain.AgentID = "h2h"
)

// ruleConfidenceCap keeps heuristics from sounding more certain than they are.
const ruleConfidenceCap = 68.0

type opinionSet struct {
	facts domain.MatchFacts
	agent domain.AgentID
	now   time.Time
	out   []domain.AgentMarketOpinion
}

func (s *opinionSet) add(m domain.Market, l domain.Label, conf float64) {
	conf = math.Round(math.Max(0, math.Min(100, conf))*10) / 10
	s.out = append(s.out, domain.AgentMarketOpinion{
		FixtureID:  s.facts.FixtureID,
		AgentID:    s.agent,
		Market:     m,
		Label:      l,
		Confidence: conf,
		CreatedAt:  s.now,
	})
}

// formPoints scores a W/D/L string as 3 per win and 1 per draw.
func formPoints(form string) int {
	form = strings.ToUpper(form)
	return strings.Count(form, "W")*3 + strings.Count(form, "D")
}

// pct returns v, or 50 when the percentage is unknown.
func pct(v float64) float64 {
	if v <= 0 {
		return 50
	}
	return v
}

// Form reads momentum from the two teams' recent W/D/L strings.
type Form struct {
	now func() time.Time
}

// NewForm creates the form agent.
func NewForm() *Form { return &Form{now: time.Now} }

func (a *Form) Agent() domain.Agent {
	return domain.Agent{ID: FormID, Markets: []domain.Market{domain.MarketMatchResult, domain.MarketDoubleChance}}
}

// Opine favours the side whose form is more than two wins better, otherwise a
// draw.
func (a *Form) Opine(_ context.Context, f domain.MatchFacts) ([]domain.AgentMarketOpinion, error) {
	if f.HomeForm.Form == "" && f.AwayForm.Form == "" {
		return nil, nil
	}
	s := &opinionSet{facts: f, agent: FormID, now: a.now().UTC()}
	diff := float64(formPoints(f.HomeForm.Form) - formPoints(f.AwayForm.Form))

	label := domain.LabelDraw
	switch {
	case diff > 6:
		label = domain.LabelHome
	case diff < -6:
		label = domain.LabelAway
	}
	s.add(domain.MarketMatchResult, label, math.Min(ruleConfidenceCap, 50+math.Abs(diff)*1.2))

	dc := domain.LabelHomeDraw
	if diff < 0 {
		dc = domain.LabelDrawAway
	}
	s.add(domain.MarketDoubleChance, dc, math.Min(ruleConfidenceCap, 55+math.Abs(diff)))
	return s.out, nil
}

// Stats works from goal percentages and scoring averages.
type Stats struct {
	now func() time.Time
}

// NewStats creates the goal statistics agent.
func NewStats() *Stats { return &Stats{now: time.Now} }

func (a *Stats) Agent() domain.Agent {
	return domain.Agent{ID: StatsID, Markets: []domain.Market{domain.MarketOverUnder25, domain.MarketOverUnder35, domain.MarketBTTS}}
}

// Opine blends home, away and head-to-head percentages 35/35/30 and calls
// the "yes" side from 55%.
func (a *Stats) Opine(_ context.Context, f domain.MatchFacts) ([]domain.AgentMarketOpinion, error) {
	s := &opinionSet{facts: f, agent: StatsID, now: a.now().UTC()}

	over := blend(f.HomeForm.Over25Pct, f.AwayForm.Over25Pct, f.H2H.Over25Pct)
	if over >= 55 {
		s.add(domain.MarketOverUnder25, domain.LabelOver, blendConfidence(over))
	} else {
		s.add(domain.MarketOverUnder25, domain.LabelUnder, blendConfidence(over))
	}

	btts := blend(f.HomeForm.BTTSPct, f.AwayForm.BTTSPct, f.H2H.BTTSPct)
	if btts >= 55 {
		s.add(domain.MarketBTTS, domain.LabelYes, blendConfidence(btts))
	} else {
		s.add(domain.MarketBTTS, domain.LabelNo, blendConfidence(btts))
	}

	if f.HomeForm.AvgScored > 0 || f.AwayForm.AvgScored > 0 {
		expected := (f.HomeForm.AvgScored+f.AwayForm.AvgConced)/2 + (f.AwayForm.AvgScored+f.HomeForm.AvgConced)/2
		conf := math.Min(ruleConfidenceCap, 50+math.Abs(expected-3.5)*12)
		if expected > 3.5 {
			s.add(domain.MarketOverUnder35, domain.LabelOver, conf)
		} else {
			s.add(domain.MarketOverUnder35, domain.LabelUnder, conf)
		}
	}
	return s.out, nil
}

func blend(home, away, h2h float64) float64 {
	return pct(home)*0.35 + pct(away)*0.35 + pct(h2h)*0.30
}

func blendConfidence(avg float64) float64 {
	return math.Min(ruleConfidenceCap, math.Max(50, math.Abs(avg-52.5)*0.8+50))
}

// HeadToHead reads previous meetings.
type HeadToHead struct {
	MinMatches int
	now        func() time.Time
}

// NewHeadToHead creates the head-to-head agent. It stays silent below
// minMatches previous meetings.
func NewHeadToHead(minMatches int) *HeadToHead {
	if minMatches <= 0 {
		minMatches = 3
	}
	return &HeadToHead{MinMatches: minMatches, now: time.Now}
}

func (a *HeadToHead) Agent() domain.Agent {
	return domain.Agent{ID: H2HID, Markets: []domain.Market{domain.MarketMatchResult, domain.MarketOverUnder25, domain.MarketBTTS}}
}

func (a *HeadToHead) Opine(_ context.Context, f domain.MatchFacts) ([]domain.AgentMarketOpinion, error) {
	h := f.H2H
	if h.TotalMatches < a.MinMatches {
		return nil, nil
	}
	s := &opinionSet{facts: f, agent: H2HID, now: a.now().UTC()}
	total := float64(h.TotalMatches)

	label, best := domain.LabelHome, h.HomeWins
	if h.Draws > best {
		label, best = domain.LabelDraw, h.Draws
	}
	if h.AwayWins > best {
		label, best = domain.LabelAway, h.AwayWins
	}
	s.add(domain.MarketMatchResult, label, math.Min(70, 45+float64(best)/total*40))

	if h.Over25Pct > 0 {
		l := domain.LabelUnder
		if h.Over25Pct >= 55 {
			l = domain.LabelOver
		}
		s.add(domain.MarketOverUnder25, l, math.Min(65, 50+math.Abs(h.Over25Pct-52.5)*0.6))
	}
	if h.BTTSPct > 0 {
		l := domain.LabelNo
		if h.BTTSPct >= 55 {
			l = domain.LabelYes
		}
		s.add(domain.MarketBTTS, l, math.Min(65, 50+math.Abs(h.BTTSPct-52.5)*0.6))
	}
	return s.out, nil
}
