// Package stats derives accuracy reports from settled predictions and agent
// opinions.
package stats

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

// Confidence band names.
const (
	BandHigh   = "high"
	BandMedium = "medium"
	BandLow    = "low"
)

// Band returns the confidence band of a prediction: high >= 75,
// medium >= 60, low otherwise.
func Band(confidence float64) string {
	switch {
	case confidence >= 75:
		return BandHigh
	case confidence >= 60:
		return BandMedium
	default:
		return BandLow
	}
}

// Tally counts settled records.
type Tally struct {
	Total    int     `json:"total"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

func (t *Tally) add(correct bool) {
	t.Total++
	if correct {
		t.Correct++
	}
}

func (t *Tally) finish() {
	t.Accuracy = percent(t.Correct, t.Total)
}

func percent(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return decimal.NewFromInt(int64(n)).
		Div(decimal.NewFromInt(int64(d))).
		Mul(decimal.NewFromInt(100)).
		Round(1).
		InexactFloat64()
}

// MarketPerformance is the accuracy of one market.
type MarketPerformance struct {
	Market domain.Market `json:"market"`
	Tally
}

// BandPerformance is the accuracy of one confidence band.
type BandPerformance struct {
	Band string `json:"band"`
	Tally
}

// PerformanceReport summarises consensus accuracy over a window.
type PerformanceReport struct {
	Days    int                 `json:"days"`
	Since   time.Time           `json:"since"`
	Total   int                 `json:"total"`
	Pending int                 `json:"pending"`
	Overall Tally               `json:"overall"`
	Markets []MarketPerformance `json:"markets"`
	Bands   []BandPerformance   `json:"bands"`
}

// Performance builds the report for predictions created since the window
// start. Unsettled predictions only count towards Total and Pending.
func Performance(preds []domain.ConsensusPrediction, since time.Time, days int) PerformanceReport {
	r := PerformanceReport{Days: days, Since: since}
	markets := make(map[domain.Market]*Tally)
	bands := map[string]*Tally{BandHigh: {}, BandMedium: {}, BandLow: {}}

	for _, p := range preds {
		if p.CreatedAt.Before(since) {
			continue
		}
		r.Total++
		if !p.IsSettled {
			r.Pending++
			continue
		}
		correct := p.State() == domain.PredictionCorrect
		r.Overall.add(correct)
		t, ok := markets[p.Market]
		if !ok {
			t = &Tally{}
			markets[p.Market] = t
		}
		t.add(correct)
		bands[Band(p.Confidence)].add(correct)
	}

	r.Overall.finish()
	for _, m := range domain.ConsensusMarkets {
		t, ok := markets[m]
		if !ok {
			continue
		}
		t.finish()
		r.Markets = append(r.Markets, MarketPerformance{Market: m, Tally: *t})
	}
	for _, b := range []string{BandHigh, BandMedium, BandLow} {
		bands[b].finish()
		r.Bands = append(r.Bands, BandPerformance{Band: b, Tally: *bands[b]})
	}
	return r
}

// AgentAccuracy is one agent's hit rate on one market.
type AgentAccuracy struct {
	AgentID domain.AgentID `json:"agent_id"`
	Market  domain.Market  `json:"market"`
	Tally
}

// AgentReport is the accuracy of one agent, overall and per market.
type AgentReport struct {
	AgentID domain.AgentID  `json:"agent_id"`
	Overall Tally           `json:"overall"`
	Markets []AgentAccuracy `json:"markets"`
}

// Agents builds per-agent accuracy from settled opinions, best agent first.
// Agents with equal accuracy are ordered by id.
func Agents(opinions []domain.AgentMarketOpinion) []AgentReport {
	type key struct {
		agent  domain.AgentID
		market domain.Market
	}
	overall := make(map[domain.AgentID]*Tally)
	perMarket := make(map[key]*Tally)
	for _, o := range opinions {
		if !o.IsSettled || o.WasCorrect == nil {
			continue
		}
		t, ok := overall[o.AgentID]
		if !ok {
			t = &Tally{}
			overall[o.AgentID] = t
		}
		t.add(*o.WasCorrect)
		k := key{o.AgentID, o.Market}
		mt, ok := perMarket[k]
		if !ok {
			mt = &Tally{}
			perMarket[k] = mt
		}
		mt.add(*o.WasCorrect)
	}

	out := make([]AgentReport, 0, len(overall))
	for id, t := range overall {
		t.finish()
		r := AgentReport{AgentID: id, Overall: *t}
		for _, m := range domain.ConsensusMarkets {
			if mt, ok := perMarket[key{id, m}]; ok {
				mt.finish()
				r.Markets = append(r.Markets, AgentAccuracy{AgentID: id, Market: m, Tally: *mt})
			}
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Overall.Accuracy != out[j].Overall.Accuracy {
			return out[i].Overall.Accuracy > out[j].Overall.Accuracy
		}
		return out[i].AgentID < out[j].AgentID
	})
	return out
}
