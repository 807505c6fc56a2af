package domain

import "time"

// WeightProfile maps agents to non-negative weights. A resolved profile is
// normalized so that its weights sum to 1.
type WeightProfile map[AgentID]float64

// Sum returns the total weight.
func (p WeightProfile) Sum() float64 {
	var s float64
	for _, w := range p {
		s += w
	}
	return s
}

// Clone returns an independent copy.
func (p WeightProfile) Clone() WeightProfile {
	out := make(WeightProfile, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// RawConsensus is the aggregator's uncalibrated result for one market.
type RawConsensus struct {
	FixtureID      int64
	Market         Market
	Label          Label
	RawConfidence  float64 // 0..100
	Agreement      float64 // 0..1, weight share of the winning label
	AgentsTotal    int
	AgentsAgreeing int
	Weights        WeightProfile // re-normalized over responding agents
	LabelScores    map[Label]float64
}

// StakeHint is a coarse stake size recommendation.
type StakeHint string

const (
	StakeLow    StakeHint = "low"
	StakeMedium StakeHint = "medium"
	StakeHigh   StakeHint = "high"
)

// PredictionState is the settlement state of a consensus prediction.
type PredictionState string

const (
	PredictionUnsettled PredictionState = "unsettled"
	PredictionCorrect   PredictionState = "settled_correct"
	PredictionIncorrect PredictionState = "settled_incorrect"
)

// ConsensusPrediction is the stored consensus for one fixture and market.
// Only the settlement fields change after creation, and only once.
type ConsensusPrediction struct {
	ID             int64         `json:"id"`
	FixtureID      int64         `json:"fixture_id"`
	Market         Market        `json:"market"`
	Label          Label         `json:"label"`
	Confidence     float64       `json:"confidence"`
	RawConfidence  float64       `json:"raw_confidence"`
	Agreement      float64       `json:"agreement"`
	AgentsTotal    int           `json:"agents_total"`
	AgentsAgreeing int           `json:"agents_agreeing"`
	Weights        WeightProfile `json:"weights"`
	Stake          StakeHint     `json:"stake"`
	Version        int           `json:"version"`
	CreatedAt      time.Time     `json:"created_at"`

	IsSettled     bool       `json:"is_settled"`
	ActualOutcome Label      `json:"actual_outcome,omitempty"`
	WasCorrect    *bool      `json:"was_correct,omitempty"`
	SettledAt     *time.Time `json:"settled_at,omitempty"`
}

// State derives the settlement state from the stored fields.
func (p ConsensusPrediction) State() PredictionState {
	switch {
	case !p.IsSettled:
		return PredictionUnsettled
	case p.WasCorrect != nil && *p.WasCorrect:
		return PredictionCorrect
	default:
		return PredictionIncorrect
	}
}

// BestBet is the strongest calibrated signal of a fixture.
type BestBet struct {
	Market     Market    `json:"market"`
	Label      Label     `json:"label"`
	Confidence float64   `json:"confidence"`
	Stake      StakeHint `json:"stake"`
}

// FixtureConsensus groups the predictions of one consensus run.
type FixtureConsensus struct {
	FixtureID   int64                    `json:"fixture_id"`
	League      string                   `json:"league"`
	MatchType   string                   `json:"match_type,omitempty"`
	Predictions []ConsensusPrediction    `json:"predictions"`
	BestBet     *BestBet                 `json:"best_bet,omitempty"`
	Skipped     map[Market]string        `json:"skipped,omitempty"` // market -> reason
	Agents      map[AgentID]AgentOutcome `json:"agents,omitempty"`
	ProducedAt  time.Time                `json:"produced_at"`
}

// AgentOutcome records how an agent behaved during a consensus run.
type AgentOutcome struct {
	Opinions int           `json:"opinions"`
	Latency  time.Duration `json:"latency"`
	Error    string        `json:"error,omitempty"`
}
