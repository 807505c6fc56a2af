package consensus

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/consensusbot/internal/domain"
	"github.com/alanyoungcy/consensusbot/internal/weights"
)

func op(agent string, m domain.Market, l domain.Label, conf float64) domain.AgentMarketOpinion {
	return domain.AgentMarketOpinion{FixtureID: 1, AgentID: domain.AgentID(agent), Market: m, Label: l, Confidence: conf}
}

func equalWeights(ids ...string) domain.WeightProfile {
	p := make(domain.WeightProfile, len(ids))
	for _, id := range ids {
		p[domain.AgentID(id)] = 1.0 / float64(len(ids))
	}
	return p
}

func TestAggregateThreeAgentExample(t *testing.T) {
	opinions := []domain.AgentMarketOpinion{
		op("a", domain.MarketMatchResult, domain.LabelHome, 80),
		op("b", domain.MarketMatchResult, domain.LabelHome, 60),
		op("c", domain.MarketMatchResult, domain.LabelAway, 70),
	}
	raw, err := Aggregate(1, domain.MarketMatchResult, opinions, equalWeights("a", "b", "c"))
	require.NoError(t, err)

	assert.Equal(t, domain.LabelHome, raw.Label)
	assert.InDelta(t, 66.667, raw.RawConfidence, 0.01)
	assert.InDelta(t, 0.667, raw.Agreement, 0.001)
	assert.Equal(t, 3, raw.AgentsTotal)
	assert.Equal(t, 2, raw.AgentsAgreeing)
	assert.InDelta(t, 0.4667, raw.LabelScores[domain.LabelHome], 0.0001)
	assert.InDelta(t, 0.2333, raw.LabelScores[domain.LabelAway], 0.0001)

	pred := DefaultCalibration().Calibrate(raw, time.Unix(0, 0))
	assert.Equal(t, 66.7, pred.Confidence)
	assert.Equal(t, domain.StakeMedium, pred.Stake)
}

func TestAggregateRenormalizesOverResponders(t *testing.T) {
	profile := domain.WeightProfile{"a": 0.5, "b": 0.3, "silent": 0.2}
	opinions := []domain.AgentMarketOpinion{
		op("a", domain.MarketBTTS, domain.LabelYes, 70),
		op("b", domain.MarketBTTS, domain.LabelNo, 70),
	}
	raw, err := Aggregate(1, domain.MarketBTTS, opinions, profile)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, raw.Weights.Sum(), 1e-9)
	assert.NotContains(t, raw.Weights, domain.AgentID("silent"))
	assert.InDelta(t, 0.625, raw.Agreement, 1e-9)
	assert.Equal(t, domain.LabelYes, raw.Label)
}

func TestAggregateTieBreaks(t *testing.T) {
	tests := []struct {
		name     string
		market   domain.Market
		profile  domain.WeightProfile
		opinions []domain.AgentMarketOpinion
		want     domain.Label
	}{
		{
			name:    "identical scores fall back to priority home over away",
			market:  domain.MarketMatchResult,
			profile: equalWeights("a", "b"),
			opinions: []domain.AgentMarketOpinion{
				op("a", domain.MarketMatchResult, domain.LabelAway, 70),
				op("b", domain.MarketMatchResult, domain.LabelHome, 70),
			},
			want: domain.LabelHome,
		},
		{
			name:    "draw beats away on priority",
			market:  domain.MarketMatchResult,
			profile: equalWeights("a", "b"),
			opinions: []domain.AgentMarketOpinion{
				op("a", domain.MarketMatchResult, domain.LabelAway, 55),
				op("b", domain.MarketMatchResult, domain.LabelDraw, 55),
			},
			want: domain.LabelDraw,
		},
		{
			name:    "over beats under",
			market:  domain.MarketOverUnder25,
			profile: equalWeights("a", "b"),
			opinions: []domain.AgentMarketOpinion{
				op("a", domain.MarketOverUnder25, domain.LabelUnder, 64),
				op("b", domain.MarketOverUnder25, domain.LabelOver, 64),
			},
			want: domain.LabelOver,
		},
		{
			name:    "yes beats no",
			market:  domain.MarketBTTS,
			profile: equalWeights("a", "b"),
			opinions: []domain.AgentMarketOpinion{
				op("a", domain.MarketBTTS, domain.LabelNo, 50),
				op("b", domain.MarketBTTS, domain.LabelYes, 50),
			},
			want: domain.LabelYes,
		},
		{
			name:    "more confident single agent beats priority",
			market:  domain.MarketMatchResult,
			profile: domain.WeightProfile{"a": 0.5, "b": 0.25, "c": 0.25},
			opinions: []domain.AgentMarketOpinion{
				op("a", domain.MarketMatchResult, domain.LabelHome, 60),
				op("b", domain.MarketMatchResult, domain.LabelAway, 80),
				op("c", domain.MarketMatchResult, domain.LabelAway, 40),
			},
			want: domain.LabelAway,
		},
		{
			name:    "double chance priority",
			market:  domain.MarketDoubleChance,
			profile: equalWeights("a", "b"),
			opinions: []domain.AgentMarketOpinion{
				op("a", domain.MarketDoubleChance, domain.LabelDrawAway, 66),
				op("b", domain.MarketDoubleChance, domain.LabelHomeAway, 66),
			},
			want: domain.LabelHomeAway,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Aggregate(1, tt.market, tt.opinions, tt.profile)
			require.NoError(t, err)
			assert.Equal(t, tt.want, raw.Label)
		})
	}
}

func TestAggregateIsDeterministic(t *testing.T) {
	opinions := []domain.AgentMarketOpinion{
		op("a", domain.MarketMatchResult, domain.LabelHome, 72.5),
		op("b", domain.MarketMatchResult, domain.LabelDraw, 51),
		op("c", domain.MarketMatchResult, domain.LabelAway, 66),
		op("d", domain.MarketMatchResult, domain.LabelHome, 58),
		op("e", domain.MarketMatchResult, domain.LabelAway, 90),
	}
	profile := domain.WeightProfile{"a": 0.3, "b": 0.1, "c": 0.2, "d": 0.15, "e": 0.25}
	want, err := Aggregate(1, domain.MarketMatchResult, opinions, profile)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]domain.AgentMarketOpinion(nil), opinions...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got, err := Aggregate(1, domain.MarketMatchResult, shuffled, profile)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestAggregateInsufficientData(t *testing.T) {
	tests := []struct {
		name     string
		opinions []domain.AgentMarketOpinion
	}{
		{"no opinions", nil},
		{"other market only", []domain.AgentMarketOpinion{op("a", domain.MarketBTTS, domain.LabelYes, 70)}},
		{"unweighted agent", []domain.AgentMarketOpinion{op("x", domain.MarketMatchResult, domain.LabelHome, 70)}},
		{"invalid label", []domain.AgentMarketOpinion{op("a", domain.MarketMatchResult, domain.LabelYes, 70)}},
		{"confidence out of range", []domain.AgentMarketOpinion{op("a", domain.MarketMatchResult, domain.LabelHome, 130)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Aggregate(1, domain.MarketMatchResult, tt.opinions, equalWeights("a"))
			var insufficient *domain.InsufficientDataError
			require.ErrorAs(t, err, &insufficient)
			assert.Equal(t, domain.MarketMatchResult, insufficient.Market)
			assert.True(t, domain.IsRetryable(err))
		})
	}
}

func TestAggregateSingleAgent(t *testing.T) {
	raw, err := Aggregate(1, domain.MarketOverUnder25,
		[]domain.AgentMarketOpinion{op("a", domain.MarketOverUnder25, domain.LabelOver, 99)},
		domain.WeightProfile{"a": 0.2, "b": 0.8})
	require.NoError(t, err)
	assert.Equal(t, 1.0, raw.Weights["a"])
	assert.InDelta(t, 100.0, raw.RawConfidence, 1e-9)
	assert.Equal(t, 1.0, raw.Agreement)

	pred := DefaultCalibration().Calibrate(raw, time.Now())
	assert.Equal(t, MaxConfidence, pred.Confidence)
	assert.Equal(t, domain.StakeHigh, pred.Stake)
}

func TestCalibrationCaps(t *testing.T) {
	c := DefaultCalibration()
	tests := []struct {
		name      string
		raw       float64
		agreement float64
		want      float64
	}{
		{"low agreement capped at 60", 90, 0.4, 60},
		{"low agreement below cap untouched", 55, 0.4, 55},
		{"mid agreement", 88.44, 0.6, 88.4},
		{"high agreement capped at 95", 99, 0.9, 95},
		{"boundary 0.5 is mid band", 70, 0.5, 70},
		{"boundary 0.8 is high band", 100, 0.8, 95},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Confidence(tt.raw, tt.agreement))
		})
	}
}

func TestCalibrationMonotoneInAgreement(t *testing.T) {
	c := DefaultCalibration()
	for raw := 0.0; raw <= 100; raw += 2.5 {
		prev := -1.0
		for a := 0.0; a <= 1.0; a += 0.05 {
			got := c.Confidence(raw, a)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, MaxConfidence)
			assert.GreaterOrEqual(t, got, prev, "raw=%g agreement=%g", raw, a)
			prev = got
		}
	}
}

func TestCalibrationValidate(t *testing.T) {
	assert.NoError(t, DefaultCalibration().Validate())

	c := DefaultCalibration()
	c.HighCap = 100
	assert.Error(t, c.Validate())

	c = DefaultCalibration()
	c.LowCap = 96
	assert.Error(t, c.Validate())

	c = DefaultCalibration()
	c.LowAgreement = 0.9
	assert.Error(t, c.Validate())
}

func TestStakeFor(t *testing.T) {
	c := DefaultCalibration()
	assert.Equal(t, domain.StakeHigh, c.StakeFor(75))
	assert.Equal(t, domain.StakeMedium, c.StakeFor(74.9))
	assert.Equal(t, domain.StakeMedium, c.StakeFor(65))
	assert.Equal(t, domain.StakeLow, c.StakeFor(64.9))

	c.Stake = StakeBands{High: 90, Medium: 50}
	assert.Equal(t, domain.StakeMedium, c.StakeFor(75))
}

func TestBestBet(t *testing.T) {
	c := DefaultCalibration()
	preds := []domain.ConsensusPrediction{
		{Market: domain.MarketMatchResult, Label: domain.LabelHome, Confidence: 58},
		{Market: domain.MarketOverUnder25, Label: domain.LabelOver, Confidence: 71, Stake: domain.StakeMedium},
		{Market: domain.MarketBTTS, Label: domain.LabelYes, Confidence: 71},
	}
	bb := c.BestBet(preds)
	require.NotNil(t, bb)
	assert.Equal(t, domain.MarketOverUnder25, bb.Market)
	assert.Equal(t, domain.StakeMedium, bb.Stake)

	assert.Nil(t, c.BestBet(preds[:1]))
	assert.Nil(t, c.BestBet(nil))

	c.BestBetThreshold = 58
	bb = c.BestBet(preds[:1])
	require.NotNil(t, bb)
	assert.Equal(t, domain.MarketMatchResult, bb.Market)
}

func TestBuilderSkipsMarketsWithoutOpinions(t *testing.T) {
	b := Builder{
		Weights:     weights.NewConfig(weights.Table{"a": 1, "b": 1, "c": 1}, nil, nil, nil),
		Calibration: DefaultCalibration(),
	}
	facts := domain.MatchFacts{FixtureID: 1, League: "Serie A", MatchTypes: []string{domain.MatchTypeDerby}}
	opinions := []domain.AgentMarketOpinion{
		op("a", domain.MarketMatchResult, domain.LabelHome, 80),
		op("b", domain.MarketMatchResult, domain.LabelHome, 60),
		op("c", domain.MarketMatchResult, domain.LabelAway, 70),
	}

	fc, err := b.Build(facts, []domain.AgentID{"a", "b", "c"}, opinions, time.Now())
	require.Error(t, err)
	var insufficient *domain.InsufficientDataError
	assert.ErrorAs(t, err, &insufficient)

	require.Len(t, fc.Predictions, 1)
	assert.Equal(t, domain.LabelHome, fc.Predictions[0].Label)
	assert.Equal(t, domain.MatchTypeDerby, fc.MatchType)
	assert.Len(t, fc.Skipped, len(domain.ConsensusMarkets)-1)
	assert.Equal(t, SkipInsufficient, fc.Skipped[domain.MarketBTTS])
	require.NotNil(t, fc.BestBet)
	assert.Equal(t, 66.7, fc.BestBet.Confidence)
}

func TestBuilderConfigurationError(t *testing.T) {
	b := Builder{Calibration: DefaultCalibration(), Markets: []domain.Market{domain.MarketBTTS}}
	fc, err := b.Build(domain.MatchFacts{FixtureID: 3}, []domain.AgentID{"a"}, nil, time.Now())
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Empty(t, fc.Predictions)
	assert.Nil(t, fc.BestBet)
	assert.Contains(t, fc.Skipped, domain.MarketBTTS)
}
