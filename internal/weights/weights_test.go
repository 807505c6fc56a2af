package weights

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

func testConfig() Config {
	return NewConfig(
		Table{"a": 1, "b": 1, "c": 2},
		map[string]Table{"Serie A": {"a": 3}},
		map[domain.Market]Table{domain.MarketBTTS: {"a": 5, "b": 0}},
		map[string]Table{domain.MatchTypeDerby: {"a": 7}},
	)
}

func TestLookupPrecedence(t *testing.T) {
	c := testConfig()
	tests := []struct {
		name      string
		league    string
		market    domain.Market
		matchType string
		want      float64
	}{
		{"global", "", domain.MarketMatchResult, "", 1},
		{"league beats global", "Serie A", domain.MarketMatchResult, "", 3},
		{"market beats league", "Serie A", domain.MarketBTTS, "", 5},
		{"match type beats market", "Serie A", domain.MarketBTTS, domain.MatchTypeDerby, 7},
		{"unknown match type falls back", "Serie A", domain.MarketBTTS, "cup", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, ok := c.Lookup("a", tt.league, tt.market, tt.matchType)
			require.True(t, ok)
			assert.Equal(t, tt.want, w)
		})
	}

	_, ok := c.Lookup("zzz", "", domain.MarketBTTS, "")
	assert.False(t, ok)
}

func TestResolveNormalizes(t *testing.T) {
	c := testConfig()
	p, err := c.Resolve([]domain.AgentID{"a", "b", "c"}, "", domain.MarketMatchResult, "")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, p.Sum(), 1e-9)
	assert.InDelta(t, 0.25, p["a"], 1e-9)
	assert.InDelta(t, 0.5, p["c"], 1e-9)
}

func TestResolveExcludesZeroAndUnknownAgents(t *testing.T) {
	c := testConfig()
	p, err := c.Resolve([]domain.AgentID{"a", "b", "unknown"}, "", domain.MarketBTTS, "")
	require.NoError(t, err)
	assert.Len(t, p, 1)
	assert.Equal(t, 1.0, p["a"])
}

func TestResolveConfigurationError(t *testing.T) {
	c := testConfig()
	_, err := c.Resolve([]domain.AgentID{"b", "unknown"}, "", domain.MarketBTTS, "")
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, domain.MarketBTTS, cfgErr.Market)
	assert.False(t, domain.IsRetryable(err))

	_, err = Config{}.Resolve([]domain.AgentID{"a"}, "", domain.MarketBTTS, "")
	require.ErrorAs(t, err, &cfgErr)
}

func TestNewConfigCopiesTables(t *testing.T) {
	global := Table{"a": 1, "b": 1}
	c := NewConfig(global, nil, nil, nil)
	global["a"] = 100

	p, err := c.Resolve([]domain.AgentID{"a", "b"}, "", domain.MarketMatchResult, "")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p["a"], 1e-9)
}

func TestRestrictRenormalizes(t *testing.T) {
	p := domain.WeightProfile{"a": 0.5, "b": 0.25, "c": 0.25}
	r := Restrict(p, []domain.AgentID{"b", "c", "ghost"})
	assert.InDelta(t, 0.5, r["b"], 1e-9)
	assert.InDelta(t, 0.5, r["c"], 1e-9)
	assert.NotContains(t, r, domain.AgentID("a"))
	assert.InDelta(t, 1.0, r.Sum(), 1e-9)
}

func TestResolvedWeightsAlwaysSumToOne(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	agents := []domain.AgentID{"form", "stats", "odds", "h2h", "masterStrategist"}
	for _, league := range []string{"", "Premier League", "Championship"} {
		for _, m := range domain.ConsensusMarkets {
			for _, mt := range []string{"", domain.MatchTypeDerby, domain.MatchTypeLowLeague} {
				p, err := c.Resolve(agents, league, m, mt)
				require.NoError(t, err)
				assert.InDelta(t, 1.0, p.Sum(), 1e-9, "league=%q market=%s type=%q", league, m, mt)
			}
		}
	}
}

func TestValidateRejectsNegative(t *testing.T) {
	c := NewConfig(Table{"a": 1}, nil, map[domain.Market]Table{domain.MarketBTTS: {"a": -1}}, nil)
	assert.Error(t, c.Validate())
}
