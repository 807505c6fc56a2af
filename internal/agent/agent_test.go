package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

func byMarket(ops []domain.AgentMarketOpinion) map[domain.Market]domain.AgentMarketOpinion {
	out := make(map[domain.Market]domain.AgentMarketOpinion, len(ops))
	for _, o := range ops {
		out[o.Market] = o
	}
	return out
}

func TestFormAgent(t *testing.T) {
	tests := []struct {
		name    string
		home    string
		away    string
		label   domain.Label
		conf    float64
		dcLabel domain.Label
	}{
		{"home far better", "WWWWW", "LLDLL", domain.LabelHome, 66.8, domain.LabelHomeDraw},
		{"away far better", "LDLLL", "WWWDW", domain.LabelAway, 64.4, domain.LabelDrawAway},
		{"balanced", "WDLWD", "WLWDL", domain.LabelDraw, 51.2, domain.LabelHomeDraw},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops, err := NewForm().Opine(context.Background(), domain.MatchFacts{
				FixtureID: 10,
				HomeForm:  domain.TeamForm{Form: tt.home},
				AwayForm:  domain.TeamForm{Form: tt.away},
			})
			require.NoError(t, err)
			m := byMarket(ops)
			assert.Equal(t, tt.label, m[domain.MarketMatchResult].Label)
			assert.Equal(t, tt.conf, m[domain.MarketMatchResult].Confidence)
			assert.Equal(t, tt.dcLabel, m[domain.MarketDoubleChance].Label)
			assert.Equal(t, FormID, m[domain.MarketMatchResult].AgentID)
			assert.Equal(t, int64(10), m[domain.MarketMatchResult].FixtureID)
		})
	}

	ops, err := NewForm().Opine(context.Background(), domain.MatchFacts{})
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestStatsAgent(t *testing.T) {
	f := domain.MatchFacts{
		HomeForm: domain.TeamForm{Over25Pct: 70, BTTSPct: 40, AvgScored: 1.2, AvgConced: 1.0},
		AwayForm: domain.TeamForm{Over25Pct: 60, BTTSPct: 45, AvgScored: 1.0, AvgConced: 1.1},
		H2H:      domain.HeadToHead{Over25Pct: 50, BTTSPct: 50},
	}
	ops, err := NewStats().Opine(context.Background(), f)
	require.NoError(t, err)
	m := byMarket(ops)

	// 70*.35 + 60*.35 + 50*.30 = 60.5
	assert.Equal(t, domain.LabelOver, m[domain.MarketOverUnder25].Label)
	assert.Equal(t, 56.4, m[domain.MarketOverUnder25].Confidence)
	// 40*.35 + 45*.35 + 50*.30 = 44.75
	assert.Equal(t, domain.LabelNo, m[domain.MarketBTTS].Label)
	assert.Equal(t, 56.2, m[domain.MarketBTTS].Confidence)
	// (1.2+1.1)/2 + (1.0+1.0)/2 = 2.15
	assert.Equal(t, domain.LabelUnder, m[domain.MarketOverUnder35].Label)

	ops, err = NewStats().Opine(context.Background(), domain.MatchFacts{})
	require.NoError(t, err)
	m = byMarket(ops)
	assert.NotContains(t, m, domain.MarketOverUnder35)
	assert.Equal(t, domain.LabelUnder, m[domain.MarketOverUnder25].Label, "unknown percentages default to 50")
}

func TestHeadToHeadAgent(t *testing.T) {
	a := NewHeadToHead(3)
	ops, err := a.Opine(context.Background(), domain.MatchFacts{H2H: domain.HeadToHead{TotalMatches: 2, HomeWins: 2}})
	require.NoError(t, err)
	assert.Empty(t, ops)

	ops, err = a.Opine(context.Background(), domain.MatchFacts{H2H: domain.HeadToHead{
		TotalMatches: 8, HomeWins: 2, Draws: 2, AwayWins: 4, Over25Pct: 75,
	}})
	require.NoError(t, err)
	m := byMarket(ops)
	assert.Equal(t, domain.LabelAway, m[domain.MarketMatchResult].Label)
	assert.Equal(t, 65.0, m[domain.MarketMatchResult].Confidence)
	assert.Equal(t, domain.LabelOver, m[domain.MarketOverUnder25].Label)
	assert.NotContains(t, m, domain.MarketBTTS)
}

func TestOddsAgent(t *testing.T) {
	ops, err := NewOdds().Opine(context.Background(), domain.MatchFacts{Odds: domain.MarketOdds{
		Home: 2.0, Draw: 3.5, Away: 4.0,
		Over25: 1.8, Under25: 2.0,
		BTTSYes: 1.9, BTTSNo: 1.9,
	}})
	require.NoError(t, err)
	m := byMarket(ops)

	assert.Equal(t, domain.LabelHome, m[domain.MarketMatchResult].Label)
	assert.Equal(t, 48.3, m[domain.MarketMatchResult].Confidence)
	assert.Equal(t, domain.LabelHomeDraw, m[domain.MarketDoubleChance].Label)
	assert.Equal(t, domain.LabelOver, m[domain.MarketOverUnder25].Label)
	assert.Equal(t, domain.LabelYes, m[domain.MarketBTTS].Label, "even prices go to the first label")
	assert.Equal(t, 50.0, m[domain.MarketBTTS].Confidence)
	assert.NotContains(t, m, domain.MarketOverUnder35)
}

func TestNoVig(t *testing.T) {
	p, ok := NoVig(1.9, 1.9)
	require.True(t, ok)
	assert.InDelta(t, 0.5, p[0], 1e-9)

	_, ok = NoVig(1.9, 0)
	assert.False(t, ok)
}

func TestRemoteAgent(t *testing.T) {
	var got remoteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"opinions":[
			{"market":"match_result","label":"HOME","confidence":71},
			{"market":"btts","label":"maybe","confidence":60},
			{"market":"over_under_35","label":"over","confidence":55},
			{"market":"match_result","label":"away","confidence":140}
		]}`))
	}))
	defer srv.Close()

	a := NewRemote(RemoteConfig{
		ID:      "masterStrategist",
		URL:     srv.URL,
		APIKey:  "secret",
		Markets: []domain.Market{domain.MarketMatchResult, domain.MarketBTTS},
	})
	ops, err := a.Opine(context.Background(), domain.MatchFacts{FixtureID: 42, HomeTeam: "A"})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, domain.LabelHome, ops[0].Label)
	assert.Equal(t, domain.AgentID("masterStrategist"), ops[0].AgentID)
	assert.Equal(t, int64(42), ops[0].FixtureID)
	assert.Equal(t, "A", got.Facts.HomeTeam)
}

func TestRemoteAgentErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		target error
	}{
		{"rate limited", http.StatusTooManyRequests, "", domain.ErrRateLimited},
		{"server error", http.StatusInternalServerError, "boom", nil},
		{"error body", http.StatusOK, `{"error":"model unavailable"}`, nil},
		{"bad json", http.StatusOK, `{`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewRemote(RemoteConfig{ID: "x", URL: srv.URL}).Opine(context.Background(), domain.MatchFacts{})
			require.Error(t, err)
			if tt.target != nil {
				assert.True(t, errors.Is(err, tt.target))
			}
		})
	}
}

func TestRemoteAgentHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewRemote(RemoteConfig{ID: "slow", URL: srv.URL}).Opine(ctx, domain.MatchFacts{})
	assert.Error(t, err)
}
