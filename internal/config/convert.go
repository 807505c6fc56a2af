package config

import (
	"fmt"

	"github.com/alanyoungcy/consensusbot/internal/agent"
	"github.com/alanyoungcy/consensusbot/internal/consensus"
	"github.com/alanyoungcy/consensusbot/internal/domain"
	"github.com/alanyoungcy/consensusbot/internal/pipeline"
	"github.com/alanyoungcy/consensusbot/internal/platform/sportmonks"
	"github.com/alanyoungcy/consensusbot/internal/settlement"
	"github.com/alanyoungcy/consensusbot/internal/weights"
)

// WeightModel builds the immutable weight configuration. File tables are
// merged key by key over the built-in tables unless ReplaceDefaults is set.
func (c *Config) WeightModel() (weights.Config, error) {
	w := c.Weights
	global, byLeague, byMarket, byMatchType := weights.DefaultTables()
	if w.ReplaceDefaults {
		global = weights.Table{}
		byLeague = map[string]weights.Table{}
		byMarket = map[domain.Market]weights.Table{}
		byMatchType = map[string]weights.Table{}
	}

	overlay(global, w.Global)
	for league, t := range w.ByLeague {
		if byLeague[league] == nil {
			byLeague[league] = weights.Table{}
		}
		overlay(byLeague[league], t)
	}
	for name, t := range w.ByMarket {
		m, err := domain.ParseMarket(name)
		if err != nil {
			return weights.Config{}, fmt.Errorf("weights: by_market: %w", err)
		}
		if byMarket[m] == nil {
			byMarket[m] = weights.Table{}
		}
		overlay(byMarket[m], t)
	}
	for mt, t := range w.ByMatchType {
		if byMatchType[mt] == nil {
			byMatchType[mt] = weights.Table{}
		}
		overlay(byMatchType[mt], t)
	}

	cfg := weights.NewConfig(global, byLeague, byMarket, byMatchType)
	if err := cfg.Validate(); err != nil {
		return weights.Config{}, err
	}
	return cfg, nil
}

func overlay(dst weights.Table, src map[string]float64) {
	for id, v := range src {
		dst[domain.AgentID(id)] = v
	}
}

// Calibration converts the section into calibrator bands.
func (c CalibrationConfig) Calibration() consensus.Calibration {
	return consensus.Calibration{
		LowAgreement:     c.LowAgreement,
		HighAgreement:    c.HighAgreement,
		LowCap:           c.LowCap,
		MidCap:           c.MidCap,
		HighCap:          c.HighCap,
		BestBetThreshold: c.BestBetThreshold,
		Stake:            consensus.StakeBands{High: c.StakeHigh, Medium: c.StakeMedium},
	}
}

// Engine returns the settlement engine configuration.
func (c *Config) Engine() settlement.Config {
	retries := c.Settlement.LockRetries
	if retries < 0 {
		retries = 0
	}
	return settlement.Config{
		TiePolicy:   domain.TotalsTiePolicy(c.Settlement.TiePolicy),
		Multipliers: c.Scoring,
		LockTTL:     c.Settlement.LockTTL.Duration,
		LockRetries: uint64(retries),
	}
}

// Sweep returns the scheduled sweep configuration.
func (s SettlementConfig) Sweep() pipeline.SweepConfig {
	return pipeline.SweepConfig{
		Interval:    s.SweepInterval.Duration,
		Concurrency: s.SweepConcurrency,
		BatchSize:   s.SweepBatchSize,
		SettleDelay: s.SettleDelay.Duration,
		StaleGrace:  s.StaleGrace.Duration,
	}
}

// Providers builds the enabled opinion providers in the configured order.
func (a AgentsConfig) Providers() ([]domain.OpinionProvider, error) {
	remotes := make(map[string]RemoteAgentConfig, len(a.Remote))
	for _, r := range a.Remote {
		remotes[r.ID] = r
	}

	out := make([]domain.OpinionProvider, 0, len(a.Enabled))
	for _, id := range a.Enabled {
		switch domain.AgentID(id) {
		case agent.FormID:
			out = append(out, agent.NewForm())
		case agent.StatsID:
			out = append(out, agent.NewStats())
		case agent.OddsID:
			out = append(out, agent.NewOdds())
		case agent.H2HID:
			out = append(out, agent.NewHeadToHead(a.H2HMinMatches))
		default:
			r, ok := remotes[id]
			if !ok {
				return nil, fmt.Errorf("agents: unknown agent %q", id)
			}
			rc, err := r.remoteConfig()
			if err != nil {
				return nil, err
			}
			out = append(out, agent.NewRemote(rc))
		}
	}
	return out, nil
}

func (r RemoteAgentConfig) remoteConfig() (agent.RemoteConfig, error) {
	markets := make([]domain.Market, 0, len(r.Markets))
	for _, s := range r.Markets {
		m, err := domain.ParseMarket(s)
		if err != nil {
			return agent.RemoteConfig{}, fmt.Errorf("agents: remote %q: %w", r.ID, err)
		}
		markets = append(markets, m)
	}
	return agent.RemoteConfig{
		ID:        r.ID,
		URL:       r.URL,
		APIKey:    r.APIKey,
		Markets:   markets,
		RateLimit: r.RateLimit,
		Timeout:   r.Timeout.Duration,
	}, nil
}

// Client returns the Sportmonks client configuration. Malformed derby pairs
// are skipped; Validate reports them.
func (s SportmonksConfig) Client() sportmonks.Config {
	derbies := make([][2]int64, 0, len(s.Derbies))
	for _, d := range s.Derbies {
		if len(d) == 2 {
			derbies = append(derbies, [2]int64{d[0], d[1]})
		}
	}
	return sportmonks.Config{
		BaseURL:     s.BaseURL,
		APIKey:      s.APIKey,
		RateLimit:   s.RateLimit,
		Timeout:     s.Timeout.Duration,
		FormMatches: s.FormMatches,
		HighLeagues: append([]int64(nil), s.HighLeagues...),
		Derbies:     derbies,
	}
}
