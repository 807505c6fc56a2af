package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/consensusbot/internal/domain"
	"github.com/alanyoungcy/consensusbot/internal/weights"
)

// clearAliases neutralises platform env vars that would otherwise leak into
// the loaded config.
func clearAliases(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PORT", "DATABASE_URL", "SPORTMONKS_API_KEY", "CONSENSUSBOT_MODE", "CONSENSUSBOT_SPORTMONKS_API_KEY"} {
		t.Setenv(k, "")
	}
}

func validConfig() Config {
	cfg := Defaults()
	cfg.Sportmonks.APIKey = "sm-key"
	return cfg
}

func TestDefaultsValidateWithScoreProvider(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	bare := Defaults()
	err := bare.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sportmonks: api_key")
}

func TestLoad_FileAndEnv(t *testing.T) {
	clearAliases(t)

	const file = `
mode = "settle"

[settlement]
tie_policy = "void"
lock_ttl = "30s"

[agents]
enabled = ["form", "deepAnalysis"]

[[agents.remote]]
id = "deepAnalysis"
url = "http://agents.internal/deep"
markets = ["btts", "match_result"]
timeout = "20s"

[weights.global]
form = 2.0

[weights.by_market.btts]
stats = 1.5

[sportmonks]
derbies = [[1, 2], [3, 4]]
`
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(file), 0o600))

	t.Setenv("CONSENSUSBOT_SPORTMONKS_API_KEY", "sm-key")
	t.Setenv("CONSENSUSBOT_SERVER_PORT", "9001")
	t.Setenv("CONSENSUSBOT_NOTIFY_EVENTS", "fixture.settled, prize.awarded")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "settle", cfg.Mode)
	assert.Equal(t, "void", cfg.Settlement.TiePolicy)
	assert.Equal(t, 30*time.Second, cfg.Settlement.LockTTL.Duration)
	assert.Equal(t, "sm-key", cfg.Sportmonks.APIKey)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, []string{"fixture.settled", "prize.awarded"}, cfg.Notify.Events)

	// untouched sections keep their defaults
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 105*time.Minute, cfg.Settlement.SettleDelay.Duration)

	require.Len(t, cfg.Agents.Remote, 1)
	assert.Equal(t, 20*time.Second, cfg.Agents.Remote[0].Timeout.Duration)

	eng := cfg.Engine()
	assert.Equal(t, domain.TieAsVoid, eng.TiePolicy)
	assert.Equal(t, uint64(5), eng.LockRetries)

	sm := cfg.Sportmonks.Client()
	assert.Equal(t, [][2]int64{{1, 2}, {3, 4}}, sm.Derbies)

	providers, err := cfg.Agents.Providers()
	require.NoError(t, err)
	require.Len(t, providers, 2)
	assert.Equal(t, domain.AgentID("form"), providers[0].Agent().ID)
	assert.Equal(t, domain.AgentID("deepAnalysis"), providers[1].Agent().ID)
	assert.Equal(t, []domain.Market{domain.MarketBTTS, domain.MarketMatchResult}, providers[1].Agent().Markets)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	clearAliases(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults().Mode, cfg.Mode)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "trade" }, "unknown mode"},
		{"unknown log level", func(c *Config) { c.LogLevel = "trace" }, "unknown log_level"},
		{"tie policy", func(c *Config) { c.Settlement.TiePolicy = "push" }, "unknown tie_policy"},
		{"unknown agent", func(c *Config) { c.Agents.Enabled = []string{"oracle"} }, `enabled agent "oracle"`},
		{"no agents", func(c *Config) { c.Agents.Enabled = nil }, "at least one agent"},
		{"remote without url", func(c *Config) {
			c.Agents.Remote = []RemoteAgentConfig{{ID: "deep"}}
		}, "url must not be empty"},
		{"remote shadows builtin", func(c *Config) {
			c.Agents.Remote = []RemoteAgentConfig{{ID: "form", URL: "http://x"}}
		}, "duplicate agent id"},
		{"remote bad market", func(c *Config) {
			c.Agents.Remote = []RemoteAgentConfig{{ID: "deep", URL: "http://x", Markets: []string{"corners"}}}
		}, `unknown market "corners"`},
		{"negative weight", func(c *Config) {
			c.Weights.Global = map[string]float64{"form": -1}
		}, "negative weight"},
		{"bad weight market", func(c *Config) {
			c.Weights.ByMarket = map[string]map[string]float64{"corners": {"form": 1}}
		}, "by_market"},
		{"calibration caps", func(c *Config) { c.Calibration.HighCap = 99 }, "caps must satisfy"},
		{"scoring table", func(c *Config) { c.Scoring.Two = 5 }, "multipliers"},
		{"archive cron", func(c *Config) { c.Pipeline.ArchiveCron = "every day" }, "archive_cron"},
		{"prize cron", func(c *Config) { c.Pipeline.PrizeCron = "61 0 1 * *" }, "prize_cron"},
		{"telegram half set", func(c *Config) { c.Notify.TelegramToken = "t" }, "telegram_token"},
		{"derby pair", func(c *Config) { c.Sportmonks.Derbies = [][]int64{{1}} }, "derbies[0]"},
		{"lock ttl", func(c *Config) { c.Settlement.LockTTL.Duration = 0 }, "lock_ttl"},
		{"sweep concurrency", func(c *Config) { c.Settlement.SweepConcurrency = 0 }, "sweep_concurrency"},
		{"pool sizes", func(c *Config) { c.Postgres.PoolMinConns = 20 }, "pool_min_conns"},
		{"archive needs s3", func(c *Config) { c.S3.Enabled = false }, "archive requires s3"},
		{"server port", func(c *Config) { c.Server.Port = 0 }, "server: port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "bogus"
	cfg.Redis.Addr = ""
	cfg.Settlement.TiePolicy = "push"
	cfg.Notify.RepeatWindow.Duration = -time.Minute

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "tie_policy")
	assert.Contains(t, err.Error(), "repeat_window")
}

func TestValidate_ServerModeSkipsSweepRequirements(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "server"
	assert.NoError(t, cfg.Validate())
}

func TestWeightModel(t *testing.T) {
	t.Run("layers over defaults", func(t *testing.T) {
		cfg := validConfig()
		cfg.Weights.Global = map[string]float64{"form": 2}
		cfg.Weights.ByLeague = map[string]map[string]float64{"8": {"odds": 0.5}}

		w, err := cfg.WeightModel()
		require.NoError(t, err)

		got, ok := w.Lookup("form", "", "", "")
		require.True(t, ok)
		assert.InDelta(t, 2.0, got, 1e-9)

		got, ok = w.Lookup("odds", "8", "", "")
		require.True(t, ok)
		assert.InDelta(t, 0.5, got, 1e-9)

		def := weights.DefaultConfig()
		wantStats, _ := def.Lookup("stats", "", domain.MarketBTTS, domain.MatchTypeDerby)
		gotStats, _ := w.Lookup("stats", "", domain.MarketBTTS, domain.MatchTypeDerby)
		assert.InDelta(t, wantStats, gotStats, 1e-9)
	})

	t.Run("replace defaults", func(t *testing.T) {
		cfg := validConfig()
		cfg.Weights.ReplaceDefaults = true
		cfg.Weights.Global = map[string]float64{"form": 1}

		w, err := cfg.WeightModel()
		require.NoError(t, err)

		_, ok := w.Lookup("odds", "", domain.MarketMatchResult, domain.MatchTypeDerby)
		assert.False(t, ok)
		got, ok := w.Lookup("form", "", domain.MarketMatchResult, domain.MatchTypeDerby)
		require.True(t, ok)
		assert.InDelta(t, 1.0, got, 1e-9)
	})

	t.Run("does not leak into defaults", func(t *testing.T) {
		cfg := validConfig()
		cfg.Weights.Global = map[string]float64{"form": 9}
		_, err := cfg.WeightModel()
		require.NoError(t, err)

		got, _ := weights.DefaultConfig().Lookup("form", "", "", "")
		assert.InDelta(t, 1.05, got, 1e-9)
	})
}

func TestCalibrationMatchesDefaults(t *testing.T) {
	cal := Defaults().Calibration.Calibration()
	require.NoError(t, cal.Validate())
	assert.InDelta(t, 95.0, cal.MidCap, 1e-9)
	assert.InDelta(t, 75.0, cal.Stake.High, 1e-9)
}

func TestSweepConfig(t *testing.T) {
	sc := Defaults().Settlement.Sweep()
	assert.Equal(t, 10*time.Minute, sc.Interval)
	assert.Equal(t, 4, sc.Concurrency)
	assert.Equal(t, 24*time.Hour, sc.StaleGrace)
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "pw"
	cfg.Server.APIKey = "api"
	cfg.Server.WebhookSecret = "hook"
	cfg.Notify.DiscordWebhookURL = "https://discord/x"
	cfg.Agents.Remote = []RemoteAgentConfig{{ID: "deep", URL: "http://x", APIKey: "remote-key"}}
	cfg.Weights.Global = map[string]float64{"form": 1}

	out := RedactedConfig(&cfg)

	assert.Equal(t, redacted, out.Postgres.Password)
	assert.Equal(t, redacted, out.Server.APIKey)
	assert.Equal(t, redacted, out.Server.WebhookSecret)
	assert.Equal(t, redacted, out.Notify.DiscordWebhookURL)
	assert.Equal(t, redacted, out.Sportmonks.APIKey)
	assert.Equal(t, redacted, out.Agents.Remote[0].APIKey)
	assert.Empty(t, out.Redis.Password, "empty secrets stay empty")

	// the original is untouched
	assert.Equal(t, "pw", cfg.Postgres.Password)
	assert.Equal(t, "remote-key", cfg.Agents.Remote[0].APIKey)

	out.Weights.Global["form"] = 5
	out.Server.CORSOrigins[0] = "changed"
	assert.InDelta(t, 1.0, cfg.Weights.Global["form"], 1e-9)
	assert.NotEqual(t, "changed", cfg.Server.CORSOrigins[0])
}
