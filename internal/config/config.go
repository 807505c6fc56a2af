// Package config defines the top-level configuration for the consensus bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/consensusbot/internal/agent"
	"github.com/alanyoungcy/consensusbot/internal/domain"
	"github.com/alanyoungcy/consensusbot/internal/pipeline"
	"github.com/alanyoungcy/consensusbot/internal/scoring"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CONSENSUSBOT_* environment variables.
type Config struct {
	Postgres    PostgresConfig      `toml:"postgres"`
	Redis       RedisConfig         `toml:"redis"`
	S3          S3Config            `toml:"s3"`
	Server      ServerConfig        `toml:"server"`
	Notify      NotifyConfig        `toml:"notify"`
	Sportmonks  SportmonksConfig    `toml:"sportmonks"`
	Agents      AgentsConfig        `toml:"agents"`
	Weights     WeightsConfig       `toml:"weights"`
	Calibration CalibrationConfig   `toml:"calibration"`
	Scoring     scoring.Multipliers `toml:"scoring"`
	Settlement  SettlementConfig    `toml:"settlement"`
	Pipeline    PipelineConfig      `toml:"pipeline"`
	Mode        string              `toml:"mode"`
	LogLevel    string              `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN              string   `toml:"dsn"`
	Host             string   `toml:"host"`
	Port             int      `toml:"port"`
	Database         string   `toml:"database"`
	User             string   `toml:"user"`
	Password         string   `toml:"password"`
	SSLMode          string   `toml:"ssl_mode"`
	PoolMaxConns     int      `toml:"pool_max_conns"`
	PoolMinConns     int      `toml:"pool_min_conns"`
	StatementTimeout duration `toml:"statement_timeout"`
	RunMigrations    bool     `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	KeyPrefix    string   `toml:"key_prefix"`
	ConsensusTTL duration `toml:"consensus_ttl"`
}

// S3Config holds S3-compatible object storage parameters. Storage is only
// used by the archive job.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port          int      `toml:"port"`
	CORSOrigins   []string `toml:"cors_origins"`
	APIKey        string   `toml:"api_key"`
	WebhookSecret string   `toml:"webhook_secret"`
	// RateLimit is the number of requests a client may make per RateWindow.
	// Zero disables rate limiting.
	RateLimit       int      `toml:"rate_limit"`
	RateWindow      duration `toml:"rate_window"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	// RepeatWindow suppresses an identical notification sent again within
	// the window. Zero disables suppression.
	RepeatWindow duration `toml:"repeat_window"`
}

// SportmonksConfig configures the match facts and final score provider.
type SportmonksConfig struct {
	BaseURL     string   `toml:"base_url"`
	APIKey      string   `toml:"api_key"`
	RateLimit   float64  `toml:"rate_limit"`
	Timeout     duration `toml:"timeout"`
	FormMatches int      `toml:"form_matches"`
	HighLeagues []int64  `toml:"high_leagues"`
	// Derbies lists [home, away] team id pairs.
	Derbies [][]int64 `toml:"derbies"`
}

// AgentsConfig selects the opinion providers taking part in consensus.
type AgentsConfig struct {
	Enabled       []string            `toml:"enabled"`
	Timeout       duration            `toml:"timeout"`
	H2HMinMatches int                 `toml:"h2h_min_matches"`
	Remote        []RemoteAgentConfig `toml:"remote"`
}

// RemoteAgentConfig describes one HTTP opinion service.
type RemoteAgentConfig struct {
	ID        string   `toml:"id"`
	URL       string   `toml:"url"`
	APIKey    string   `toml:"api_key"`
	Markets   []string `toml:"markets"`
	RateLimit float64  `toml:"rate_limit"`
	Timeout   duration `toml:"timeout"`
}

// WeightsConfig holds weight table overrides keyed by agent id. Entries are
// layered over the built-in tables unless ReplaceDefaults is set.
type WeightsConfig struct {
	ReplaceDefaults bool                          `toml:"replace_defaults"`
	Global          map[string]float64            `toml:"global"`
	ByLeague        map[string]map[string]float64 `toml:"by_league"`
	ByMarket        map[string]map[string]float64 `toml:"by_market"`
	ByMatchType     map[string]map[string]float64 `toml:"by_match_type"`
}

// CalibrationConfig holds the agreement bands, caps and thresholds applied to
// raw consensus confidence.
type CalibrationConfig struct {
	LowAgreement     float64 `toml:"low_agreement"`
	HighAgreement    float64 `toml:"high_agreement"`
	LowCap           float64 `toml:"low_cap"`
	MidCap           float64 `toml:"mid_cap"`
	HighCap          float64 `toml:"high_cap"`
	BestBetThreshold float64 `toml:"best_bet_threshold"`
	StakeHigh        float64 `toml:"stake_high"`
	StakeMedium      float64 `toml:"stake_medium"`
}

// SettlementConfig controls the settlement engine and the scheduled sweep.
type SettlementConfig struct {
	TiePolicy        string   `toml:"tie_policy"`
	LockTTL          duration `toml:"lock_ttl"`
	LockRetries      int      `toml:"lock_retries"`
	DedupTTL         duration `toml:"dedup_ttl"`
	SweepEnabled     bool     `toml:"sweep_enabled"`
	SweepInterval    duration `toml:"sweep_interval"`
	SweepConcurrency int      `toml:"sweep_concurrency"`
	SweepBatchSize   int      `toml:"sweep_batch_size"`
	// SettleDelay is how long after kickoff a fixture becomes eligible for
	// the sweep.
	SettleDelay duration `toml:"settle_delay"`
	// StaleGrace is how long after its last kickoff a pending coupon is
	// reported as stale.
	StaleGrace duration `toml:"stale_grace"`
}

// PipelineConfig holds the scheduled archive and prize jobs.
type PipelineConfig struct {
	ArchiveEnabled       bool   `toml:"archive_enabled"`
	ArchiveCron          string `toml:"archive_cron"`
	ArchiveRetentionDays int    `toml:"archive_retention_days"`
	PrizeEnabled         bool   `toml:"prize_enabled"`
	PrizeCron            string `toml:"prize_cron"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:             "localhost",
			Port:             5432,
			Database:         "consensusbot",
			User:             "postgres",
			SSLMode:          "disable",
			PoolMaxConns:     10,
			PoolMinConns:     2,
			StatementTimeout: duration{30 * time.Second},
			RunMigrations:    true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			KeyPrefix:    "consensusbot",
			ConsensusTTL: duration{10 * time.Minute},
		},
		S3: S3Config{
			Enabled:        true,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "consensusbot-archive",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateWindow:      duration{time.Minute},
			ShutdownTimeout: duration{10 * time.Second},
		},
		Notify: NotifyConfig{
			Events:       []string{domain.EventFixtureSettle, domain.EventPrizeAwarded, domain.EventStaleCoupons},
			RepeatWindow: duration{time.Hour},
		},
		Sportmonks: SportmonksConfig{
			BaseURL:     "https://api.sportmonks.com/v3/football",
			RateLimit:   2,
			Timeout:     duration{15 * time.Second},
			FormMatches: 5,
		},
		Agents: AgentsConfig{
			Enabled:       []string{string(agent.FormID), string(agent.StatsID), string(agent.OddsID), string(agent.H2HID)},
			Timeout:       duration{45 * time.Second},
			H2HMinMatches: 3,
		},
		Calibration: CalibrationConfig{
			LowAgreement:     0.5,
			HighAgreement:    0.8,
			LowCap:           60,
			MidCap:           95,
			HighCap:          95,
			BestBetThreshold: 60,
			StakeHigh:        75,
			StakeMedium:      65,
		},
		Scoring: scoring.DefaultMultipliers(),
		Settlement: SettlementConfig{
			TiePolicy:        string(domain.TieAsUnder),
			LockTTL:          duration{2 * time.Minute},
			LockRetries:      5,
			DedupTTL:         duration{6 * time.Hour},
			SweepEnabled:     true,
			SweepInterval:    duration{10 * time.Minute},
			SweepConcurrency: 4,
			SweepBatchSize:   100,
			SettleDelay:      duration{105 * time.Minute},
			StaleGrace:       duration{24 * time.Hour},
		},
		Pipeline: PipelineConfig{
			ArchiveEnabled:       true,
			ArchiveCron:          "0 3 * * *",
			ArchiveRetentionDays: 90,
			PrizeEnabled:         true,
			PrizeCron:            "5 0 1 * *",
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"consensus": true,
	"settle":    true,
	"server":    true,
	"full":      true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ServesAPI reports whether the mode runs the HTTP API.
func (c *Config) ServesAPI() bool {
	switch strings.ToLower(c.Mode) {
	case "consensus", "server", "full":
		return true
	}
	return false
}

// RunsPipelines reports whether the mode runs the sweep, archive and prize
// jobs.
func (c *Config) RunsPipelines() bool {
	switch strings.ToLower(c.Mode) {
	case "settle", "full":
		return true
	}
	return false
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: consensus, settle, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Server
	if c.ServesAPI() {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	if c.Notify.RepeatWindow.Duration < 0 {
		errs = append(errs, "notify: repeat_window must not be negative")
	}

	// Sportmonks is the only source of final scores for the sweep.
	if c.RunsPipelines() && c.Settlement.SweepEnabled && c.Sportmonks.APIKey == "" {
		errs = append(errs, "sportmonks: api_key is required for mode "+c.Mode)
	}
	for i, d := range c.Sportmonks.Derbies {
		if len(d) != 2 {
			errs = append(errs, fmt.Sprintf("sportmonks: derbies[%d] must hold exactly two team ids", i))
		}
	}

	errs = append(errs, c.Agents.validate()...)

	if _, err := c.WeightModel(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.Calibration.Calibration().Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.Scoring.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	// Settlement
	if !domain.TotalsTiePolicy(c.Settlement.TiePolicy).Valid() {
		errs = append(errs, fmt.Sprintf("settlement: unknown tie_policy %q (valid: under, over, void)", c.Settlement.TiePolicy))
	}
	if c.Settlement.LockTTL.Duration <= 0 {
		errs = append(errs, "settlement: lock_ttl must be > 0")
	}
	if c.Settlement.LockRetries < 0 {
		errs = append(errs, "settlement: lock_retries must be >= 0")
	}
	if c.Settlement.SweepEnabled {
		if c.Settlement.SweepInterval.Duration <= 0 {
			errs = append(errs, "settlement: sweep_interval must be > 0")
		}
		if c.Settlement.SweepConcurrency < 1 {
			errs = append(errs, "settlement: sweep_concurrency must be >= 1")
		}
	}

	// Pipeline
	if c.Pipeline.ArchiveEnabled {
		if err := pipeline.ValidateCron(c.Pipeline.ArchiveCron); err != nil {
			errs = append(errs, fmt.Sprintf("pipeline: archive_cron: %v", err))
		}
		if c.Pipeline.ArchiveRetentionDays < 1 {
			errs = append(errs, "pipeline: archive_retention_days must be >= 1")
		}
		if c.RunsPipelines() && !c.S3.Enabled {
			errs = append(errs, "pipeline: archive requires s3.enabled")
		}
	}
	if c.Pipeline.PrizeEnabled {
		if err := pipeline.ValidateCron(c.Pipeline.PrizeCron); err != nil {
			errs = append(errs, fmt.Sprintf("pipeline: prize_cron: %v", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (a AgentsConfig) validate() []string {
	var errs []string
	if a.Timeout.Duration <= 0 {
		errs = append(errs, "agents: timeout must be > 0")
	}
	known := map[string]bool{
		string(agent.FormID):  true,
		string(agent.StatsID): true,
		string(agent.OddsID):  true,
		string(agent.H2HID):   true,
	}
	for i, r := range a.Remote {
		switch {
		case r.ID == "":
			errs = append(errs, fmt.Sprintf("agents: remote[%d]: id must not be empty", i))
			continue
		case known[r.ID]:
			errs = append(errs, fmt.Sprintf("agents: remote[%d]: duplicate agent id %q", i, r.ID))
		case r.URL == "":
			errs = append(errs, fmt.Sprintf("agents: remote %q: url must not be empty", r.ID))
		}
		for _, m := range r.Markets {
			if _, err := domain.ParseMarket(m); err != nil {
				errs = append(errs, fmt.Sprintf("agents: remote %q: %v", r.ID, err))
			}
		}
		known[r.ID] = true
	}
	if len(a.Enabled) == 0 {
		errs = append(errs, "agents: at least one agent must be enabled")
	}
	for _, id := range a.Enabled {
		if !known[id] {
			errs = append(errs, fmt.Sprintf("agents: enabled agent %q is neither built in nor a configured remote", id))
		}
	}
	return errs
}
