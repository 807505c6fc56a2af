package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CONSENSUSBOT_* environment variable overrides,
// and returns the final Config. An empty path skips the file. The returned
// Config has NOT been validated; the caller should invoke Config.Validate()
// after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CONSENSUSBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "CONSENSUSBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // platform alias
	setStr(&cfg.Postgres.Host, "CONSENSUSBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CONSENSUSBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CONSENSUSBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CONSENSUSBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CONSENSUSBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CONSENSUSBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CONSENSUSBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CONSENSUSBOT_POSTGRES_POOL_MIN_CONNS")
	setDuration(&cfg.Postgres.StatementTimeout, "CONSENSUSBOT_POSTGRES_STATEMENT_TIMEOUT")
	setBool(&cfg.Postgres.RunMigrations, "CONSENSUSBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CONSENSUSBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CONSENSUSBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CONSENSUSBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CONSENSUSBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CONSENSUSBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CONSENSUSBOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "CONSENSUSBOT_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.ConsensusTTL, "CONSENSUSBOT_REDIS_CONSENSUS_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CONSENSUSBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CONSENSUSBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CONSENSUSBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "CONSENSUSBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CONSENSUSBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CONSENSUSBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CONSENSUSBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CONSENSUSBOT_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "CONSENSUSBOT_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // platform alias
	setStringSlice(&cfg.Server.CORSOrigins, "CONSENSUSBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CONSENSUSBOT_SERVER_API_KEY")
	setStr(&cfg.Server.WebhookSecret, "CONSENSUSBOT_SERVER_WEBHOOK_SECRET")
	setInt(&cfg.Server.RateLimit, "CONSENSUSBOT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "CONSENSUSBOT_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CONSENSUSBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CONSENSUSBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CONSENSUSBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CONSENSUSBOT_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.RepeatWindow, "CONSENSUSBOT_NOTIFY_REPEAT_WINDOW")

	// ── Sportmonks ──
	setStr(&cfg.Sportmonks.BaseURL, "CONSENSUSBOT_SPORTMONKS_BASE_URL")
	setStr(&cfg.Sportmonks.APIKey, "CONSENSUSBOT_SPORTMONKS_API_KEY")
	setStr(&cfg.Sportmonks.APIKey, "SPORTMONKS_API_KEY") // compatibility alias
	setFloat64(&cfg.Sportmonks.RateLimit, "CONSENSUSBOT_SPORTMONKS_RATE_LIMIT")
	setDuration(&cfg.Sportmonks.Timeout, "CONSENSUSBOT_SPORTMONKS_TIMEOUT")

	// ── Agents ──
	setStringSlice(&cfg.Agents.Enabled, "CONSENSUSBOT_AGENTS_ENABLED")
	setDuration(&cfg.Agents.Timeout, "CONSENSUSBOT_AGENTS_TIMEOUT")

	// ── Settlement ──
	setStr(&cfg.Settlement.TiePolicy, "CONSENSUSBOT_SETTLEMENT_TIE_POLICY")
	setDuration(&cfg.Settlement.LockTTL, "CONSENSUSBOT_SETTLEMENT_LOCK_TTL")
	setInt(&cfg.Settlement.LockRetries, "CONSENSUSBOT_SETTLEMENT_LOCK_RETRIES")
	setBool(&cfg.Settlement.SweepEnabled, "CONSENSUSBOT_SETTLEMENT_SWEEP_ENABLED")
	setDuration(&cfg.Settlement.SweepInterval, "CONSENSUSBOT_SETTLEMENT_SWEEP_INTERVAL")
	setInt(&cfg.Settlement.SweepConcurrency, "CONSENSUSBOT_SETTLEMENT_SWEEP_CONCURRENCY")

	// ── Pipeline ──
	setBool(&cfg.Pipeline.ArchiveEnabled, "CONSENSUSBOT_PIPELINE_ARCHIVE_ENABLED")
	setStr(&cfg.Pipeline.ArchiveCron, "CONSENSUSBOT_PIPELINE_ARCHIVE_CRON")
	setInt(&cfg.Pipeline.ArchiveRetentionDays, "CONSENSUSBOT_PIPELINE_ARCHIVE_RETENTION_DAYS")
	setBool(&cfg.Pipeline.PrizeEnabled, "CONSENSUSBOT_PIPELINE_PRIZE_ENABLED")
	setStr(&cfg.Pipeline.PrizeCron, "CONSENSUSBOT_PIPELINE_PRIZE_CRON")

	// ── Top-level ──
	setStr(&cfg.Mode, "CONSENSUSBOT_MODE")
	setStr(&cfg.LogLevel, "CONSENSUSBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
