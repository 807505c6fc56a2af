package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/consensusbot/internal/blob/s3"
	"github.com/alanyoungcy/consensusbot/internal/cache/redis"
	"github.com/alanyoungcy/consensusbot/internal/config"
	"github.com/alanyoungcy/consensusbot/internal/domain"
	"github.com/alanyoungcy/consensusbot/internal/events"
	"github.com/alanyoungcy/consensusbot/internal/metrics"
	"github.com/alanyoungcy/consensusbot/internal/notify"
	"github.com/alanyoungcy/consensusbot/internal/platform/sportmonks"
	"github.com/alanyoungcy/consensusbot/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	FixtureStore     *postgres.FixtureStore
	PredictionStore  *postgres.PredictionStore
	CouponStore      *postgres.CouponStore
	SettlementStore  *postgres.SettlementStore
	LeaderboardStore *postgres.LeaderboardStore
	PrizeStore       *postgres.PrizeStore
	AuditStore       *postgres.AuditStore

	// Caches
	ConsensusCache domain.ConsensusCache
	RateLimiter    domain.RateLimiter
	LockManager    domain.LockManager
	TriggerDedup   domain.TriggerDedup
	SignalBus      domain.SignalBus

	// Blob storage, nil unless archival runs in this mode.
	Archiver domain.Archiver

	// Score and facts provider, nil without an API key.
	Sportmonks *sportmonks.Client

	Notifier *notify.Notifier
	Events   *events.Publisher
	Metrics  *metrics.Metrics

	// Health pings keyed by dependency name.
	Pings map[string]func(context.Context) error
}

// needsS3 reports whether the mode archives to object storage.
func needsS3(cfg *config.Config) bool {
	return cfg.RunsPipelines() && cfg.Pipeline.ArchiveEnabled && cfg.S3.Enabled
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Metrics: metrics.New(),
		Pings:   make(map[string]func(context.Context) error),
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:              cfg.Postgres.DSN,
		Host:             cfg.Postgres.Host,
		Port:             cfg.Postgres.Port,
		Database:         cfg.Postgres.Database,
		User:             cfg.Postgres.User,
		Password:         cfg.Postgres.Password,
		SSLMode:          cfg.Postgres.SSLMode,
		MaxConns:         cfg.Postgres.PoolMaxConns,
		MinConns:         cfg.Postgres.PoolMinConns,
		StatementTimeout: cfg.Postgres.StatementTimeout.Duration,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)
	deps.Pings["postgres"] = pgClient.Ping

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.FixtureStore = postgres.NewFixtureStore(pool)
	deps.PredictionStore = postgres.NewPredictionStore(pool)
	deps.CouponStore = postgres.NewCouponStore(pool)
	deps.SettlementStore = postgres.NewSettlementStore(pool)
	deps.LeaderboardStore = postgres.NewLeaderboardStore(pool)
	deps.PrizeStore = postgres.NewPrizeStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
		KeyPrefix:  cfg.Redis.KeyPrefix,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.Pings["redis"] = redisClient.Ping

	deps.ConsensusCache = redis.NewConsensusCache(redisClient, cfg.Redis.ConsensusTTL.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.TriggerDedup = redis.NewTriggerDedup(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage (only when archival runs) ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Pings["s3"] = s3Client.Health
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewBucket(s3Client),
			deps.PredictionStore,
			deps.CouponStore,
			deps.AuditStore,
		)
	}

	// --- Score / facts provider ---
	if cfg.Sportmonks.APIKey != "" {
		deps.Sportmonks = sportmonks.NewClient(cfg.Sportmonks.Client())
	} else {
		logger.Warn("wire: sportmonks api key not set, facts and scores must be supplied by callers")
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger).
		SuppressRepeats(cfg.Notify.RepeatWindow.Duration)
	deps.Events = events.NewPublisher(deps.SignalBus, deps.Notifier, logger)

	return deps, cleanup, nil
}
