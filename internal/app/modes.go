package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/consensusbot/internal/consensus"
	"github.com/alanyoungcy/consensusbot/internal/domain"
	"github.com/alanyoungcy/consensusbot/internal/pipeline"
	"github.com/alanyoungcy/consensusbot/internal/server"
	"github.com/alanyoungcy/consensusbot/internal/server/handler"
	"github.com/alanyoungcy/consensusbot/internal/server/ws"
	"github.com/alanyoungcy/consensusbot/internal/service"
	"github.com/alanyoungcy/consensusbot/internal/settlement"
)

// wsReplay is how many stream events a new WebSocket client receives.
const wsReplay = 50

// services holds the service layer shared by every mode.
type services struct {
	consensus   *service.ConsensusService
	settlement  *service.SettlementService
	coupons     *service.CouponService
	leaderboard *service.LeaderboardService
	stats       *service.StatsService
}

// buildServices assembles the service layer from the wired dependencies.
func (a *App) buildServices(deps *Dependencies) (*services, error) {
	wm, err := a.cfg.WeightModel()
	if err != nil {
		return nil, fmt.Errorf("app: weight model: %w", err)
	}
	providers, err := a.cfg.Agents.Providers()
	if err != nil {
		return nil, fmt.Errorf("app: agents: %w", err)
	}

	// Typed nil pointers must not leak into the optional interfaces.
	var facts domain.FactsProvider
	var scores domain.ScoreProvider
	if deps.Sportmonks != nil {
		facts = deps.Sportmonks
		scores = deps.Sportmonks
	}

	consensusSvc := service.NewConsensusService(service.ConsensusDeps{
		Providers:   providers,
		Facts:       facts,
		Fixtures:    deps.FixtureStore,
		Predictions: deps.PredictionStore,
		Cache:       deps.ConsensusCache,
		Events:      deps.Events,
		Metrics:     deps.Metrics,
		Builder: consensus.Builder{
			Weights:     wm,
			Calibration: a.cfg.Calibration.Calibration(),
		},
		AgentTimeout: a.cfg.Agents.Timeout.Duration,
	}, a.logger)

	engine := settlement.NewEngine(
		deps.SettlementStore,
		scores,
		deps.LockManager,
		deps.Events,
		deps.AuditStore,
		deps.Metrics,
		a.cfg.Engine(),
		a.logger,
	)

	return &services{
		consensus: consensusSvc,
		settlement: service.NewSettlementService(
			engine,
			deps.PredictionStore,
			deps.LockManager,
			deps.TriggerDedup,
			deps.ConsensusCache,
			deps.AuditStore,
			deps.Metrics,
			a.cfg.Settlement.DedupTTL.Duration,
			a.logger,
		),
		coupons:     service.NewCouponService(deps.CouponStore, deps.FixtureStore, a.cfg.Scoring, a.logger),
		leaderboard: service.NewLeaderboardService(deps.LeaderboardStore, deps.PrizeStore, deps.AuditStore, deps.Events, a.logger),
		stats:       service.NewStatsService(deps.PredictionStore),
	}, nil
}

// buildOrchestrator assembles the scheduled pipelines. The sweeper is also
// returned so the API can trigger extra sweeps.
func (a *App) buildOrchestrator(deps *Dependencies, svcs *services) (*pipeline.Orchestrator, *pipeline.Sweeper) {
	var sweeper *pipeline.Sweeper
	if a.cfg.Settlement.SweepEnabled {
		sweeper = pipeline.NewSweeper(
			deps.SettlementStore,
			svcs.settlement,
			deps.CouponStore,
			deps.Events,
			deps.Metrics,
			a.cfg.Settlement.Sweep(),
			a.logger,
		)
	}

	var archiver *pipeline.Archiver
	if a.cfg.Pipeline.ArchiveEnabled && deps.Archiver != nil {
		archiver = pipeline.NewArchiver(deps.Archiver, a.cfg.Pipeline.ArchiveRetentionDays, a.logger)
	}

	var prizes *pipeline.PrizeJob
	if a.cfg.Pipeline.PrizeEnabled {
		prizes = pipeline.NewPrizeJob(svcs.leaderboard, a.logger)
	}

	orch := pipeline.NewOrchestrator(sweeper, archiver, prizes,
		a.cfg.Pipeline.ArchiveCron, a.cfg.Pipeline.PrizeCron, a.logger)
	return orch, sweeper
}

// ConsensusMode serves the consensus and stats API only.
func (a *App) ConsensusMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting consensus mode")

	svcs, err := a.buildServices(deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, server.Handlers{
		Health:    a.healthHandler(deps),
		Consensus: handler.NewConsensusHandler(svcs.consensus, a.logger),
		Stats:     handler.NewStatsHandler(svcs.stats, a.logger),
	}, nil)
	return g.Wait()
}

// SettleMode runs the settlement sweep, the archive cron and the monthly
// prize cron without an API.
func (a *App) SettleMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting settle mode")

	svcs, err := a.buildServices(deps)
	if err != nil {
		return err
	}
	orch, _ := a.buildOrchestrator(deps, svcs)
	return orch.Run(ctx)
}

// ServerMode serves the full API and the WebSocket hub. Sweeps are not
// scheduled, so the sweep trigger answers 503.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	svcs, err := a.buildServices(deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	hub := a.startHub(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps, a.apiHandlers(deps, svcs, nil), hub)
	return g.Wait()
}

// FullMode runs the API, the hub and every pipeline.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	svcs, err := a.buildServices(deps)
	if err != nil {
		return err
	}
	orch, sweeper := a.buildOrchestrator(deps, svcs)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return orch.Run(ctx)
	})
	hub := a.startHub(ctx, g, deps)

	var trigger handler.SweepTrigger
	if sweeper != nil {
		trigger = sweeper
	}
	a.startHTTPServer(ctx, g, deps, a.apiHandlers(deps, svcs, trigger), hub)
	return g.Wait()
}

func (a *App) healthHandler(deps *Dependencies) *handler.HealthHandler {
	checks := make(map[string]handler.Pinger, len(deps.Pings))
	for name, ping := range deps.Pings {
		checks[name] = ping
	}
	return handler.NewHealthHandler(a.cfg.Mode, checks, a.logger)
}

func (a *App) apiHandlers(deps *Dependencies, svcs *services, trigger handler.SweepTrigger) server.Handlers {
	return server.Handlers{
		Health:      a.healthHandler(deps),
		Consensus:   handler.NewConsensusHandler(svcs.consensus, a.logger),
		Settlement:  handler.NewSettlementHandler(svcs.settlement, a.logger),
		Coupons:     handler.NewCouponHandler(svcs.coupons, a.logger),
		Leaderboard: handler.NewLeaderboardHandler(svcs.leaderboard, a.logger),
		Stats:       handler.NewStatsHandler(svcs.stats, a.logger),
		Pipeline:    handler.NewPipelineHandler(trigger, a.logger),
		Audit:       handler.NewAuditHandler(deps.AuditStore, a.logger),
	}
}

// startHub runs the WebSocket hub under g.
func (a *App) startHub(ctx context.Context, g *errgroup.Group, deps *Dependencies) *ws.Hub {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		Replay:    wsReplay,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("ws hub: %w", err)
		}
		return nil
	})
	return hub
}

// startHTTPServer starts the API under g and shuts it down when ctx ends.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, handlers server.Handlers, hub *ws.Hub) {
	srv := server.NewServer(server.Config{
		Port:          a.cfg.Server.Port,
		CORSOrigins:   a.cfg.Server.CORSOrigins,
		APIKey:        a.cfg.Server.APIKey,
		WebhookSecret: a.cfg.Server.WebhookSecret,
		RateLimit:     a.cfg.Server.RateLimit,
		RateWindow:    a.cfg.Server.RateWindow.Duration,
	}, handlers, server.Deps{
		Limiter: deps.RateLimiter,
		Metrics: deps.Metrics,
		Hub:     hub,
	}, a.logger)

	if a.cfg.Server.APIKey == "" {
		a.logger.WarnContext(ctx, "server.api_key is empty; mutating routes are unauthenticated")
	}

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http server shutdown failed", slog.String("error", err.Error()))
			return err
		}
		return nil
	})
}
