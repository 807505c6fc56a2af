// Package server exposes the consensus, settlement and leaderboard API over
// HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/alanyoungcy/consensusbot/internal/domain"
	"github.com/alanyoungcy/consensusbot/internal/metrics"
	"github.com/alanyoungcy/consensusbot/internal/server/handler"
	"github.com/alanyoungcy/consensusbot/internal/server/middleware"
	"github.com/alanyoungcy/consensusbot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port          int
	CORSOrigins   []string
	APIKey        string // if empty, authentication is disabled
	WebhookSecret string // if empty, the webhook is unauthenticated
	RateLimit     int
	RateWindow    time.Duration
	// RequestTimeout bounds every API request except the WebSocket upgrade.
	RequestTimeout time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// A nil handler leaves its routes unregistered.
type Handlers struct {
	Health      *handler.HealthHandler
	Consensus   *handler.ConsensusHandler
	Settlement  *handler.SettlementHandler
	Coupons     *handler.CouponHandler
	Leaderboard *handler.LeaderboardHandler
	Stats       *handler.StatsHandler
	Pipeline    *handler.PipelineHandler
	Audit       *handler.AuditHandler
}

// Deps carries the shared infrastructure the router needs.
type Deps struct {
	Limiter domain.RateLimiter
	Metrics *metrics.Metrics
	Hub     *ws.Hub
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	logger     *slog.Logger
}

// NewServer creates a Server with every route registered.
func NewServer(cfg Config, handlers Handlers, deps Deps, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	r := NewRouter(cfg, handlers, deps, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		router:     r,
		logger:     logger,
	}
}

// NewRouter builds the chi router with the middleware chain applied.
func NewRouter(cfg Config, h Handlers, deps Deps, logger *slog.Logger) chi.Router {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(logger, deps.Metrics))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.Get("/metrics", deps.Metrics.Handler().ServeHTTP)
	if deps.Hub != nil {
		r.Get("/ws", deps.Hub.HandleWS)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(timeout))
		r.Use(middleware.RateLimit(deps.Limiter, cfg.RateLimit, cfg.RateWindow, logger))

		if h.Health != nil {
			r.Get("/health", h.Health.HealthCheck)
		}

		// Reads are public.
		if h.Consensus != nil {
			r.Get("/fixtures/{id}/consensus", h.Consensus.Get)
			r.Get("/fixtures/{id}/opinions", h.Consensus.Opinions)
		}
		if h.Coupons != nil {
			r.Get("/coupons/{id}", h.Coupons.Get)
			r.Get("/users/{id}/coupons", h.Coupons.ListByUser)
		}
		if h.Leaderboard != nil {
			r.Get("/leaderboard", h.Leaderboard.Leaderboard)
			r.Get("/users/{id}/rank", h.Leaderboard.UserRank)
			r.Get("/prizes", h.Leaderboard.Prizes)
		}
		if h.Stats != nil {
			r.Get("/stats/performance", h.Stats.Performance)
			r.Get("/stats/agents", h.Stats.Agents)
		}

		if h.Settlement != nil {
			r.With(middleware.WebhookSecret(cfg.WebhookSecret)).
				Post("/webhooks/match-ended", h.Settlement.MatchEnded)
		}

		// Writes require the API key.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.APIKey))

			if h.Consensus != nil {
				r.Post("/fixtures/{id}/consensus", h.Consensus.Produce)
			}
			if h.Settlement != nil {
				r.Post("/fixtures/{id}/settle", h.Settlement.Settle)
				r.Post("/admin/fixtures/{id}/reset", h.Settlement.Reset)
			}
			if h.Coupons != nil {
				r.Post("/coupons", h.Coupons.Create)
			}
			if h.Pipeline != nil {
				r.Post("/admin/sweep", h.Pipeline.TriggerSweep)
			}
			if h.Audit != nil {
				r.Get("/admin/audit", h.Audit.List)
			}
		})
	})

	return r
}

// Handler returns the root HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
