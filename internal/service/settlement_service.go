package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alanyoungcy/consensusbot/internal/domain"
	"github.com/alanyoungcy/consensusbot/internal/metrics"
	"github.com/alanyoungcy/consensusbot/internal/settlement"
)

// Settler settles one fixture.
type Settler interface {
	Settle(ctx context.Context, fixtureID int64, score *domain.FinalScore) (domain.SettlementResult, error)
}

// MatchEnded is the payload of the match-ended webhook. Goals are optional;
// without them the score comes from the score provider.
type MatchEnded struct {
	FixtureID int64  `json:"fixture_id"`
	HomeGoals *int   `json:"home_goals,omitempty"`
	AwayGoals *int   `json:"away_goals,omitempty"`
	State     string `json:"state,omitempty"`
}

// SettlementService fronts the settlement engine for API callers: trigger
// deduplication, read cache invalidation and explicit resets.
type SettlementService struct {
	engine      Settler
	predictions domain.PredictionStore
	locks       domain.LockManager
	dedup       domain.TriggerDedup
	cache       domain.ConsensusCache
	audit       domain.AuditStore
	metrics     *metrics.Metrics
	dedupTTL    time.Duration
	lockTTL     time.Duration
	logger      *slog.Logger
}

// NewSettlementService creates a SettlementService. locks, dedup, cache, audit
// and m may be nil.
func NewSettlementService(
	engine Settler,
	predictions domain.PredictionStore,
	locks domain.LockManager,
	dedup domain.TriggerDedup,
	cache domain.ConsensusCache,
	audit domain.AuditStore,
	m *metrics.Metrics,
	dedupTTL time.Duration,
	logger *slog.Logger,
) *SettlementService {
	if dedupTTL <= 0 {
		dedupTTL = 10 * time.Minute
	}
	return &SettlementService{
		engine:      engine,
		predictions: predictions,
		locks:       locks,
		dedup:       dedup,
		cache:       cache,
		audit:       audit,
		metrics:     m,
		dedupTTL:    dedupTTL,
		lockTTL:     30 * time.Second,
		logger:      logger.With(slog.String("component", "settlement_service")),
	}
}

// Settle settles a fixture and drops its cached consensus.
func (s *SettlementService) Settle(ctx context.Context, fixtureID int64, score *domain.FinalScore) (domain.SettlementResult, error) {
	if score != nil {
		score.FixtureID = fixtureID
	}
	res, err := s.engine.Settle(ctx, fixtureID, score)
	if err != nil {
		return res, err
	}
	s.invalidate(ctx, fixtureID)
	return res, nil
}

// HandleMatchEnded settles the fixture of a webhook delivery. A delivery seen
// within the dedup window returns domain.ErrDuplicateTrigger without touching
// anything; a failed settlement releases its key so the sender can retry.
func (s *SettlementService) HandleMatchEnded(ctx context.Context, ev MatchEnded) (domain.SettlementResult, error) {
	if ev.FixtureID <= 0 {
		return domain.SettlementResult{}, fmt.Errorf("settlement_service: webhook without fixture id: %w", domain.ErrInvalidInput)
	}

	var score *domain.FinalScore
	if ev.HomeGoals != nil && ev.AwayGoals != nil {
		score = &domain.FinalScore{FixtureID: ev.FixtureID, HomeGoals: *ev.HomeGoals, AwayGoals: *ev.AwayGoals, State: ev.State}
	}

	key := triggerKey(ev)
	if s.dedup != nil {
		first, err := s.dedup.First(ctx, key, s.dedupTTL)
		if err != nil {
			s.logger.WarnContext(ctx, "trigger dedup unavailable",
				slog.Int64("fixture_id", ev.FixtureID),
				slog.String("error", err.Error()),
			)
		} else if !first {
			s.metrics.RecordDuplicateTrigger("webhook")
			return domain.SettlementResult{}, domain.ErrDuplicateTrigger
		}
	}

	res, err := s.Settle(ctx, ev.FixtureID, score)
	if err != nil && s.dedup != nil {
		if rerr := s.dedup.Release(ctx, key); rerr != nil {
			s.logger.WarnContext(ctx, "trigger release failed",
				slog.String("key", key),
				slog.String("error", rerr.Error()),
			)
		}
	}
	return res, err
}

func triggerKey(ev MatchEnded) string {
	key := "trigger:match-ended:" + strconv.FormatInt(ev.FixtureID, 10)
	if ev.HomeGoals != nil && ev.AwayGoals != nil {
		key += ":" + strconv.Itoa(*ev.HomeGoals) + "-" + strconv.Itoa(*ev.AwayGoals)
	}
	return key
}

// Reset clears the settlement fields of a fixture's predictions so it can be
// analysed again. It takes the fixture's settlement lock and is audited.
func (s *SettlementService) Reset(ctx context.Context, fixtureID int64, actor string) (int64, error) {
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, settlement.LockKey(fixtureID), s.lockTTL)
		if err != nil {
			return 0, fmt.Errorf("settlement_service: reset fixture %d: %w", fixtureID, err)
		}
		defer unlock()
	}

	n, err := s.predictions.ResetFixture(ctx, fixtureID)
	if err != nil {
		return 0, fmt.Errorf("settlement_service: reset fixture %d: %w", fixtureID, err)
	}
	s.invalidate(ctx, fixtureID)

	if s.audit != nil {
		if err := s.audit.Log(ctx, "fixture.reset", map[string]any{
			"fixture_id": fixtureID,
			"records":    n,
			"actor":      actor,
		}); err != nil {
			s.logger.WarnContext(ctx, "audit log failed",
				slog.Int64("fixture_id", fixtureID),
				slog.String("error", err.Error()),
			)
		}
	}
	s.logger.InfoContext(ctx, "fixture reset",
		slog.Int64("fixture_id", fixtureID),
		slog.Int64("records", n),
		slog.String("actor", actor),
	)
	return n, nil
}

func (s *SettlementService) invalidate(ctx context.Context, fixtureID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, fixtureID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "consensus cache invalidate failed",
			slog.Int64("fixture_id", fixtureID),
			slog.String("error", err.Error()),
		)
	}
}
