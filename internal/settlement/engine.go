package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/alanyoungcy/consensusbot/internal/domain"
	"github.com/alanyoungcy/consensusbot/internal/metrics"
	"github.com/alanyoungcy/consensusbot/internal/scoring"
)

// Publisher delivers settlement events.
type Publisher interface {
	Publish(ctx context.Context, channel string, ev domain.Event) error
}

// Config controls the engine.
type Config struct {
	TiePolicy   domain.TotalsTiePolicy
	Multipliers scoring.Multipliers
	LockTTL     time.Duration
	LockRetries uint64
}

// Engine settles fixtures one serializable unit at a time: it takes the
// fixture lock, loads every dependent record, grades them against a single
// final score and commits the grades together with the leaderboard changes.
type Engine struct {
	store   domain.SettlementStore
	scores  domain.ScoreProvider
	locks   domain.LockManager
	events  Publisher
	audit   domain.AuditStore
	metrics *metrics.Metrics
	planner Planner
	cfg     Config
	now     func() time.Time
	logger  *slog.Logger
}

// NewEngine creates an Engine. scores, locks, events, audit and m may be nil.
func NewEngine(
	store domain.SettlementStore,
	scores domain.ScoreProvider,
	locks domain.LockManager,
	events Publisher,
	audit domain.AuditStore,
	m *metrics.Metrics,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if !cfg.TiePolicy.Valid() {
		cfg.TiePolicy = domain.TieAsUnder
	}
	return &Engine{
		store:   store,
		scores:  scores,
		locks:   locks,
		events:  events,
		audit:   audit,
		metrics: m,
		planner: Planner{TiePolicy: cfg.TiePolicy, Multipliers: cfg.Multipliers},
		cfg:     cfg,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "settlement")),
	}
}

// LockKey is the distributed lock guarding a fixture's settlement unit.
func LockKey(fixtureID int64) string {
	return "settle:fixture:" + strconv.FormatInt(fixtureID, 10)
}

// Settle grades every record that depends on fixtureID. When score is nil the
// final score is fetched from the score provider.
//
// Settle is idempotent: terminal records are never touched again, so a second
// call with the same score changes nothing and reports the same state. Without
// a usable final score it returns a *domain.UnresolvedFixtureError and mutates
// nothing.
func (e *Engine) Settle(ctx context.Context, fixtureID int64, score *domain.FinalScore) (domain.SettlementResult, error) {
	start := time.Now()
	res, err := e.settle(ctx, fixtureID, score)
	status := "settled"
	var unresolved *domain.UnresolvedFixtureError
	switch {
	case errors.As(err, &unresolved):
		status = "unresolved"
	case err != nil:
		status = "error"
	case res.Applied.Predictions == 0 && res.Applied.Picks == 0 && len(res.Applied.Coupons) == 0:
		status = "noop"
	}
	e.metrics.RecordSettlement(status, time.Since(start))
	return res, err
}

func (e *Engine) settle(ctx context.Context, fixtureID int64, score *domain.FinalScore) (domain.SettlementResult, error) {
	final, err := e.resolveScore(ctx, fixtureID, score)
	if err != nil {
		return domain.SettlementResult{}, err
	}

	unlock, err := e.lock(ctx, fixtureID)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("settlement: lock fixture %d: %w", fixtureID, err)
	}
	defer unlock()

	unit, err := e.store.LoadUnit(ctx, fixtureID)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("settlement: load fixture %d: %w", fixtureID, err)
	}

	now := e.now().UTC()
	batch, already, err := e.planner.Plan(unit, final, now)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("settlement: plan fixture %d: %w", fixtureID, err)
	}
	for _, m := range already {
		w := &domain.AlreadySettledWarning{FixtureID: fixtureID, Market: m}
		e.logger.WarnContext(ctx, w.Error(),
			slog.Int64("fixture_id", fixtureID),
			slog.String("market", string(m)),
		)
	}
	e.metrics.RecordAlreadySettled(len(already))

	var applied domain.SettlementApplied
	if !batch.Empty() {
		applied, err = e.store.ApplySettlement(ctx, batch, domain.SettlementRules{
			Coupon:      e.planner.SettleCoupon,
			Leaderboard: scoring.ApplyCoupon,
		})
		if err != nil {
			return domain.SettlementResult{}, fmt.Errorf("settlement: apply fixture %d: %w", fixtureID, err)
		}
	}

	after, err := e.store.LoadUnit(ctx, fixtureID)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("settlement: reload fixture %d: %w", fixtureID, err)
	}
	res := domain.SettlementResult{
		FixtureID:      fixtureID,
		Score:          final,
		Predictions:    after.Predictions,
		Applied:        applied,
		AlreadySettled: already,
	}
	for _, c := range after.Coupons {
		if c.Status == domain.CouponPending {
			res.PendingCoupons++
		}
	}

	if applied.Predictions > 0 || applied.Picks > 0 || len(applied.Coupons) > 0 {
		e.afterSettle(ctx, batch, res)
	}
	return res, nil
}

func (e *Engine) resolveScore(ctx context.Context, fixtureID int64, score *domain.FinalScore) (domain.FinalScore, error) {
	if score == nil {
		if e.scores == nil {
			return domain.FinalScore{}, &domain.UnresolvedFixtureError{FixtureID: fixtureID, Reason: "no final score supplied"}
		}
		s, err := e.scores.FinalScore(ctx, fixtureID)
		if err != nil {
			var unresolved *domain.UnresolvedFixtureError
			if errors.As(err, &unresolved) {
				return domain.FinalScore{}, err
			}
			return domain.FinalScore{}, &domain.UnresolvedFixtureError{FixtureID: fixtureID, Reason: err.Error()}
		}
		score = &s
	}
	final := *score
	if final.FixtureID == 0 {
		final.FixtureID = fixtureID
	}
	if final.FixtureID != fixtureID || !final.Valid() {
		return domain.FinalScore{}, &domain.UnresolvedFixtureError{FixtureID: fixtureID, Reason: "malformed final score"}
	}
	return final, nil
}

// lock takes the fixture lock, retrying with exponential backoff while another
// worker holds it.
func (e *Engine) lock(ctx context.Context, fixtureID int64) (func(), error) {
	if e.locks == nil {
		return func() {}, nil
	}
	var unlock func()
	op := func() error {
		u, err := e.locks.Acquire(ctx, LockKey(fixtureID), e.cfg.LockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		unlock = u
		return nil
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 100 * time.Millisecond
	eb.MaxElapsedTime = e.cfg.LockTTL
	b := backoff.WithContext(backoff.WithMaxRetries(eb, e.cfg.LockRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return unlock, nil
}

func (e *Engine) afterSettle(ctx context.Context, batch domain.SettlementBatch, res domain.SettlementResult) {
	for _, g := range batch.Predictions {
		e.metrics.RecordPredictionSettled(string(g.Market), g.Correct)
	}
	for _, c := range res.Applied.Coupons {
		e.metrics.RecordCouponSettled(string(c.Status))
		_ = e.publish(ctx, domain.ChannelCoupon, domain.Event{
			Type:      domain.EventCouponSettle,
			FixtureID: res.FixtureID,
			Payload:   c,
		})
	}
	_ = e.publish(ctx, domain.ChannelSettlement, domain.Event{
		Type:      domain.EventFixtureSettle,
		FixtureID: res.FixtureID,
		Payload:   res,
	})

	e.logger.InfoContext(ctx, "fixture settled",
		slog.Int64("fixture_id", res.FixtureID),
		slog.Int("home_goals", res.Score.HomeGoals),
		slog.Int("away_goals", res.Score.AwayGoals),
		slog.Int("predictions", res.Applied.Predictions),
		slog.Int("picks", res.Applied.Picks),
		slog.Int("coupons", len(res.Applied.Coupons)),
		slog.Int("pending_coupons", res.PendingCoupons),
	)

	if e.audit != nil {
		err := e.audit.Log(ctx, domain.EventFixtureSettle, map[string]any{
			"fixture_id":  res.FixtureID,
			"home_goals":  res.Score.HomeGoals,
			"away_goals":  res.Score.AwayGoals,
			"predictions": res.Applied.Predictions,
			"opinions":    res.Applied.Opinions,
			"picks":       res.Applied.Picks,
			"coupons":     len(res.Applied.Coupons),
		})
		if err != nil {
			e.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}
}

func (e *Engine) publish(ctx context.Context, channel string, ev domain.Event) error {
	if e.events == nil {
		return nil
	}
	return e.events.Publish(ctx, channel, ev)
}
