package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/consensusbot/internal/domain"
	"github.com/alanyoungcy/consensusbot/internal/events"
	"github.com/alanyoungcy/consensusbot/internal/metrics"
)

// SettleableLister finds fixtures whose dependents are due for settlement.
type SettleableLister interface {
	ListSettleable(ctx context.Context, cutoff time.Time, limit int) ([]int64, error)
}

// StaleLister finds coupons stuck pending after their last kickoff.
type StaleLister interface {
	ListStale(ctx context.Context, cutoff time.Time) ([]domain.Coupon, error)
}

// Settler settles one fixture, fetching its final score when score is nil.
type Settler interface {
	Settle(ctx context.Context, fixtureID int64, score *domain.FinalScore) (domain.SettlementResult, error)
}

// Publisher delivers pipeline events.
type Publisher interface {
	Publish(ctx context.Context, channel string, ev domain.Event) error
}

// SweepConfig controls the settlement sweep.
type SweepConfig struct {
	Interval    time.Duration
	Concurrency int
	BatchSize   int
	// SettleDelay is how long after kickoff a fixture becomes eligible;
	// earlier attempts would only find it unresolved.
	SettleDelay time.Duration
	// StaleGrace is how long a coupon may stay pending after its last
	// kickoff before it is reported.
	StaleGrace time.Duration
}

// SweepReport summarises one sweep.
type SweepReport struct {
	Fixtures   int `json:"fixtures"`
	Settled    int `json:"settled"`
	Unresolved int `json:"unresolved"`
	Failed     int `json:"failed"`
	Stale      int `json:"stale"`
}

// Sweeper periodically settles every fixture that has kicked off and still
// has pending predictions or picks. Fixtures are independent and settle in
// parallel; each one is serialised by the engine's fixture lock.
type Sweeper struct {
	lister  SettleableLister
	settler Settler
	stale   StaleLister
	events  Publisher
	metrics *metrics.Metrics
	cfg     SweepConfig
	trigger chan struct{}
	now     func() time.Time
	logger  *slog.Logger
}

// NewSweeper creates a Sweeper. stale, events and m may be nil.
func NewSweeper(lister SettleableLister, settler Settler, stale StaleLister, events Publisher, m *metrics.Metrics, cfg SweepConfig, logger *slog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 105 * time.Minute
	}
	if cfg.StaleGrace <= 0 {
		cfg.StaleGrace = 24 * time.Hour
	}
	return &Sweeper{
		lister:  lister,
		settler: settler,
		stale:   stale,
		events:  events,
		metrics: m,
		cfg:     cfg,
		trigger: make(chan struct{}, 1),
		now:     time.Now,
		logger:  logger.With(slog.String("component", "sweeper")),
	}
}

// Run performs one sweep. Per-fixture failures are logged and counted; only
// a failure to list work is returned.
func (s *Sweeper) Run(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	now := s.now().UTC()

	ids, err := s.lister.ListSettleable(ctx, now.Add(-s.cfg.SettleDelay), s.cfg.BatchSize)
	if err != nil {
		return report, fmt.Errorf("pipeline: list settleable: %w", err)
	}
	report.Fixtures = len(ids)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			_, err := s.settler.Settle(gctx, id, nil)

			mu.Lock()
			defer mu.Unlock()
			var unresolved *domain.UnresolvedFixtureError
			switch {
			case err == nil:
				report.Settled++
			case errors.As(err, &unresolved):
				report.Unresolved++
				s.logger.DebugContext(gctx, "fixture not finished yet",
					slog.Int64("fixture_id", id),
					slog.String("reason", unresolved.Reason),
				)
			default:
				report.Failed++
				s.logger.WarnContext(gctx, "fixture settlement failed",
					slog.Int64("fixture_id", id),
					slog.Bool("retryable", domain.IsRetryable(err)),
					slog.String("error", err.Error()),
				)
			}
			// One fixture never aborts the batch.
			return nil
		})
	}
	_ = g.Wait()

	report.Stale = s.reportStale(ctx, now)

	s.logger.InfoContext(ctx, "settlement sweep complete",
		slog.Int("fixtures", report.Fixtures),
		slog.Int("settled", report.Settled),
		slog.Int("unresolved", report.Unresolved),
		slog.Int("failed", report.Failed),
		slog.Int("stale_coupons", report.Stale),
	)
	return report, nil
}

// reportStale flags coupons pending past the grace period. It is a data
// quality signal for operators and never fails the sweep.
func (s *Sweeper) reportStale(ctx context.Context, now time.Time) int {
	if s.stale == nil {
		return 0
	}
	coupons, err := s.stale.ListStale(ctx, now.Add(-s.cfg.StaleGrace))
	if err != nil {
		s.logger.WarnContext(ctx, "stale coupon check failed", slog.String("error", err.Error()))
		return 0
	}
	s.metrics.SetStaleCoupons(len(coupons))
	if len(coupons) == 0 {
		return 0
	}

	ids := make([]string, len(coupons))
	for i, c := range coupons {
		ids[i] = c.ID
	}
	s.logger.WarnContext(ctx, "coupons pending past their last kickoff",
		slog.Int("count", len(coupons)),
		slog.Duration("grace", s.cfg.StaleGrace),
		slog.Any("coupon_ids", ids),
	)
	if s.events != nil {
		_ = s.events.Publish(ctx, domain.ChannelCoupon, domain.Event{
			Type:    domain.EventStaleCoupons,
			Payload: events.StaleCoupons{Count: len(coupons), Grace: s.cfg.StaleGrace, CouponIDs: ids},
		})
	}
	return len(coupons)
}

// RunLoop sweeps immediately and then every Interval until ctx is cancelled.
func (s *Sweeper) RunLoop(ctx context.Context) error {
	if _, err := s.Run(ctx); err != nil {
		s.logger.ErrorContext(ctx, "settlement sweep failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("settlement sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil {
				s.logger.ErrorContext(ctx, "settlement sweep failed", slog.String("error", err.Error()))
			}
		case <-s.trigger:
			s.logger.InfoContext(ctx, "settlement sweep triggered")
			if _, err := s.Run(ctx); err != nil {
				s.logger.ErrorContext(ctx, "settlement sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Trigger asks a running loop for one extra sweep. It never blocks; it
// returns false when a trigger is already pending.
func (s *Sweeper) Trigger() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}
