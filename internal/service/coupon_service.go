package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/consensusbot/internal/domain"
	"github.com/alanyoungcy/consensusbot/internal/scoring"
	"github.com/alanyoungcy/consensusbot/internal/settlement"
)

// MaxPicks is the largest coupon accepted.
const MaxPicks = 10

// PickInput is one requested coupon leg.
type PickInput struct {
	FixtureID int64         `json:"fixture_id"`
	Market    domain.Market `json:"market"`
	Selection domain.Label  `json:"selection"`
	Line      float64       `json:"line,omitempty"`
	Odds      float64       `json:"odds"`
	Kickoff   time.Time     `json:"kickoff"`
}

// CouponService creates and reads coupons.
type CouponService struct {
	coupons     domain.CouponStore
	fixtures    domain.FixtureStore
	multipliers scoring.Multipliers
	now         func() time.Time
	logger      *slog.Logger
}

// NewCouponService creates a CouponService. fixtures may be nil, in which
// case every pick must carry its kickoff.
func NewCouponService(coupons domain.CouponStore, fixtures domain.FixtureStore, m scoring.Multipliers, logger *slog.Logger) *CouponService {
	return &CouponService{
		coupons:     coupons,
		fixtures:    fixtures,
		multipliers: m,
		now:         time.Now,
		logger:      logger.With(slog.String("component", "coupon_service")),
	}
}

// Create validates the picks and stores a pending coupon. Validation failures
// wrap domain.ErrInvalidCoupon.
func (s *CouponService) Create(ctx context.Context, userID string, picks []PickInput) (domain.Coupon, error) {
	if userID == "" {
		return domain.Coupon{}, fmt.Errorf("coupon_service: %w: missing user", domain.ErrInvalidCoupon)
	}
	if len(picks) == 0 || len(picks) > MaxPicks {
		return domain.Coupon{}, fmt.Errorf("coupon_service: %w: need 1 to %d picks, got %d",
			domain.ErrInvalidCoupon, MaxPicks, len(picks))
	}

	now := s.now().UTC()
	c := domain.Coupon{
		ID:        uuid.New().String(),
		UserID:    userID,
		Status:    domain.CouponPending,
		CreatedAt: now,
		Picks:     make([]domain.Pick, 0, len(picks)),
	}

	seen := make(map[string]bool, len(picks))
	odds := make([]float64, 0, len(picks))
	for i, in := range picks {
		p, err := s.pick(ctx, c.ID, i, in, now)
		if err != nil {
			return domain.Coupon{}, fmt.Errorf("coupon_service: pick %d: %w", i+1, err)
		}
		key := fmt.Sprintf("%d/%s", p.FixtureID, p.Market)
		if seen[key] {
			return domain.Coupon{}, fmt.Errorf("coupon_service: pick %d: %w: fixture %d market %s picked twice",
				i+1, domain.ErrInvalidCoupon, p.FixtureID, p.Market)
		}
		seen[key] = true
		c.Picks = append(c.Picks, p)
		odds = append(odds, p.Odds)
	}
	c.TotalOdds = scoring.CombinedOdds(odds)
	c.PotentialPoints = s.multipliers.Points(c.TotalOdds, len(c.Picks))

	if err := s.coupons.Create(ctx, c); err != nil {
		return domain.Coupon{}, fmt.Errorf("coupon_service: create: %w", err)
	}
	s.logger.InfoContext(ctx, "coupon created",
		slog.String("coupon_id", c.ID),
		slog.String("user_id", userID),
		slog.Int("picks", len(c.Picks)),
		slog.Float64("total_odds", c.TotalOdds),
	)
	return c, nil
}

func (s *CouponService) pick(ctx context.Context, couponID string, pos int, in PickInput, now time.Time) (domain.Pick, error) {
	if in.FixtureID <= 0 {
		return domain.Pick{}, fmt.Errorf("%w: missing fixture", domain.ErrInvalidCoupon)
	}
	if !in.Market.Accepts(in.Selection) {
		return domain.Pick{}, fmt.Errorf("%w: selection %q is not an outcome of market %q",
			domain.ErrInvalidCoupon, in.Selection, in.Market)
	}
	line := in.Line
	if in.Market == domain.MarketOverUnder {
		if !settlement.ValidLine(line) {
			return domain.Pick{}, fmt.Errorf("%w: invalid line %g", domain.ErrInvalidCoupon, line)
		}
	} else {
		line = 0
	}
	if math.IsNaN(in.Odds) || in.Odds <= 1 {
		return domain.Pick{}, fmt.Errorf("%w: odds must be above 1, got %g", domain.ErrInvalidCoupon, in.Odds)
	}

	kickoff := in.Kickoff
	if kickoff.IsZero() && s.fixtures != nil {
		f, err := s.fixtures.Get(ctx, in.FixtureID)
		switch {
		case err == nil:
			kickoff = f.Kickoff
		case !errors.Is(err, domain.ErrNotFound):
			return domain.Pick{}, fmt.Errorf("load fixture %d: %w", in.FixtureID, err)
		}
	}
	if kickoff.IsZero() {
		return domain.Pick{}, fmt.Errorf("%w: unknown kickoff for fixture %d", domain.ErrInvalidCoupon, in.FixtureID)
	}
	if !kickoff.After(now) {
		return domain.Pick{}, fmt.Errorf("%w: fixture %d already kicked off", domain.ErrInvalidCoupon, in.FixtureID)
	}

	return domain.Pick{
		ID:        uuid.New().String(),
		CouponID:  couponID,
		Position:  pos,
		FixtureID: in.FixtureID,
		Market:    in.Market,
		Selection: in.Selection,
		Line:      line,
		Odds:      in.Odds,
		Kickoff:   kickoff.UTC(),
		Result:    domain.PickPending,
	}, nil
}

// Get returns a coupon by id.
func (s *CouponService) Get(ctx context.Context, id string) (domain.Coupon, error) {
	c, err := s.coupons.GetByID(ctx, id)
	if err != nil {
		return domain.Coupon{}, fmt.Errorf("coupon_service: get %s: %w", id, err)
	}
	return c, nil
}

// ListByUser returns a user's coupons, newest first.
func (s *CouponService) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Coupon, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}
	cs, err := s.coupons.ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("coupon_service: list user %s: %w", userID, err)
	}
	return cs, nil
}
