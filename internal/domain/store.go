package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// FixtureStore keeps the match facts snapshot used by a consensus run.
type FixtureStore interface {
	Upsert(ctx context.Context, facts MatchFacts) error
	Get(ctx context.Context, fixtureID int64) (MatchFacts, error)
}

// PredictionStore persists consensus predictions and the agent opinions that
// produced them.
type PredictionStore interface {
	// SaveConsensus writes a new version of every prediction in fc. Markets
	// whose stored prediction is already settled are left untouched and
	// returned in skipped.
	SaveConsensus(ctx context.Context, fc FixtureConsensus, opinions []AgentMarketOpinion) (saved []ConsensusPrediction, skipped []Market, err error)
	ListByFixture(ctx context.Context, fixtureID int64) ([]ConsensusPrediction, error)
	ListOpinions(ctx context.Context, fixtureID int64) ([]AgentMarketOpinion, error)
	ListSince(ctx context.Context, since time.Time) ([]ConsensusPrediction, error)
	ListSettledOpinionsSince(ctx context.Context, since time.Time) ([]AgentMarketOpinion, error)
	ListSettledBefore(ctx context.Context, before time.Time) ([]ConsensusPrediction, error)
	// ResetFixture clears the settlement fields of a fixture's predictions
	// and opinions.
	ResetFixture(ctx context.Context, fixtureID int64) (int64, error)
}

// CouponStore persists coupons and their picks.
type CouponStore interface {
	Create(ctx context.Context, c Coupon) error
	GetByID(ctx context.Context, id string) (Coupon, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Coupon, error)
	// ListStale returns pending coupons whose last kickoff is before cutoff.
	ListStale(ctx context.Context, cutoff time.Time) ([]Coupon, error)
	ListSettledBefore(ctx context.Context, before time.Time) ([]Coupon, error)
}

// SettlementStore loads and commits per-fixture settlement units.
type SettlementStore interface {
	LoadUnit(ctx context.Context, fixtureID int64) (SettlementUnit, error)
	// ApplySettlement commits the batch in a single transaction. Every coupon
	// the batch touches is locked and settled from its committed picks, and
	// the leaderboard changes of the coupons it transitions are written with it.
	ApplySettlement(ctx context.Context, batch SettlementBatch, rules SettlementRules) (SettlementApplied, error)
	// ListSettleable returns fixtures that kicked off before cutoff and still
	// have unsettled predictions or pending picks, plus a fixture of every
	// pending coupon whose picks are all terminal.
	ListSettleable(ctx context.Context, cutoff time.Time, limit int) ([]int64, error)
}

// LeaderboardStore reads derived leaderboard entries.
type LeaderboardStore interface {
	List(ctx context.Context, period string) ([]LeaderboardEntry, error)
	Get(ctx context.Context, userID, period string) (LeaderboardEntry, error)
}

// PrizeStore records monthly prize winners.
type PrizeStore interface {
	// Award inserts the prize unless the period already has a winner.
	Award(ctx context.Context, prize MonthlyPrize) (bool, error)
	List(ctx context.Context) ([]MonthlyPrize, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	// List returns entries whose event starts with prefix, newest first.
	// An empty prefix matches every entry.
	List(ctx context.Context, prefix string, opts ListOpts) ([]AuditEntry, error)
}
