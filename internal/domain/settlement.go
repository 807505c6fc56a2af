package domain

import (
	"slices"
	"time"
)

// SettlementUnit is everything that depends on one fixture's final score:
// its predictions, the agent opinions behind them, and every coupon with at
// least one pick on the fixture (with all of that coupon's picks).
type SettlementUnit struct {
	FixtureID   int64
	Predictions []ConsensusPrediction
	Opinions    []AgentMarketOpinion
	Coupons     []Coupon
}

// PredictionGrade settles one consensus prediction.
type PredictionGrade struct {
	PredictionID int64  `json:"prediction_id"`
	FixtureID    int64  `json:"fixture_id"`
	Market       Market `json:"market"`
	Predicted    Label  `json:"predicted"`
	Actual       Label  `json:"actual"`
	Correct      bool   `json:"correct"`
}

// OpinionGrade settles one recorded agent opinion.
type OpinionGrade struct {
	FixtureID int64   `json:"fixture_id"`
	AgentID   AgentID `json:"agent_id"`
	Market    Market  `json:"market"`
	Predicted Label   `json:"predicted"`
	Correct   bool    `json:"correct"`
}

// PickGrade settles one coupon leg.
type PickGrade struct {
	PickID   string     `json:"pick_id"`
	CouponID string     `json:"coupon_id"`
	Result   PickResult `json:"result"`
}

// CouponSettlement moves a coupon to a terminal status.
type CouponSettlement struct {
	CouponID  string       `json:"coupon_id"`
	UserID    string       `json:"user_id"`
	Status    CouponStatus `json:"status"`
	Points    float64      `json:"points"`
	PickCount int          `json:"pick_count"`
	TotalOdds float64      `json:"total_odds"`
}

// SettlementBatch is the full set of writes for one fixture. It is applied
// atomically.
type SettlementBatch struct {
	FixtureID   int64              `json:"fixture_id"`
	Score       FinalScore         `json:"score"`
	Predictions []PredictionGrade  `json:"predictions"`
	Opinions    []OpinionGrade     `json:"opinions"`
	Picks       []PickGrade        `json:"picks"`
	Coupons     []CouponSettlement `json:"coupons"`
	SettledAt   time.Time          `json:"settled_at"`
}

// Empty reports whether the batch would write nothing.
func (b SettlementBatch) Empty() bool {
	return len(b.Predictions) == 0 && len(b.Opinions) == 0 && len(b.Picks) == 0 && len(b.Coupons) == 0
}

// CouponIDs returns the sorted, distinct coupons the batch touches, either
// through a graded pick or a planned coupon settlement.
func (b SettlementBatch) CouponIDs() []string {
	ids := make([]string, 0, len(b.Picks)+len(b.Coupons))
	for _, p := range b.Picks {
		ids = append(ids, p.CouponID)
	}
	for _, c := range b.Coupons {
		ids = append(ids, c.CouponID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// SettlementApplied reports what a store actually changed. Rows guarded by
// the terminal-state checks are not counted.
type SettlementApplied struct {
	Predictions int                `json:"predictions"`
	Opinions    int                `json:"opinions"`
	Picks       int                `json:"picks"`
	Coupons     []CouponSettlement `json:"coupons"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

// LeaderboardUpdater folds one coupon settlement into a leaderboard entry.
// It returns false when the entry must not change.
type LeaderboardUpdater func(entry LeaderboardEntry, c CouponSettlement, at time.Time) (LeaderboardEntry, bool)

// CouponSettler derives a coupon's outcome from its picks as committed. It
// returns false while any pick is still pending.
type CouponSettler func(c Coupon) (CouponSettlement, bool)

// SettlementRules are evaluated by a store inside the settlement transaction,
// against the rows it has locked rather than the planned snapshot.
type SettlementRules struct {
	Coupon      CouponSettler
	Leaderboard LeaderboardUpdater
}

// SettlementResult is returned by the settle trigger.
type SettlementResult struct {
	FixtureID      int64                 `json:"fixture_id"`
	Score          FinalScore            `json:"score"`
	Predictions    []ConsensusPrediction `json:"predictions"`
	Applied        SettlementApplied     `json:"applied"`
	AlreadySettled []Market              `json:"already_settled,omitempty"`
	PendingCoupons int                   `json:"pending_coupons"`
}
