package domain

import "time"

// PickResult is the grading outcome of one coupon leg.
type PickResult string

const (
	PickPending PickResult = "pending"
	PickWon     PickResult = "won"
	PickLost    PickResult = "lost"
	PickVoid    PickResult = "void"
)

// Terminal reports whether the result is final.
func (r PickResult) Terminal() bool {
	return r == PickWon || r == PickLost || r == PickVoid
}

// CouponStatus is the lifecycle state of a coupon.
type CouponStatus string

const (
	CouponPending   CouponStatus = "pending"
	CouponWon       CouponStatus = "won"
	CouponLost      CouponStatus = "lost"
	CouponPartial   CouponStatus = "partial"
	CouponCancelled CouponStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s CouponStatus) Terminal() bool {
	return s != CouponPending
}

// Pick is one leg of a coupon.
type Pick struct {
	ID        string     `json:"id"`
	CouponID  string     `json:"coupon_id"`
	Position  int        `json:"position"`
	FixtureID int64      `json:"fixture_id"`
	Market    Market     `json:"market"`
	Selection Label      `json:"selection"`
	Line      float64    `json:"line,omitempty"` // only for MarketOverUnder
	Odds      float64    `json:"odds"`
	Kickoff   time.Time  `json:"kickoff"`
	Result    PickResult `json:"result"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
}

// Coupon is an ordered set of picks owned by one user.
type Coupon struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Picks     []Pick  `json:"picks"`
	TotalOdds float64 `json:"total_odds"`
	// PotentialPoints is what the coupon earns if every pick wins.
	PotentialPoints float64      `json:"potential_points"`
	Status          CouponStatus `json:"status"`
	Points          float64      `json:"points"`
	CreatedAt       time.Time    `json:"created_at"`
	SettledAt       *time.Time   `json:"settled_at,omitempty"`
}

// LastKickoff returns the latest kickoff among the picks.
func (c Coupon) LastKickoff() time.Time {
	var last time.Time
	for _, p := range c.Picks {
		if p.Kickoff.After(last) {
			last = p.Kickoff
		}
	}
	return last
}
