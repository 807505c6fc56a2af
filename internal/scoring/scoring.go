// Package scoring computes coupon points and folds settlements into
// leaderboard entries.
package scoring

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

// Multipliers is the points multiplier per pick count. FourPlus applies to
// every coupon with four or more picks.
type Multipliers struct {
	One      float64 `toml:"one"`
	Two      float64 `toml:"two"`
	Three    float64 `toml:"three"`
	FourPlus float64 `toml:"four_plus"`
}

// DefaultMultipliers returns the accumulator bonus table.
func DefaultMultipliers() Multipliers {
	return Multipliers{One: 10, Two: 15, Three: 25, FourPlus: 50}
}

// Validate requires a positive, strictly increasing table.
func (m Multipliers) Validate() error {
	if m.One <= 0 || m.One >= m.Two || m.Two >= m.Three || m.Three >= m.FourPlus {
		return fmt.Errorf("scoring: multipliers must be positive and strictly increasing, got %g/%g/%g/%g",
			m.One, m.Two, m.Three, m.FourPlus)
	}
	return nil
}

// For returns the multiplier for a pick count; 0 for an empty coupon.
func (m Multipliers) For(picks int) float64 {
	switch {
	case picks <= 0:
		return 0
	case picks == 1:
		return m.One
	case picks == 2:
		return m.Two
	case picks == 3:
		return m.Three
	default:
		return m.FourPlus
	}
}

// CombinedOdds multiplies decimal odds exactly and rounds to four places.
func CombinedOdds(odds []float64) float64 {
	if len(odds) == 0 {
		return 0
	}
	product := decimal.NewFromInt(1)
	for _, o := range odds {
		product = product.Mul(decimal.NewFromFloat(o))
	}
	return product.Round(4).InexactFloat64()
}

// Points returns round(totalOdds × multiplier(picks), 1).
func (m Multipliers) Points(totalOdds float64, picks int) float64 {
	p := decimal.NewFromFloat(totalOdds).Mul(decimal.NewFromFloat(m.For(picks)))
	return p.Round(1).InexactFloat64()
}

func addPoints(a, b float64) float64 {
	return decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).Round(1).InexactFloat64()
}

// ApplyCoupon folds one coupon settlement into a leaderboard entry. Won and
// partial coupons add points and extend the streak; lost coupons reset it.
// Cancelled and pending coupons leave the entry unchanged.
func ApplyCoupon(e domain.LeaderboardEntry, c domain.CouponSettlement, at time.Time) (domain.LeaderboardEntry, bool) {
	switch c.Status {
	case domain.CouponWon, domain.CouponPartial:
		e.TotalCoupons++
		e.WonCoupons++
		e.CurrentStreak++
		if e.CurrentStreak > e.BestStreak {
			e.BestStreak = e.CurrentStreak
		}
		if c.Points > 0 {
			e.TotalPoints = addPoints(e.TotalPoints, c.Points)
			e.PointsAt = at
		}
		return e, true
	case domain.CouponLost:
		e.TotalCoupons++
		e.CurrentStreak = 0
		return e, true
	default:
		return e, false
	}
}

// Rank orders entries by points descending. Equal points go to whoever reached
// the total most recently, then by user id. Ranks are recomputed on every read.
func Rank(entries []domain.LeaderboardEntry) []domain.RankedEntry {
	sorted := append([]domain.LeaderboardEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.TotalPoints != b.TotalPoints {
			return a.TotalPoints > b.TotalPoints
		}
		if !a.PointsAt.Equal(b.PointsAt) {
			return a.PointsAt.After(b.PointsAt)
		}
		return a.UserID < b.UserID
	})
	out := make([]domain.RankedEntry, len(sorted))
	for i, e := range sorted {
		out[i] = domain.RankedEntry{
			Rank:             i + 1,
			LeaderboardEntry: e,
			WinRate:          decimal.NewFromFloat(e.WinRate()).Round(1).InexactFloat64(),
		}
	}
	return out
}
