package domain

import (
	"fmt"
	"time"
)

// PeriodAllTime is the period key of the cumulative leaderboard.
const PeriodAllTime = "alltime"

// MonthPeriod returns the monthly period key for t, e.g. "2026-03".
func MonthPeriod(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// ParsePeriod validates a period key.
func ParsePeriod(s string) (string, error) {
	if s == PeriodAllTime {
		return s, nil
	}
	if _, err := time.Parse("2006-01", s); err != nil {
		return "", fmt.Errorf("invalid period %q", s)
	}
	return s, nil
}

// LeaderboardEntry holds a user's derived totals for one period.
type LeaderboardEntry struct {
	UserID        string    `json:"user_id"`
	Period        string    `json:"period"`
	TotalPoints   float64   `json:"total_points"`
	TotalCoupons  int       `json:"total_coupons"`
	WonCoupons    int       `json:"won_coupons"`
	CurrentStreak int       `json:"current_streak"`
	BestStreak    int       `json:"best_streak"`
	PointsAt      time.Time `json:"points_at"` // when TotalPoints last changed
}

// WinRate returns won / total × 100, or 0 without coupons.
func (e LeaderboardEntry) WinRate() float64 {
	if e.TotalCoupons == 0 {
		return 0
	}
	return float64(e.WonCoupons) / float64(e.TotalCoupons) * 100
}

// RankedEntry is a leaderboard entry with its computed rank.
type RankedEntry struct {
	Rank int `json:"rank"`
	LeaderboardEntry
	WinRate float64 `json:"win_rate"`
}

// MonthlyPrize records the winner of a monthly leaderboard.
type MonthlyPrize struct {
	Period    string    `json:"period"`
	UserID    string    `json:"user_id"`
	Points    float64   `json:"points"`
	AwardedAt time.Time `json:"awarded_at"`
}
