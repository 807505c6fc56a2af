package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

func TestThreePickExample(t *testing.T) {
	m := DefaultMultipliers()
	total := CombinedOdds([]float64{1.8, 2.1, 1.5})
	assert.Equal(t, 5.67, total)
	assert.Equal(t, 141.8, m.Points(total, 3))
}

func TestPointsMonotoneInPickCount(t *testing.T) {
	m := DefaultMultipliers()
	require.NoError(t, m.Validate())
	for _, odds := range []float64{1.01, 2.5, 5.67, 40} {
		prev := 0.0
		for picks := 1; picks <= 4; picks++ {
			p := m.Points(odds, picks)
			assert.Greater(t, p, prev, "odds=%g picks=%d", odds, picks)
			prev = p
		}
		assert.Equal(t, m.Points(odds, 4), m.Points(odds, 9))
	}
}

func TestMultipliers(t *testing.T) {
	m := DefaultMultipliers()
	tests := []struct {
		picks int
		want  float64
	}{
		{0, 0}, {1, 10}, {2, 15}, {3, 25}, {4, 50}, {12, 50},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.For(tt.picks), "picks=%d", tt.picks)
	}

	assert.Error(t, Multipliers{One: 10, Two: 10, Three: 25, FourPlus: 50}.Validate())
	assert.Error(t, Multipliers{}.Validate())
}

func TestCombinedOdds(t *testing.T) {
	assert.Equal(t, 0.0, CombinedOdds(nil))
	assert.Equal(t, 1.95, CombinedOdds([]float64{1.95}))
	assert.Equal(t, 3.8025, CombinedOdds([]float64{1.95, 1.95}))
}

func TestApplyCoupon(t *testing.T) {
	at := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	start := domain.LeaderboardEntry{UserID: "u1", TotalPoints: 10.2, TotalCoupons: 3, WonCoupons: 1, CurrentStreak: 1, BestStreak: 2}

	t.Run("won", func(t *testing.T) {
		e, changed := ApplyCoupon(start, domain.CouponSettlement{Status: domain.CouponWon, Points: 141.8}, at)
		require.True(t, changed)
		assert.Equal(t, 152.0, e.TotalPoints)
		assert.Equal(t, 4, e.TotalCoupons)
		assert.Equal(t, 2, e.WonCoupons)
		assert.Equal(t, 2, e.CurrentStreak)
		assert.Equal(t, 2, e.BestStreak)
		assert.Equal(t, at, e.PointsAt)
	})

	t.Run("won extends best streak", func(t *testing.T) {
		e := start
		e.CurrentStreak = 2
		e, _ = ApplyCoupon(e, domain.CouponSettlement{Status: domain.CouponWon, Points: 19.5}, at)
		assert.Equal(t, 3, e.BestStreak)
	})

	t.Run("partial counts as a win", func(t *testing.T) {
		e, changed := ApplyCoupon(start, domain.CouponSettlement{Status: domain.CouponPartial, Points: 18}, at)
		require.True(t, changed)
		assert.Equal(t, 2, e.WonCoupons)
		assert.Equal(t, 28.2, e.TotalPoints)
	})

	t.Run("lost resets streak", func(t *testing.T) {
		e, changed := ApplyCoupon(start, domain.CouponSettlement{Status: domain.CouponLost}, at)
		require.True(t, changed)
		assert.Equal(t, 0, e.CurrentStreak)
		assert.Equal(t, 2, e.BestStreak)
		assert.Equal(t, 4, e.TotalCoupons)
		assert.Equal(t, 1, e.WonCoupons)
		assert.Equal(t, 10.2, e.TotalPoints)
		assert.True(t, e.PointsAt.IsZero())
	})

	t.Run("cancelled and pending are no-ops", func(t *testing.T) {
		for _, s := range []domain.CouponStatus{domain.CouponCancelled, domain.CouponPending} {
			e, changed := ApplyCoupon(start, domain.CouponSettlement{Status: s}, at)
			assert.False(t, changed)
			assert.Equal(t, start, e)
		}
	})
}

func TestRank(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	entries := []domain.LeaderboardEntry{
		{UserID: "late", TotalPoints: 100, PointsAt: t0.Add(2 * time.Hour), TotalCoupons: 4, WonCoupons: 1},
		{UserID: "top", TotalPoints: 250.5, PointsAt: t0},
		{UserID: "early", TotalPoints: 100, PointsAt: t0.Add(time.Hour), TotalCoupons: 3, WonCoupons: 2},
		{UserID: "b", TotalPoints: 0},
		{UserID: "a", TotalPoints: 0},
	}
	ranked := Rank(entries)
	require.Len(t, ranked, 5)

	var order []string
	for i, r := range ranked {
		order = append(order, r.UserID)
		assert.Equal(t, i+1, r.Rank)
	}
	assert.Equal(t, []string{"top", "late", "early", "a", "b"}, order)
	assert.Equal(t, 25.0, ranked[1].WinRate)
	assert.Equal(t, 66.7, ranked[2].WinRate)
	assert.Equal(t, 0.0, ranked[3].WinRate)

	assert.Equal(t, "late", entries[0].UserID, "input must not be reordered")
}

func TestRankTieGoesToMostRecentTotal(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		entries []domain.LeaderboardEntry
		want    []string
	}{
		{
			name: "later achievement ranks higher",
			entries: []domain.LeaderboardEntry{
				{UserID: "first", TotalPoints: 40, PointsAt: t0},
				{UserID: "second", TotalPoints: 40, PointsAt: t0.Add(time.Minute)},
			},
			want: []string{"second", "first"},
		},
		{
			name: "same instant falls back to user id",
			entries: []domain.LeaderboardEntry{
				{UserID: "y", TotalPoints: 40, PointsAt: t0},
				{UserID: "x", TotalPoints: 40, PointsAt: t0},
			},
			want: []string{"x", "y"},
		},
		{
			name: "points outrank recency",
			entries: []domain.LeaderboardEntry{
				{UserID: "recent", TotalPoints: 39.9, PointsAt: t0.Add(time.Hour)},
				{UserID: "old", TotalPoints: 40, PointsAt: t0},
			},
			want: []string{"old", "recent"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, r := range Rank(tt.entries) {
				got = append(got, r.UserID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
