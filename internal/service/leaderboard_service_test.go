package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

func TestPeriod(t *testing.T) {
	svc := NewLeaderboardService(nil, nil, nil, nil, discardLogger())
	svc.now = func() time.Time { return time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		kind, month string
		want        string
		wantErr     bool
	}{
		{"", "", domain.PeriodAllTime, false},
		{"alltime", "2026-01", domain.PeriodAllTime, false},
		{"monthly", "", "2026-05", false},
		{"monthly", "2025-12", "2025-12", false},
		{"monthly", "alltime", "", true},
		{"monthly", "12-2025", "", true},
		{"weekly", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.kind+"/"+tt.month, func(t *testing.T) {
			got, err := svc.Period(tt.kind, tt.month)
			if tt.wantErr {
				assert.True(t, errors.Is(err, domain.ErrInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLeaderboard(t *testing.T) {
	ctx := context.Background()
	entries := new(mockLeaderboardStore)
	early := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	entries.On("List", ctx, domain.PeriodAllTime).Return([]domain.LeaderboardEntry{
		{UserID: "late", TotalPoints: 50, PointsAt: early.Add(time.Hour), TotalCoupons: 3, WonCoupons: 1},
		{UserID: "top", TotalPoints: 90, PointsAt: early},
		{UserID: "early", TotalPoints: 50, PointsAt: early},
	}, nil)

	svc := NewLeaderboardService(entries, nil, nil, nil, discardLogger())
	ranked, err := svc.Leaderboard(ctx, domain.PeriodAllTime, 0)
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	assert.Equal(t, "top", ranked[0].UserID)
	assert.Equal(t, "late", ranked[1].UserID)
	assert.Equal(t, 33.3, ranked[1].WinRate)
	assert.Equal(t, "early", ranked[2].UserID)
	assert.Equal(t, 3, ranked[2].Rank)

	top, err := svc.Leaderboard(ctx, domain.PeriodAllTime, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)

	me, err := svc.User(ctx, "late", domain.PeriodAllTime)
	require.NoError(t, err)
	assert.Equal(t, 2, me.Rank)

	_, err = svc.User(ctx, "nobody", domain.PeriodAllTime)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestAwardMonthlyPrize(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 0, 5, 0, 0, time.UTC)
	march := []domain.LeaderboardEntry{
		{UserID: "u2", Period: "2026-03", TotalPoints: 40},
		{UserID: "u1", Period: "2026-03", TotalPoints: 141.8},
	}
	want := domain.MonthlyPrize{Period: "2026-03", UserID: "u1", Points: 141.8, AwardedAt: now}

	t.Run("awards previous month", func(t *testing.T) {
		entries := new(mockLeaderboardStore)
		prizes := new(mockPrizeStore)
		audit := new(mockAudit)
		events := new(mockPublisher)
		entries.On("List", ctx, "2026-03").Return(march, nil)
		prizes.On("Award", ctx, want).Return(true, nil)
		audit.On("Log", ctx, "prize.awarded", mock.Anything).Return(nil)
		events.On("Publish", ctx, domain.ChannelPrize, mock.MatchedBy(func(ev domain.Event) bool {
			return ev.Type == domain.EventPrizeAwarded
		})).Return(nil)

		svc := NewLeaderboardService(entries, prizes, audit, events, discardLogger())
		got, ok, err := svc.AwardMonthlyPrize(ctx, now)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, want, got)
		events.AssertExpectations(t)
		audit.AssertExpectations(t)
	})

	t.Run("already awarded", func(t *testing.T) {
		entries := new(mockLeaderboardStore)
		prizes := new(mockPrizeStore)
		events := new(mockPublisher)
		entries.On("List", ctx, "2026-03").Return(march, nil)
		prizes.On("Award", ctx, want).Return(false, nil)

		svc := NewLeaderboardService(entries, prizes, nil, events, discardLogger())
		_, ok, err := svc.AwardMonthlyPrize(ctx, now)
		require.NoError(t, err)
		assert.False(t, ok)
		events.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("empty month", func(t *testing.T) {
		entries := new(mockLeaderboardStore)
		prizes := new(mockPrizeStore)
		entries.On("List", ctx, "2025-12").Return(nil, nil)

		svc := NewLeaderboardService(entries, prizes, nil, nil, discardLogger())
		_, ok, err := svc.AwardMonthlyPrize(ctx, time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.False(t, ok)
		prizes.AssertNotCalled(t, "Award", mock.Anything, mock.Anything)
	})
}

func TestStatsServiceValidatesDays(t *testing.T) {
	ctx := context.Background()
	preds := new(mockPredictionStore)
	svc := NewStatsService(preds)

	_, err := svc.Performance(ctx, 0)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	_, err = svc.Agents(ctx, 400)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	now := time.Date(2026, 3, 30, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	preds.On("ListSince", ctx, now.AddDate(0, 0, -7)).Return([]domain.ConsensusPrediction{
		{Market: domain.MarketBTTS, Confidence: 70, CreatedAt: now},
	}, nil)
	r, err := svc.Performance(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Total)
	assert.Equal(t, 1, r.Pending)
}
