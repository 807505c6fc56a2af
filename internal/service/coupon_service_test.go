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
	"github.com/alanyoungcy/consensusbot/internal/scoring"
)

func TestCreateCoupon(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	kickoff := now.Add(5 * time.Hour)

	coupons := new(mockCouponStore)
	fixtures := new(mockFixtureStore)
	fixtures.On("Get", ctx, int64(3)).Return(domain.MatchFacts{FixtureID: 3, Kickoff: kickoff.Add(time.Hour)}, nil)
	coupons.On("Create", ctx, mock.MatchedBy(func(c domain.Coupon) bool {
		return c.UserID == "u1" && len(c.Picks) == 3 && c.Status == domain.CouponPending
	})).Return(nil)

	svc := NewCouponService(coupons, fixtures, scoring.DefaultMultipliers(), discardLogger())
	svc.now = func() time.Time { return now }

	c, err := svc.Create(ctx, "u1", []PickInput{
		{FixtureID: 1, Market: domain.MarketMatchResult, Selection: domain.LabelHome, Odds: 1.8, Kickoff: kickoff},
		{FixtureID: 2, Market: domain.MarketOverUnder, Selection: domain.LabelOver, Line: 3, Odds: 2.1, Kickoff: kickoff},
		{FixtureID: 3, Market: domain.MarketBTTS, Selection: domain.LabelYes, Line: 9, Odds: 1.5},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, 5.67, c.TotalOdds)
	assert.Equal(t, 141.8, c.PotentialPoints)
	assert.Equal(t, 3.0, c.Picks[1].Line)
	assert.Zero(t, c.Picks[2].Line, "line only applies to over_under")
	assert.Equal(t, kickoff.Add(time.Hour), c.Picks[2].Kickoff)
	for i, p := range c.Picks {
		assert.Equal(t, c.ID, p.CouponID)
		assert.Equal(t, i, p.Position)
		assert.Equal(t, domain.PickPending, p.Result)
	}
	coupons.AssertExpectations(t)
}

func TestCreateCouponValidation(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	good := PickInput{FixtureID: 1, Market: domain.MarketMatchResult, Selection: domain.LabelHome, Odds: 2, Kickoff: future}

	tooMany := make([]PickInput, MaxPicks+1)
	for i := range tooMany {
		tooMany[i] = good
		tooMany[i].FixtureID = int64(i + 1)
	}

	tests := []struct {
		name  string
		user  string
		picks []PickInput
	}{
		{"no user", "", []PickInput{good}},
		{"no picks", "u1", nil},
		{"too many picks", "u1", tooMany},
		{"wrong selection", "u1", []PickInput{{FixtureID: 1, Market: domain.MarketBTTS, Selection: domain.LabelHome, Odds: 2, Kickoff: future}}},
		{"unknown market", "u1", []PickInput{{FixtureID: 1, Market: "corners", Selection: domain.LabelOver, Odds: 2, Kickoff: future}}},
		{"odds not above one", "u1", []PickInput{{FixtureID: 1, Market: domain.MarketMatchResult, Selection: domain.LabelHome, Odds: 1, Kickoff: future}}},
		{"odd line", "u1", []PickInput{{FixtureID: 1, Market: domain.MarketOverUnder, Selection: domain.LabelOver, Line: 2.3, Odds: 2, Kickoff: future}}},
		{"kicked off", "u1", []PickInput{{FixtureID: 1, Market: domain.MarketMatchResult, Selection: domain.LabelHome, Odds: 2, Kickoff: now}}},
		{"unknown kickoff", "u1", []PickInput{{FixtureID: 99, Market: domain.MarketMatchResult, Selection: domain.LabelHome, Odds: 2}}},
		{"duplicate market", "u1", []PickInput{good, good}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coupons := new(mockCouponStore)
			fixtures := new(mockFixtureStore)
			fixtures.On("Get", ctx, int64(99)).Return(domain.MatchFacts{}, domain.ErrNotFound)

			svc := NewCouponService(coupons, fixtures, scoring.DefaultMultipliers(), discardLogger())
			svc.now = func() time.Time { return now }

			_, err := svc.Create(ctx, tt.user, tt.picks)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidCoupon))
			coupons.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestListByUserClampsLimit(t *testing.T) {
	ctx := context.Background()
	coupons := new(mockCouponStore)
	coupons.On("ListByUser", ctx, "u1", domain.ListOpts{Limit: 20}).Return([]domain.Coupon{{ID: "c1"}}, nil)

	svc := NewCouponService(coupons, nil, scoring.DefaultMultipliers(), discardLogger())
	cs, err := svc.ListByUser(ctx, "u1", domain.ListOpts{Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, cs, 1)
}
