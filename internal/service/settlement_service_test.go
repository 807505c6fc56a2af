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

func intPtr(v int) *int { return &v }

func TestHandleMatchEnded(t *testing.T) {
	ctx := context.Background()
	score := &domain.FinalScore{FixtureID: 5, HomeGoals: 2, AwayGoals: 1}

	tests := []struct {
		name      string
		first     bool
		settleErr error
		wantErr   error
		release   bool
	}{
		{name: "first delivery", first: true},
		{name: "duplicate delivery", first: false, wantErr: domain.ErrDuplicateTrigger},
		{name: "failed settlement releases key", first: true, settleErr: &domain.UnresolvedFixtureError{FixtureID: 5}, release: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settler := new(mockSettler)
			dedup := new(mockDedup)
			cache := new(mockCache)

			dedup.On("First", ctx, "trigger:match-ended:5:2-1", 10*time.Minute).Return(tt.first, nil)
			if tt.first {
				settler.On("Settle", ctx, int64(5), score).Return(domain.SettlementResult{FixtureID: 5}, tt.settleErr)
			}
			if tt.first && tt.settleErr == nil {
				cache.On("Invalidate", ctx, int64(5)).Return(nil)
			}
			if tt.release {
				dedup.On("Release", ctx, "trigger:match-ended:5:2-1").Return(nil)
			}

			svc := NewSettlementService(settler, nil, nil, dedup, cache, nil, nil, 0, discardLogger())
			_, err := svc.HandleMatchEnded(ctx, MatchEnded{FixtureID: 5, HomeGoals: intPtr(2), AwayGoals: intPtr(1)})

			switch {
			case tt.wantErr != nil:
				assert.True(t, errors.Is(err, tt.wantErr))
				settler.AssertNotCalled(t, "Settle", mock.Anything, mock.Anything, mock.Anything)
			case tt.settleErr != nil:
				assert.Equal(t, tt.settleErr, err)
			default:
				assert.NoError(t, err)
			}
			settler.AssertExpectations(t)
			dedup.AssertExpectations(t)
			cache.AssertExpectations(t)
		})
	}
}

func TestHandleMatchEndedWithoutScore(t *testing.T) {
	ctx := context.Background()
	settler := new(mockSettler)
	settler.On("Settle", ctx, int64(8), (*domain.FinalScore)(nil)).Return(domain.SettlementResult{FixtureID: 8}, nil)

	svc := NewSettlementService(settler, nil, nil, nil, nil, nil, nil, 0, discardLogger())
	res, err := svc.HandleMatchEnded(ctx, MatchEnded{FixtureID: 8})
	require.NoError(t, err)
	assert.Equal(t, int64(8), res.FixtureID)

	_, err = svc.HandleMatchEnded(ctx, MatchEnded{})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	preds := new(mockPredictionStore)
	locks := new(mockLocks)
	audit := new(mockAudit)
	cache := new(mockCache)

	unlocked := false
	locks.On("Acquire", ctx, "settle:fixture:12", 30*time.Second).Return(func() { unlocked = true }, nil)
	preds.On("ResetFixture", ctx, int64(12)).Return(int64(4), nil)
	cache.On("Invalidate", ctx, int64(12)).Return(nil)
	audit.On("Log", ctx, "fixture.reset", map[string]any{"fixture_id": int64(12), "records": int64(4), "actor": "ops"}).Return(nil)

	svc := NewSettlementService(new(mockSettler), preds, locks, nil, cache, audit, nil, 0, discardLogger())
	n, err := svc.Reset(ctx, 12, "ops")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.True(t, unlocked)
	preds.AssertExpectations(t)
	audit.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestResetLockHeld(t *testing.T) {
	ctx := context.Background()
	preds := new(mockPredictionStore)
	locks := new(mockLocks)
	locks.On("Acquire", ctx, "settle:fixture:12", 30*time.Second).Return(nil, domain.ErrLockHeld)

	svc := NewSettlementService(new(mockSettler), preds, locks, nil, nil, nil, nil, 0, discardLogger())
	_, err := svc.Reset(ctx, 12, "ops")
	assert.True(t, errors.Is(err, domain.ErrLockHeld))
	preds.AssertNotCalled(t, "ResetFixture", mock.Anything, mock.Anything)
}
