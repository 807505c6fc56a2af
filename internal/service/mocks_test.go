package service

import (
	"context"
	"errors"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

type mockFixtureStore struct{ mock.Mock }

func (m *mockFixtureStore) Upsert(ctx context.Context, f domain.MatchFacts) error {
	return m.Called(ctx, f).Error(0)
}

func (m *mockFixtureStore) Get(ctx context.Context, id int64) (domain.MatchFacts, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.MatchFacts), args.Error(1)
}

type mockPredictionStore struct{ mock.Mock }

func (m *mockPredictionStore) SaveConsensus(ctx context.Context, fc domain.FixtureConsensus, ops []domain.AgentMarketOpinion) ([]domain.ConsensusPrediction, []domain.Market, error) {
	args := m.Called(ctx, fc, ops)
	saved, _ := args.Get(0).([]domain.ConsensusPrediction)
	skipped, _ := args.Get(1).([]domain.Market)
	return saved, skipped, args.Error(2)
}

func (m *mockPredictionStore) ListByFixture(ctx context.Context, id int64) ([]domain.ConsensusPrediction, error) {
	args := m.Called(ctx, id)
	out, _ := args.Get(0).([]domain.ConsensusPrediction)
	return out, args.Error(1)
}

func (m *mockPredictionStore) ListOpinions(ctx context.Context, id int64) ([]domain.AgentMarketOpinion, error) {
	args := m.Called(ctx, id)
	out, _ := args.Get(0).([]domain.AgentMarketOpinion)
	return out, args.Error(1)
}

func (m *mockPredictionStore) ListSince(ctx context.Context, since time.Time) ([]domain.ConsensusPrediction, error) {
	args := m.Called(ctx, since)
	out, _ := args.Get(0).([]domain.ConsensusPrediction)
	return out, args.Error(1)
}

func (m *mockPredictionStore) ListSettledOpinionsSince(ctx context.Context, since time.Time) ([]domain.AgentMarketOpinion, error) {
	args := m.Called(ctx, since)
	out, _ := args.Get(0).([]domain.AgentMarketOpinion)
	return out, args.Error(1)
}

func (m *mockPredictionStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.ConsensusPrediction, error) {
	args := m.Called(ctx, before)
	out, _ := args.Get(0).([]domain.ConsensusPrediction)
	return out, args.Error(1)
}

func (m *mockPredictionStore) ResetFixture(ctx context.Context, id int64) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

type mockCache struct{ mock.Mock }

func (m *mockCache) Set(ctx context.Context, fc domain.FixtureConsensus) error {
	return m.Called(ctx, fc).Error(0)
}

func (m *mockCache) Get(ctx context.Context, id int64) (domain.FixtureConsensus, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.FixtureConsensus), args.Error(1)
}

func (m *mockCache) Invalidate(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, channel string, ev domain.Event) error {
	return m.Called(ctx, channel, ev).Error(0)
}

type mockCouponStore struct{ mock.Mock }

func (m *mockCouponStore) Create(ctx context.Context, c domain.Coupon) error {
	return m.Called(ctx, c).Error(0)
}

func (m *mockCouponStore) GetByID(ctx context.Context, id string) (domain.Coupon, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Coupon), args.Error(1)
}

func (m *mockCouponStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Coupon, error) {
	args := m.Called(ctx, userID, opts)
	out, _ := args.Get(0).([]domain.Coupon)
	return out, args.Error(1)
}

func (m *mockCouponStore) ListStale(ctx context.Context, cutoff time.Time) ([]domain.Coupon, error) {
	args := m.Called(ctx, cutoff)
	out, _ := args.Get(0).([]domain.Coupon)
	return out, args.Error(1)
}

func (m *mockCouponStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Coupon, error) {
	args := m.Called(ctx, before)
	out, _ := args.Get(0).([]domain.Coupon)
	return out, args.Error(1)
}

type mockLeaderboardStore struct{ mock.Mock }

func (m *mockLeaderboardStore) List(ctx context.Context, period string) ([]domain.LeaderboardEntry, error) {
	args := m.Called(ctx, period)
	out, _ := args.Get(0).([]domain.LeaderboardEntry)
	return out, args.Error(1)
}

func (m *mockLeaderboardStore) Get(ctx context.Context, userID, period string) (domain.LeaderboardEntry, error) {
	args := m.Called(ctx, userID, period)
	return args.Get(0).(domain.LeaderboardEntry), args.Error(1)
}

type mockPrizeStore struct{ mock.Mock }

func (m *mockPrizeStore) Award(ctx context.Context, p domain.MonthlyPrize) (bool, error) {
	args := m.Called(ctx, p)
	return args.Bool(0), args.Error(1)
}

func (m *mockPrizeStore) List(ctx context.Context) ([]domain.MonthlyPrize, error) {
	args := m.Called(ctx)
	out, _ := args.Get(0).([]domain.MonthlyPrize)
	return out, args.Error(1)
}

type mockAudit struct{ mock.Mock }

func (m *mockAudit) Log(ctx context.Context, event string, detail map[string]any) error {
	return m.Called(ctx, event, detail).Error(0)
}

func (m *mockAudit) List(ctx context.Context, prefix string, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	args := m.Called(ctx, prefix, opts)
	out, _ := args.Get(0).([]domain.AuditEntry)
	return out, args.Error(1)
}

type mockDedup struct{ mock.Mock }

func (m *mockDedup) First(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *mockDedup) Release(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type mockSettler struct{ mock.Mock }

func (m *mockSettler) Settle(ctx context.Context, id int64, score *domain.FinalScore) (domain.SettlementResult, error) {
	args := m.Called(ctx, id, score)
	return args.Get(0).(domain.SettlementResult), args.Error(1)
}

type mockLocks struct{ mock.Mock }

func (m *mockLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	args := m.Called(ctx, key, ttl)
	unlock, _ := args.Get(0).(func())
	return unlock, args.Error(1)
}

// stubAgent returns fixed opinions or a fixed error.
type stubAgent struct {
	id       domain.AgentID
	opinions []domain.AgentMarketOpinion
	err      error
	block    bool
	hang     <-chan struct{} // waits on hang, ignoring ctx
	shared   bool            // returns opinions without copying
}

func (a stubAgent) Agent() domain.Agent {
	return domain.Agent{ID: a.id, Markets: domain.ConsensusMarkets}
}

func (a stubAgent) Opine(ctx context.Context, _ domain.MatchFacts) ([]domain.AgentMarketOpinion, error) {
	if a.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if a.hang != nil {
		<-a.hang
		return nil, errors.New("answered late")
	}
	if a.shared {
		return a.opinions, a.err
	}
	out := append([]domain.AgentMarketOpinion(nil), a.opinions...)
	return out, a.err
}
