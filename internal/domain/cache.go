package domain

import (
	"context"
	"time"
)

// ConsensusCache serves stored consensus reads without hitting the database.
type ConsensusCache interface {
	Set(ctx context.Context, fc FixtureConsensus) error
	Get(ctx context.Context, fixtureID int64) (FixtureConsensus, error)
	Invalidate(ctx context.Context, fixtureID int64) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// TriggerDedup remembers trigger keys for a TTL. First returns true only for
// the first caller of a key inside the window.
type TriggerDedup interface {
	First(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release forgets key so a failed trigger can be delivered again.
	Release(ctx context.Context, key string) error
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// Event channels published on the SignalBus.
const (
	ChannelConsensus   = "ch:consensus"
	ChannelSettlement  = "ch:settlement"
	ChannelCoupon      = "ch:coupon"
	ChannelPrize       = "ch:prize"
	StreamEvents       = "stream:events"
	EventConsensus     = "consensus.produced"
	EventFixtureSettle = "fixture.settled"
	EventCouponSettle  = "coupon.settled"
	EventPrizeAwarded  = "prize.awarded"
	EventStaleCoupons  = "coupons.stale"
)

// Event is the envelope published on the bus.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	FixtureID int64     `json:"fixture_id,omitempty"`
	Payload   any       `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}
