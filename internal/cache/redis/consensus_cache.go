package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

const defaultConsensusTTL = 10 * time.Minute

// ConsensusCache implements domain.ConsensusCache. Each fixture's consensus
// is one JSON string under consensus:{fixtureID}.
type ConsensusCache struct {
	c   *Client
	ttl time.Duration
}

// NewConsensusCache creates a ConsensusCache. A non-positive ttl selects the
// default of ten minutes.
func NewConsensusCache(c *Client, ttl time.Duration) *ConsensusCache {
	if ttl <= 0 {
		ttl = defaultConsensusTTL
	}
	return &ConsensusCache{c: c, ttl: ttl}
}

func (cc *ConsensusCache) fixtureKey(id int64) string {
	return cc.c.key("consensus:", strconv.FormatInt(id, 10))
}

// Set stores fc until the TTL lapses or the fixture is settled or reset.
func (cc *ConsensusCache) Set(ctx context.Context, fc domain.FixtureConsensus) error {
	data, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("redis: marshal consensus %d: %w", fc.FixtureID, err)
	}
	if err := cc.c.rdb.Set(ctx, cc.fixtureKey(fc.FixtureID), data, cc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set consensus %d: %w", fc.FixtureID, err)
	}
	return nil
}

// Get returns domain.ErrNotFound on a cache miss.
func (cc *ConsensusCache) Get(ctx context.Context, fixtureID int64) (domain.FixtureConsensus, error) {
	data, err := cc.c.rdb.Get(ctx, cc.fixtureKey(fixtureID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.FixtureConsensus{}, domain.ErrNotFound
		}
		return domain.FixtureConsensus{}, fmt.Errorf("redis: get consensus %d: %w", fixtureID, err)
	}
	var fc domain.FixtureConsensus
	if err := json.Unmarshal(data, &fc); err != nil {
		return domain.FixtureConsensus{}, fmt.Errorf("redis: unmarshal consensus %d: %w", fixtureID, err)
	}
	return fc, nil
}

// Invalidate drops the cached consensus of a fixture.
func (cc *ConsensusCache) Invalidate(ctx context.Context, fixtureID int64) error {
	if err := cc.c.rdb.Del(ctx, cc.fixtureKey(fixtureID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate consensus %d: %w", fixtureID, err)
	}
	return nil
}

var _ domain.ConsensusCache = (*ConsensusCache)(nil)
