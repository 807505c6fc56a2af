package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

// TriggerDedup implements domain.TriggerDedup with SET NX. A key stays
// claimed until its TTL lapses or Release is called.
type TriggerDedup struct {
	c *Client
}

// NewTriggerDedup creates a TriggerDedup backed by the given Client.
func NewTriggerDedup(c *Client) *TriggerDedup {
	return &TriggerDedup{c: c}
}

// First reports whether this call is the first to claim key inside ttl.
func (d *TriggerDedup) First(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.c.rdb.SetNX(ctx, d.c.key("dedup:", key), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: dedup %s: %w", key, err)
	}
	return ok, nil
}

// Release drops the claim on key.
func (d *TriggerDedup) Release(ctx context.Context, key string) error {
	if err := d.c.rdb.Del(ctx, d.c.key("dedup:", key)).Err(); err != nil {
		return fmt.Errorf("redis: release dedup %s: %w", key, err)
	}
	return nil
}

var _ domain.TriggerDedup = (*TriggerDedup)(nil)
