package notify

import (
	"sync"
	"time"
)

// Dedup remembers notification keys for a TTL so the same alert raised by
// every sweep is delivered once per window. It is safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // key -> first delivery in the current window
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
}

// NewDedup creates a Dedup that treats a key seen within ttl as a repeat.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// IsRepeat reports whether key was recorded within the TTL window. A new or
// expired key is recorded and false is returned. Expired entries are pruned
// on the way.
func (d *Dedup) IsRepeat(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, k)
		}
	}
	if _, ok := d.seen[key]; ok {
		return true
	}
	d.seen[key] = now
	return false
}

// Forget drops key so the next delivery goes through, e.g. after every
// sender failed.
func (d *Dedup) Forget(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
}
