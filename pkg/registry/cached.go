package registry

import (
	"context"
	"sync"
	"time"
)

// Cached wraps a Client with a TTL read-through cache. Positive and negative
// registration answers are both cached; errors are never cached, so a flaky
// upstream stays fail-closed rather than poisoning the cache.
type Cached struct {
	upstream Client
	ttl      time.Duration
	clock    func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	registered bool
	role       Role
	fetchedAt  time.Time
}

// NewCached builds a read-through cache over upstream with the given TTL.
func NewCached(upstream Client, ttl time.Duration) *Cached {
	return &Cached{
		upstream: upstream,
		ttl:      ttl,
		clock:    time.Now,
		entries:  make(map[string]cacheEntry),
	}
}

// WithClock overrides the clock for tests.
func (c *Cached) WithClock(clock func() time.Time) *Cached {
	c.clock = clock
	return c
}

func (c *Cached) IsRegistered(ctx context.Context, ss58 string) (bool, error) {
	entry, err := c.lookup(ctx, ss58)
	if err != nil {
		return false, err
	}
	return entry.registered, nil
}

func (c *Cached) RoleOf(ctx context.Context, ss58 string) (Role, error) {
	entry, err := c.lookup(ctx, ss58)
	if err != nil {
		return RoleNone, err
	}
	return entry.role, nil
}

func (c *Cached) lookup(ctx context.Context, ss58 string) (cacheEntry, error) {
	now := c.clock()

	c.mu.Lock()
	entry, ok := c.entries[ss58]
	c.mu.Unlock()
	if ok && now.Sub(entry.fetchedAt) < c.ttl {
		return entry, nil
	}

	registered, err := c.upstream.IsRegistered(ctx, ss58)
	if err != nil {
		return cacheEntry{}, err
	}
	role := RoleNone
	if registered {
		role, err = c.upstream.RoleOf(ctx, ss58)
		if err != nil {
			return cacheEntry{}, err
		}
	}

	entry = cacheEntry{registered: registered, role: role, fetchedAt: now}
	c.mu.Lock()
	c.entries[ss58] = entry
	c.mu.Unlock()
	return entry, nil
}
