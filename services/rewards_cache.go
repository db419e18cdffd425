// services/rewards_cache.go
package services

import (
	"sync"
	"time"

	"game-rewards-system/models"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultCacheTTL        = 5 * time.Minute
	DefaultCacheMaxEntries = 100
)

type cacheEntry struct {
	rewards  []models.Reward
	storedAt time.Time
}

// rewardCache holds fetch results keyed by filter signature. Expired entries
// read as misses; they are swept once the cache grows past maxEntries.
type rewardCache struct {
	mu         sync.Mutex
	clock      clockwork.Clock
	ttl        time.Duration
	maxEntries int
	entries    map[string]cacheEntry
	hits       int64
	misses     int64
}

func newRewardCache(clock clockwork.Clock, ttl time.Duration, maxEntries int) *rewardCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	return &rewardCache{clock: clock, ttl: ttl, maxEntries: maxEntries, entries: make(map[string]cacheEntry)}
}

func (c *rewardCache) get(key string) ([]models.Reward, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.clock.Since(e.storedAt) >= c.ttl {
		c.misses++
		return nil, false
	}
	c.hits++
	return cloneRewards(e.rewards), true
}

func (c *rewardCache) set(key string, rewards []models.Reward) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{rewards: cloneRewards(rewards), storedAt: c.clock.Now()}
	if len(c.entries) > c.maxEntries {
		c.purgeLocked()
	}
}

func (c *rewardCache) purgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeLocked()
}

func (c *rewardCache) purgeLocked() int {
	removed := 0
	for k, e := range c.entries {
		if c.clock.Since(e.storedAt) >= c.ttl {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *rewardCache) clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

func (c *rewardCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}

// CacheStats is a point-in-time view of the fetch cache.
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

func cloneRewards(in []models.Reward) []models.Reward {
	if in == nil {
		return nil
	}
	out := make([]models.Reward, len(in))
	copy(out, in)
	return out
}
