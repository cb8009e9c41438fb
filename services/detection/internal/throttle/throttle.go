// Package throttle suppresses repeat alert emission for a rule that keeps
// matching the same scope (e.g. the same source IP) within its configured
// window, so a noisy rule doesn't flood the alerts topic with near-duplicate
// detections for the same underlying activity.
package throttle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/nightwatch-siem/nightwatch/pkg/repository"
)

// Throttler answers whether a (rule, fingerprint) pair is currently
// suppressed. State lives in Redis so every Detection replica shares the
// same suppression window, fronted by a short-lived local cache so a burst
// of matches for one hot fingerprint doesn't round-trip to Redis for each
// one.
type Throttler struct {
	cache *repository.RedisCache
	local *localCache
}

func New(cache *repository.RedisCache, localCapacity int) *Throttler {
	return &Throttler{
		cache: cache,
		local: newLocalCache(localCapacity),
	}
}

// Key hashes a rule ID and fingerprint scope value into the key under which
// suppression state is tracked.
func Key(ruleID, scope string) string {
	h := sha256.New()
	h.Write([]byte(ruleID))
	h.Write([]byte{0})
	h.Write([]byte(scope))
	return hex.EncodeToString(h.Sum(nil))
}

// Allow reports whether a match for this key should produce an alert. If
// the window has already been started for this key, it returns false and
// does not reset the window. On Redis errors it falls back to allowing the
// match rather than dropping detections during an outage.
func (t *Throttler) Allow(ctx context.Context, key string, window time.Duration) bool {
	if window <= 0 {
		return true
	}

	if t.local.seen(key, window) {
		return false
	}

	exists, err := t.cache.Exists(ctx, key)
	if err != nil {
		return true
	}
	if exists {
		remaining, err := t.cache.TTL(ctx, key)
		if err != nil || remaining <= 0 || remaining > window {
			remaining = window
		}
		t.local.mark(key, remaining)
		return false
	}

	_ = t.cache.Set(ctx, key, "1", window)
	t.local.mark(key, window)
	return true
}

type localCache struct {
	mu      sync.Mutex
	items   map[string]time.Time
	maxSize int
}

func newLocalCache(maxSize int) *localCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &localCache{items: make(map[string]time.Time), maxSize: maxSize}
}

func (c *localCache) seen(key string, window time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	expiresAt, ok := c.items[key]
	if !ok {
		return false
	}
	if time.Now().After(expiresAt) {
		delete(c.items, key)
		return false
	}
	return true
}

func (c *localCache) mark(key string, window time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) >= c.maxSize {
		c.evictOldest()
	}
	c.items[key] = time.Now().Add(window)
}

func (c *localCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	for k, v := range c.items {
		if oldestKey == "" || v.Before(oldestTime) {
			oldestKey, oldestTime = k, v
		}
	}
	if oldestKey != "" {
		delete(c.items, oldestKey)
	}
}
