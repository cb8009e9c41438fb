// Package dedup fingerprints events and tracks which fingerprints have
// already been indexed within a sliding window, so the Processor can drop
// redundant re-deliveries from an at-least-once bus without re-indexing them
// (spec §4.5 dedup stage).
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/nightwatch-siem/nightwatch/pkg/event"
	"github.com/nightwatch-siem/nightwatch/pkg/repository"
)

// Fingerprint hashes the fields that make two deliveries of the same event
// indistinguishable: source, event type and the data payload. Timestamp and
// tenant are intentionally excluded so identical log lines delivered twice
// within the window collapse to one fingerprint even if the Collector
// stamped them microseconds apart.
func Fingerprint(ev *event.Event) string {
	payload, _ := json.Marshal(ev.Data)
	h := sha256.New()
	h.Write([]byte(ev.Source))
	h.Write([]byte{0})
	h.Write([]byte(ev.EventType))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// Checker answers whether a fingerprint has been seen within the window.
// It is backed by a Redis cache shared across Processor replicas, fronted
// by a local TTL cache so a hot-loop of repeated fingerprints (bursty
// retries, replayed batches) doesn't round-trip to Redis for every event.
type Checker struct {
	cache  *repository.RedisCache
	window time.Duration
	local  *localCache
}

func New(cache *repository.RedisCache, window time.Duration, localCapacity int) *Checker {
	return &Checker{
		cache:  cache,
		window: window,
		local:  newLocalCache(localCapacity, window),
	}
}

// Seen records the fingerprint if it is new and reports whether it was
// already present. On Redis errors it falls back to the local cache alone
// so a degraded Redis never blocks ingestion, at the cost of weaker
// cross-replica dedup during the outage.
func (c *Checker) Seen(ctx context.Context, fingerprint string) bool {
	if c.local.get(fingerprint) {
		return true
	}

	exists, err := c.cache.Exists(ctx, fingerprint)
	if err != nil {
		// Redis unavailable: rely on the local cache only for this event.
		c.local.set(fingerprint)
		return false
	}
	if exists {
		c.local.set(fingerprint)
		return true
	}

	_ = c.cache.Set(ctx, fingerprint, "1", c.window)
	c.local.set(fingerprint)
	return false
}

// localCache is a TTL cache bounding the fraction of dedup traffic that
// needs a Redis round trip, capacity-evicting the entry closest to expiry.
type localCache struct {
	mu      sync.Mutex
	items   map[string]time.Time
	ttl     time.Duration
	maxSize int
}

func newLocalCache(maxSize int, ttl time.Duration) *localCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &localCache{items: make(map[string]time.Time), ttl: ttl, maxSize: maxSize}
}

func (c *localCache) get(key string) bool {
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

func (c *localCache) set(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) >= c.maxSize {
		c.evictOldest()
	}
	c.items[key] = time.Now().Add(c.ttl)
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
