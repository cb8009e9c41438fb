package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyStableForSameRuleAndScope(t *testing.T) {
	assert.Equal(t, Key("rule-1", "10.0.0.1"), Key("rule-1", "10.0.0.1"))
}

func TestKeyDiffersByScope(t *testing.T) {
	assert.NotEqual(t, Key("rule-1", "10.0.0.1"), Key("rule-1", "10.0.0.2"))
}

func TestLocalCacheSuppressesWithinWindow(t *testing.T) {
	c := newLocalCache(10)
	assert.False(t, c.seen("k", time.Minute))
	c.mark("k", time.Minute)
	assert.True(t, c.seen("k", time.Minute))
}

func TestLocalCacheExpiresAfterWindow(t *testing.T) {
	c := newLocalCache(10)
	c.mark("k", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	assert.False(t, c.seen("k", time.Millisecond))
}

func TestLocalCacheEvictsOldestAtCapacity(t *testing.T) {
	c := newLocalCache(2)
	c.mark("a", time.Minute)
	c.mark("b", 2*time.Minute)
	c.mark("c", 3*time.Minute)
	assert.Len(t, c.items, 2)
}
