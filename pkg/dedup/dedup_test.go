package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nightwatch-siem/nightwatch/pkg/event"
)

func TestFingerprintStableForIdenticalPayload(t *testing.T) {
	a := &event.Event{Source: "apache", EventType: "log", Data: map[string]interface{}{"status": 200}}
	b := &event.Event{Source: "apache", EventType: "log", Data: map[string]interface{}{"status": 200}}
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprintIgnoresTimestampAndTenant(t *testing.T) {
	a := &event.Event{Source: "apache", EventType: "log", Timestamp: time.Now(), TenantID: "t1", Data: map[string]interface{}{"status": 200}}
	b := &event.Event{Source: "apache", EventType: "log", Timestamp: time.Now().Add(time.Hour), TenantID: "t2", Data: map[string]interface{}{"status": 200}}
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprintDiffersOnDataChange(t *testing.T) {
	a := &event.Event{Source: "apache", EventType: "log", Data: map[string]interface{}{"status": 200}}
	b := &event.Event{Source: "apache", EventType: "log", Data: map[string]interface{}{"status": 500}}
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}

func TestLocalCacheExpiresEntries(t *testing.T) {
	c := newLocalCache(10, 10*time.Millisecond)
	c.set("fp1")
	assert.True(t, c.get("fp1"))

	time.Sleep(20 * time.Millisecond)
	assert.False(t, c.get("fp1"))
}

func TestLocalCacheEvictsAtCapacity(t *testing.T) {
	c := newLocalCache(2, time.Minute)
	c.set("a")
	c.set("b")
	c.set("c")
	assert.LessOrEqual(t, len(c.items), 2)
}
