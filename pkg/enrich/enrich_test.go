package enrich

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeoIPEnricherNoDatabaseConfigured(t *testing.T) {
	e, err := NewGeoIPEnricher("", "", 100, time.Minute)
	require.NoError(t, err)

	loc, err := e.Lookup(context.Background(), "8.8.8.8")
	assert.NoError(t, err)
	assert.Nil(t, loc)
}

func TestTTLCacheGetSetAndExpiry(t *testing.T) {
	c := newTTLCache[string](10, 10*time.Millisecond)
	c.set("k", "v")
	assert.Equal(t, "v", c.get("k"))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, "", c.get("k"))
}

func TestThreatEnricherLoadsAndMatches(t *testing.T) {
	dir := t.TempDir()
	feedPath := filepath.Join(dir, "feed.json")
	records := []ThreatMatch{
		{IOC: "203.0.113.9", IOCType: "ip", ThreatType: "c2", Severity: "high"},
	}
	raw, err := json.Marshal(records)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(feedPath, raw, 0o600))

	e := NewThreatEnricher()
	require.NoError(t, e.LoadFile(feedPath))

	match, ok := e.Match(context.Background(), "ip", "203.0.113.9")
	assert.True(t, ok)
	assert.Equal(t, "c2", match.ThreatType)

	_, ok = e.Match(context.Background(), "ip", "203.0.113.10")
	assert.False(t, ok)
}

func TestThreatEnricherEmptyPathIsNoop(t *testing.T) {
	e := NewThreatEnricher()
	require.NoError(t, e.LoadFile(""))
	_, ok := e.Match(context.Background(), "ip", "1.1.1.1")
	assert.False(t, ok)
}
