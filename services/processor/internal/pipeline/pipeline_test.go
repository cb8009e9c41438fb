package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightwatch-siem/nightwatch/pkg/bus"
	"github.com/nightwatch-siem/nightwatch/pkg/enrich"
	"github.com/nightwatch-siem/nightwatch/pkg/event"
)

type fakeDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeDedup() *fakeDedup { return &fakeDedup{seen: map[string]bool{}} }

func (f *fakeDedup) Seen(ctx context.Context, fingerprint string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen[fingerprint] {
		return true
	}
	f.seen[fingerprint] = true
	return false
}

type fakeIndexer struct {
	mu       sync.Mutex
	puts     []*event.Event
	failN    int
	attempts int
}

func (f *fakeIndexer) Put(ctx context.Context, ev *event.Event) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.failN {
		return "", errIndexUnavailable
	}
	f.puts = append(f.puts, ev)
	return ev.ID, nil
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

const errIndexUnavailable = simpleErr("index unavailable")

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPipeline(dedupC DedupChecker, indexer Indexer) *Pipeline {
	geoip, _ := enrich.NewGeoIPEnricher("", "", 10, time.Minute)
	return &Pipeline{
		Dedup:  dedupC,
		Index:  indexer,
		GeoIP:  geoip,
		DNS:    enrich.NewDNSEnricher(10, time.Hour, time.Second),
		Threat: enrich.NewThreatEnricher(),
		Users:  enrich.NewUserEnricher(enrich.UserDirectoryConfig{}, 10, time.Hour),
		Retry:  RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		Logger: noopLogger(),
	}
}

func rawMessage(t *testing.T, ev *event.Event) bus.Message {
	t.Helper()
	value, err := json.Marshal(ev)
	require.NoError(t, err)
	return bus.Message{Topic: bus.TopicRawLogs, Key: []byte(ev.Source), Value: value}
}

func TestHandleIndexesNormalizedEvent(t *testing.T) {
	indexer := &fakeIndexer{}
	p := newTestPipeline(newFakeDedup(), indexer)

	ev := &event.Event{ID: "evt-1", Source: "apache", Data: map[string]interface{}{"status": 200}}
	err := p.Handle(context.Background(), rawMessage(t, ev))
	require.NoError(t, err)

	require.Len(t, indexer.puts, 1)
	assert.Equal(t, "log", indexer.puts[0].EventType)
	assert.Equal(t, "default", indexer.puts[0].TenantID)
	assert.False(t, indexer.puts[0].Timestamp.IsZero())
	assert.NotEmpty(t, indexer.puts[0].Fingerprint)
}

func TestHandleDropsDuplicateFingerprint(t *testing.T) {
	indexer := &fakeIndexer{}
	dedupC := newFakeDedup()
	p := newTestPipeline(dedupC, indexer)

	ev := &event.Event{ID: "evt-1", Source: "apache", Data: map[string]interface{}{"status": 200}}
	require.NoError(t, p.Handle(context.Background(), rawMessage(t, ev)))

	ev2 := &event.Event{ID: "evt-2", Source: "apache", Data: map[string]interface{}{"status": 200}}
	require.NoError(t, p.Handle(context.Background(), rawMessage(t, ev2)))

	assert.Len(t, indexer.puts, 1)
}

func TestHandleRetriesThenSucceeds(t *testing.T) {
	indexer := &fakeIndexer{failN: 2}
	p := newTestPipeline(newFakeDedup(), indexer)

	ev := &event.Event{ID: "evt-1", Source: "apache", Data: map[string]interface{}{}}
	err := p.Handle(context.Background(), rawMessage(t, ev))
	require.NoError(t, err)
	assert.Len(t, indexer.puts, 1)
	assert.Equal(t, 3, indexer.attempts)
}

func TestHandleDeadLettersAfterExhaustingRetries(t *testing.T) {
	indexer := &fakeIndexer{failN: 100}
	p := newTestPipeline(newFakeDedup(), indexer)

	ev := &event.Event{ID: "evt-1", Source: "apache", Data: map[string]interface{}{}}
	err := p.Handle(context.Background(), rawMessage(t, ev))
	// No dead-letter producer configured: Handle surfaces an error so the
	// offset is left for redelivery rather than silently dropping the event.
	assert.Error(t, err)
	assert.Empty(t, indexer.puts)
}

func TestHandleDropsUnparseablePayload(t *testing.T) {
	indexer := &fakeIndexer{}
	p := newTestPipeline(newFakeDedup(), indexer)

	err := p.Handle(context.Background(), bus.Message{Value: []byte("not json")})
	assert.NoError(t, err)
	assert.Empty(t, indexer.puts)
}

func TestTapDetectionDropsWhenChannelFull(t *testing.T) {
	p := newTestPipeline(newFakeDedup(), &fakeIndexer{})
	p.DetectionOut = make(chan *event.Event, 1)
	p.DetectionOut <- &event.Event{ID: "filler"}

	p.tapDetection(&event.Event{ID: "dropped"})
	assert.Len(t, p.DetectionOut, 1)
}
