// Package pipeline implements the Processor's per-event handling: dedup,
// normalize, enrich, index-with-retry, detection handoff, and the bus
// commit gate that only advances once the index write is acknowledged
// (spec §4.5).
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/nightwatch-siem/nightwatch/pkg/bus"
	"github.com/nightwatch-siem/nightwatch/pkg/dedup"
	"github.com/nightwatch-siem/nightwatch/pkg/enrich"
	"github.com/nightwatch-siem/nightwatch/pkg/event"
	"github.com/nightwatch-siem/nightwatch/services/processor/internal/archive"
)

// Indexer is the storage dependency Handle writes normalized events to.
// Satisfied by *pkg/index.Store; narrowed to an interface here so tests can
// substitute a fake without a live Elasticsearch backend.
type Indexer interface {
	Put(ctx context.Context, ev *event.Event) (string, error)
}

// DedupChecker is the dedup dependency Handle consults before indexing.
// Satisfied by *pkg/dedup.Checker.
type DedupChecker interface {
	Seen(ctx context.Context, fingerprint string) bool
}

// ipFields and userFields are the dotted Data paths the enrich stage probes
// by convention; sources that populate differently-named fields simply go
// unenriched for that dimension rather than erroring.
var ipFields = []string{"source_ip", "dest_ip", "client_ip", "src_ip", "ip"}
var userFields = []string{"username", "user", "target_user", "principal"}

// RetryConfig bounds the Index-write backoff before an event is
// dead-lettered.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 5, BaseDelay: 200 * time.Millisecond, MaxDelay: 30 * time.Second}
}

// Pipeline wires together the Processor's collaborators. DetectionOut is an
// unbuffered-or-buffered tap the caller owns; Handle sends non-blocking so a
// slow/stalled Detection engine never backs up offset commits.
type Pipeline struct {
	Dedup   DedupChecker
	Index   Indexer
	GeoIP   *enrich.GeoIPEnricher
	DNS     *enrich.DNSEnricher
	Threat  *enrich.ThreatEnricher
	Users   *enrich.UserEnricher
	Archive *archive.Archiver

	DeadLetter      *bus.Producer
	DeadLetterTopic string

	// EnrichedOut publishes every indexed event to the enriched_logs topic so
	// the Detection engine can run as its own consumer group. DetectionOut is
	// the lower-latency in-process handoff for when Detection is embedded in
	// the same binary; both are best-effort and never block offset commit.
	EnrichedOut  *bus.Producer
	DetectionOut chan *event.Event
	Retry        RetryConfig

	Logger *slog.Logger
}

// Handle implements bus.Handler: it is called once per raw_logs record.
// Returning nil commits the offset; returning an error leaves it for
// redelivery.
func (p *Pipeline) Handle(ctx context.Context, msg bus.Message) error {
	var ev event.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		// Malformed payload can never succeed on redelivery either; log and
		// commit rather than wedge the partition on it forever.
		p.Logger.Error("processor: dropping unparseable record", "error", err, "topic", msg.Topic, "offset", msg.Offset)
		return nil
	}

	fingerprint := dedup.Fingerprint(&ev)
	if p.Dedup.Seen(ctx, fingerprint) {
		return nil
	}
	ev.Fingerprint = fingerprint

	p.normalize(&ev)
	p.enrich(ctx, &ev)

	if err := p.indexWithRetry(ctx, &ev, msg.Value); err != nil {
		return err
	}

	p.publishEnriched(ctx, &ev)
	p.tapDetection(&ev)
	return nil
}

func (p *Pipeline) publishEnriched(ctx context.Context, ev *event.Event) {
	if p.EnrichedOut == nil {
		return
	}
	value, err := json.Marshal(ev)
	if err != nil {
		p.Logger.Error("processor: marshal enriched event failed", "error", err)
		return
	}
	if err := p.EnrichedOut.Publish(ctx, bus.TopicEnrichedLogs, []byte(ev.Source), value); err != nil {
		p.Logger.Warn("processor: publish enriched event failed", "error", err)
	}
}

func (p *Pipeline) normalize(ev *event.Event) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	} else {
		ev.Timestamp = ev.Timestamp.UTC()
	}
	if ev.EventType == "" {
		ev.EventType = "log"
	}
	if ev.TenantID == "" {
		ev.TenantID = "default"
	}
	if ev.Data == nil {
		ev.Data = map[string]interface{}{}
	}
}

// enrich attaches GeoIP, reverse-DNS, threat-intel and directory context.
// A lookup that errors is non-fatal to the event: it never blocks indexing,
// but the failure is recorded under enriched.errors so an operator can tell
// "no data" apart from "the enricher is broken" (spec §4.5).
func (p *Pipeline) enrich(ctx context.Context, ev *event.Event) {
	enriched := map[string]interface{}{
		"processing_timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	var errs []string

	for _, field := range ipFields {
		ip, ok := ev.Get(field)
		ipStr, isStr := ip.(string)
		if !ok || !isStr || ipStr == "" {
			continue
		}

		if loc, err := p.GeoIP.Lookup(ctx, ipStr); err != nil {
			errs = append(errs, "geoip:"+field+":"+err.Error())
		} else if loc != nil {
			enriched["geoip."+field] = loc
		}

		if host, err := p.DNS.Resolve(ctx, ipStr); err != nil {
			errs = append(errs, "dns:"+field+":"+err.Error())
		} else if host != "" {
			enriched["rdns."+field] = host
		}

		if match, ok := p.Threat.Match(ctx, "ip", ipStr); ok {
			enriched["threat."+field] = match
		}
	}

	for _, field := range userFields {
		username, ok := ev.Get(field)
		userStr, isStr := username.(string)
		if !ok || !isStr || userStr == "" {
			continue
		}
		if info, err := p.Users.Lookup(ctx, userStr); err != nil {
			errs = append(errs, "directory:"+field+":"+err.Error())
		} else if info != nil {
			enriched["directory."+field] = info
		}
	}

	if len(errs) > 0 {
		enriched["errors"] = errs
		p.Logger.Warn("processor: enrichment errors", "source", ev.Source, "errors", errs)
	}

	ev.Enriched = enriched
}

func (p *Pipeline) indexWithRetry(ctx context.Context, ev *event.Event, rawValue []byte) error {
	retry := p.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryConfig()
	}

	var lastErr error
	for attempt := 0; attempt < retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoff(retry.BaseDelay, retry.MaxDelay, attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		_, err := p.Index.Put(ctx, ev)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	p.Logger.Error("processor: index write exhausted retries, dead-lettering", "source", ev.Source, "error", lastErr)
	return p.deadLetter(ctx, ev, rawValue, lastErr)
}

// backoff computes base*2^attempt capped at max, with up to 20% jitter.
func backoff(base, max time.Duration, attempt int) time.Duration {
	d := base << attempt
	if d <= 0 || d > max {
		d = max
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 5 + 1))
	return d + jitter
}

func (p *Pipeline) deadLetter(ctx context.Context, ev *event.Event, rawValue []byte, cause error) error {
	if p.Archive != nil {
		if err := p.Archive.Put(ctx, ev.Source, rawValue); err != nil {
			p.Logger.Error("processor: archive write failed", "error", err)
		}
	}

	if p.DeadLetter == nil {
		return fmt.Errorf("index write failed and no dead-letter sink configured: %w", cause)
	}

	dlqValue, _ := json.Marshal(map[string]interface{}{
		"event": rawValue,
		"error": cause.Error(),
	})
	if err := p.DeadLetter.Publish(ctx, p.DeadLetterTopic, []byte(ev.Source), dlqValue); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	return nil
}

func (p *Pipeline) tapDetection(ev *event.Event) {
	if p.DetectionOut == nil {
		return
	}
	select {
	case p.DetectionOut <- ev:
	default:
		p.Logger.Warn("processor: detection channel full, dropping tap", "source", ev.Source)
	}
}
