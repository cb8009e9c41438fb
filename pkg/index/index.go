// Package index is the storage adapter between the processing pipeline and
// the underlying Elasticsearch-compatible log store. It derives time-based
// index names, pre-declares an index template so new monthly indices inherit
// stable mappings, and exposes a narrow Put/Search contract so callers never
// see the connector's full query/bulk surface.
package index

import (
	"context"
	"fmt"
	"time"

	"github.com/nightwatch-siem/nightwatch/pkg/connector"
	"github.com/nightwatch-siem/nightwatch/pkg/connector/elastic"
	"github.com/nightwatch-siem/nightwatch/pkg/event"
)

const (
	indexPrefix   = "logs"
	templateName  = "logs-template"
	templatePattern = "logs-*"
)

// Store writes normalized events to time-partitioned indices and answers
// search/query requests over them.
type Store struct {
	client *elastic.Client
}

// New wraps an already-constructed elastic client.
func New(client *elastic.Client) *Store {
	return &Store{client: client}
}

// NewFromAddresses builds a Store from a list of Elasticsearch base URLs.
func NewFromAddresses(addresses []string) (*Store, error) {
	cfg := elastic.DefaultConfig()
	cfg.Addresses = addresses
	cfg.Base.Endpoint = firstOrEmpty(addresses)

	client, err := elastic.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("build index store: %w", err)
	}
	return &Store{client: client}, nil
}

func firstOrEmpty(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// EnsureTemplate registers the index template mapping stable event fields
// to typed fields and leaving data.* dynamic, so any future logs-YYYY.MM
// index created by a Put picks up consistent mappings without a prior
// CreateIndex call.
func (s *Store) EnsureTemplate(ctx context.Context) error {
	mappings := map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"id":         map[string]interface{}{"type": "keyword"},
				"source":     map[string]interface{}{"type": "keyword"},
				"event_type": map[string]interface{}{"type": "keyword"},
				"tenant_id":  map[string]interface{}{"type": "keyword"},
				"timestamp":  map[string]interface{}{"type": "date"},
				"ingested_at": map[string]interface{}{"type": "date"},
				"fingerprint": map[string]interface{}{"type": "keyword"},
				"data": map[string]interface{}{
					"type":    "object",
					"dynamic": true,
				},
				"enriched": map[string]interface{}{
					"type":    "object",
					"dynamic": true,
				},
			},
		},
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 1,
		},
	}

	return s.client.PutIndexTemplate(ctx, templateName, templatePattern, mappings)
}

// Connect establishes (and health-checks) the underlying connection.
func (s *Store) Connect(ctx context.Context) error {
	return s.client.Connect(ctx)
}

// IndexName derives the monthly index an event belongs in, e.g. "logs-2026.08".
func IndexName(ts time.Time) string {
	return fmt.Sprintf("%s-%s", indexPrefix, ts.UTC().Format("2006.01"))
}

// Put writes a normalized event to its time-partitioned index and returns
// the document ID actually stored.
func (s *Store) Put(ctx context.Context, ev *event.Event) (string, error) {
	doc := map[string]interface{}{
		"id":          ev.ID,
		"source":      ev.Source,
		"event_type":  ev.EventType,
		"tenant_id":   ev.TenantID,
		"timestamp":   ev.Timestamp.UTC().Format(time.RFC3339Nano),
		"ingested_at": time.Now().UTC().Format(time.RFC3339Nano),
		"fingerprint": ev.Fingerprint,
		"data":        ev.Data,
	}
	if len(ev.Enriched) > 0 {
		doc["enriched"] = ev.Enriched
	}

	resp, err := s.client.Index(ctx, IndexName(ev.Timestamp), ev.ID, doc)
	if err != nil {
		return "", fmt.Errorf("index event: %w", err)
	}
	return resp.ID, nil
}

// SearchRequest is the control plane's narrow view of a log search: a free
// text query plus an optional absolute time range.
type SearchRequest struct {
	Query      string
	From, To   time.Time
	MaxResults int
}

// SearchResult mirrors the matched documents plus the total hit count the
// store reports, trimmed to what the control plane API needs.
type SearchResult struct {
	Events []map[string]interface{}
	Total  int64
}

// Search runs a free-text query across the logs-* alias, scoped to the
// optional time window, and returns matching documents newest first.
func (s *Store) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	size := req.MaxResults
	if size <= 0 {
		size = 100
	}

	qreq := &connector.QueryRequest{
		Query:      req.Query,
		Language:   connector.QueryLanguageDSL,
		MaxResults: size,
		SortBy:     []connector.SortField{{Field: "timestamp"}},
		Parameters: map[string]interface{}{"index": templatePattern},
		TimeRange: connector.TimeRange{
			Start: req.From,
			End:   req.To,
		},
	}

	res, err := s.client.Query(ctx, qreq)
	if err != nil {
		return nil, fmt.Errorf("search logs: %w", err)
	}

	return &SearchResult{
		Events: res.Results,
		Total:  res.Metadata.TotalResults,
	}, nil
}
