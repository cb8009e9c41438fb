// Package event defines the canonical Event that flows Collector → bus →
// Processor → index (spec §3).
package event

import "time"

// Event is the unit of ingestion. ID, Source, EventType and Timestamp are
// required post-accept; Enriched is append-only and written only by the
// Processor — clients must never set it.
type Event struct {
	ID        string                 `json:"id"`
	TenantID  string                 `json:"tenant_id,omitempty"`
	Source    string                 `json:"source"`
	EventType string                 `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Enriched  map[string]interface{} `json:"enriched,omitempty"`

	// Fingerprint is the dedup hash the Processor computes over Source,
	// EventType and Data before indexing. Empty until the Processor sets it.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// Get resolves a dotted field path against Data, falling back to top-level
// struct fields for "source", "event_type", "timestamp", "id". Used by the
// detection engine's custom evaluator and playbook trigger/condition
// matching (spec §4.7/§4.8), both of which walk dotted paths into the
// Event.
func (e *Event) Get(path string) (interface{}, bool) {
	switch path {
	case "id":
		return e.ID, true
	case "source":
		return e.Source, true
	case "event_type":
		return e.EventType, true
	case "timestamp":
		return e.Timestamp, true
	}
	return getDotted(e.Data, splitDots(path))
}

func splitDots(path string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			parts = append(parts, path[start:i])
			start = i + 1
		}
	}
	parts = append(parts, path[start:])
	return parts
}

func getDotted(m map[string]interface{}, parts []string) (interface{}, bool) {
	if len(parts) == 0 {
		return nil, false
	}
	v, ok := m[parts[0]]
	if !ok {
		return nil, false
	}
	if len(parts) == 1 {
		return v, true
	}
	next, ok := v.(map[string]interface{})
	if !ok {
		return nil, false
	}
	return getDotted(next, parts[1:])
}

// Batch is an ordered sequence of Events carried in one request.
type Batch struct {
	Events []*Event `json:"events"`
}

// RawLogRequest is the ingest_raw request body (spec §3).
type RawLogRequest struct {
	Source  string `json:"source"`
	LogLine string `json:"log_line"`
	Format  string `json:"format,omitempty"`
}

// BatchResultItem is one event's outcome within a batch response.
type BatchResultItem struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// BatchResponse is the ingest_batch response body (spec §4.2).
type BatchResponse struct {
	Results []BatchResultItem `json:"results"`
	Summary BatchSummary      `json:"summary"`
}

type BatchSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}
