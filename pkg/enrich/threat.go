package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// ThreatMatch is the subset of an IoC record attached to a matching event.
type ThreatMatch struct {
	IOC        string   `json:"ioc"`
	IOCType    string   `json:"ioc_type"` // ip, domain, hash
	ThreatType string   `json:"threat_type"`
	Severity   string   `json:"severity"`
	Tags       []string `json:"tags,omitempty"`
}

// ThreatEnricher matches IPs, domains and hashes against an in-memory
// indicator store, loaded once from a JSON feed file at startup and
// refreshable without restarting the process.
type ThreatEnricher struct {
	mu    sync.RWMutex
	byIOC map[string]ThreatMatch

	lookups, matches atomic.Uint64
}

func NewThreatEnricher() *ThreatEnricher {
	return &ThreatEnricher{byIOC: make(map[string]ThreatMatch)}
}

// LoadFile replaces the indicator set with the contents of a JSON file
// containing an array of ThreatMatch records. An empty path is a no-op,
// leaving the enricher with zero indicators loaded.
func (e *ThreatEnricher) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read threat intel feed: %w", err)
	}

	var records []ThreatMatch
	if err := json.Unmarshal(raw, &records); err != nil {
		return fmt.Errorf("parse threat intel feed: %w", err)
	}

	byIOC := make(map[string]ThreatMatch, len(records))
	for _, r := range records {
		byIOC[key(r.IOCType, r.IOC)] = r
	}

	e.mu.Lock()
	e.byIOC = byIOC
	e.mu.Unlock()
	return nil
}

func key(iocType, value string) string {
	return iocType + ":" + strings.ToLower(value)
}

// Match looks up an indicator of the given type, reporting ok=false when
// there is no match.
func (e *ThreatEnricher) Match(ctx context.Context, iocType, value string) (ThreatMatch, bool) {
	e.lookups.Add(1)
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.byIOC[key(iocType, value)]
	if ok {
		e.matches.Add(1)
	}
	return m, ok
}

func (e *ThreatEnricher) Stats() map[string]uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return map[string]uint64{
		"indicators": uint64(len(e.byIOC)),
		"lookups":    e.lookups.Load(),
		"matches":    e.matches.Load(),
	}
}
