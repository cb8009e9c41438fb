// Package enrich adds GeoIP, reverse DNS and threat-intelligence context to
// normalized events before they are indexed (spec §4.5 enrich stage).
// Results are cached aggressively: GeoIP and DNS lookups are expensive and
// churn little, and a flapping threat feed shouldn't be re-queried per
// event.
package enrich

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oschwald/geoip2-golang"
)

// GeoLocation is the subset of a GeoIP city/ASN lookup worth attaching to
// an event.
type GeoLocation struct {
	Country     string  `json:"country"`
	CountryCode string  `json:"country_code"`
	City        string  `json:"city,omitempty"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
	ASN         uint    `json:"asn,omitempty"`
	ASOrg       string  `json:"as_org,omitempty"`
}

// GeoIPEnricher resolves an IP to location/ASN data via a local MaxMind-format
// database, falling back to no-op lookups when no database path is configured
// so the Processor can run against plain test fixtures.
type GeoIPEnricher struct {
	cityDB *geoip2.Reader
	asnDB  *geoip2.Reader
	cache  *ttlCache[*GeoLocation]

	lookups, hits, misses, errs atomic.Uint64
}

// NewGeoIPEnricher opens the city (required to enrich) and ASN (optional)
// databases at the given paths. An empty cityPath returns an enricher whose
// Lookup always returns (nil, nil), so callers can wire it unconditionally.
func NewGeoIPEnricher(cityPath, asnPath string, cacheSize int, cacheTTL time.Duration) (*GeoIPEnricher, error) {
	e := &GeoIPEnricher{cache: newTTLCache[*GeoLocation](cacheSize, cacheTTL)}

	if cityPath != "" {
		db, err := geoip2.Open(cityPath)
		if err != nil {
			return nil, fmt.Errorf("open geoip city db: %w", err)
		}
		e.cityDB = db
	}
	if asnPath != "" {
		db, err := geoip2.Open(asnPath)
		if err != nil {
			return nil, fmt.Errorf("open geoip asn db: %w", err)
		}
		e.asnDB = db
	}
	return e, nil
}

func (e *GeoIPEnricher) Close() error {
	if e.cityDB != nil {
		e.cityDB.Close()
	}
	if e.asnDB != nil {
		e.asnDB.Close()
	}
	return nil
}

// Lookup returns location data for ipStr. A nil result with a nil error
// means there is nothing to attach (private/reserved IP, unparsable input,
// or no database configured) and is not a failure. A non-nil error is a
// real lookup failure the caller should surface via enriched.errors.
func (e *GeoIPEnricher) Lookup(ctx context.Context, ipStr string) (*GeoLocation, error) {
	if e.cityDB == nil {
		return nil, nil
	}
	e.lookups.Add(1)

	if loc := e.cache.get(ipStr); loc != nil {
		e.hits.Add(1)
		return loc, nil
	}
	e.misses.Add(1)

	ip := net.ParseIP(ipStr)
	if ip == nil || ip.IsPrivate() || ip.IsLoopback() {
		return nil, nil
	}

	loc := &GeoLocation{}
	city, err := e.cityDB.City(ip)
	if err != nil {
		e.errs.Add(1)
		return nil, fmt.Errorf("geoip city lookup for %s: %w", ipStr, err)
	}
	loc.Country = city.Country.Names["en"]
	loc.CountryCode = city.Country.IsoCode
	loc.City = city.City.Names["en"]
	loc.Latitude = city.Location.Latitude
	loc.Longitude = city.Location.Longitude

	if e.asnDB != nil {
		if asn, err := e.asnDB.ASN(ip); err == nil {
			loc.ASN = asn.AutonomousSystemNumber
			loc.ASOrg = asn.AutonomousSystemOrganization
		}
	}

	e.cache.set(ipStr, loc)
	return loc, nil
}

func (e *GeoIPEnricher) Stats() map[string]uint64 {
	return map[string]uint64{
		"lookups": e.lookups.Load(),
		"hits":    e.hits.Load(),
		"misses":  e.misses.Load(),
		"errors":  e.errs.Load(),
	}
}

// ttlCache is a generic, capacity-bounded TTL cache shared by the GeoIP,
// DNS and LDAP user enrichers.
type ttlCache[T any] struct {
	mu      sync.Mutex
	items   map[string]ttlEntry[T]
	maxSize int
	ttl     time.Duration
}

type ttlEntry[T any] struct {
	value     T
	expiresAt time.Time
}

func newTTLCache[T any](maxSize int, ttl time.Duration) *ttlCache[T] {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &ttlCache[T]{items: make(map[string]ttlEntry[T]), maxSize: maxSize, ttl: ttl}
}

func (c *ttlCache[T]) get(key string) T {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.items[key]
	if !ok || time.Now().After(entry.expiresAt) {
		var zero T
		return zero
	}
	return entry.value
}

func (c *ttlCache[T]) set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) >= c.maxSize {
		c.evictOldest()
	}
	c.items[key] = ttlEntry[T]{value: value, expiresAt: time.Now().Add(c.ttl)}
}

func (c *ttlCache[T]) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	for k, v := range c.items {
		if oldestKey == "" || v.expiresAt.Before(oldestTime) {
			oldestKey, oldestTime = k, v.expiresAt
		}
	}
	if oldestKey != "" {
		delete(c.items, oldestKey)
	}
}
