package enrich

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// DNSEnricher resolves IPs to hostnames via reverse DNS, caching results for
// at least an hour since PTR records for a given IP churn rarely.
type DNSEnricher struct {
	cache   *ttlCache[string]
	timeout time.Duration
}

func NewDNSEnricher(cacheSize int, cacheTTL, timeout time.Duration) *DNSEnricher {
	if cacheTTL < time.Hour {
		cacheTTL = time.Hour
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &DNSEnricher{cache: newTTLCache[string](cacheSize, cacheTTL), timeout: timeout}
}

// Resolve returns the first PTR hostname for ipStr. A nil error with an
// empty host means there is no PTR record, which is not a failure. A
// non-nil error is a real resolver failure (timeout, server error) the
// caller should surface via enriched.errors.
func (d *DNSEnricher) Resolve(ctx context.Context, ipStr string) (string, error) {
	if host := d.cache.get(ipStr); host != "" {
		return host, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	names, err := net.DefaultResolver.LookupAddr(lookupCtx, ipStr)
	if err != nil {
		if dnsErr, ok := err.(*net.DNSError); ok && dnsErr.IsNotFound {
			return "", nil
		}
		return "", fmt.Errorf("reverse dns lookup for %s: %w", ipStr, err)
	}
	if len(names) == 0 {
		return "", nil
	}

	host := strings.TrimSuffix(names[0], ".")
	d.cache.set(ipStr, host)
	return host, nil
}
