// Package ratelimit implements the sliding-window-per-(endpoint,principal)
// quota described in spec §4.1, backed by the shared Redis cache so counters
// survive across Collector instances. The sliding window itself is a
// ZSET-based log (repository.RedisRateLimiter), not an in-memory token
// bucket, so the limit is exact rather than approximate across restarts.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/nightwatch-siem/nightwatch/pkg/repository"
)

// Quota is one named (limit, window) pair, e.g. the request-rate, the
// batch-rate, or the total-event-rate quota ingestion enforces
// independently (spec §4.1).
type Quota struct {
	Name   string
	Limit  int64
	Window time.Duration
}

// Result is what callers turn into the X-RateLimit-* response headers.
type Result struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
	Quota      string
}

// Limiter checks one or more quotas for a given (endpoint, principal) pair.
type Limiter struct {
	backend *repository.RedisRateLimiter
}

func New(conn *repository.RedisConn) *Limiter {
	return &Limiter{backend: repository.NewRedisRateLimiter(conn)}
}

// Check evaluates a single quota for the given key (typically
// "<endpoint>:<principal>"). It always records the attempt, matching the
// teacher's sliding-window log semantics — an attempt that would exceed the
// limit is still observed so the window keeps sliding correctly.
func (l *Limiter) Check(ctx context.Context, key string, q Quota) (Result, error) {
	fullKey := fmt.Sprintf("%s:%s", q.Name, key)
	allowed, err := l.backend.Allow(ctx, fullKey, q.Limit, q.Window)
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: check %s: %w", fullKey, err)
	}
	count, err := l.backend.Count(ctx, fullKey, q.Window)
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: count %s: %w", fullKey, err)
	}
	remaining := q.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:    allowed,
		Limit:      q.Limit,
		Remaining:  remaining,
		ResetAt:    time.Now().Add(q.Window),
		RetryAfter: q.Window,
		Quota:      q.Name,
	}, nil
}

// CheckAll evaluates quotas in order and short-circuits on the first denial,
// matching the gateway's global→tenant→ip→key precedence pattern. Used by
// the Collector to enforce its three independent ingestion quotas
// (request rate, batch rate, event rate) together.
func (l *Limiter) CheckAll(ctx context.Context, key string, quotas []Quota) (Result, error) {
	var last Result
	for _, q := range quotas {
		res, err := l.Check(ctx, key, q)
		if err != nil {
			return Result{}, err
		}
		last = res
		if !res.Allowed {
			return res, nil
		}
	}
	return last, nil
}

// Headers renders the X-RateLimit-* + Retry-After header values mandated by
// spec §6.
func Headers(r Result) map[string]string {
	h := map[string]string{
		"X-RateLimit-Limit":     fmt.Sprintf("%d", r.Limit),
		"X-RateLimit-Remaining": fmt.Sprintf("%d", r.Remaining),
		"X-RateLimit-Reset":     fmt.Sprintf("%d", r.ResetAt.Unix()),
	}
	if !r.Allowed {
		h["Retry-After"] = fmt.Sprintf("%d", int(r.RetryAfter.Seconds()))
	}
	return h
}
