// Package ratelimit implements the per-host politeness policy: a token bucket
// bounding request rate and a weighted semaphore bounding concurrent fetches
// against one host. A zero Config imposes no limits.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/synapse-search/internal/metrics"
)

// Config holds rate limiter configuration.
type Config struct {
	// PerHostRPS is the sustained request rate per host; <= 0 disables it.
	PerHostRPS float64
	// PerHostBurst is the token bucket size; defaults to 1.
	PerHostBurst int
	// PerHostMax bounds concurrent fetches per host; <= 0 disables it.
	PerHostMax int
}

// Limiter manages per-host rate and concurrency limits. It implements
// crawler.HostPolicy.
type Limiter struct {
	mu       sync.Mutex
	hosts    map[string]*hostLimits
	rate     rate.Limit
	burst    int
	maxConns int64
}

type hostLimits struct {
	bucket *rate.Limiter
	slots  *semaphore.Weighted
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.PerHostRPS)
	if cfg.PerHostRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.PerHostBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		hosts:    make(map[string]*hostLimits),
		rate:     r,
		burst:    burst,
		maxConns: int64(cfg.PerHostMax),
	}
}

// Enabled reports whether the limiter imposes any limit at all.
func (l *Limiter) Enabled() bool {
	return l != nil && (l.rate != rate.Inf || l.maxConns > 0)
}

// Acquire blocks until the host of rawURL has a free slot and a token, or ctx
// ends. The returned release func must be called once the fetch completes.
func (l *Limiter) Acquire(ctx context.Context, rawURL string) (func(), error) {
	if !l.Enabled() {
		return func() {}, nil
	}
	host := hostOf(rawURL)
	limits := l.forHost(host)

	start := time.Now()
	release := func() {}
	if limits.slots != nil {
		if err := limits.slots.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("host slot wait %s: %w", host, err)
		}
		release = func() { limits.slots.Release(1) }
	}
	if err := limits.bucket.Wait(ctx); err != nil {
		release()
		return nil, fmt.Errorf("rate limit wait %s: %w", host, err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveHostWait(waited)
	}
	return release, nil
}

// Hosts returns the number of hosts tracked so far.
func (l *Limiter) Hosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hosts)
}

func (l *Limiter) forHost(host string) *hostLimits {
	l.mu.Lock()
	defer l.mu.Unlock()
	limits, ok := l.hosts[host]
	if !ok {
		limits = &hostLimits{bucket: rate.NewLimiter(l.rate, l.burst)}
		if l.maxConns > 0 {
			limits.slots = semaphore.NewWeighted(l.maxConns)
		}
		l.hosts[host] = limits
	}
	return limits
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
