// Package ratelimit paces requests to each remote host with a randomized
// inter-request delay and an optional token-bucket ceiling.
package ratelimit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/jobpost-harvester/internal/metrics"
)

// Config holds limiter configuration.
type Config struct {
	// MinDelay and MaxDelay bound the random gap between two requests to one host.
	MinDelay time.Duration
	MaxDelay time.Duration
	// MaxRPS caps the per-host request rate; zero disables the ceiling.
	MaxRPS float64
	Burst  int
}

// Limiter is shared by every worker so that request timing is serialized per
// host, not per worker.
type Limiter struct {
	mu    sync.Mutex
	hosts map[string]*hostGate
	cfg   Config
	now   func() time.Time
	delay func(lo, hi time.Duration) time.Duration
}

type hostGate struct {
	// slot serializes scheduling for the host.
	slot   chan struct{}
	next   time.Time
	bucket *rate.Limiter
}

// New creates a Limiter.
func New(cfg Config) (*Limiter, error) {
	if cfg.MinDelay < 0 || cfg.MaxDelay < cfg.MinDelay {
		return nil, fmt.Errorf("ratelimit: invalid delay range [%s, %s]", cfg.MinDelay, cfg.MaxDelay)
	}
	if cfg.MaxRPS < 0 {
		return nil, fmt.Errorf("ratelimit: max rps must be >= 0")
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Limiter{
		hosts: make(map[string]*hostGate),
		cfg:   cfg,
		now:   time.Now,
		delay: uniformDelay,
	}, nil
}

// Wait blocks until a request to rawURL's host may be issued. The next request
// to that host is then held back by a fresh random delay.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	gate := l.gate(host)
	start := l.now()

	select {
	case gate.slot <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("rate limit wait: %w", ctx.Err())
	}
	defer func() { <-gate.slot }()

	if wait := gate.next.Sub(l.now()); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limit wait: %w", ctx.Err())
		}
	}
	if gate.bucket != nil {
		if err := gate.bucket.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	issued := l.now()
	gate.next = issued.Add(l.delay(l.cfg.MinDelay, l.cfg.MaxDelay))
	if waited := issued.Sub(start); waited > time.Millisecond {
		metrics.ObserveRateLimitWait(host, waited)
	}
	return nil
}

func (l *Limiter) gate(host string) *hostGate {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.hosts[host]
	if !ok {
		g = &hostGate{slot: make(chan struct{}, 1)}
		if l.cfg.MaxRPS > 0 {
			g.bucket = rate.NewLimiter(rate.Limit(l.cfg.MaxRPS), l.cfg.Burst)
		}
		l.hosts[host] = g
	}
	return g
}

func uniformDelay(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
