// Package ratelimit paces simulated batches with one token bucket per tracker
// name.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config describes the buckets. A non-positive rate means unlimited.
type Config struct {
	// DefaultRPS is the batch start rate for names without an override.
	DefaultRPS float64
	// DefaultBurst is the bucket size for every name (default 1).
	DefaultBurst int
	// Overrides sets the rate for specific tracker names.
	Overrides map[string]float64
	// OnDelay, if set, is told about every wait longer than a millisecond.
	OnDelay func(key string, waited time.Duration)
}

// Limiter hands out per-name buckets lazily.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// New creates a Limiter from cfg.
func New(cfg Config) *Limiter {
	if cfg.DefaultBurst <= 0 {
		cfg.DefaultBurst = 1
	}
	return &Limiter{cfg: cfg, buckets: make(map[string]*rate.Limiter)}
}

// Wait blocks until key may start another batch or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if key == "" {
		key = "unknown"
	}
	start := time.Now()
	if err := l.bucket(key).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %q: %w", key, err)
	}
	if waited := time.Since(start); waited > time.Millisecond && l.cfg.OnDelay != nil {
		l.cfg.OnDelay(key, waited)
	}
	return nil
}

// Limit reports the rate applied to key.
func (l *Limiter) Limit(key string) rate.Limit {
	return l.bucket(key).Limit()
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		rps := l.cfg.DefaultRPS
		if v, found := l.cfg.Overrides[key]; found {
			rps = v
		}
		b = rate.NewLimiter(toLimit(rps), l.cfg.DefaultBurst)
		l.buckets[key] = b
	}
	return b
}

func toLimit(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}
