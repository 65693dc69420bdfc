// Package ratelimit implements keyed token bucket rate limiting.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per key.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// Config holds rate limiter configuration. A non-positive RPS disables limiting.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// Unlimited reports whether the limiter lets everything through.
func (l *Limiter) Unlimited() bool {
	return l == nil || l.defaultRate == rate.Inf
}

// Allow takes a token for key without waiting.
func (l *Limiter) Allow(key string) bool {
	if l.Unlimited() {
		return true
	}
	return l.bucket(key).Allow()
}

// Wait blocks until a token for key is available or ctx ends.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if l.Unlimited() {
		return nil
	}
	if err := l.bucket(key).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[key] = limiter
	}
	return limiter
}
