// Package ratelimit spaces out upstream requests with one token bucket per host.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Limiter hands out request tokens per upstream host
type Limiter struct {
	limit rate.Limit
	burst int

	mu    sync.Mutex
	hosts map[string]*rate.Limiter
}

// NewLimiter allows rps requests per second per host with the given burst.
// A non-positive rps disables limiting.
func NewLimiter(rps float64, burst int) *Limiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &Limiter{
		limit: limit,
		burst: max(burst, 1),
		hosts: make(map[string]*rate.Limiter),
	}
}

func (l *Limiter) bucket(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.hosts[host]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.hosts[host] = b
	}
	return b
}

// Wait blocks until host has a token or ctx is done. It fails immediately when the next
// token would arrive after the ctx deadline.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	start := time.Now()
	if err := l.bucket(host).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit for %s: %w", host, err)
	}

	if waited := time.Since(start); waited >= time.Millisecond {
		log.Debug().Str("host", host).Dur("waited", waited).Msg("Request delayed by rate limiter")
	}
	return nil
}

// HostStats describes the bucket of one host
type HostStats struct {
	RPS             float64       `json:"rps"`
	Burst           int           `json:"burst"`
	TokensAvailable float64       `json:"tokens_available"`
	Delay           time.Duration `json:"delay"` // until the next token
}

// IsThrottled reports whether the next request for the host would wait
func (s HostStats) IsThrottled() bool {
	return s.Delay > 0
}

// Stats returns the current state of every host seen so far
func (l *Limiter) Stats() map[string]HostStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := make(map[string]HostStats, len(l.hosts))
	for host, b := range l.hosts {
		tokens := b.Tokens()
		s := HostStats{
			RPS:             float64(b.Limit()),
			Burst:           b.Burst(),
			TokensAvailable: tokens,
		}
		if b.Limit() == rate.Inf {
			s.RPS = math.Inf(1)
		} else if tokens < 1 {
			s.Delay = time.Duration((1 - tokens) / float64(b.Limit()) * float64(time.Second))
		}
		stats[host] = s
	}
	return stats
}
