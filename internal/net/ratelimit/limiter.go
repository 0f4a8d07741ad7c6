// Package ratelimit throttles API clients with one token bucket per client key.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter provides per-client rate limiting using the token bucket algorithm.
// Buckets idle for longer than the TTL are dropped on the next sweep.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*client
	rps     float64
	burst   int
	ttl     time.Duration
	now     func() time.Time
	swept   time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter creates a limiter allowing rps requests per second per client
// with the given burst. A non-positive rps disables limiting.
func NewLimiter(rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		clients: make(map[string]*client),
		rps:     rps,
		burst:   burst,
		ttl:     10 * time.Minute,
		now:     time.Now,
	}
}

// Enabled reports whether requests are limited at all
func (l *Limiter) Enabled() bool {
	return l != nil && l.rps > 0
}

// Allow reports whether a request from key may proceed now
func (l *Limiter) Allow(key string) bool {
	if !l.Enabled() {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Limit(l.rps), l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// sweep drops idle buckets at most once per TTL. Caller holds l.mu.
func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.swept) < l.ttl {
		return
	}
	for key, c := range l.clients {
		if now.Sub(c.lastSeen) > l.ttl {
			delete(l.clients, key)
		}
	}
	l.swept = now
}

// Clients returns the number of tracked client buckets
func (l *Limiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Stats returns the remaining tokens per client
func (l *Limiter) Stats() map[string]LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	stats := make(map[string]LimiterStats, len(l.clients))
	for key, c := range l.clients {
		stats[key] = LimiterStats{
			Client:          key,
			RPS:             l.rps,
			Burst:           l.burst,
			TokensAvailable: c.limiter.TokensAt(now),
			LastSeen:        c.lastSeen,
		}
	}
	return stats
}

// Reset clears all client buckets
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clients = make(map[string]*client)
}

// LimiterStats represents the state of one client bucket
type LimiterStats struct {
	Client          string    `json:"client"`
	RPS             float64   `json:"rps"`
	Burst           int       `json:"burst"`
	TokensAvailable float64   `json:"tokens_available"`
	LastSeen        time.Time `json:"last_seen"`
}

// IsThrottled returns true if the client has no whole token left
func (s LimiterStats) IsThrottled() bool {
	return s.TokensAvailable < 1
}
