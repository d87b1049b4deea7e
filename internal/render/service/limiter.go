package service

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/elidickinson/shot-power-scraper/internal/common/configtypes"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client. Clients idle longer
// than idleTTL are forgotten on the next sweep.
type RateLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	clients   map[string]*limiterEntry
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter returns nil when rate limiting is disabled
func NewRateLimiter(cfg configtypes.RateLimitConfig) *RateLimiter {
	if !cfg.Enabled {
		return nil
	}
	return &RateLimiter{
		limit:   rate.Limit(cfg.RequestsPerSecond),
		burst:   cfg.Burst,
		idleTTL: cfg.IdleTTL.ToDuration(),
		clients: make(map[string]*limiterEntry),
		now:     time.Now,
	}
}

// Allow takes a token for client. A nil limiter allows everything.
func (l *RateLimiter) Allow(client string) bool {
	if l == nil {
		return true
	}
	now := l.now()

	l.mu.Lock()
	if l.idleTTL > 0 && now.Sub(l.lastSweep) >= l.idleTTL {
		l.sweep(now)
	}
	entry, ok := l.clients[client]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[client] = entry
	}
	entry.lastSeen = now
	l.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

func (l *RateLimiter) sweep(now time.Time) {
	cutoff := now.Add(-l.idleTTL)
	for client, entry := range l.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(l.clients, client)
		}
	}
	l.lastSweep = now
}

// Clients returns the number of tracked clients
func (l *RateLimiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
