package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ClientLimiter keeps one token bucket per client address.
type ClientLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	limit    rate.Limit
	burst    int
	idle     time.Duration
}

type entry struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewClientLimiter allows perSecond requests per client with the given burst.
func NewClientLimiter(perSecond float64, burst int) *ClientLimiter {
	return &ClientLimiter{
		limiters: make(map[string]*entry),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		idle:     10 * time.Minute,
	}
}

// Allow reports whether client may make a request now and consumes a token
// if so.
func (l *ClientLimiter) Allow(client string) bool {
	now := time.Now()
	l.mu.Lock()
	e, ok := l.limiters[client]
	if !ok {
		e = &entry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[client] = e
	}
	e.seen = now
	l.mu.Unlock()
	return e.lim.AllowN(now, 1)
}

// Tokens returns the tokens currently available to client.
func (l *ClientLimiter) Tokens(client string) float64 {
	l.mu.Lock()
	e, ok := l.limiters[client]
	l.mu.Unlock()
	if !ok {
		return float64(l.burst)
	}
	return e.lim.Tokens()
}

// Prune drops buckets that have not been used for the idle period.
func (l *ClientLimiter) Prune() int {
	cutoff := time.Now().Add(-l.idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, e := range l.limiters {
		if e.seen.Before(cutoff) {
			delete(l.limiters, k)
			n++
		}
	}
	return n
}

// Reset forgets every client.
func (l *ClientLimiter) Reset() {
	l.mu.Lock()
	l.limiters = make(map[string]*entry)
	l.mu.Unlock()
}
