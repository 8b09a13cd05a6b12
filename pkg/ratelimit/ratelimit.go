// Package ratelimit provides per-caller, per-endpoint request throttling for
// the run endpoints.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter throttles run requests keyed by caller identity and endpoint.
// Idle entries are pruned so the map does not grow without bound.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	limit   rate.Limit
	burst   int

	idleTTL   time.Duration
	lastPrune time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a limiter allowing rps requests per second with the given
// burst per caller×endpoint pair.
func New(rps float64, burst int) *Limiter {
	return &Limiter{
		entries:   make(map[string]*entry),
		limit:     rate.Limit(rps),
		burst:     burst,
		idleTTL:   10 * time.Minute,
		lastPrune: time.Now(),
	}
}

// Allow reports whether the caller may run the endpoint now.
func (l *Limiter) Allow(caller, endpoint string) bool {
	key := caller + "\x00" + endpoint

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now

	if now.Sub(l.lastPrune) > l.idleTTL {
		l.prune(now)
	}
	return e.limiter.Allow()
}

// prune drops entries not seen within the idle TTL. Caller holds the lock.
func (l *Limiter) prune(now time.Time) {
	for key, e := range l.entries {
		if now.Sub(e.lastSeen) > l.idleTTL {
			delete(l.entries, key)
		}
	}
	l.lastPrune = now
}
