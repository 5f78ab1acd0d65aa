package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter throttles callers independently by key (user id, ip).
type Limiter struct {
	mu      sync.Mutex
	m       map[string]*entry
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

type entry struct {
	lim  *rate.Limiter
	seen time.Time
}

// New allows perMinute events per key, bursting up to burst.
// perMinute <= 0 disables throttling.
func New(perMinute, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	lim := rate.Inf
	if perMinute > 0 {
		lim = rate.Every(time.Minute / time.Duration(perMinute))
	}
	return &Limiter{
		m:       make(map[string]*entry),
		limit:   lim,
		burst:   burst,
		idleTTL: 10 * time.Minute,
		now:     time.Now,
	}
}

// Allow reports whether one event for key may happen now.
func (l *Limiter) Allow(key string) bool {
	if l.limit == rate.Inf {
		return true
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.m[key]
	if !ok {
		e = &entry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.m[key] = e
	}
	e.seen = now
	l.evict(now)
	return e.lim.AllowN(now, 1)
}

// evict drops keys idle longer than idleTTL. Caller holds mu.
func (l *Limiter) evict(now time.Time) {
	if len(l.m) < 1024 {
		return
	}
	for k, e := range l.m {
		if now.Sub(e.seen) > l.idleTTL {
			delete(l.m, k)
		}
	}
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
