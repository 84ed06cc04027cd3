// Package ratelimit implements the per-client token bucket used on
// mutating endpoints, with an idle-bucket eviction task.
package ratelimit

import (
	"sync"
	"time"
)

// bucket is a token bucket refilled continuously at rate tokens/second,
// capped at burst.
type bucket struct {
	tokens     float64
	rate       float64
	burst      float64
	lastRefill time.Time
	lastSeen   time.Time
}

func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.rate
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.lastRefill = now
}

// Limiter keeps one bucket per client IP behind a single mutex; the
// eviction task holds the lock only long enough to drop idle entries.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   int
	idleTTL time.Duration
}

// New builds a limiter at rate requests/second with the given burst
// capacity; idleTTL bounds how long an unused client bucket is retained.
func New(rate float64, burst int, idleTTL time.Duration) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		idleTTL: idleTTL,
	}
}

// Result reports whether the request is allowed and, if not, how long the
// caller should wait before retrying.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
	Remaining  int
}

// Allow consumes one token for clientIP if available.
func (l *Limiter) Allow(clientIP string) Result {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[clientIP]
	if !ok {
		b = &bucket{tokens: float64(l.burst), rate: l.rate, burst: float64(l.burst), lastRefill: now}
		l.buckets[clientIP] = b
	}
	b.refill(now)
	b.lastSeen = now

	if b.tokens < 1 {
		var wait time.Duration
		if l.rate > 0 {
			wait = time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
		}
		return Result{Allowed: false, RetryAfter: wait, Remaining: 0}
	}

	b.tokens--
	return Result{Allowed: true, Remaining: int(b.tokens)}
}

// EvictIdle drops buckets that have been untouched for longer than
// idleTTL. Intended to run on a periodic timer (every 60s per §4.8).
func (l *Limiter) EvictIdle() {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.buckets, ip)
		}
	}
}
