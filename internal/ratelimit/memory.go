package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepInterval is how many Allow calls pass between stale-bucket sweeps.
const sweepInterval = 4096

// staleAfter is how long an untouched bucket survives before eviction.
const staleAfter = 10 * time.Minute

// bucket tracks the token balance for one key.
type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// MemoryLimiter is an in-memory token bucket limiter.
//
// Each key refills at rate tokens per second up to burst capacity. Stale
// buckets are evicted opportunistically inside Allow rather than by a
// background goroutine, so an idle limiter costs nothing.
type MemoryLimiter struct {
	rate  float64
	burst float64
	now   func() time.Time

	mu         sync.Mutex
	buckets    map[string]*bucket
	sinceSweep int
}

// NewMemoryLimiter creates a token bucket limiter with the given sustained
// rate (requests per second per key) and burst capacity.
func NewMemoryLimiter(rate float64, burst int) *MemoryLimiter {
	return &MemoryLimiter{
		rate:    rate,
		burst:   float64(burst),
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow consumes one token from key's bucket, reporting whether one was
// available.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	m.sinceSweep++
	if m.sinceSweep >= sweepInterval {
		m.sinceSweep = 0
		m.sweep(now)
	}

	b, ok := m.buckets[key]
	if !ok {
		m.buckets[key] = &bucket{tokens: m.burst - 1, lastSeen: now}
		return true, nil
	}

	b.tokens += now.Sub(b.lastSeen).Seconds() * m.rate
	if b.tokens > m.burst {
		b.tokens = m.burst
	}
	b.lastSeen = now

	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// Close is a no-op. The limiter holds no goroutines or connections.
func (m *MemoryLimiter) Close() error { return nil }

// sweep drops buckets idle past staleAfter. Caller holds mu.
func (m *MemoryLimiter) sweep(now time.Time) {
	cutoff := now.Add(-staleAfter)
	for key, b := range m.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(m.buckets, key)
		}
	}
}
