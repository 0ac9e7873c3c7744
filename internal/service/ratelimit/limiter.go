package ratelimit

import (
	"sync"
	"time"
)

// sweepEvery bounds how often Allow scans for idle buckets.
const sweepEvery = time.Minute

type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

// idleTTL is how long a bucket may sit untouched before eviction: a few
// full refill periods, never less than a minute.
func (b *bucket) idleTTL() time.Duration {
	full := time.Duration(b.capacity / b.refillRate * float64(time.Second))
	ttl := 4 * full
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return ttl
}

// Limiter is a keyed token bucket, used to bound handshake attempts per
// remote address. Idle buckets are evicted so the map stays bounded by
// the set of recently seen keys.
type Limiter struct {
	mu        sync.Mutex
	m         map[string]*bucket
	lastSweep time.Time
}

func New() *Limiter {
	return &Limiter{m: make(map[string]*bucket), lastSweep: time.Now()}
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= sweepEvery {
		l.lastSweep = now
		l.sweep(now)
	}

	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: capacity, capacity: capacity, refillRate: refillPerSec, last: now}
		l.m[key] = b
	}
	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens -= 1
		return true
	}
	return false
}

// sweep drops buckets idle past their TTL. Caller holds the lock.
func (l *Limiter) sweep(now time.Time) {
	for k, b := range l.m {
		if now.Sub(b.last) > b.idleTTL() {
			delete(l.m, k)
		}
	}
}
