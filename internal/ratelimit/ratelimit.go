// Package ratelimit provides a keyed token-bucket limiter. The HTTP layer keys
// it by caller identity to throttle mutating requests.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter manages one token bucket per key. Buckets idle for longer
// than the idle window are evicted by a background sweeper.
type KeyedRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	limit    rate.Limit
	burst    int
	idle     time.Duration

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a limiter allowing rps requests per second with the given burst
// for each key.
func New(rps float64, burst int, idle time.Duration) *KeyedRateLimiter {
	krl := &KeyedRateLimiter{
		limiters: make(map[string]*entry),
		limit:    rate.Limit(rps),
		burst:    burst,
		idle:     idle,
		done:     make(chan struct{}),
	}
	if idle > 0 {
		go krl.sweep()
	}
	return krl
}

// Allow reports whether a request for key may proceed now.
func (krl *KeyedRateLimiter) Allow(key string) bool {
	return krl.getLimiter(key, time.Now()).Allow()
}

func (krl *KeyedRateLimiter) getLimiter(key string, now time.Time) *rate.Limiter {
	krl.mu.Lock()
	defer krl.mu.Unlock()

	e, ok := krl.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(krl.limit, krl.burst)}
		krl.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// Len is the number of tracked keys.
func (krl *KeyedRateLimiter) Len() int {
	krl.mu.Lock()
	defer krl.mu.Unlock()
	return len(krl.limiters)
}

// Stop shuts down the sweeper.
func (krl *KeyedRateLimiter) Stop() {
	krl.stopOnce.Do(func() {
		close(krl.done)
	})
}

func (krl *KeyedRateLimiter) sweep() {
	ticker := time.NewTicker(krl.idle)
	defer ticker.Stop()
	for {
		select {
		case <-krl.done:
			return
		case now := <-ticker.C:
			krl.evictIdle(now)
		}
	}
}

func (krl *KeyedRateLimiter) evictIdle(now time.Time) {
	krl.mu.Lock()
	defer krl.mu.Unlock()
	for key, e := range krl.limiters {
		if now.Sub(e.lastSeen) > krl.idle {
			delete(krl.limiters, key)
		}
	}
}
