package governance

import (
	"sync"
	"time"
)

// RateLimiterConfig defines per-route rate limit settings.
type RateLimiterConfig struct {
	RequestsPerSecond int
	BurstSize         int
}

// RateLimiter implements token bucket rate limiting for inbound webhook
// routes. Routes without configuration are not limited.
type RateLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*tokenBucket
}

// NewRateLimiter creates a rate limiter with the provided per-route limits.
func NewRateLimiter(config map[string]RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{buckets: make(map[string]*tokenBucket)}
	rl.Configure(config)
	return rl
}

// Configure replaces the limiter's per-route limits, preserving the token
// balance of buckets that survive the reload.
func (rl *RateLimiter) Configure(config map[string]RateLimiterConfig) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	newBuckets := make(map[string]*tokenBucket, len(config))
	for route, cfg := range config {
		if bucket, exists := rl.buckets[route]; exists {
			bucket.configure(cfg.RequestsPerSecond, cfg.BurstSize)
			newBuckets[route] = bucket
		} else {
			newBuckets[route] = newTokenBucket(cfg.RequestsPerSecond, cfg.BurstSize)
		}
	}
	rl.buckets = newBuckets
}

// Allow checks if a request for the given route should be admitted.
func (rl *RateLimiter) Allow(route string) bool {
	rl.mu.RLock()
	bucket, exists := rl.buckets[route]
	rl.mu.RUnlock()

	if !exists {
		return true
	}
	return bucket.take()
}

// tokenBucket implements a token bucket algorithm for rate limiting.
type tokenBucket struct {
	mu         sync.Mutex
	rate       float64
	capacity   float64
	tokens     float64
	lastRefill time.Time
}

func newTokenBucket(rps, burstSize int) *tokenBucket {
	if rps <= 0 {
		rps = 100
	}
	if burstSize <= 0 {
		burstSize = rps
	}

	return &tokenBucket{
		rate:       float64(rps),
		capacity:   float64(burstSize),
		tokens:     float64(burstSize),
		lastRefill: time.Now(),
	}
}

func (tb *tokenBucket) configure(rps, burstSize int) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if rps <= 0 {
		rps = 100
	}
	if burstSize <= 0 {
		burstSize = rps
	}

	tb.rate = float64(rps)
	tb.capacity = float64(burstSize)
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
}

func (tb *tokenBucket) take() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()

	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true
	}
	return false
}

func (tb *tokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()

	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}
