// Package admission provides limiter algorithm implementations.
package admission

import "time"

// TokenBucket is a counter with continuous time-based refill. Tokens
// accumulate at RefillRate per second up to Capacity; each admitted request
// consumes its cost. Refill happens lazily on access, never from a timer.
//
// TokenBucket is not safe for concurrent use; callers serialize access
// through the owning limiter entry.
type TokenBucket struct {
	capacity   uint32
	tokens     float64
	refillRate float64
	lastRefill time.Time
	now        func() time.Time
}

// NewTokenBucket constructs a bucket from a configuration.
func NewTokenBucket(cfg TokenBucketConfig) *TokenBucket {
	now := time.Now
	tokens := float64(cfg.InitialTokens)
	if tokens > float64(cfg.Capacity) {
		tokens = float64(cfg.Capacity)
	}
	return &TokenBucket{
		capacity:   cfg.Capacity,
		tokens:     tokens,
		refillRate: cfg.RefillRate,
		lastRefill: now(),
		now:        now,
	}
}

// TryConsume refills the bucket and attempts to take n tokens. It returns
// false without consuming anything when fewer than n tokens are available.
func (b *TokenBucket) TryConsume(n uint32) bool {
	b.refill()
	need := float64(n)
	if b.tokens >= need {
		b.tokens -= need
		return true
	}
	return false
}

// AvailableTokens forces a refill and returns the current token count.
func (b *TokenBucket) AvailableTokens() float64 {
	b.refill()
	return b.tokens
}

// Capacity returns the burst ceiling.
func (b *TokenBucket) Capacity() uint32 {
	return b.capacity
}

// UpdateConfig applies a new configuration without discarding accumulated
// state. The bucket is refilled at the old rate first; if the capacity
// changed, the current tokens are rescaled proportionally so a live edit
// does not cause a discontinuous jump in available burst.
func (b *TokenBucket) UpdateConfig(cfg TokenBucketConfig) {
	b.refill()

	if b.capacity != cfg.Capacity && b.capacity > 0 {
		scale := float64(cfg.Capacity) / float64(b.capacity)
		b.tokens = b.tokens * scale
		if b.tokens > float64(cfg.Capacity) {
			b.tokens = float64(cfg.Capacity)
		}
	}

	b.capacity = cfg.Capacity
	b.refillRate = cfg.RefillRate
}

func (b *TokenBucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillRate
	if b.tokens > float64(b.capacity) {
		b.tokens = float64(b.capacity)
	}
	b.lastRefill = now
}
