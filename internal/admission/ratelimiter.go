package admission

// RateLimiter wraps exactly one limiter algorithm behind a single check and
// reconfigure surface, so callers never depend on which algorithm a policy
// selected. It is a closed variant type: no third algorithm is pluggable.
//
// RateLimiter is not safe for concurrent use on its own; the manager guards
// each instance with a per-entry mutex.
type RateLimiter struct {
	kind   AlgorithmKind
	bucket *TokenBucket
	window *SlidingWindow
}

// NewRateLimiter constructs the limiter variant selected by cfg.
func NewRateLimiter(cfg AlgorithmConfig) *RateLimiter {
	switch cfg.Kind {
	case AlgorithmSlidingWindow:
		return &RateLimiter{kind: AlgorithmSlidingWindow, window: NewSlidingWindow(cfg.SlidingWindow)}
	default:
		return &RateLimiter{kind: AlgorithmTokenBucket, bucket: NewTokenBucket(cfg.TokenBucket)}
	}
}

// Algorithm returns the active algorithm family.
func (l *RateLimiter) Algorithm() AlgorithmKind {
	return l.kind
}

// CheckRequest reports whether a request of the given cost is admitted.
// Sliding window policies always account exactly one request; cost is
// ignored for them.
func (l *RateLimiter) CheckRequest(cost uint32) bool {
	switch l.kind {
	case AlgorithmSlidingWindow:
		return l.window.TryRequest()
	default:
		return l.bucket.TryConsume(cost)
	}
}

// UpdateConfig applies a new algorithm configuration. A same-family update
// preserves accumulated state; a family change discards the old limiter and
// starts fresh, since state is not convertible across algorithms.
func (l *RateLimiter) UpdateConfig(cfg AlgorithmConfig) {
	if cfg.Kind != l.kind {
		*l = *NewRateLimiter(cfg)
		return
	}
	switch l.kind {
	case AlgorithmSlidingWindow:
		l.window.UpdateConfig(cfg.SlidingWindow)
	default:
		l.bucket.UpdateConfig(cfg.TokenBucket)
	}
}
