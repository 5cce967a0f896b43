// Package admission defines core policy and decision models.
package admission

import "fmt"

// AlgorithmKind identifies a rate limiting algorithm family.
type AlgorithmKind string

const (
	// AlgorithmTokenBucket selects continuous-refill accounting with burst
	// tolerance up to the bucket capacity.
	AlgorithmTokenBucket AlgorithmKind = "token_bucket"
	// AlgorithmSlidingWindow selects strict counting over a moving window
	// approximated by rotating sub-windows.
	AlgorithmSlidingWindow AlgorithmKind = "sliding_window"
)

// TokenBucketConfig configures a token bucket limiter.
type TokenBucketConfig struct {
	Capacity      uint32  `yaml:"capacity" json:"capacity"`
	RefillRate    float64 `yaml:"refillRate" json:"refillRate"`
	InitialTokens uint32  `yaml:"initialTokens" json:"initialTokens"`
}

// SlidingWindowConfig configures a sliding window limiter.
type SlidingWindowConfig struct {
	WindowSize  uint64 `yaml:"windowSize" json:"windowSize"`
	MaxRequests uint32 `yaml:"maxRequests" json:"maxRequests"`
	SubWindows  uint32 `yaml:"subWindows" json:"subWindows"`
}

// AlgorithmConfig is the closed sum of the two algorithm configurations.
// Kind selects which of the embedded configs is meaningful.
type AlgorithmConfig struct {
	Kind          AlgorithmKind       `yaml:"kind" json:"kind"`
	TokenBucket   TokenBucketConfig   `yaml:"tokenBucket" json:"tokenBucket"`
	SlidingWindow SlidingWindowConfig `yaml:"slidingWindow" json:"slidingWindow"`
}

// Validate reports whether the algorithm configuration is usable.
func (c AlgorithmConfig) Validate() error {
	switch c.Kind {
	case AlgorithmTokenBucket:
		if c.TokenBucket.Capacity == 0 {
			return fmt.Errorf("token bucket capacity must be positive")
		}
		if c.TokenBucket.RefillRate <= 0 {
			return fmt.Errorf("token bucket refill rate must be positive")
		}
	case AlgorithmSlidingWindow:
		if c.SlidingWindow.WindowSize == 0 {
			return fmt.Errorf("sliding window size must be positive")
		}
		if c.SlidingWindow.MaxRequests == 0 {
			return fmt.Errorf("sliding window max requests must be positive")
		}
		if c.SlidingWindow.SubWindows == 0 {
			return fmt.Errorf("sliding window sub-window count must be positive")
		}
	default:
		return fmt.Errorf("unknown algorithm kind %q", c.Kind)
	}
	return nil
}

// EndpointPolicy is the per-endpoint admission policy.
type EndpointPolicy struct {
	Algorithm AlgorithmConfig `yaml:"algorithm" json:"algorithm"`
	// PerPeer accounts a separate budget per client identity instead of one
	// shared budget for the whole endpoint.
	PerPeer bool `yaml:"perPeer" json:"perPeer"`
	// TrustedMultiplier is a reserved scaling factor for trusted callers.
	// It is carried through configuration and stats but not yet consulted
	// on the decision path.
	TrustedMultiplier float64 `yaml:"trustedMultiplier" json:"trustedMultiplier"`
}

// StatsSnapshot captures manager counters at a point in time.
type StatsSnapshot struct {
	Allowed          uint64
	Denied           uint64
	EndpointLimiters int
	PeerLimiters     int
	LoadMultiplier   float64
}

// SuccessRate returns the fraction of checks that were allowed.
func (s StatsSnapshot) SuccessRate() float64 {
	total := s.Allowed + s.Denied
	if total == 0 {
		return 1.0
	}
	return float64(s.Allowed) / float64(total)
}

// DenialRate returns the fraction of checks that were denied.
func (s StatsSnapshot) DenialRate() float64 {
	return 1.0 - s.SuccessRate()
}
