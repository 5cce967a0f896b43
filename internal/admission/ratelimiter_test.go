package admission

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterDefaultsToTokenBucket(t *testing.T) {
	t.Parallel()
	limiter := NewRateLimiter(AlgorithmConfig{
		TokenBucket: TokenBucketConfig{Capacity: 2, RefillRate: 1.0, InitialTokens: 2},
	})
	require.Equal(t, AlgorithmTokenBucket, limiter.Algorithm())
	require.True(t, limiter.CheckRequest(2))
	require.False(t, limiter.CheckRequest(1))
}

func TestRateLimiterSlidingWindowIgnoresCost(t *testing.T) {
	t.Parallel()
	limiter := NewRateLimiter(AlgorithmConfig{
		Kind:          AlgorithmSlidingWindow,
		SlidingWindow: SlidingWindowConfig{WindowSize: 60, MaxRequests: 3, SubWindows: 3},
	})
	require.Equal(t, AlgorithmSlidingWindow, limiter.Algorithm())

	// Each call accounts one request regardless of the cost argument.
	require.True(t, limiter.CheckRequest(1000))
	require.True(t, limiter.CheckRequest(1000))
	require.True(t, limiter.CheckRequest(1000))
	require.False(t, limiter.CheckRequest(1))
}

func TestRateLimiterSameFamilyUpdateKeepsState(t *testing.T) {
	t.Parallel()
	limiter := NewRateLimiter(AlgorithmConfig{
		Kind:        AlgorithmTokenBucket,
		TokenBucket: TokenBucketConfig{Capacity: 10, RefillRate: 0.001, InitialTokens: 10},
	})
	require.True(t, limiter.CheckRequest(10))

	limiter.UpdateConfig(AlgorithmConfig{
		Kind:        AlgorithmTokenBucket,
		TokenBucket: TokenBucketConfig{Capacity: 10, RefillRate: 0.001},
	})
	// The bucket stayed drained through the reconfigure.
	require.False(t, limiter.CheckRequest(1))
}

func TestRateLimiterFamilyChangeRebuilds(t *testing.T) {
	t.Parallel()
	limiter := NewRateLimiter(AlgorithmConfig{
		Kind:        AlgorithmTokenBucket,
		TokenBucket: TokenBucketConfig{Capacity: 1, RefillRate: 0.001, InitialTokens: 1},
	})
	require.True(t, limiter.CheckRequest(1))
	require.False(t, limiter.CheckRequest(1))

	limiter.UpdateConfig(AlgorithmConfig{
		Kind:          AlgorithmSlidingWindow,
		SlidingWindow: SlidingWindowConfig{WindowSize: 60, MaxRequests: 2, SubWindows: 2},
	})
	require.Equal(t, AlgorithmSlidingWindow, limiter.Algorithm())
	// A family change starts from a fresh budget.
	require.True(t, limiter.CheckRequest(1))
	require.True(t, limiter.CheckRequest(1))
	require.False(t, limiter.CheckRequest(1))
}
