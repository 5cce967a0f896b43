package admission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestWindow(t *testing.T, cfg SlidingWindowConfig, clk *testClock) *SlidingWindow {
	t.Helper()
	window := NewSlidingWindow(cfg)
	window.now = clk.Now
	for i := range window.slots {
		window.slots[i] = windowSlot{start: clk.Now()}
	}
	return window
}

func TestSlidingWindowInclusiveCeiling(t *testing.T) {
	t.Parallel()
	clk := newTestClock()
	window := newTestWindow(t, SlidingWindowConfig{WindowSize: 10, MaxRequests: 3, SubWindows: 5}, clk)

	require.True(t, window.TryRequest())
	require.True(t, window.TryRequest())
	require.True(t, window.TryRequest())
	// The window already holds maxRequests, so the next request denies.
	require.False(t, window.TryRequest())
	require.False(t, window.TryRequest())
}

func TestSlidingWindowExpiryReadmits(t *testing.T) {
	t.Parallel()
	clk := newTestClock()
	window := newTestWindow(t, SlidingWindowConfig{WindowSize: 10, MaxRequests: 2, SubWindows: 2}, clk)

	require.True(t, window.TryRequest())
	require.True(t, window.TryRequest())
	require.False(t, window.TryRequest())

	clk.Advance(10 * time.Second)
	require.True(t, window.TryRequest())
}

func TestSlidingWindowSubWindowRotation(t *testing.T) {
	t.Parallel()
	clk := newTestClock()
	window := newTestWindow(t, SlidingWindowConfig{WindowSize: 10, MaxRequests: 5, SubWindows: 5}, clk)

	// One request per sub-window duration walks the cursor around the ring.
	for i := 0; i < 5; i++ {
		require.True(t, window.TryRequest())
		clk.Advance(2 * time.Second)
	}
	// Ten seconds after the first request, its slot has aged out, freeing
	// exactly one unit of budget.
	require.True(t, window.TryRequest())
	require.False(t, window.TryRequest())
}

func TestSlidingWindowDeniedRequestNotRecorded(t *testing.T) {
	t.Parallel()
	clk := newTestClock()
	window := newTestWindow(t, SlidingWindowConfig{WindowSize: 10, MaxRequests: 1, SubWindows: 1}, clk)

	require.True(t, window.TryRequest())
	for i := 0; i < 10; i++ {
		require.False(t, window.TryRequest())
	}
	// Denied attempts consumed nothing: once the original request ages out
	// the very next attempt is admitted.
	clk.Advance(10 * time.Second)
	require.True(t, window.TryRequest())
}

func TestSlidingWindowUpdateConfigCeilingOnly(t *testing.T) {
	t.Parallel()
	clk := newTestClock()
	window := newTestWindow(t, SlidingWindowConfig{WindowSize: 10, MaxRequests: 5, SubWindows: 5}, clk)

	require.True(t, window.TryRequest())
	require.True(t, window.TryRequest())

	// Lowering the ceiling below the live count denies immediately while
	// keeping the recorded history.
	window.UpdateConfig(SlidingWindowConfig{WindowSize: 10, MaxRequests: 2, SubWindows: 5})
	require.False(t, window.TryRequest())
	require.Equal(t, uint32(2), window.MaxRequests())
}

func TestSlidingWindowUpdateConfigResizesRing(t *testing.T) {
	t.Parallel()
	clk := newTestClock()
	window := newTestWindow(t, SlidingWindowConfig{WindowSize: 10, MaxRequests: 4, SubWindows: 2}, clk)

	require.True(t, window.TryRequest())
	window.UpdateConfig(SlidingWindowConfig{WindowSize: 20, MaxRequests: 4, SubWindows: 4})

	require.Len(t, window.slots, 4)
	require.Equal(t, 0, window.cursor)
	require.Equal(t, 5*time.Second, window.slotSize)
}
