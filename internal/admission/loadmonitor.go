// Package admission provides periodic load-based limit adjustment.
package admission

import (
	"context"
	"errors"
	"runtime"
	"time"
)

// LoadSource produces the multiplier the manager should run at. Values below
// 1.0 tighten every budget; 1.0 is normal operation.
type LoadSource interface {
	Sample() float64
}

// FixedLoadSource always reports the same multiplier.
type FixedLoadSource float64

// Sample returns the fixed multiplier.
func (f FixedLoadSource) Sample() float64 {
	return float64(f)
}

// GoroutineLoadSource derives a multiplier from the goroutine population, a
// cheap proxy for in-flight work on the gateway. Below the ceiling the
// multiplier is 1.0; past it the multiplier shrinks toward the clamp floor.
type GoroutineLoadSource struct {
	Ceiling int
}

// Sample computes the current multiplier.
func (g GoroutineLoadSource) Sample() float64 {
	ceiling := g.Ceiling
	if ceiling <= 0 {
		ceiling = 10000
	}
	n := runtime.NumGoroutine()
	if n <= ceiling {
		return 1.0
	}
	return float64(ceiling) / float64(n)
}

// LoadMonitor periodically samples a LoadSource and applies the result to the
// manager.
type LoadMonitor struct {
	manager  *Manager
	source   LoadSource
	interval time.Duration
	logger   Logger
}

// NewLoadMonitor constructs a monitor for the manager.
func NewLoadMonitor(manager *Manager, source LoadSource, interval time.Duration, logger Logger) *LoadMonitor {
	return &LoadMonitor{manager: manager, source: source, interval: interval, logger: logger}
}

// Start begins the sampling loop and blocks until ctx is done.
func (lm *LoadMonitor) Start(ctx context.Context) error {
	if lm == nil || lm.manager == nil || lm.source == nil {
		return errors.New("load monitor is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	interval := lm.interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			lm.manager.UpdateLoadMultiplier(lm.source.Sample())
		}
	}
}
