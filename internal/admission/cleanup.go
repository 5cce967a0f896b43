// Package admission provides the periodic limiter cleanup loop.
package admission

import (
	"context"
	"errors"
	"time"
)

// CleanupLoop reclaims limiters for deconfigured endpoints on a fixed
// interval. The interval defaults to five minutes.
type CleanupLoop struct {
	manager  *Manager
	interval time.Duration
	metrics  Metrics
}

// NewCleanupLoop constructs a cleanup loop for the manager.
func NewCleanupLoop(manager *Manager, interval time.Duration, metrics Metrics) *CleanupLoop {
	return &CleanupLoop{manager: manager, interval: interval, metrics: metrics}
}

// Start begins the cleanup loop and blocks until ctx is done.
func (c *CleanupLoop) Start(ctx context.Context) error {
	if c == nil || c.manager == nil {
		return errors.New("cleanup loop is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	interval := c.interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			start := time.Now()
			c.manager.CleanupUnusedLimiters()
			if c.metrics != nil {
				c.metrics.ObserveLatency("cleanup", time.Since(start))
			}
		}
	}
}
