// Package admission provides in-flight tracking for graceful drains.
package admission

import (
	"context"
	"sync"
	"sync/atomic"
)

// InFlight tracks requests the ops transport is still serving so shutdown
// can wait for them instead of cutting connections.
type InFlight struct {
	n        atomic.Int64
	closed   atomic.Bool
	done     chan struct{}
	doneOnce sync.Once
}

// NewInFlight constructs an InFlight tracker.
func NewInFlight() *InFlight {
	return &InFlight{done: make(chan struct{})}
}

// Begin registers a request. It returns false once draining has started.
func (f *InFlight) Begin() bool {
	if f == nil || f.closed.Load() {
		return false
	}
	f.n.Add(1)
	if f.closed.Load() {
		f.End()
		return false
	}
	return true
}

// End marks a request as complete.
func (f *InFlight) End() {
	if f == nil {
		return
	}
	if f.n.Add(-1) == 0 && f.closed.Load() {
		f.doneOnce.Do(func() { close(f.done) })
	}
}

// Close rejects new requests; Wait unblocks when the last one ends.
func (f *InFlight) Close() {
	if f == nil {
		return
	}
	if !f.closed.CompareAndSwap(false, true) {
		return
	}
	if f.n.Load() == 0 {
		f.doneOnce.Do(func() { close(f.done) })
	}
}

// Wait blocks until drained or ctx is done.
func (f *InFlight) Wait(ctx context.Context) error {
	if f == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
