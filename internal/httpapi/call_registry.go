package httpapi

import (
	"sync"
	"sync/atomic"
)

// CallRegistry counts media streams in flight so a shutdown can drain them.
// Once draining, /start and /ws are refused while live calls run to the end.
//
// mu makes the draining check and wg.Add in Add a single step; otherwise
// StartDraining followed by Wait could slip in between them.
type CallRegistry struct {
	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
	count    atomic.Int64
}

func NewCallRegistry() *CallRegistry {
	return &CallRegistry{}
}

// Add registers a new stream. It returns false once draining has started.
func (cr *CallRegistry) Add() bool {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	if cr.draining {
		return false
	}
	cr.wg.Add(1)
	cr.count.Add(1)
	return true
}

// Done marks a call as completed. Must be called exactly once per successful Add.
func (cr *CallRegistry) Done() {
	cr.count.Add(-1)
	cr.wg.Done()
}

// StartDraining sets the draining flag so that future Add calls return false.
// No Add succeeds after StartDraining returns.
func (cr *CallRegistry) StartDraining() {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	cr.draining = true
}

// IsDraining reports whether the registry is in draining mode.
func (cr *CallRegistry) IsDraining() bool {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return cr.draining
}

// ActiveCount returns the number of currently active calls.
func (cr *CallRegistry) ActiveCount() int64 {
	return cr.count.Load()
}

// Wait blocks until all active calls have completed (all Done calls matched Add calls).
func (cr *CallRegistry) Wait() {
	cr.wg.Wait()
}
