package engine

import (
	"sync"
	"time"
)

// Aggregator accumulates delivery statistics. One instance exists per
// group and one process-wide; both are updated after every operation.
type Aggregator struct {
	mu       sync.Mutex
	busy     time.Duration
	requests int
	errors   int
	ops      int
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Record adds one finished operation. elapsed is measured from enqueue
// so it includes queue wait.
func (a *Aggregator) Record(elapsed time.Duration, requests, errors int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.busy += elapsed
	a.requests += requests
	a.errors += errors
	a.ops++
}

// Snapshot returns the totals accumulated so far.
func (a *Aggregator) Snapshot() (busy time.Duration, requests, errors, ops int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.busy, a.requests, a.errors, a.ops
}
