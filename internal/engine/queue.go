package engine

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO of operations. Producers never block;
// each group has exactly one consuming worker.
type Queue struct {
	mu     sync.Mutex
	items  []*Operation
	closed bool
	wake   chan struct{}
}

func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// Put enqueues op. Operations put after Close are finished immediately
// so waiters do not hang on a stopped group.
func (q *Queue) Put(op *Operation) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		op.finish()
		return
	}
	q.items = append(q.items, op)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Close stops intake. Operations already queued stay available to Get
// so the worker drains them before exiting; only operations put after
// Close are finished unprocessed.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Get returns the next operation, blocking until one arrives. The
// second result is false once the queue is closed and drained, or ctx
// is done.
func (q *Queue) Get(ctx context.Context) (*Operation, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			op := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return op, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, false
		}

		select {
		case <-q.wake:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// Len reports the number of queued operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
