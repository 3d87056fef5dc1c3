package txn

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Queue is a non-blocking MPMC FIFO. Push never blocks; Pop reports
// whether an item was available. Ordering is preserved per producer but
// not globally. The three queues the scheduler hands transactions
// through (requests, completed, results) are all instances of this
// type.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
}

// NewQueue builds an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Push appends an item. Never blocks.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
}

// Pop removes and returns the oldest item, or the zero value and false
// if the queue is empty.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	v := q.items[0]
	q.items = q.items[1:]
	return v, true
}

// Len reports the current queue depth.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// pollLimiter bounds how often a PopWait loop is allowed to retry an
// empty queue, replacing the source's literal sleep(0.000001) between
// polls with a token-bucket backoff. One limiter is shared by every
// PopWait caller in the process: the point is to cap wasted spins on an
// idle system, not to rate-limit any single consumer.
var pollLimiter = rate.NewLimiter(rate.Limit(200_000), 1)

// PopWait blocks (spinning under the poll limiter) until an item is
// available or ctx is done.
func (q *Queue[T]) PopWait(ctx context.Context) (T, bool) {
	for {
		if v, ok := q.Pop(); ok {
			return v, true
		}
		if err := pollLimiter.Wait(ctx); err != nil {
			var zero T
			return zero, false
		}
	}
}

// idleBackoff is shared by every multi-queue scheduler loop: when a
// pass finds nothing to do in any of its queues, it yields under the
// poll limiter instead of spinning. Returns false once ctx is done.
func idleBackoff(ctx context.Context) bool {
	return pollLimiter.Wait(ctx) == nil
}
