package service

import (
	"context"
	"sync"
)

// SubmissionQueue admits proof submissions one at a time, in the order callers
// arrive. Every submission spends a nonce of the same relayer account, so two
// concurrent submissions would race for it.
type SubmissionQueue struct {
	mu      sync.Mutex
	busy    bool
	waiters []chan struct{}
}

// Do waits for the queue, runs fn and releases the queue to the next caller.
// A caller whose ctx ends while waiting leaves the queue without running fn.
func (q *SubmissionQueue) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := q.acquire(ctx); err != nil {
		return err
	}
	defer q.release()
	return fn(ctx)
}

// Waiting is the number of callers queued behind the one in flight.
func (q *SubmissionQueue) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}

func (q *SubmissionQueue) acquire(ctx context.Context) error {
	q.mu.Lock()
	if !q.busy {
		q.busy = true
		q.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	q.waiters = append(q.waiters, ready)
	q.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		q.mu.Lock()
		for i, w := range q.waiters {
			if w == ready {
				q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
				q.mu.Unlock()
				return ctx.Err()
			}
		}
		q.mu.Unlock()
		// The slot was handed over just as ctx ended; pass it on.
		q.release()
		return ctx.Err()
	}
}

func (q *SubmissionQueue) release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.waiters) == 0 {
		q.busy = false
		return
	}
	next := q.waiters[0]
	q.waiters = q.waiters[1:]
	close(next)
}
