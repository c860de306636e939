// Package memory provides the in-process run queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/atlas-jobs/internal/jobs"
)

// Queue is a bounded in-memory queue with context-aware operations. Close
// stops new enqueues; requests already queued can still be drained.
type Queue struct {
	ch        chan jobs.RunRequest
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue constructs a queue holding up to capacity pending runs.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ch:   make(chan jobs.RunRequest, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes a request, waiting for room until the context ends.
func (q *Queue) Enqueue(ctx context.Context, req jobs.RunRequest) error {
	select {
	case <-q.done:
		return jobs.ErrQueueClosed
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return jobs.ErrQueueClosed
	case q.ch <- req:
		return nil
	}
}

// Dequeue pops the next request, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (jobs.RunRequest, error) {
	select {
	case req := <-q.ch:
		return req, nil
	default:
	}
	select {
	case <-ctx.Done():
		return jobs.RunRequest{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case req := <-q.ch:
		return req, nil
	case <-q.done:
		select {
		case req := <-q.ch:
			return req, nil
		default:
			return jobs.RunRequest{}, jobs.ErrQueueClosed
		}
	}
}

// Len reports the number of pending requests.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops the queue. It is safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}
