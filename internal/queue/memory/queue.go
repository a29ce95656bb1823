// Package memory provides the bounded in-memory submission queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/pagesnap/internal/snapshot"
)

// Queue is a bounded in-memory queue with context-aware operations.
// Enqueue never blocks: a full queue surfaces as ErrQueueFull so the
// submitter can fail the capture instead of hanging a request.
type Queue struct {
	mu     sync.RWMutex
	ch     chan snapshot.Submission
	closed bool
}

// NewQueue constructs a queue with the provided capacity. Capacity is
// clamped to at least one slot.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ch: make(chan snapshot.Submission, capacity),
	}
}

// Enqueue pushes a submission into the queue.
func (q *Queue) Enqueue(ctx context.Context, sub snapshot.Submission) error {
	// The read lock keeps Close from closing the channel mid-send.
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return snapshot.ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- sub:
		return nil
	default:
		return snapshot.ErrQueueFull
	}
}

// Dequeue pops the next submission, respecting context cancellation.
// After Close it keeps yielding buffered submissions until the queue
// drains, then returns ErrQueueClosed.
func (q *Queue) Dequeue(ctx context.Context) (snapshot.Submission, error) {
	select {
	case <-ctx.Done():
		return snapshot.Submission{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case sub, ok := <-q.ch:
		if !ok {
			return snapshot.Submission{}, snapshot.ErrQueueClosed
		}
		return sub, nil
	}
}

// Close stops accepting submissions. Safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
