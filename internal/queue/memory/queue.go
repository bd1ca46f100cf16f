// Package memory provides the in-process browser-run queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/metrics"
)

// Queue holds submitted browser runs until a worker is free. Submissions
// never block.
type Queue struct {
	mu     sync.RWMutex
	closed bool
	runs   chan lead.QueueItem
}

// NewQueue returns a queue holding at most depth waiting runs.
func NewQueue(depth int) *Queue {
	if depth < 1 {
		depth = 1
	}
	return &Queue{runs: make(chan lead.QueueItem, depth)}
}

// Enqueue adds a run. It fails with lead.ErrQueueFull or lead.ErrQueueClosed
// instead of waiting.
func (q *Queue) Enqueue(ctx context.Context, item lead.QueueItem) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", item.JobID, err)
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		metrics.ObserveQueueRejection("closed")
		return lead.ErrQueueClosed
	}
	select {
	case q.runs <- item:
		metrics.SetQueueDepth(len(q.runs))
		return nil
	default:
		metrics.ObserveQueueRejection("full")
		return lead.ErrQueueFull
	}
}

// Dequeue waits for the next run. Runs still waiting at Close are handed out
// before lead.ErrQueueClosed is returned.
func (q *Queue) Dequeue(ctx context.Context) (lead.QueueItem, error) {
	select {
	case <-ctx.Done():
		return lead.QueueItem{}, ctx.Err()
	case item, ok := <-q.runs:
		if !ok {
			return lead.QueueItem{}, lead.ErrQueueClosed
		}
		metrics.SetQueueDepth(len(q.runs))
		return item, nil
	}
}

// Len reports the number of waiting runs.
func (q *Queue) Len() int {
	return len(q.runs)
}

// Close stops accepting runs. It is safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.runs)
}
