// Package dispatcher owns the browser-run worker pool and the submission side
// of its queue.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/worker"
)

var errMissingJobID = errors.New("browser run has no job id")

// Dispatcher accepts browser runs and fans them out to its workers.
type Dispatcher struct {
	queue   lead.Queue
	workers []*worker.Worker
	logger  *zap.Logger
}

// New creates a Dispatcher over queue. workers may be empty when runs are
// only submitted from this process.
func New(queue lead.Queue, workers []*worker.Worker, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		logger:  logger,
	}
}

// Run starts the workers and blocks until all of them have stopped, either
// because ctx ended or because the queue was closed.
func (d *Dispatcher) Run(ctx context.Context) {
	if len(d.workers) == 0 {
		d.logger.Warn("no browser workers configured, submitted runs will wait")
		<-ctx.Done()
		return
	}
	var wg sync.WaitGroup
	for i, w := range d.workers {
		wg.Go(func() {
			w.Run(ctx)
			d.logger.Debug("browser worker stopped", zap.Int("worker", i))
		})
	}
	wg.Wait()
}

// Enqueue queues a browser run for the pool. lead.ErrQueueFull and
// lead.ErrQueueClosed stay matchable with errors.Is.
func (d *Dispatcher) Enqueue(ctx context.Context, item lead.QueueItem) error {
	if item.JobID == "" {
		return errMissingJobID
	}
	if strings.TrimSpace(item.Params.Query) == "" {
		return fmt.Errorf("browser run %s: empty query", item.JobID)
	}
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue browser run %s: %w", item.JobID, err)
	}
	d.logger.Debug("browser run queued",
		zap.String("job_id", item.JobID),
		zap.String("query", item.Params.Query),
		zap.Int("max_results", item.Params.MaxResults),
	)
	return nil
}
