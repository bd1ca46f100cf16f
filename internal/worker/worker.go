// Package worker executes queued browser runs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/telemetry"
)

// Runner performs one browser run.
type Runner interface {
	Run(ctx context.Context, params lead.BrowserRunParams) (lead.BrowserRunResult, error)
}

// Config controls Worker behavior.
type Config struct {
	// Topic receives a browser_run.completed event per finished job. Empty disables publishing.
	Topic string
	// RunTimeout bounds a single run. Zero means no bound.
	RunTimeout time.Duration
}

// EventRunCompleted is the event type published when a job finishes.
const EventRunCompleted = "browser_run.completed"

// Worker consumes queue items and drives the browser collector.
type Worker struct {
	queue     lead.Queue
	jobStore  lead.JobStore
	runner    Runner
	publisher lead.Publisher
	clock     lead.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(
	queue lead.Queue,
	jobStore lead.JobStore,
	runner Runner,
	publisher lead.Publisher,
	clock lead.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     queue,
		jobStore:  jobStore,
		runner:    runner,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes or the queue
// is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, lead.ErrQueueClosed) {
				w.logger.Info("browser run queue closed, worker stopping")
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item lead.QueueItem) {
	ctx, span := telemetry.Tracer("worker").Start(ctx, "browser_run",
		trace.WithAttributes(
			attribute.String("job_id", item.JobID),
			attribute.String("query", item.Params.Query),
		),
	)
	defer span.End()
	logger := w.logger.With(zap.String("job_id", item.JobID), zap.String("query", item.Params.Query))
	if w.runner == nil {
		logger.Error("no browser runner configured")
		if err := w.jobStore.UpdateJob(ctx, item.JobID, lead.JobStatusFailed, "no browser runner configured", nil); err != nil {
			logger.Error("fail job status update", zap.Error(err))
		}
		return
	}
	if err := w.jobStore.UpdateJob(ctx, item.JobID, lead.JobStatusRunning, "", nil); err != nil {
		logger.Error("update job status failed", zap.Error(err))
		return
	}

	runCtx := ctx
	if w.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.cfg.RunTimeout)
		defer cancel()
	}
	res, runErr := w.runner.Run(runCtx, item.Params)

	status, errText := deriveFinalStatus(runErr)
	// Shutdown must not leave the job stuck in running.
	finalCtx := context.WithoutCancel(ctx)
	if err := w.jobStore.UpdateJob(finalCtx, item.JobID, status, errText, &res); err != nil {
		logger.Error("final job status update failed", zap.Error(err))
	}
	span.SetAttributes(attribute.String("final_state", res.FinalState))
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "browser run failed")
		logger.Warn("browser run failed", zap.String("final_state", res.FinalState), zap.Error(runErr))
	} else {
		logger.Info("browser run finished",
			zap.Int64("batch_id", res.BatchID),
			zap.String("final_state", res.FinalState),
			zap.Int("inserted", res.Writes.Inserted),
			zap.Int("updated", res.Writes.Updated),
		)
	}

	if err := w.publishResult(finalCtx, item.JobID, status, res); err != nil {
		logger.Warn("publish run result failed", zap.Error(err))
	}
}

func (w *Worker) publishResult(ctx context.Context, jobID string, status lead.JobStatus, res lead.BrowserRunResult) error {
	if w.cfg.Topic == "" || w.publisher == nil {
		return nil
	}
	payload := map[string]any{
		"type":        EventRunCompleted,
		"job_id":      jobID,
		"status":      string(status),
		"batch_id":    res.BatchID,
		"final_state": res.FinalState,
		"stop_reason": res.StopReason,
		"inserted":    res.Writes.Inserted,
		"updated":     res.Writes.Updated,
		"timestamp":   w.now().Format(time.RFC3339),
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, payload); err != nil {
		return fmt.Errorf("publish payload: %w", err)
	}
	return nil
}

func (w *Worker) now() time.Time {
	if w.clock == nil {
		return time.Now().UTC()
	}
	return w.clock.Now()
}

func deriveFinalStatus(runErr error) (lead.JobStatus, string) {
	if runErr != nil {
		return lead.JobStatusFailed, runErr.Error()
	}
	return lead.JobStatusSucceeded, ""
}
