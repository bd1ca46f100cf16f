package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadscout/internal/lead"
	queueMemory "github.com/JakeFAU/leadscout/internal/queue/memory"
	"github.com/JakeFAU/leadscout/internal/storage/memory"
)

func TestWorker_ProcessJob_SuccessFlow(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	params := lead.BrowserRunParams{Query: "cerrajeros Guayaquil", MaxResults: 10}
	queue := &fakeQueue{items: []lead.QueueItem{{JobID: "job-success", Params: params}}}
	jobStore := newJobStore(t, "job-success", params)
	publisher := newFakePublisher()
	runner := &fakeRunner{result: lead.BrowserRunResult{
		BatchID:    7,
		FinalState: "DONE",
		Writes:     lead.WriteStats{Attempted: 3, Inserted: 2, Updated: 1},
	}}

	w := New(queue, jobStore, runner, publisher, fakeClock{now: time.Unix(100, 0).UTC()},
		Config{Topic: "leads"}, zap.NewNop())
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		return jobStatus(t, jobStore, "job-success") == lead.JobStatusSucceeded
	}, time.Second, 10*time.Millisecond)

	job, err := jobStore.GetJob(context.Background(), "job-success")
	require.NoError(t, err)
	require.NotNil(t, job.Started)
	require.NotNil(t, job.Finished)
	require.Empty(t, job.ErrorText)
	require.Equal(t, int64(7), job.Result.BatchID)
	require.Equal(t, []lead.BrowserRunParams{params}, runner.calls())

	require.Eventually(t, func() bool { return len(publisher.payloads()) == 1 }, time.Second, 10*time.Millisecond)
	msg := publisher.payloads()[0]
	require.Equal(t, EventRunCompleted, msg["type"])
	require.Equal(t, "job-success", msg["job_id"])
	require.Equal(t, 2, msg["inserted"])
	require.Equal(t, "1970-01-01T00:01:40Z", msg["timestamp"])
}

func TestWorker_ProcessJob_RunFailureMarksJobFailed(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	params := lead.BrowserRunParams{Query: "plomeros Quito"}
	queue := &fakeQueue{items: []lead.QueueItem{{JobID: "job-fail", Params: params}}}
	jobStore := newJobStore(t, "job-fail", params)
	runner := &fakeRunner{
		result: lead.BrowserRunResult{BatchID: 3, FinalState: "FAILED", ArtifactURI: "memory://debug/3/searching.png"},
		err:    errors.New("search input not found"),
	}

	w := New(queue, jobStore, runner, nil, nil, Config{Topic: "leads"}, zap.NewNop())
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		return jobStatus(t, jobStore, "job-fail") == lead.JobStatusFailed
	}, time.Second, 10*time.Millisecond)

	job, err := jobStore.GetJob(context.Background(), "job-fail")
	require.NoError(t, err)
	require.Equal(t, "search input not found", job.ErrorText)
	require.Equal(t, "memory://debug/3/searching.png", job.Result.ArtifactURI)
}

func TestWorker_ProcessJob_PublishFailureKeepsJobSucceeded(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	params := lead.BrowserRunParams{Query: "q"}
	queue := &fakeQueue{items: []lead.QueueItem{{JobID: "job-pub", Params: params}}}
	jobStore := newJobStore(t, "job-pub", params)
	publisher := newFakePublisher()
	publisher.err = errors.New("pubsub down")

	w := New(queue, jobStore, &fakeRunner{result: lead.BrowserRunResult{FinalState: "DONE"}}, publisher, nil,
		Config{Topic: "leads"}, zap.NewNop())
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		return jobStatus(t, jobStore, "job-pub") == lead.JobStatusSucceeded
	}, time.Second, 10*time.Millisecond)
}

func TestWorker_ProcessJob_NoRunner(t *testing.T) {
	t.Parallel()

	jobStore := newJobStore(t, "job-none", lead.BrowserRunParams{Query: "q"})
	w := New(nil, jobStore, nil, nil, nil, Config{}, zap.NewNop())
	w.processJob(context.Background(), lead.QueueItem{JobID: "job-none"})

	job, err := jobStore.GetJob(context.Background(), "job-none")
	require.NoError(t, err)
	require.Equal(t, lead.JobStatusFailed, job.Status)
	require.Equal(t, "no browser runner configured", job.ErrorText)
}

func TestWorker_ProcessJob_AppliesRunTimeout(t *testing.T) {
	t.Parallel()

	jobStore := newJobStore(t, "job-slow", lead.BrowserRunParams{Query: "q"})
	runner := &fakeRunner{block: true}
	w := New(nil, jobStore, runner, nil, nil, Config{RunTimeout: 20 * time.Millisecond}, zap.NewNop())
	w.processJob(context.Background(), lead.QueueItem{JobID: "job-slow"})

	job, err := jobStore.GetJob(context.Background(), "job-slow")
	require.NoError(t, err)
	require.Equal(t, lead.JobStatusFailed, job.Status)
	require.Contains(t, job.ErrorText, "deadline exceeded")
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	w := New(&fakeQueue{}, memory.NewJobStore(), &fakeRunner{}, nil, nil, Config{}, zap.NewNop())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestWorkerRunDrainsAndStopsWhenQueueCloses(t *testing.T) {
	t.Parallel()

	params := lead.BrowserRunParams{Query: "cerrajeros Cuenca", MaxResults: 3}
	store := newJobStore(t, "job-1", params)
	q := queueMemory.NewQueue(2)
	require.NoError(t, q.Enqueue(context.Background(), lead.QueueItem{JobID: "job-1", Params: params}))
	q.Close()

	runner := &fakeRunner{}
	w := New(q, store, runner, nil, nil, Config{}, zap.NewNop())
	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker kept running after the queue closed")
	}
	require.Equal(t, lead.JobStatusSucceeded, jobStatus(t, store, "job-1"))
}

func newJobStore(t *testing.T, id string, params lead.BrowserRunParams) *memory.JobStore {
	t.Helper()
	store := memory.NewJobStore()
	require.NoError(t, store.CreateJob(context.Background(), lead.Job{ID: id, Status: lead.JobStatusQueued, Params: params}))
	return store
}

func jobStatus(t *testing.T, store *memory.JobStore, id string) lead.JobStatus {
	t.Helper()
	job, err := store.GetJob(context.Background(), id)
	require.NoError(t, err)
	return job.Status
}

type fakeQueue struct {
	mu    sync.Mutex
	items []lead.QueueItem
}

func (q *fakeQueue) Enqueue(_ context.Context, job lead.QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, job)
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context) (lead.QueueItem, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return lead.QueueItem{}, fmt.Errorf("queue dequeue context done: %w", ctx.Err())
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

type fakeRunner struct {
	mu     sync.Mutex
	params []lead.BrowserRunParams
	result lead.BrowserRunResult
	err    error
	block  bool
}

func (r *fakeRunner) Run(ctx context.Context, params lead.BrowserRunParams) (lead.BrowserRunResult, error) {
	r.mu.Lock()
	r.params = append(r.params, params)
	r.mu.Unlock()
	if r.block {
		<-ctx.Done()
		return lead.BrowserRunResult{FinalState: "FAILED"}, ctx.Err()
	}
	return r.result, r.err
}

func (r *fakeRunner) calls() []lead.BrowserRunParams {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]lead.BrowserRunParams(nil), r.params...)
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []map[string]any
	err      error
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{}
}

func (p *fakePublisher) Publish(_ context.Context, _ string, payload any) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := payload.(map[string]any); ok {
		p.messages = append(p.messages, m)
	}
	return "msgid", nil
}

func (p *fakePublisher) payloads() []map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]map[string]any(nil), p.messages...)
}

type fakeClock struct {
	now time.Time
}

func (c fakeClock) Now() time.Time { return c.now }
