package lead

import (
	"context"
	"io"
	"time"
)

// Upserter writes a lead keyed by external id.
type Upserter interface {
	Upsert(ctx context.Context, l Lead) (UpsertOutcome, error)
}

// BatchRecorder persists browser-run batches.
type BatchRecorder interface {
	CreateBatch(ctx context.Context, queryText string) (int64, error)
	CompleteBatch(ctx context.Context, id int64, resultCount int) error
}

// Store is the full lead persistence surface.
type Store interface {
	Upserter
	BatchRecorder
	Find(ctx context.Context, f Filter) (Page, error)
	DistinctCountries(ctx context.Context) ([]string, error)
	Update(ctx context.Context, id int64, p Patch) error
}

// JobStore persists browser-run job metadata.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJob(ctx context.Context, jobID string, status JobStatus, errText string, result *BrowserRunResult) error
	GetJob(ctx context.Context, jobID string) (Job, error)
}

// Queue provides enqueue/dequeue semantics for browser runs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Publisher pushes domain events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore writes debug artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
