package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/leadscout/internal/lead"
)

// JobStore keeps browser-run jobs in memory.
type JobStore struct {
	mu   sync.RWMutex
	now  func() time.Time
	jobs map[string]lead.Job
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		now:  func() time.Time { return time.Now().UTC() },
		jobs: make(map[string]lead.Job),
	}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job lead.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateJob records a status transition and, when given, the run result.
func (s *JobStore) UpdateJob(
	_ context.Context,
	jobID string,
	status lead.JobStatus,
	errText string,
	result *lead.BrowserRunResult,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return lead.ErrNotFound
	}
	job.Status = status
	job.ErrorText = errText
	if result != nil {
		r := *result
		job.Result = &r
	}
	now := s.now()
	if status == lead.JobStatusRunning && job.Started == nil {
		job.Started = pointerTime(now)
	}
	if isTerminal(status) {
		job.Finished = pointerTime(now)
	}
	s.jobs[jobID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (lead.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return lead.Job{}, lead.ErrNotFound
	}
	return job, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

func isTerminal(status lead.JobStatus) bool {
	switch status {
	case lead.JobStatusSucceeded, lead.JobStatusFailed:
		return true
	default:
		return false
	}
}
