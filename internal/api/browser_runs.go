package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadscout/internal/lead"
)

type browserRunRequest struct {
	Query      string `json:"query"`
	MaxResults *int   `json:"max_results"`
}

func (s *Server) submitBrowserRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil || s.deps.Jobs == nil {
		s.writeError(w, http.StatusServiceUnavailable, "browser runs not configured")
		return
	}
	var req browserRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	params := lead.BrowserRunParams{
		Query:      strings.TrimSpace(req.Query),
		MaxResults: valueOrDefault(req.MaxResults, s.deps.DefaultMaxResults),
	}
	if params.Query == "" {
		s.writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if params.MaxResults < 0 {
		s.writeError(w, http.StatusBadRequest, "max_results must be >= 0")
		return
	}

	jobID, err := s.enqueueRun(r.Context(), params)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, lead.ErrQueueFull) || errors.Is(err, lead.ErrQueueClosed) {
			status = http.StatusServiceUnavailable
		}
		s.logger.Error("enqueue browser run failed", zap.String("query", params.Query), zap.Error(err))
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) getBrowserRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		s.writeError(w, http.StatusServiceUnavailable, "browser runs not configured")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	job, err := s.deps.Jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, lead.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) enqueueRun(ctx context.Context, params lead.BrowserRunParams) (string, error) {
	jobID, err := s.deps.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	now := s.now()
	job := lead.Job{
		ID:        jobID,
		Status:    lead.JobStatusQueued,
		Params:    params,
		Submitted: now,
	}
	if err := s.deps.Jobs.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	item := lead.QueueItem{
		JobID:     jobID,
		Params:    params,
		Submitted: now.Unix(),
	}
	if err := s.deps.Runs.Enqueue(ctx, item); err != nil {
		if uerr := s.deps.Jobs.UpdateJob(context.WithoutCancel(ctx), jobID, lead.JobStatusFailed, "enqueue failed", nil); uerr != nil {
			s.logger.Warn("mark job failed", zap.String("job_id", jobID), zap.Error(uerr))
		}
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return jobID, nil
}

func (s *Server) now() time.Time {
	if s.deps.Clock == nil {
		return time.Now().UTC()
	}
	return s.deps.Clock.Now()
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}
