// Package textsearch collects leads from the Places Text Search API one
// result page at a time.
package textsearch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/metrics"
	"github.com/JakeFAU/leadscout/internal/places"
	"github.com/JakeFAU/leadscout/internal/policy/qualify"
)

// ErrEmptyQuery is returned when no search text is supplied.
var ErrEmptyQuery = errors.New("query is required")

// Config controls Collector behavior.
type Config struct {
	PageSize int
}

// Result summarizes one page.
type Result struct {
	Found      int             `json:"found"`
	Qualified  int             `json:"qualified"`
	Skipped    int             `json:"skipped"`
	Writes     lead.WriteStats `json:"writes"`
	Rejections lead.Rejections `json:"rejection_breakdown"`
	NextToken  string          `json:"next_continuation_token,omitempty"`
}

// Collector fetches a page of places, qualifies them, and upserts the survivors.
type Collector struct {
	client places.Client
	store  lead.Upserter
	policy qualify.Policy
	cfg    Config
	logger *zap.Logger
}

// New constructs a Collector.
func New(client places.Client, store lead.Upserter, policy qualify.Policy, cfg Config, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = places.DefaultPageSize
	}
	return &Collector{
		client: client,
		store:  store,
		policy: policy,
		cfg:    cfg,
		logger: logger,
	}
}

// Collect runs one search call. If the API call fails nothing is written and
// the *places.APIError (or transport error) is returned wrapped. Per-record
// write failures are counted in Result.Writes and never abort the page.
func (c *Collector) Collect(ctx context.Context, query, token string) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, ErrEmptyQuery
	}

	resp, err := c.client.SearchText(ctx, places.SearchRequest{
		Query:     query,
		PageSize:  c.cfg.PageSize,
		PageToken: token,
	})
	if err != nil {
		return Result{}, fmt.Errorf("search %q: %w", query, err)
	}

	res := Result{
		Found:     len(resp.Places),
		NextToken: resp.NextPageToken,
	}
	leads := make([]lead.Lead, 0, len(resp.Places))
	seen := make(map[string]struct{}, len(resp.Places))
	for _, place := range resp.Places {
		candidate := place.Candidate()
		if candidate.ExternalID == "" {
			res.Skipped++
			c.logger.Debug("place without id skipped", zap.String("name", candidate.Name))
			continue
		}
		if _, dup := seen[candidate.ExternalID]; dup {
			res.Skipped++
			continue
		}
		seen[candidate.ExternalID] = struct{}{}

		reason := c.policy.RejectionReason(candidate)
		if reason != lead.RejectionNone {
			res.Rejections.Add(reason)
			metrics.ObserveCandidate(string(lead.SourcePlacesAPI), string(reason))
			continue
		}
		res.Qualified++
		metrics.ObserveCandidate(string(lead.SourcePlacesAPI), "qualified")
		leads = append(leads, lead.FromCandidate(candidate, lead.SourcePlacesAPI, query, nil))
	}

	writes, err := lead.UpsertAll(ctx, c.store, leads, c.logger)
	res.Writes = writes
	metrics.ObserveWrites(string(lead.SourcePlacesAPI), writes.Inserted, writes.Updated, writes.Failed)
	if err != nil {
		return res, fmt.Errorf("upsert page: %w", err)
	}

	c.logger.Info("places page collected",
		zap.String("query", query),
		zap.Bool("continued", token != ""),
		zap.Int("found", res.Found),
		zap.Int("qualified", res.Qualified),
		zap.Int("inserted", writes.Inserted),
		zap.Int("updated", writes.Updated),
		zap.Int("failed", writes.Failed),
		zap.Bool("has_next", res.NextToken != ""),
	)
	return res, nil
}
