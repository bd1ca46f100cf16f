// Package scan drives the Places collector across continuation pages.
package scan

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadscout/internal/collector/textsearch"
	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/metrics"
	"github.com/JakeFAU/leadscout/internal/telemetry"
)

// DefaultPageBudget caps a deep scan.
const DefaultPageBudget = 5

// PageCollector fetches and persists one result page.
type PageCollector interface {
	Collect(ctx context.Context, query, token string) (textsearch.Result, error)
}

// Config controls Orchestrator behavior.
type Config struct {
	PageBudget int `mapstructure:"page_budget"`
}

// Request is one scan invocation.
type Request struct {
	Query             string `json:"query"`
	ContinuationToken string `json:"continuation_token,omitempty"`
	DeepScan          bool   `json:"deep_scan,omitempty"`
}

// Summary aggregates the pages of a scan. Inserted counts rows written,
// new or refreshed; New and Updated split it.
type Summary struct {
	Found      int             `json:"found"`
	Qualified  int             `json:"qualified"`
	Inserted   int             `json:"inserted"`
	New        int             `json:"new"`
	Updated    int             `json:"updated"`
	Failed     int             `json:"failed"`
	Pages      int             `json:"pages"`
	Rejections lead.Rejections `json:"rejection_breakdown"`
	NextToken  string          `json:"next_continuation_token,omitempty"`
}

func (s *Summary) add(res textsearch.Result) {
	s.Pages++
	s.Found += res.Found
	s.Qualified += res.Qualified
	s.Inserted += res.Writes.Succeeded()
	s.New += res.Writes.Inserted
	s.Updated += res.Writes.Updated
	s.Failed += res.Writes.Failed
	s.Rejections.Merge(res.Rejections)
}

// Orchestrator runs single or deep scans.
type Orchestrator struct {
	pages  PageCollector
	cfg    Config
	logger *zap.Logger
}

// New constructs an Orchestrator.
func New(pages PageCollector, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PageBudget <= 0 {
		cfg.PageBudget = DefaultPageBudget
	}
	return &Orchestrator{pages: pages, cfg: cfg, logger: logger}
}

// Run collects the first page and, for deep scans, follows continuation
// tokens until none is returned or the page budget is spent. The token for
// the next unfetched page is surfaced in Summary.NextToken.
//
// A failing page stops the scan. The returned Summary then covers only the
// pages that completed, and NextToken is the token of the failed page so the
// caller can resume.
func (o *Orchestrator) Run(ctx context.Context, req Request) (sum Summary, err error) {
	if strings.TrimSpace(req.Query) == "" {
		return sum, textsearch.ErrEmptyQuery
	}
	ctx, span := telemetry.Tracer("scan").Start(ctx, "scan",
		trace.WithAttributes(
			attribute.String("query", req.Query),
			attribute.Bool("deep", req.DeepScan),
		),
	)
	defer func() {
		span.SetAttributes(attribute.Int("pages", sum.Pages), attribute.Int("found", sum.Found))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "scan failed")
		}
		span.End()
	}()
	budget := 1
	if req.DeepScan {
		budget = o.cfg.PageBudget
	}

	token := req.ContinuationToken
	for sum.Pages < budget {
		if err := ctx.Err(); err != nil {
			sum.NextToken = token
			return sum, fmt.Errorf("scan canceled: %w", err)
		}
		res, err := o.pages.Collect(ctx, req.Query, token)
		if err != nil {
			sum.NextToken = token
			o.logger.Warn("scan page failed",
				zap.String("query", req.Query),
				zap.Int("completed_pages", sum.Pages),
				zap.Error(err),
			)
			return sum, err
		}
		sum.add(res)
		metrics.ObserveScanPage()
		token = res.NextToken
		if token == "" {
			break
		}
	}
	sum.NextToken = token

	o.logger.Info("scan finished",
		zap.String("query", req.Query),
		zap.Bool("deep", req.DeepScan),
		zap.Int("pages", sum.Pages),
		zap.Int("found", sum.Found),
		zap.Int("qualified", sum.Qualified),
		zap.Int("inserted", sum.Inserted),
		zap.Bool("has_next", sum.NextToken != ""),
	)
	return sum, nil
}
