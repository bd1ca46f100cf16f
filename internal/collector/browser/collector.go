// Package browser collects leads by driving a headless browser against the
// Google Maps web UI. A run is a bounded state machine:
//
//	INIT -> SEARCHING -> EXTRACTING -> SCROLLING -> (EXTRACTING | DONE | STUCK)
//
// Fatal failures (search input missing, results feed never rendering, the
// browser going away) end the run with FAILED and an error. DONE and STUCK
// are normal terminations that return whatever was collected.
package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/metrics"
	"github.com/JakeFAU/leadscout/internal/policy/qualify"
)

// State is a step of the run state machine.
type State string

// Run states.
const (
	StateInit       State = "INIT"
	StateSearching  State = "SEARCHING"
	StateExtracting State = "EXTRACTING"
	StateScrolling  State = "SCROLLING"
	StateDone       State = "DONE"
	StateStuck      State = "STUCK"
	StateFailed     State = "FAILED"
)

// Stop reasons recorded on normal termination.
const (
	StopMaxResults = "max_results_reached"
	StopCanceled   = "canceled"
)

// ErrEmptyQuery is returned when no search text is supplied.
var ErrEmptyQuery = errors.New("query is required")

// Defaults.
const (
	DefaultMaxResults      = 20
	DefaultStagnationBound = 10
	DefaultMapsURL         = "https://www.google.com/maps"
)

// Config controls a browser run.
type Config struct {
	MapsURL         string        `mapstructure:"maps_url"`
	MaxResults      int           `mapstructure:"max_results"`
	StagnationBound int           `mapstructure:"stagnation_bound"`
	SelectorTimeout time.Duration `mapstructure:"selector_timeout"`
	FeedTimeout     time.Duration `mapstructure:"feed_timeout"`
	ConsentTimeout  time.Duration `mapstructure:"consent_timeout"`
	DetailTimeout   time.Duration `mapstructure:"detail_timeout"`
	MinDelay        time.Duration `mapstructure:"min_delay"`
	MaxDelay        time.Duration `mapstructure:"max_delay"`
	Selectors       Selectors     `mapstructure:"selectors"`
}

func (c Config) withDefaults() Config {
	if c.MapsURL == "" {
		c.MapsURL = DefaultMapsURL
	}
	if c.MaxResults <= 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.StagnationBound <= 0 {
		c.StagnationBound = DefaultStagnationBound
	}
	if c.SelectorTimeout <= 0 {
		c.SelectorTimeout = 8 * time.Second
	}
	if c.FeedTimeout <= 0 {
		c.FeedTimeout = 9 * time.Second
	}
	if c.ConsentTimeout <= 0 {
		c.ConsentTimeout = 3 * time.Second
	}
	if c.DetailTimeout <= 0 {
		c.DetailTimeout = 5 * time.Second
	}
	if c.MaxDelay < c.MinDelay {
		c.MaxDelay = c.MinDelay
	}
	c.Selectors = c.Selectors.merge(DefaultSelectors())
	return c
}

// Store is the persistence the collector writes to.
type Store interface {
	lead.Upserter
	lead.BatchRecorder
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option customizes a Collector.
type Option func(*Collector)

// WithArtifacts stores a screenshot on fatal failures.
func WithArtifacts(store lead.BlobStore) Option {
	return func(c *Collector) {
		c.artifacts = store
	}
}

// WithSleep replaces the delay function used between interactions.
func WithSleep(fn SleepFunc) Option {
	return func(c *Collector) {
		c.sleep = fn
	}
}

// Collector runs browser sessions and persists qualified leads.
type Collector struct {
	launcher  Launcher
	store     Store
	policy    qualify.Policy
	artifacts lead.BlobStore
	cfg       Config
	logger    *zap.Logger
	sleep     SleepFunc
}

// New constructs a Collector.
func New(launcher Launcher, store Store, policy qualify.Policy, cfg Config, logger *zap.Logger, opts ...Option) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		launcher: launcher,
		store:    store,
		policy:   policy,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes one browser run. A batch is opened before the browser starts
// and completed with the number of leads written on every exit path. The
// browser session is always closed.
func (c *Collector) Run(ctx context.Context, params lead.BrowserRunParams) (res lead.BrowserRunResult, err error) {
	query := strings.TrimSpace(params.Query)
	if query == "" {
		return res, ErrEmptyQuery
	}
	maxResults := params.MaxResults
	if maxResults <= 0 {
		maxResults = c.cfg.MaxResults
	}

	metrics.IncActiveBrowserRuns()
	defer metrics.DecActiveBrowserRuns()

	batchID, err := c.store.CreateBatch(ctx, query)
	if err != nil {
		return res, fmt.Errorf("create batch: %w", err)
	}
	res.BatchID = batchID
	logger := c.logger.With(zap.Int64("batch_id", batchID), zap.String("query", query))

	defer func() {
		if cerr := c.store.CompleteBatch(context.WithoutCancel(ctx), batchID, res.Writes.Succeeded()); cerr != nil {
			logger.Warn("complete batch failed", zap.Error(cerr))
		}
		metrics.ObserveBrowserRun(res.FinalState)
		metrics.ObserveWrites(string(lead.SourceBrowser), res.Writes.Inserted, res.Writes.Updated, res.Writes.Failed)
		logger.Info("browser run finished",
			zap.String("final_state", res.FinalState),
			zap.String("stop_reason", res.StopReason),
			zap.Int("examined", res.Examined),
			zap.Int("qualified", res.Qualified),
			zap.Int("inserted", res.Writes.Inserted),
			zap.Int("updated", res.Writes.Updated),
			zap.Int("scrolls", res.Scrolls),
		)
	}()

	page, err := c.launcher.Launch(ctx)
	if err != nil {
		res.FinalState = string(StateFailed)
		res.StopReason = err.Error()
		return res, fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			logger.Warn("close browser failed", zap.Error(cerr))
		}
	}()

	r := &run{
		c:          c,
		page:       page,
		query:      query,
		batchID:    batchID,
		maxResults: maxResults,
		seen:       make(map[string]struct{}),
		res:        &res,
		logger:     logger,
	}
	state, err := r.loop(ctx)
	if err != nil {
		res.FinalState = string(StateFailed)
		res.StopReason = err.Error()
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			res.ArtifactURI = c.captureFailure(ctx, page, batchID, state, logger)
		}
		return res, err
	}
	res.FinalState = string(state)
	return res, nil
}

func (c *Collector) captureFailure(ctx context.Context, page Page, batchID int64, state State, logger *zap.Logger) string {
	if c.artifacts == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	png, err := page.Screenshot(ctx)
	if err != nil {
		logger.Debug("failure screenshot unavailable", zap.Error(err))
		return ""
	}
	path := fmt.Sprintf("debug/%d/%s.png", batchID, strings.ToLower(string(state)))
	uri, err := c.artifacts.PutObject(ctx, path, "image/png", bytes.NewReader(png))
	if err != nil {
		logger.Warn("store failure screenshot", zap.Error(err))
		return ""
	}
	return uri
}

type run struct {
	c          *Collector
	page       Page
	query      string
	batchID    int64
	maxResults int
	res        *lead.BrowserRunResult
	logger     *zap.Logger

	cardSelector string
	rendered     int
	processed    int
	stagnant     int
	seen         map[string]struct{}
}

// loop drives the state machine. It returns the terminal state, or the state
// in which a fatal error occurred.
func (r *run) loop(ctx context.Context) (State, error) {
	state := StateInit
	for {
		if err := ctx.Err(); err != nil {
			return state, err
		}
		var err error
		switch state {
		case StateInit:
			err = r.init(ctx)
			if err == nil {
				state = StateSearching
			}
		case StateSearching:
			err = r.search(ctx)
			if err == nil {
				state = StateExtracting
			}
		case StateExtracting:
			err = r.extract(ctx)
			switch {
			case err != nil:
			case r.res.Examined >= r.maxResults:
				r.res.StopReason = StopMaxResults
				state = StateDone
			default:
				state = StateScrolling
			}
		case StateScrolling:
			state = r.scroll(ctx)
		case StateDone, StateStuck:
			return state, nil
		}
		if err != nil {
			return state, err
		}
	}
}

func (r *run) init(ctx context.Context) error {
	if err := r.page.Navigate(ctx, r.c.cfg.MapsURL); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	for _, sel := range r.c.cfg.Selectors.ConsentButtons {
		if err := r.page.Click(ctx, sel, r.c.cfg.ConsentTimeout); err == nil {
			r.logger.Debug("consent dismissed", zap.String("selector", sel))
			return r.delay(ctx)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

func (r *run) search(ctx context.Context) error {
	sel := r.c.cfg.Selectors
	input := ""
	for _, candidate := range sel.SearchInputs {
		if err := r.page.WaitVisible(ctx, candidate, r.c.cfg.SelectorTimeout); err == nil {
			input = candidate
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if input == "" {
		return lead.ErrSearchInputNotFound
	}
	if err := r.page.Search(ctx, input, r.query); err != nil {
		return fmt.Errorf("submit search: %w", err)
	}
	if err := r.page.WaitVisible(ctx, sel.Feed, r.c.cfg.FeedTimeout); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", lead.ErrExtractionTimeout, err)
	}
	return r.delay(ctx)
}

// cards returns the rendered cards using the first selector that matches.
// Once a selector has matched it is kept for the rest of the run, since
// processed indexes into its list.
func (r *run) cards(ctx context.Context) ([]string, error) {
	if r.cardSelector != "" {
		cards, err := r.page.Cards(ctx, r.cardSelector)
		if err != nil {
			return nil, fmt.Errorf("list cards: %w", err)
		}
		return cards, nil
	}
	var lastErr error
	for _, sel := range r.c.cfg.Selectors.Cards {
		cards, err := r.page.Cards(ctx, sel)
		if err != nil {
			lastErr = err
			continue
		}
		if len(cards) > 0 {
			r.logger.Debug("card selector selected", zap.String("selector", sel))
			r.cardSelector = sel
			return cards, nil
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("list cards: %w", lastErr)
	}
	return nil, nil
}

func (r *run) extract(ctx context.Context) error {
	cards, err := r.cards(ctx)
	if err != nil {
		return err
	}
	r.rendered = len(cards)
	for i := r.processed; i < len(cards) && r.res.Examined < r.maxResults; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.processed = i + 1
		r.res.Examined++
		if err := r.processCard(ctx, i, cards[i]); err != nil {
			return err
		}
	}
	return nil
}

// processCard handles a single card. Per-card problems are logged and
// skipped; only context errors are returned.
func (r *run) processCard(ctx context.Context, index int, html string) error {
	sel := r.c.cfg.Selectors
	parsed, err := parseCard(html, sel.CardLink)
	if err != nil {
		r.res.Skipped++
		return nil
	}
	id := parsed.externalID(sel)
	if id == "" {
		r.res.Skipped++
		r.logger.Debug("card without id skipped", zap.Int("index", index))
		return nil
	}
	if _, dup := r.seen[id]; dup {
		r.res.Skipped++
		return nil
	}
	r.seen[id] = struct{}{}

	opened, err := r.page.OpenCard(ctx, r.cardSelector, index, sel.DetailPanel, r.c.cfg.DetailTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.res.Skipped++
		r.logger.Debug("card detail unavailable", zap.String("external_id", id), zap.Error(err))
		return r.delay(ctx)
	}
	panel, err := parseDetail(opened.HTML, sel)
	if err != nil {
		r.res.Skipped++
		return r.delay(ctx)
	}

	if qualify.HasWebsite(panel.website()) {
		r.reject(lead.RejectionHasWebsite)
		return r.delay(ctx)
	}

	candidate := panel.candidate(id, parsed, opened.URL)
	if reason := r.c.policy.RejectionReason(candidate); reason != lead.RejectionNone {
		r.reject(reason)
		return r.delay(ctx)
	}
	r.res.Qualified++
	metrics.ObserveCandidate(string(lead.SourceBrowser), "qualified")

	batchID := r.batchID
	l := lead.FromCandidate(candidate, lead.SourceBrowser, r.query, &batchID)
	// Failures are logged and counted by UpsertOne.
	_, _ = lead.UpsertOne(ctx, r.c.store, l, &r.res.Writes, r.logger)
	return r.delay(ctx)
}

func (r *run) reject(reason lead.RejectionReason) {
	r.res.Rejections.Add(reason)
	metrics.ObserveCandidate(string(lead.SourceBrowser), string(reason))
}

// scroll grows the feed. It returns EXTRACTING when new cards rendered,
// SCROLLING while under the stagnation bound, and DONE or STUCK otherwise.
func (r *run) scroll(ctx context.Context) State {
	feed := r.c.cfg.Selectors.Feed
	before := r.rendered

	r.res.Scrolls++
	metrics.ObserveScroll("scroll_top")
	if err := r.page.ScrollFeed(ctx, feed); err != nil {
		return r.stuck(ctx, fmt.Errorf("scroll feed: %w", err))
	}
	if grew, state := r.grew(ctx, before); grew {
		return state
	}
	r.stagnant++
	if r.stagnant < r.c.cfg.StagnationBound {
		return StateScrolling
	}

	r.res.Scrolls++
	metrics.ObserveScroll("keyboard")
	if err := r.page.KeyboardScroll(ctx, feed); err != nil {
		return r.stuck(ctx, fmt.Errorf("keyboard scroll: %w", err))
	}
	if grew, state := r.grew(ctx, before); grew {
		return state
	}
	r.res.StopReason = lead.ErrStagnationExceeded.Error()
	return StateDone
}

func (r *run) grew(ctx context.Context, before int) (bool, State) {
	if err := r.delay(ctx); err != nil {
		r.res.StopReason = StopCanceled
		return true, StateDone
	}
	cards, err := r.cards(ctx)
	if err != nil {
		return true, r.stuck(ctx, err)
	}
	if len(cards) > before {
		r.stagnant = 0
		return true, StateExtracting
	}
	return false, ""
}

func (r *run) stuck(ctx context.Context, err error) State {
	if ctx.Err() != nil {
		r.res.StopReason = StopCanceled
		return StateDone
	}
	r.logger.Warn("browser run stuck", zap.Error(err))
	r.res.StopReason = err.Error()
	return StateStuck
}

func (r *run) delay(ctx context.Context) error {
	return r.c.sleep(ctx, jitter(r.c.cfg.MinDelay, r.c.cfg.MaxDelay))
}

func jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo)+1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
