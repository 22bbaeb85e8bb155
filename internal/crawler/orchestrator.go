package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/lexcrawl/internal/change"
	"github.com/nao1215/lexcrawl/internal/fetcher"
	"github.com/nao1215/lexcrawl/internal/fingerprint"
	"github.com/nao1215/lexcrawl/internal/model"
	"github.com/nao1215/lexcrawl/internal/ratelimit"
	"github.com/nao1215/lexcrawl/internal/retry"
	"github.com/nao1215/lexcrawl/internal/versionstore"
)

// Default orchestrator values.
const (
	DefaultFetchTimeout = 30 * time.Second
	DefaultWorkers      = 1
	DefaultDocumentType = "document"
)

// Orchestrator walks the listing pages of one source and runs every
// discovered target through fetch, change detection and persistence.
//
// An Orchestrator describes a run; each call to Run starts a fresh one with
// its own run id, visited set and stats.
type Orchestrator struct {
	fetcher fetcher.Fetcher
	site    SiteAdapter
	store   Store

	limiter      *ratelimit.Limiter
	policy       *retry.Policy
	logger       *slog.Logger
	now          func() time.Time
	source       string
	documentType string
	baseURL      string

	// maxPages bounds pagination. 0 means unlimited.
	maxPages int

	// fetchTimeout bounds a single fetch attempt.
	fetchTimeout time.Duration

	// workers is the number of targets processed concurrently on a page.
	workers int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRateLimiter sets the limiter shared by every fetch of the run.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(o *Orchestrator) {
		o.limiter = l
	}
}

// WithRetryPolicy sets the retry policy applied to every fetch.
func WithRetryPolicy(p *retry.Policy) Option {
	return func(o *Orchestrator) {
		o.policy = p
	}
}

// WithMaxPages limits the number of listing pages visited. 0 means unlimited.
func WithMaxPages(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.maxPages = n
		}
	}
}

// WithFetchTimeout sets the timeout of a single fetch attempt.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.fetchTimeout = d
		}
	}
}

// WithWorkers sets how many targets of a page are processed concurrently.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithLogger sets the logger. Every record of a run carries run_id and source.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithSource names the source in stats and logs.
func WithSource(name string) Option {
	return func(o *Orchestrator) {
		o.source = name
	}
}

// WithDocumentType sets the document type stored on new records.
func WithDocumentType(t string) Option {
	return func(o *Orchestrator) {
		if t != "" {
			o.documentType = t
		}
	}
}

// WithBaseURL sets the first listing page.
func WithBaseURL(u string) Option {
	return func(o *Orchestrator) {
		o.baseURL = u
	}
}

// WithClock replaces time.Now for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator creates an Orchestrator. Collaborators are validated when
// Run starts, so a misconfigured orchestrator yields an aborted RunResult
// rather than a constructor error.
func NewOrchestrator(f fetcher.Fetcher, site SiteAdapter, store Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher:      f,
		site:         site,
		store:        store,
		now:          func() time.Time { return time.Now().UTC() },
		documentType: DefaultDocumentType,
		fetchTimeout: DefaultFetchTimeout,
		workers:      DefaultWorkers,
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.policy == nil {
		o.policy = retry.New(retry.DefaultConfig())
	}

	return o
}

// run holds the mutable state of a single Run call.
type run struct {
	*Orchestrator

	logger   *slog.Logger
	limiter  *ratelimit.Limiter
	detector *change.Detector
	adapter  *versionstore.Adapter
	locks    *keyedMutex

	mu     sync.Mutex
	result *model.RunResult
}

// Run crawls the source once.
//
// The returned RunResult is never nil. Run returns an error only when the
// run aborted; that error wraps ErrFatalInit. Target failures and a failed
// later listing page are recorded in RunResult.Failures, and cancellation is
// reported as RunCancelled with the stats gathered so far.
func (o *Orchestrator) Run(ctx context.Context) (*model.RunResult, error) {
	r := &run{
		Orchestrator: o,
		locks:        newKeyedMutex(),
		result: &model.RunResult{
			State: model.RunIdle,
			Stats: model.RunStats{
				RunID:     uuid.NewString(),
				Source:    o.source,
				StartedAt: o.now(),
			},
		},
	}
	r.logger = o.logger.With("run_id", r.result.Stats.RunID, "source", o.source)

	if err := r.init(ctx); err != nil {
		return r.abort(err)
	}

	r.result.State = model.RunRunning
	r.logger.Info("crawl started", "base_url", o.baseURL, "workers", o.workers, "max_pages", o.maxPages)

	if err := r.walk(ctx); err != nil {
		return r.abort(err)
	}

	return r.finish(ctx), nil
}

// init validates collaborators and prepares the run.
func (r *run) init(ctx context.Context) error {
	switch {
	case r.fetcher == nil:
		return ErrMissingFetcher
	case r.site == nil:
		return ErrMissingSite
	case r.store == nil:
		return ErrMissingStore
	}

	u, err := url.Parse(r.baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, r.baseURL)
	}

	r.limiter = r.Orchestrator.limiter
	if r.limiter == nil {
		l, err := ratelimit.New(ratelimit.DefaultConfig())
		if err != nil {
			return err
		}
		r.limiter = l
	}

	if s, ok := r.fetcher.(Starter); ok {
		if err := s.Start(ctx); err != nil {
			return fmt.Errorf("fetcher start: %w", err)
		}
	}

	r.detector = change.NewDetector(r.store)
	r.adapter = versionstore.NewAdapter(r.store, versionstore.WithClock(r.now))
	return nil
}

// walk follows the listing pages. It returns an error only when the first
// page cannot be used.
func (r *run) walk(ctx context.Context) error {
	visited := make(map[string]bool)
	pageURL := r.baseURL

	for {
		if ctx.Err() != nil {
			return nil
		}
		visited[pageURL] = true

		page, attempts, err := r.fetchListing(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if r.result.Stats.Pages == 0 {
				return err
			}
			r.logger.Warn("listing page failed, ending pagination", "url", pageURL, "error", err)
			r.fail(model.CrawlTarget{ID: pageURL, URL: pageURL}, model.FailureListing, attempts, err)
			return nil
		}
		r.result.Stats.Pages++

		r.processPage(ctx, page.targets)
		if ctx.Err() != nil {
			return nil
		}

		if r.maxPages > 0 && r.result.Stats.Pages >= r.maxPages {
			r.logger.Info("max pages reached", "pages", r.result.Stats.Pages)
			return nil
		}

		next, ok := r.site.NextPage(page.result)
		if !ok {
			return nil
		}
		if visited[next] {
			r.logger.Warn("pagination cycle detected", "url", next)
			return nil
		}
		pageURL = next
	}
}

type listing struct {
	result  *model.FetchResult
	targets []model.CrawlTarget
}

// fetchListing fetches a listing page with retries and extracts its targets.
func (r *run) fetchListing(ctx context.Context, pageURL string) (*listing, int, error) {
	result, attempts, err := r.fetch(ctx, pageURL)
	r.addRetries(attempts)
	if err != nil {
		return nil, attempts, fmt.Errorf("listing %s: %w", pageURL, err)
	}

	targets, err := r.site.ListTargets(result)
	if err != nil {
		return nil, attempts, fmt.Errorf("listing %s: %w", pageURL, err)
	}

	r.logger.Debug("listing page fetched", "url", pageURL, "targets", len(targets))
	return &listing{result: result, targets: targets}, attempts, nil
}

// processPage runs the targets of one page through the worker pool.
// A target failure never stops its siblings.
func (r *run) processPage(ctx context.Context, targets []model.CrawlTarget) {
	g := new(errgroup.Group)
	g.SetLimit(r.workers)

	for _, target := range targets {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			r.processTarget(ctx, target)
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // workers never return errors
}

// processTarget fetches, classifies and persists a single target.
func (r *run) processTarget(ctx context.Context, target model.CrawlTarget) {
	if target.ID == "" {
		target.ID = target.URL
	}

	result, attempts, err := r.fetch(ctx, target.URL)
	r.addRetries(attempts)
	if err != nil {
		r.fail(target, r.failureKind(ctx, err), attempts, err)
		return
	}

	text := r.site.ExtractText(result)
	doc := &model.FetchedDocument{
		Target:       target,
		Result:       result,
		Fingerprint:  fingerprint.New(result.Body, text),
		Text:         text,
		DocumentType: r.documentType,
		Meta:         r.site.ExtractMetadata(target, result),
	}

	decision, err := r.commit(ctx, doc)
	if err != nil {
		r.fail(target, r.failureKind(ctx, err), attempts, err)
		return
	}

	r.record(decision)
	r.logger.Debug("target processed",
		"id", target.ID,
		"change", decision.Kind.String(),
		"similarity", decision.Similarity,
		"sample", doc.Fingerprint.TextSample,
	)
}

// commit classifies and persists doc while holding its external id lock,
// so two workers never interleave reads and writes of the same record.
func (r *run) commit(ctx context.Context, doc *model.FetchedDocument) (model.ChangeDecision, error) {
	unlock := r.locks.Lock(doc.Target.ID)
	defer unlock()

	decision, err := r.detector.Classify(ctx, doc.Target.ID, doc.Fingerprint.Hex(), doc.Text)
	if err != nil {
		return decision, err
	}
	return decision, r.adapter.Persist(ctx, decision, doc)
}

// fetch acquires a limiter token for every attempt and retries according to
// the policy. It returns the number of attempts made.
func (r *run) fetch(ctx context.Context, rawURL string) (*model.FetchResult, int, error) {
	var result *model.FetchResult

	attempts, err := r.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		if err := r.limiter.Acquire(ctx); err != nil {
			return err
		}

		res, err := r.fetcher.Fetch(ctx, rawURL, r.fetchTimeout)
		if err != nil {
			if attempt < r.policy.MaxAttempts() && retry.IsRetryable(err) {
				r.logger.Debug("fetch failed, retrying", "url", rawURL, "attempt", attempt, "error", err)
			}
			return err
		}
		result = res
		return nil
	})

	return result, attempts, err
}

// failureKind maps a target error to its recorded kind.
func (r *run) failureKind(ctx context.Context, err error) model.FailureKind {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return model.FailureCancelled
	}

	var storeErr *model.StoreError
	if errors.As(err, &storeErr) {
		return model.FailureStore
	}

	if errors.Is(err, retry.ErrExhausted) {
		return model.FailureRetriesExhausted
	}

	var fetchErr *fetcher.FetchError
	if errors.As(err, &fetchErr) {
		switch fetchErr.Kind {
		case fetcher.KindTimeout:
			return model.FailureTimeout
		case fetcher.KindHTTPStatus:
			return model.FailureHTTPStatus
		case fetcher.KindInvalidURL:
			return model.FailureInvalidURL
		case fetcher.KindTooLarge:
			return model.FailureTooLarge
		default:
			return model.FailureNetwork
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return model.FailureTimeout
	}
	return model.FailureNetwork
}

func (r *run) addRetries(attempts int) {
	if attempts <= 1 {
		return
	}
	r.mu.Lock()
	r.result.Stats.Retries += attempts - 1
	r.mu.Unlock()
}

func (r *run) record(decision model.ChangeDecision) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.result.Stats.Processed++
	switch decision.Kind {
	case model.ChangeNew:
		r.result.Stats.New++
	case model.ChangeUnchanged:
		r.result.Stats.Unchanged++
	case model.ChangeModified:
		r.result.Stats.Modified++
	}
}

func (r *run) fail(target model.CrawlTarget, kind model.FailureKind, attempts int, err error) {
	if kind != model.FailureCancelled {
		r.logger.Warn("target failed", "id", target.ID, "url", target.URL, "kind", string(kind), "attempts", attempts, "error", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.result.Stats.Errors++
	r.result.Failures = append(r.result.Failures, model.NewTargetFailure(target, kind, attempts, err))
}

// abort ends the run before any target was processed.
func (r *run) abort(err error) (*model.RunResult, error) {
	err = fmt.Errorf("%w: %w", ErrFatalInit, err)

	r.result.State = model.RunAborted
	r.result.AbortErr = err
	r.result.AbortReason = err.Error()
	r.result.Stats.EndedAt = r.now()

	r.logger.Error("crawl aborted", "error", err)
	return r.result, err
}

// finish sets the terminal state after pagination ended.
func (r *run) finish(ctx context.Context) *model.RunResult {
	r.result.State = model.RunCompleted
	if ctx.Err() != nil {
		r.result.State = model.RunCancelled
	}
	r.result.Stats.EndedAt = r.now()

	s := r.result.Stats
	r.logger.Info("crawl finished",
		"state", r.result.State.String(),
		"pages", s.Pages,
		"processed", s.Processed,
		"new", s.New,
		"unchanged", s.Unchanged,
		"modified", s.Modified,
		"errors", s.Errors,
		"retries", s.Retries,
		"duration", s.Duration(),
	)
	return r.result
}
