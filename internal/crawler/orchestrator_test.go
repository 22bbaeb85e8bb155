package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/nao1215/lexcrawl/internal/fetcher"
	"github.com/nao1215/lexcrawl/internal/model"
	"github.com/nao1215/lexcrawl/internal/retry"
)

// onePage returns a site with a single listing page holding targets.
func onePage(targets ...model.CrawlTarget) *fakeSite {
	return &fakeSite{pages: map[string]fakePage{baseURL: {targets: targets}}}
}

func TestNewOrchestrator(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		o := NewOrchestrator(newFakeFetcher(), onePage(), newMemStore())
		if o.workers != DefaultWorkers {
			t.Errorf("expected %d workers, got %d", DefaultWorkers, o.workers)
		}
		if o.fetchTimeout != DefaultFetchTimeout {
			t.Errorf("expected fetch timeout %v, got %v", DefaultFetchTimeout, o.fetchTimeout)
		}
		if o.documentType != DefaultDocumentType {
			t.Errorf("expected document type %q, got %q", DefaultDocumentType, o.documentType)
		}
		if o.maxPages != 0 {
			t.Errorf("expected unlimited pages, got %d", o.maxPages)
		}
		if o.logger == nil || o.policy == nil {
			t.Error("expected default logger and retry policy")
		}
	})

	t.Run("ignores invalid values", func(t *testing.T) {
		t.Parallel()

		o := NewOrchestrator(nil, nil, nil,
			WithWorkers(0),
			WithFetchTimeout(-time.Second),
			WithMaxPages(-1),
			WithDocumentType(""),
		)
		if o.workers != DefaultWorkers || o.fetchTimeout != DefaultFetchTimeout ||
			o.maxPages != 0 || o.documentType != DefaultDocumentType {
			t.Errorf("invalid options must keep defaults, got %+v", o)
		}
	})
}

func TestRun_ClassifiesTargets(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.serve(baseURL, okStep("listing"))
	f.serve(docTarget("1").URL, okStep("Décret 1, version 1"))
	f.serve(docTarget("2").URL, okStep("Décret 2"))

	store := newMemStore()
	site := onePage(docTarget("1"), docTarget("2"))

	first, err := newTestOrchestrator(t, f, site, store).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.State != model.RunCompleted || !first.Clean() {
		t.Fatalf("expected a clean completed run, got %+v", first)
	}
	if first.Stats.New != 2 || first.Stats.Processed != 2 || first.Stats.Pages != 1 {
		t.Errorf("unexpected first run stats %+v", first.Stats)
	}
	if first.Stats.RunID == "" || first.Stats.Source != "test" || first.Stats.EndedAt.IsZero() {
		t.Errorf("run identity not filled in: %+v", first.Stats)
	}

	f.serve(docTarget("1").URL, okStep("Décret 1, version 2"))

	second, err := newTestOrchestrator(t, f, site, store).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Stats.Modified != 1 || second.Stats.Unchanged != 1 || second.Stats.New != 0 {
		t.Errorf("unexpected second run stats %+v", second.Stats)
	}
	if second.Stats.RunID == first.Stats.RunID {
		t.Error("each run must get a fresh run id")
	}
	if got := store.versionCount(); got != 1 {
		t.Errorf("expected 1 archived version, got %d", got)
	}

	doc, _ := store.FindByExternalID(context.Background(), "1")
	if doc.ContentText != "Décret 1, version 2" || doc.DocumentType != DefaultDocumentType {
		t.Errorf("live record not updated: %+v", doc)
	}
}

func TestRun_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.serve(baseURL, okStep("listing"))
	f.serve(docTarget("1").URL,
		failWith(fetcher.KindTimeout, 0),
		failWith(fetcher.KindHTTPStatus, http.StatusServiceUnavailable),
		okStep("Décret 1"),
	)

	result, err := newTestOrchestrator(t, f, onePage(docTarget("1")), newMemStore()).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Stats.Retries != 2 {
		t.Errorf("expected exactly 2 retries, got %d", result.Stats.Retries)
	}
	if result.Stats.New != 1 || len(result.Failures) != 0 {
		t.Errorf("expected the target to succeed on the third attempt, got %+v", result)
	}
	if got := f.callCount(docTarget("1").URL); got != 3 {
		t.Errorf("expected 3 fetches, got %d", got)
	}
}

func TestRun_TargetFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		steps        []fetchStep
		wantKind     model.FailureKind
		wantAttempts int
		wantRetries  int
	}{
		{
			name:         "404 is never retried",
			steps:        []fetchStep{failWith(fetcher.KindHTTPStatus, http.StatusNotFound)},
			wantKind:     model.FailureHTTPStatus,
			wantAttempts: 1,
		},
		{
			name:         "410 is never retried",
			steps:        []fetchStep{failWith(fetcher.KindHTTPStatus, http.StatusGone)},
			wantKind:     model.FailureHTTPStatus,
			wantAttempts: 1,
		},
		{
			name:         "invalid url",
			steps:        []fetchStep{failWith(fetcher.KindInvalidURL, 0)},
			wantKind:     model.FailureInvalidURL,
			wantAttempts: 1,
		},
		{
			name:         "network errors exhaust retries",
			steps:        []fetchStep{failWith(fetcher.KindNetwork, 0)},
			wantKind:     model.FailureRetriesExhausted,
			wantAttempts: 3,
			wantRetries:  2,
		},
		{
			name:         "timeouts exhaust retries",
			steps:        []fetchStep{failWith(fetcher.KindTimeout, 0)},
			wantKind:     model.FailureRetriesExhausted,
			wantAttempts: 3,
			wantRetries:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFakeFetcher()
			f.serve(baseURL, okStep("listing"))
			f.serve(docTarget("bad").URL, tt.steps...)
			f.serve(docTarget("good").URL, okStep("fine"))

			result, err := newTestOrchestrator(t, f, onePage(docTarget("bad"), docTarget("good")), newMemStore()).
				Run(context.Background())
			if err != nil {
				t.Fatalf("target failures must not fail the run: %v", err)
			}
			if result.State != model.RunCompleted || !result.Degraded() {
				t.Errorf("expected a degraded completed run, got state %v", result.State)
			}
			if result.Stats.New != 1 || result.Stats.Errors != 1 {
				t.Errorf("expected the sibling target to succeed, got %+v", result.Stats)
			}
			if result.Stats.Retries != tt.wantRetries {
				t.Errorf("expected %d retries, got %d", tt.wantRetries, result.Stats.Retries)
			}
			if got := f.callCount(docTarget("bad").URL); got != tt.wantAttempts {
				t.Errorf("expected %d fetches, got %d", tt.wantAttempts, got)
			}

			if len(result.Failures) != 1 {
				t.Fatalf("expected 1 failure, got %+v", result.Failures)
			}
			failure := result.Failures[0]
			if failure.Kind != tt.wantKind || failure.Attempts != tt.wantAttempts || failure.Target.ID != "bad" {
				t.Errorf("unexpected failure %+v", failure)
			}
			if failure.Message == "" {
				t.Error("expected a failure message")
			}
		})
	}
}

func TestRun_StoreFailure(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.serve(baseURL, okStep("listing"))
	f.serve(docTarget("1").URL, okStep("Décret 1"))

	store := newMemStore()
	store.insertErr = errors.New("disk full")

	result, err := newTestOrchestrator(t, f, onePage(docTarget("1")), store).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Failures) != 1 || result.Failures[0].Kind != model.FailureStore {
		t.Fatalf("expected a store failure, got %+v", result.Failures)
	}
	var storeErr *model.StoreError
	if !errors.As(result.Failures[0].Err, &storeErr) || storeErr.Op != "insert" {
		t.Errorf("expected a StoreError for insert, got %v", result.Failures[0].Err)
	}
	if got := f.callCount(docTarget("1").URL); got != 1 {
		t.Errorf("store errors must not be retried, got %d fetches", got)
	}
}

func TestRun_Aborted(t *testing.T) {
	t.Parallel()

	listing := newFakeFetcher()
	listing.serve(baseURL, okStep("listing"))

	tests := []struct {
		name    string
		fetcher fetcher.Fetcher
		site    SiteAdapter
		store   Store
		opts    []Option
		wantErr error
	}{
		{
			name:    "missing fetcher",
			site:    onePage(),
			store:   newMemStore(),
			wantErr: ErrMissingFetcher,
		},
		{
			name:    "missing site",
			fetcher: listing,
			store:   newMemStore(),
			wantErr: ErrMissingSite,
		},
		{
			name:    "missing store",
			fetcher: listing,
			site:    onePage(),
			wantErr: ErrMissingStore,
		},
		{
			name:    "invalid base url",
			fetcher: listing,
			site:    onePage(),
			store:   newMemStore(),
			opts:    []Option{WithBaseURL("ftp://gazette.example.gov/")},
			wantErr: ErrInvalidBaseURL,
		},
		{
			name:    "fetcher start fails",
			fetcher: &startingFetcher{fakeFetcher: listing, startErr: fetcher.ErrProxyCannotConnect},
			site:    onePage(),
			store:   newMemStore(),
			wantErr: fetcher.ErrProxyCannotConnect,
		},
		{
			name:    "first listing page is 404",
			fetcher: newFakeFetcher(),
			site:    onePage(),
			store:   newMemStore(),
		},
		{
			name:    "first listing page cannot be parsed",
			fetcher: listing,
			site:    &fakeSite{},
			store:   newMemStore(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, err := newTestOrchestrator(t, tt.fetcher, tt.site, tt.store, tt.opts...).Run(context.Background())
			if !errors.Is(err, ErrFatalInit) {
				t.Fatalf("expected ErrFatalInit, got %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if result == nil || !result.Aborted() {
				t.Fatalf("expected an aborted result, got %+v", result)
			}
			if result.Stats.Processed != 0 || result.AbortReason == "" || !errors.Is(result.AbortErr, ErrFatalInit) {
				t.Errorf("unexpected aborted result %+v", result)
			}
		})
	}
}

func TestRun_Pagination(t *testing.T) {
	t.Parallel()

	page := func(n int) string { return fmt.Sprintf("https://gazette.example.gov/list?page=%d", n) }

	t.Run("follows next pages to the end", func(t *testing.T) {
		t.Parallel()

		f := newFakeFetcher()
		site := &fakeSite{pages: map[string]fakePage{}}
		for n := 1; n <= 3; n++ {
			f.serve(page(n), okStep("listing"))
			id := fmt.Sprint(n)
			f.serve(docTarget(id).URL, okStep("doc "+id))
			next := ""
			if n < 3 {
				next = page(n + 1)
			}
			site.pages[page(n)] = fakePage{targets: []model.CrawlTarget{docTarget(id)}, next: next}
		}

		result, err := newTestOrchestrator(t, f, site, newMemStore()).Run(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Stats.Pages != 3 || result.Stats.New != 3 {
			t.Errorf("unexpected stats %+v", result.Stats)
		}
	})

	t.Run("stops at max pages", func(t *testing.T) {
		t.Parallel()

		f := newFakeFetcher()
		site := &fakeSite{pages: map[string]fakePage{}}
		for n := 1; n <= 10; n++ {
			f.serve(page(n), okStep("listing"))
			site.pages[page(n)] = fakePage{next: page(n + 1)}
		}

		result, err := newTestOrchestrator(t, f, site, newMemStore(), WithMaxPages(2)).Run(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Stats.Pages != 2 || f.callCount(page(3)) != 0 {
			t.Errorf("expected exactly 2 pages, got %d", result.Stats.Pages)
		}
	})

	t.Run("stops on a pagination cycle", func(t *testing.T) {
		t.Parallel()

		f := newFakeFetcher()
		f.serve(page(1), okStep("listing"))
		f.serve(page(2), okStep("listing"))
		site := &fakeSite{pages: map[string]fakePage{
			page(1): {next: page(2)},
			page(2): {next: page(1)},
		}}

		result, err := newTestOrchestrator(t, f, site, newMemStore()).Run(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.State != model.RunCompleted || result.Stats.Pages != 2 || f.callCount(page(1)) != 1 {
			t.Errorf("expected the cycle to end the walk after 2 pages, got %+v", result.Stats)
		}
	})

	t.Run("later listing failure degrades the run", func(t *testing.T) {
		t.Parallel()

		f := newFakeFetcher()
		f.serve(page(1), okStep("listing"))
		f.serve(docTarget("1").URL, okStep("doc 1"))
		site := &fakeSite{pages: map[string]fakePage{
			page(1): {targets: []model.CrawlTarget{docTarget("1")}, next: page(2)},
		}}

		result, err := newTestOrchestrator(t, f, site, newMemStore()).Run(context.Background())
		if err != nil {
			t.Fatalf("a later listing failure must not abort: %v", err)
		}
		if result.State != model.RunCompleted || !result.Degraded() {
			t.Errorf("expected a degraded completed run, got %+v", result)
		}
		if result.Stats.New != 1 || len(result.Failures) != 1 || result.Failures[0].Kind != model.FailureListing {
			t.Errorf("unexpected result %+v", result)
		}
		if result.Failures[0].Target.URL != page(2) {
			t.Errorf("expected the failed page to be recorded, got %+v", result.Failures[0].Target)
		}
	})
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	targets := []model.CrawlTarget{docTarget("1"), docTarget("2"), docTarget("3"), docTarget("4")}

	f := newFakeFetcher()
	f.serve(baseURL, okStep("listing"))
	for _, tg := range targets {
		f.serve(tg.URL, okStep("body of "+tg.ID))
	}
	f.onFetch = func(url string) {
		if url == docTarget("2").URL {
			cancel()
		}
	}

	result, err := newTestOrchestrator(t, f, onePage(targets...), newMemStore()).Run(ctx)
	if err != nil {
		t.Fatalf("cancellation is not an abort: %v", err)
	}
	if result.State != model.RunCancelled {
		t.Fatalf("expected cancelled state, got %v", result.State)
	}
	if result.Stats.Processed != 2 || result.Stats.New != 2 {
		t.Errorf("expected partial stats for the 2 finished targets, got %+v", result.Stats)
	}
	for _, tg := range targets[2:] {
		if got := f.callCount(tg.URL); got != 0 {
			t.Errorf("target %s fetched after cancellation", tg.ID)
		}
	}
}

func TestRun_CancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFakeFetcher()
	f.serve(baseURL, okStep("listing"))
	f.serve(docTarget("1").URL, failWith(fetcher.KindNetwork, 0))
	f.onFetch = func(url string) {
		if url == docTarget("1").URL {
			cancel()
		}
	}

	result, err := newTestOrchestrator(t, f, onePage(docTarget("1")), newMemStore()).Run(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.State != model.RunCancelled {
		t.Errorf("expected cancelled state, got %v", result.State)
	}
	if len(result.Failures) != 1 || result.Failures[0].Kind != model.FailureCancelled {
		t.Errorf("expected the interrupted target to be recorded as cancelled, got %+v", result.Failures)
	}
	if got := f.callCount(docTarget("1").URL); got != 1 {
		t.Errorf("expected no retry after cancellation, got %d fetches", got)
	}
}

func TestRun_SerializesPerExternalID(t *testing.T) {
	t.Parallel()

	// The same document listed under different URLs on one page.
	targets := make([]model.CrawlTarget, 8)
	f := newFakeFetcher()
	f.serve(baseURL, okStep("listing"))
	for i := range targets {
		targets[i] = model.CrawlTarget{ID: "2024-17", URL: fmt.Sprintf("https://gazette.example.gov/doc/17?mirror=%d", i)}
		f.serve(targets[i].URL, okStep("Décret 2024-17"))
	}

	result, err := newTestOrchestrator(t, f, onePage(targets...), newMemStore(), WithWorkers(4)).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Stats.New != 1 || result.Stats.Unchanged != len(targets)-1 {
		t.Errorf("expected one insert and unchanged duplicates, got %+v (failures %+v)", result.Stats, result.Failures)
	}
}

func TestRun_DefaultsEmptyIDToURL(t *testing.T) {
	t.Parallel()

	tg := model.CrawlTarget{URL: "https://gazette.example.gov/doc/x"}
	f := newFakeFetcher()
	f.serve(baseURL, okStep("listing"))
	f.serve(tg.URL, okStep("x"))

	store := newMemStore()
	if _, err := newTestOrchestrator(t, f, onePage(tg), store).Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc, _ := store.FindByExternalID(context.Background(), tg.URL)
	if doc == nil {
		t.Fatal("expected the document to be stored under its URL")
	}
}

func TestFailureKind(t *testing.T) {
	t.Parallel()

	r := &run{}
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want model.FailureKind
	}{
		{"timeout", context.Background(), &fetcher.FetchError{Kind: fetcher.KindTimeout}, model.FailureTimeout},
		{"network", context.Background(), &fetcher.FetchError{Kind: fetcher.KindNetwork}, model.FailureNetwork},
		{"status", context.Background(), &fetcher.FetchError{Kind: fetcher.KindHTTPStatus, StatusCode: 404}, model.FailureHTTPStatus},
		{"invalid url", context.Background(), &fetcher.FetchError{Kind: fetcher.KindInvalidURL}, model.FailureInvalidURL},
		{"too large", context.Background(), &fetcher.FetchError{Kind: fetcher.KindTooLarge}, model.FailureTooLarge},
		{"store", context.Background(), &model.StoreError{Op: "insert", Err: errors.New("x")}, model.FailureStore},
		{"exhausted", context.Background(), fmt.Errorf("%w after 3 attempts: %w", retry.ErrExhausted, &fetcher.FetchError{Kind: fetcher.KindNetwork}), model.FailureRetriesExhausted},
		{"deadline", context.Background(), context.DeadlineExceeded, model.FailureTimeout},
		{"cancelled error", context.Background(), context.Canceled, model.FailureCancelled},
		{"cancelled context", cancelled, errors.New("anything"), model.FailureCancelled},
		{"unknown", context.Background(), errors.New("boom"), model.FailureNetwork},
	}

	for _, tt := range tests {
		if got := r.failureKind(tt.ctx, tt.err); got != tt.want {
			t.Errorf("%s: failureKind() = %q, want %q", tt.name, got, tt.want)
		}
	}
}
