package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/lexcrawl/internal/fetcher"
	"github.com/nao1215/lexcrawl/internal/model"
	"github.com/nao1215/lexcrawl/internal/ratelimit"
	"github.com/nao1215/lexcrawl/internal/retry"
)

const baseURL = "https://gazette.example.gov/list?page=1"

// fetchStep is one scripted response. Steps are consumed per URL; the last
// step repeats.
type fetchStep struct {
	body string
	err  error
}

// fakeFetcher serves scripted responses and counts calls per URL.
// Unknown URLs answer 404.
type fakeFetcher struct {
	mu      sync.Mutex
	steps   map[string][]fetchStep
	calls   map[string]int
	onFetch func(url string)
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		steps: make(map[string][]fetchStep),
		calls: make(map[string]int),
	}
}

func (f *fakeFetcher) serve(url string, steps ...fetchStep) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps[url] = steps
}

func (f *fakeFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string, _ time.Duration) (*model.FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	n := f.calls[rawURL]
	f.calls[rawURL]++
	steps := f.steps[rawURL]
	hook := f.onFetch
	f.mu.Unlock()

	if hook != nil {
		hook(rawURL)
	}

	if len(steps) == 0 {
		return nil, &fetcher.FetchError{Kind: fetcher.KindHTTPStatus, StatusCode: http.StatusNotFound, URL: rawURL}
	}

	step := steps[min(n, len(steps)-1)]
	if step.err != nil {
		return nil, step.err
	}
	return &model.FetchResult{
		URL:         rawURL,
		Status:      http.StatusOK,
		ContentType: "text/plain",
		Body:        []byte(step.body),
		FetchedAt:   time.Now(),
	}, nil
}

// startingFetcher is a fakeFetcher with a connectivity check.
type startingFetcher struct {
	*fakeFetcher
	startErr error
}

func (f *startingFetcher) Start(context.Context) error {
	return f.startErr
}

func okStep(body string) fetchStep { return fetchStep{body: body} }

func failWith(kind fetcher.Kind, status int) fetchStep {
	return fetchStep{err: &fetcher.FetchError{Kind: kind, StatusCode: status, URL: "scripted", Err: errors.New("scripted failure")}}
}

// fakePage is the structure of one listing page.
type fakePage struct {
	targets []model.CrawlTarget
	next    string
}

// fakeSite maps listing URLs to pages and uses bodies as text.
type fakeSite struct {
	pages map[string]fakePage
}

func (s *fakeSite) ListTargets(page *model.FetchResult) ([]model.CrawlTarget, error) {
	p, ok := s.pages[page.URL]
	if !ok {
		return nil, fmt.Errorf("not a listing page: %s", page.URL)
	}
	return p.targets, nil
}

func (s *fakeSite) NextPage(page *model.FetchResult) (string, bool) {
	p := s.pages[page.URL]
	return p.next, p.next != ""
}

func (s *fakeSite) ExtractMetadata(model.CrawlTarget, *model.FetchResult) model.DocumentMeta {
	return model.DocumentMeta{}
}

func (s *fakeSite) ExtractText(result *model.FetchResult) string {
	return string(result.Body)
}

// memStore is an in-memory Store. Inserting an existing external id fails,
// which makes unserialized classify+persist visible in tests.
type memStore struct {
	mu        sync.Mutex
	nextID    int64
	docs      map[string]*model.DocumentRecord
	versions  []model.DocumentVersion
	insertErr error
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]*model.DocumentRecord)}
}

func (m *memStore) FindByExternalID(_ context.Context, externalID string) (*model.DocumentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[externalID]
	if !ok {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (m *memStore) Insert(_ context.Context, doc *model.DocumentRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.insertErr != nil {
		return 0, m.insertErr
	}
	if _, exists := m.docs[doc.ExternalID]; exists {
		return 0, fmt.Errorf("duplicate external id %q", doc.ExternalID)
	}
	m.nextID++
	doc.ID = m.nextID
	cp := *doc
	m.docs[doc.ExternalID] = &cp
	return doc.ID, nil
}

func (m *memStore) Update(_ context.Context, id int64, fields model.DocumentUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, doc := range m.docs {
		if doc.ID == id {
			doc.Title = fields.Title
			doc.ContentHash = fields.ContentHash
			doc.ContentText = fields.ContentText
			doc.LastModifiedAt = fields.LastModifiedAt
			doc.Metadata = fields.Metadata
			return nil
		}
	}
	return fmt.Errorf("document %d not found", id)
}

func (m *memStore) InsertVersion(_ context.Context, v *model.DocumentVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.versions {
		if existing.DocumentID == v.DocumentID && existing.ContentHash == v.ContentHash {
			return nil
		}
	}
	m.versions = append(m.versions, *v)
	return nil
}

func (m *memStore) versionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.versions)
}

// fastLimiter never makes tests wait.
func fastLimiter(t *testing.T) *ratelimit.Limiter {
	t.Helper()

	l, err := ratelimit.New(ratelimit.Config{Capacity: 1000, RefillRatePerMs: 1000})
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}
	return l
}

// fastPolicy retries up to three attempts with millisecond delays.
func fastPolicy() *retry.Policy {
	return retry.New(retry.Config{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		BackoffFactor: 2,
	})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOrchestrator(t *testing.T, f fetcher.Fetcher, site SiteAdapter, store Store, opts ...Option) *Orchestrator {
	t.Helper()

	base := []Option{
		WithBaseURL(baseURL),
		WithRateLimiter(fastLimiter(t)),
		WithRetryPolicy(fastPolicy()),
		WithLogger(discardLogger()),
		WithSource("test"),
	}
	return NewOrchestrator(f, site, store, append(base, opts...)...)
}

func docTarget(id string) model.CrawlTarget {
	return model.CrawlTarget{ID: id, Title: "Doc " + id, URL: "https://gazette.example.gov/doc/" + id}
}
