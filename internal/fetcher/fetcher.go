package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/nao1215/lexcrawl/internal/model"
)

// Fetcher retrieves a single URL. Implementations return *FetchError for
// every failure except cancellation of ctx, which is returned as ctx.Err().
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, timeout time.Duration) (*model.FetchResult, error)
}

// Default fetcher values.
const (
	DefaultUserAgent   = "lexcrawl/1.0 (+https://github.com/nao1215/lexcrawl)"
	DefaultMaxBodySize = 32 * 1024 * 1024 // 32MB, gazette PDFs can be large
	maxRedirects       = 10
)

// HTTPFetcher fetches documents over HTTP(S), optionally through rotating proxies.
type HTTPFetcher struct {
	// client carries the cookie jar and redirect policy. Its transport is
	// replaced per request when a rotator is set.
	client *http.Client

	// rotator picks a proxy transport per request. Nil means direct.
	rotator ProxyRotator

	// userAgent is sent on every request.
	userAgent string

	// headers are sent on every request, after User-Agent.
	headers map[string]string

	// maxBodySize limits the number of body bytes read.
	maxBodySize int64

	// now is the clock used for FetchedAt.
	now func() time.Time
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithHeaders sets extra request headers (e.g. Accept-Language).
func WithHeaders(headers map[string]string) Option {
	return func(f *HTTPFetcher) {
		f.headers = headers
	}
}

// WithMaxBodySize sets the maximum number of body bytes read.
// Longer bodies fail with KindTooLarge.
func WithMaxBodySize(size int64) Option {
	return func(f *HTTPFetcher) {
		if size > 0 {
			f.maxBodySize = size
		}
	}
}

// WithProxyRotator routes requests through the rotator's proxies.
func WithProxyRotator(r ProxyRotator) Option {
	return func(f *HTTPFetcher) {
		f.rotator = r
	}
}

// WithHTTPClient replaces the underlying client. Mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(f *HTTPFetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// NewHTTPFetcher creates an HTTPFetcher.
//
// Design decision: Timeouts are not set on the http.Client. Each Fetch call
// derives its own deadline from the timeout argument, so that an expired
// per-fetch deadline can be told apart from cancellation of the whole run.
func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	f := &HTTPFetcher{
		client: &http.Client{
			Transport: baseTransport(),
			Jar:       jar,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		userAgent:   DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Start checks every configured proxy and fails if any is unusable.
// Without proxies it does nothing.
func (f *HTTPFetcher) Start(ctx context.Context) error {
	lister, ok := f.rotator.(ProxyLister)
	if !ok {
		return nil
	}

	var errs []error
	for _, u := range lister.Proxies() {
		if err := CheckProxy(ctx, u).Error(); err != nil {
			errs = append(errs, fmt.Errorf("proxy %s: %w", u.Redacted(), err))
		}
	}
	return errors.Join(errs...)
}

// Fetch GETs rawURL with the given timeout (zero means no per-fetch limit).
// A response with status >= 400, or a redirect left unfollowed after
// maxRedirects hops, is a *FetchError of KindHTTPStatus. A body larger than
// the maximum body size is a *FetchError of KindTooLarge, never a prefix.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, timeout time.Duration) (*model.FetchResult, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, &FetchError{Kind: KindInvalidURL, URL: rawURL, Err: err}
	}

	fetchCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindInvalidURL, URL: rawURL, Err: err}
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/pdf;q=0.8,*/*;q=0.5")
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.clientForRequest().Do(req)
	if err != nil {
		return nil, f.classify(ctx, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024)) //nolint:errcheck // drain for connection reuse
		return nil, &FetchError{Kind: KindHTTPStatus, StatusCode: resp.StatusCode, URL: rawURL}
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &FetchError{Kind: KindHTTPStatus, StatusCode: resp.StatusCode, URL: rawURL, Err: ErrTooManyRedirects}
	}
	if resp.ContentLength > f.maxBodySize {
		return nil, &FetchError{Kind: KindTooLarge, URL: rawURL, Err: ErrBodyTooLarge}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return nil, f.classify(ctx, rawURL, err)
	}
	if int64(len(body)) > f.maxBodySize {
		return nil, &FetchError{Kind: KindTooLarge, URL: rawURL, Err: ErrBodyTooLarge}
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &model.FetchResult{
		URL:         finalURL,
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Headers:     resp.Header,
		Body:        body,
		FetchedAt:   f.now(),
	}, nil
}

// clientForRequest returns the shared client, or a shallow copy that uses the
// next proxy transport.
func (f *HTTPFetcher) clientForRequest() *http.Client {
	if f.rotator == nil {
		return f.client
	}
	c := *f.client
	c.Transport = f.rotator.Next()
	return &c
}

// classify maps a transport error to a FetchError. Cancellation of the
// caller's context is passed through unchanged.
func (f *HTTPFetcher) classify(parent context.Context, rawURL string, err error) error {
	if parentErr := parent.Err(); parentErr != nil {
		return parentErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: KindTimeout, URL: rawURL, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{Kind: KindTimeout, URL: rawURL, Err: err}
	}

	return &FetchError{Kind: KindNetwork, URL: rawURL, Err: err}
}

// validateURL accepts absolute http and https URLs with a host.
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("URL has no host")
	}
	return nil
}
