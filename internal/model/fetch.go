package model

import (
	"mime"
	"net/http"
	"strings"
	"time"
)

// CrawlTarget is a candidate document discovered on a listing page.
// Targets are created per page visit and consumed once by the orchestrator.
type CrawlTarget struct {
	// ID is the external identifier of the document at its source
	// (for example a gazette number). It keys change detection.
	ID string `json:"id"`

	// Title is the link text or title advertised by the listing page.
	Title string `json:"title,omitempty"`

	// URL is the absolute URL of the document.
	URL string `json:"url"`

	// MediaType is the expected media type, e.g. "text/html" or "application/pdf".
	MediaType string `json:"media_type,omitempty"`
}

// FetchResult is the raw outcome of fetching a single URL.
// It is never persisted directly.
type FetchResult struct {
	// URL is the URL that was requested.
	URL string `json:"url"`

	// Status is the HTTP status code.
	Status int `json:"status"`

	// ContentType is the value of the Content-Type header.
	ContentType string `json:"content_type"`

	// Headers contains the response headers in canonical form.
	Headers http.Header `json:"headers,omitempty"`

	// Body is the response body, limited by the fetcher's max body size.
	Body []byte `json:"-"`

	// FetchedAt is when the response was received.
	FetchedAt time.Time `json:"fetched_at"`
}

// GetHeader returns the first value of the specified header.
// Returns empty string if the header is not present.
func (r *FetchResult) GetHeader(name string) string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers.Get(name)
}

// MediaType returns the content type without parameters, lower-cased.
func (r *FetchResult) MediaType() string {
	mt, _, err := mime.ParseMediaType(r.ContentType)
	if err != nil {
		mt, _, _ = strings.Cut(r.ContentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// IsHTML returns true if the response content type indicates HTML.
func (r *FetchResult) IsHTML() bool {
	mt := r.MediaType()
	return mt == "text/html" || mt == "application/xhtml+xml"
}

// IsText returns true for textual payloads other than HTML
// (plain text, XML feeds, JSON).
func (r *FetchResult) IsText() bool {
	mt := r.MediaType()
	return strings.HasPrefix(mt, "text/") ||
		mt == "application/xml" ||
		mt == "application/json" ||
		strings.HasSuffix(mt, "+xml")
}
