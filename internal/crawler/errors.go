package crawler

import "errors"

// Sentinel errors for the crawler package.
var (
	// ErrFatalInit is wrapped by every error that aborts a run before any
	// target is processed.
	ErrFatalInit = errors.New("crawl initialization failed")

	// ErrMissingFetcher is returned when the orchestrator has no fetcher.
	ErrMissingFetcher = errors.New("fetcher is required")

	// ErrMissingSite is returned when the orchestrator has no site adapter.
	ErrMissingSite = errors.New("site adapter is required")

	// ErrMissingStore is returned when the orchestrator has no document store.
	ErrMissingStore = errors.New("document store is required")

	// ErrInvalidBaseURL is returned when the first listing URL is not an
	// absolute http(s) URL.
	ErrInvalidBaseURL = errors.New("base URL must be an absolute http or https URL")
)
