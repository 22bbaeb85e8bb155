// Package crawler drives crawl runs over legal publication sources.
//
// # Architecture
//
// An Orchestrator owns one run of one source. It walks the listing pages of
// the source with an explicit loop driven by SiteAdapter.NextPage, and sends
// every target found on a page through a bounded worker pool:
//
//	Limiter.Acquire -> Fetcher.Fetch (inside retry.Policy.Do)
//	  -> SiteAdapter.ExtractText -> fingerprint.New
//	  -> change.Detector.Classify -> versionstore.Adapter.Persist
//
// Classification and persistence of a document run under a lock keyed by its
// external id, so the same document found twice in a run is never inserted
// twice.
//
// Design decision: Source differences are expressed through the SiteAdapter
// interface instead of one orchestrator type per source. The orchestrator
// only sees targets, pages and text; site.HTMLAdapter covers sources that
// can be described by CSS selectors.
//
// # Run lifecycle
//
// A run moves from Idle to Running and ends Completed, Aborted or Cancelled:
//   - Aborted: a collaborator is missing, the base URL is invalid, the
//     fetcher failed to start, or the first listing page could not be used.
//     Nothing was processed and the returned error wraps ErrFatalInit.
//   - Completed: pagination ended. Target failures and a failed later
//     listing page are listed in RunResult.Failures.
//   - Cancelled: ctx ended. Stats reflect the targets finished so far.
//
// # Usage
//
//	o := crawler.NewOrchestrator(f, adapter, db,
//		crawler.WithBaseURL("https://gazette.example.gov/jo"),
//		crawler.WithRateLimiter(limiter),
//		crawler.WithWorkers(2),
//	)
//	result, err := o.Run(ctx)
//
// RunSources runs several orchestrators side by side.
package crawler
