// Package model defines the core data structures used throughout lexcrawl.
//
// This package contains the following main types:
//   - CrawlTarget: A candidate document discovered on a listing page
//   - FetchResult: The raw response of a single fetch
//   - DocumentRecord / DocumentVersion: The persisted document and its archived snapshots
//   - ChangeDecision: The classification of a fetched document against the stored one
//   - RunStats / RunResult: The summary of one crawl run
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The crawler, change detector, version store and report writers
// all share these types, so centralizing them prevents import cycles.
package model
