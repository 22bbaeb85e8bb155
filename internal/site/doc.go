// Package site turns source web pages into crawl targets.
//
// HTMLAdapter implements crawler.SiteAdapter for the common case of a source
// that publishes paginated HTML listings of document links. Everything
// source-specific lives in Config: CSS selectors for document and next-page
// links (github.com/PuerkitoBio/goquery), URL glob filters, and a regular
// expression that extracts a stable external id from each document URL.
//
// Design decision: Sources are described by data instead of code, so adding a
// gazette means adding a few lines to the sources file. A source that needs
// more than selectors can still implement crawler.SiteAdapter directly.
package site
