package crawler

import (
	"context"

	"github.com/nao1215/lexcrawl/internal/change"
	"github.com/nao1215/lexcrawl/internal/model"
	"github.com/nao1215/lexcrawl/internal/versionstore"
)

// SiteAdapter knows how a single source lays out its listings and documents.
// Implementations must be safe for concurrent use by the worker pool.
type SiteAdapter interface {
	// ListTargets returns the document candidates of a listing page in page order.
	ListTargets(page *model.FetchResult) ([]model.CrawlTarget, error)

	// NextPage returns the absolute URL of the following listing page.
	// ok is false on the last page.
	NextPage(page *model.FetchResult) (next string, ok bool)

	// ExtractMetadata returns source-specific metadata for a fetched document.
	ExtractMetadata(target model.CrawlTarget, result *model.FetchResult) model.DocumentMeta

	// ExtractText returns the text used for similarity scoring. Binary
	// documents may return "".
	ExtractText(result *model.FetchResult) string
}

// Store is the document store used by a run: the read side for change
// detection and the write side for version persistence.
type Store interface {
	change.Store
	versionstore.Store
}

// Starter is implemented by fetchers that need a connectivity check before
// the first request, such as a fetcher routed through proxies.
type Starter interface {
	Start(ctx context.Context) error
}
