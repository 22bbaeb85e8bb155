package site

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/lexcrawl/internal/model"
)

// DefaultLinkSelector selects every anchor with an href.
const DefaultLinkSelector = "a[href]"

// ErrNotHTML is returned by ListTargets for listing pages that are not HTML.
var ErrNotHTML = errors.New("listing page is not HTML")

// Config describes how to read one source's listing pages.
type Config struct {
	// LinkSelector is a CSS selector for document links on a listing page.
	LinkSelector string

	// NextSelector is a CSS selector for the next-page link.
	// Empty means the source has a single listing page.
	NextSelector string

	// Include are URL path glob patterns a document link must match.
	// Empty means every link is a candidate.
	Include []string

	// Exclude are URL path glob patterns that reject a document link.
	Exclude []string

	// IDPattern is a regular expression applied to the document URL. The
	// first capture group (or the whole match) becomes the external id.
	// Links that do not match are skipped. Empty means the normalized URL
	// is the external id.
	IDPattern string

	// SameHost restricts document links to the listing page's host.
	SameHost bool
}

// HTMLAdapter is a configuration-driven site adapter for HTML listing pages.
// It is safe for concurrent use.
type HTMLAdapter struct {
	cfg       Config
	idPattern *regexp.Regexp
}

// NewHTMLAdapter validates cfg and creates an adapter.
func NewHTMLAdapter(cfg Config) (*HTMLAdapter, error) {
	if cfg.LinkSelector == "" {
		cfg.LinkSelector = DefaultLinkSelector
	}

	a := &HTMLAdapter{cfg: cfg}

	if cfg.IDPattern != "" {
		re, err := regexp.Compile(cfg.IDPattern)
		if err != nil {
			return nil, fmt.Errorf("invalid id pattern: %w", err)
		}
		a.idPattern = re
	}

	for _, p := range append(append([]string{}, cfg.Include...), cfg.Exclude...) {
		if _, err := path.Match(p, "/"); err != nil {
			return nil, fmt.Errorf("invalid URL pattern %q: %w", p, err)
		}
	}

	return a, nil
}

// ListTargets returns the document links of a listing page in document
// order, without duplicates.
func (a *HTMLAdapter) ListTargets(page *model.FetchResult) ([]model.CrawlTarget, error) {
	if !page.IsHTML() {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNotHTML, page.URL, page.MediaType())
	}

	base, err := url.Parse(page.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}

	seen := make(map[string]bool)
	targets := make([]model.CrawlTarget, 0)

	doc.Find(a.cfg.LinkSelector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}

		target, ok := a.target(base, href, linkTitle(s))
		if !ok || seen[target.ID] {
			return
		}
		seen[target.ID] = true
		targets = append(targets, target)
	})

	return targets, nil
}

// target builds a CrawlTarget for one href, reporting false for links that
// are not documents of this source.
func (a *HTMLAdapter) target(base *url.URL, href, title string) (model.CrawlTarget, bool) {
	resolved := resolveURL(base, href)
	if resolved == nil {
		return model.CrawlTarget{}, false
	}
	if a.cfg.SameHost && !strings.EqualFold(resolved.Host, base.Host) {
		return model.CrawlTarget{}, false
	}
	if !shouldFollow(resolved.Path, a.cfg.Include, a.cfg.Exclude) {
		return model.CrawlTarget{}, false
	}

	normalized := normalizeURL(resolved)

	id := normalized
	if a.idPattern != nil {
		m := a.idPattern.FindStringSubmatch(normalized)
		if m == nil {
			return model.CrawlTarget{}, false
		}
		id = m[0]
		if len(m) > 1 && m[1] != "" {
			id = m[1]
		}
	}

	if title == "" {
		title = path.Base(resolved.Path)
	}

	return model.CrawlTarget{
		ID:        id,
		Title:     title,
		URL:       normalized,
		MediaType: mediaTypeFromPath(resolved.Path),
	}, true
}

// NextPage returns the URL of the next listing page, if any. A next link
// that points back at the current page is ignored.
func (a *HTMLAdapter) NextPage(page *model.FetchResult) (string, bool) {
	if a.cfg.NextSelector == "" || !page.IsHTML() {
		return "", false
	}

	base, err := url.Parse(page.URL)
	if err != nil {
		return "", false
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return "", false
	}

	href, ok := doc.Find(a.cfg.NextSelector).First().Attr("href")
	if !ok {
		return "", false
	}

	next := resolveURL(base, href)
	if next == nil {
		return "", false
	}

	nextURL := normalizeURL(next)
	if nextURL == normalizeURL(base) {
		return "", false
	}
	return nextURL, true
}

// ExtractText returns the text used for similarity scoring.
func (a *HTMLAdapter) ExtractText(result *model.FetchResult) string {
	return ExtractText(result)
}

// ExtractMetadata reads the title, publication date and descriptive meta tags.
//
// PublishedAt comes from, in order: an article:published_time or
// DC.date.issued meta tag, then the Last-Modified response header.
func (a *HTMLAdapter) ExtractMetadata(target model.CrawlTarget, result *model.FetchResult) model.DocumentMeta {
	meta := model.DocumentMeta{
		Fields: make(map[string]string),
	}

	if mt := result.MediaType(); mt != "" {
		meta.Fields["content_type"] = mt
	}
	if result.URL != "" && result.URL != target.URL {
		meta.Fields["final_url"] = result.URL
	}

	if lm := result.GetHeader("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			meta.PublishedAt = t.UTC()
		}
	}

	if result.IsHTML() {
		if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(result.Body)); err == nil {
			meta.Title = pageTitle(doc)
			if desc := metaContent(doc, "meta[name='description']", "meta[property='og:description']"); desc != "" {
				meta.Fields["description"] = desc
			}
			if author := metaContent(doc, "meta[name='author']", "meta[name='DC.creator']"); author != "" {
				meta.Fields["author"] = author
			}
			if issued := metaContent(doc, "meta[property='article:published_time']", "meta[name='DC.date.issued']"); issued != "" {
				if t, ok := parseDate(issued); ok {
					meta.PublishedAt = t
				}
			}
		}
	}

	if len(meta.Fields) == 0 {
		meta.Fields = nil
	}
	return meta
}

// pageTitle prefers <title>, then og:title.
func pageTitle(doc *goquery.Document) string {
	if title := collapseSpaces(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return metaContent(doc, "meta[property='og:title']")
}

// metaContent returns the content attribute of the first selector that has one.
func metaContent(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if v, ok := doc.Find(sel).First().Attr("content"); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// linkTitle is the anchor text, or its title attribute when the text is empty.
func linkTitle(s *goquery.Selection) string {
	if text := collapseSpaces(s.Text()); text != "" {
		return text
	}
	title, _ := s.Attr("title")
	return collapseSpaces(title)
}

// dateLayouts are the date formats accepted in meta tags.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006",
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// mediaTypes maps document extensions to media types.
var mediaTypes = map[string]string{
	".pdf":  "application/pdf",
	".html": "text/html",
	".htm":  "text/html",
	".xml":  "application/xml",
	".txt":  "text/plain",
	".json": "application/json",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".odt":  "application/vnd.oasis.opendocument.text",
}

// mediaTypeFromPath guesses the media type from the URL path extension.
// Unknown extensions yield an empty string.
func mediaTypeFromPath(p string) string {
	return mediaTypes[strings.ToLower(path.Ext(p))]
}
