package site

import (
	"net/url"
	"path"
	"strings"
)

// resolveURL resolves href against base. Non-HTTP links (mailto:, javascript:,
// in-page anchors) resolve to nil.
func resolveURL(base *url.URL, href string) *url.URL {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil
	}

	ref, err := url.Parse(href)
	if err != nil {
		return nil
	}

	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil
	}
	return u
}

// normalizeURL normalizes a URL for deduplication and for use as an
// external id: no fragment, lower-case scheme and host, "/" for an empty path.
func normalizeURL(u *url.URL) string {
	n := *u
	n.Fragment = ""
	n.RawFragment = ""
	n.Scheme = strings.ToLower(n.Scheme)
	n.Host = strings.ToLower(n.Host)
	if n.Path == "" {
		n.Path = "/"
	}
	return n.String()
}

// shouldFollow applies exclude patterns first, then include patterns.
// An empty include list allows every path that was not excluded.
func shouldFollow(p string, include, exclude []string) bool {
	if p == "" {
		p = "/"
	}

	for _, pattern := range exclude {
		if matchPattern(pattern, p) {
			return false
		}
	}

	if len(include) == 0 {
		return true
	}
	for _, pattern := range include {
		if matchPattern(pattern, p) {
			return true
		}
	}
	return false
}

// matchPattern checks if a URL path matches a glob pattern.
//
// Examples:
//   - "/jo/*" matches "/jo/2024/17" and "/jo"
//   - "*.pdf" matches "/eli/decret/2024/17.pdf"
//   - "/bulletin/n?" matches "/bulletin/n1"
func matchPattern(pattern, p string) bool {
	// "/prefix/*" matches the whole subtree.
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(p, prefix+"/") || p == prefix {
			return true
		}
	}

	// "*.ext" matches by extension at any depth.
	if strings.HasPrefix(pattern, "*.") && !strings.ContainsAny(pattern[2:], "*?[") {
		if strings.HasSuffix(strings.ToLower(p), strings.ToLower(pattern[1:])) {
			return true
		}
	}

	if matched, err := path.Match(pattern, p); err == nil && matched {
		return true
	}

	// Patterns without a slash are also tried against the last segment.
	if !strings.Contains(pattern, "/") {
		if matched, err := path.Match(pattern, path.Base(p)); err == nil && matched {
			return true
		}
	}

	return false
}
