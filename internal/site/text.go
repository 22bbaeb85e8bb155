package site

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/nao1215/lexcrawl/internal/model"
)

// skippedElements never contribute text.
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
	"svg":      true,
}

// blockElements end a line of text.
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "table": true, "blockquote": true, "pre": true,
}

// ExtractText returns the visible text of an HTML document, the body of a
// text document, or "" for binary content such as PDF.
func ExtractText(result *model.FetchResult) string {
	switch {
	case result.IsHTML():
		return htmlText(result.Body)
	case result.IsText():
		if utf8.Valid(result.Body) {
			return string(result.Body)
		}
		return strings.ToValidUTF8(string(result.Body), "�")
	default:
		return ""
	}
}

// htmlText walks the DOM and joins text nodes, breaking lines at block elements.
func htmlText(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if skippedElements[n.Data] {
				return
			}
		case html.TextNode:
			if text := collapseSpaces(n.Data); text != "" {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(text)
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode && blockElements[n.Data] && b.Len() > 0 {
			b.WriteByte('\n')
		}
	}
	walk(doc)

	return tidyLines(b.String())
}

// tidyLines trims each line and drops empty ones.
func tidyLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// collapseSpaces trims s and folds whitespace runs into single spaces.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
