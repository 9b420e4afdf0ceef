// Package extract turns fetched HTML into indexable text. Main content comes
// from go-readability; pages it cannot handle fall back to the <title> and the
// raw body text. Anchors are collected with goquery before readability
// rewrites the tree.
package extract

import (
	"bytes"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/JakeFAU/synapse-search/internal/crawler"
)

// Extraction limits, in runes.
const (
	MaxContent      = 15000
	MaxFallbackText = 500
	MaxSnippet      = 200
	// MinContent is the exclusive lower bound Accept applies to Page.Text.
	MinContent = crawler.MinContentRunes
)

// Extractor implements crawler.Extractor.
type Extractor struct{}

// New returns an Extractor.
func New() Extractor {
	return Extractor{}
}

// Extract implements crawler.Extractor.
func (Extractor) Extract(body []byte, pageURL string) crawler.Page {
	return Extract(body, pageURL)
}

// Extract parses body and returns its title, text, snippet and absolute
// links. It never panics: malformed markup yields a best-effort or empty Page.
func Extract(body []byte, pageURL string) (page crawler.Page) {
	defer func() {
		if recover() != nil {
			page = crawler.Page{}
		}
	}()

	base, _ := url.Parse(pageURL)
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawler.Page{}
	}
	page.Links = Links(doc, base)
	htmlTitle := collapse(doc.Find("title").First().Text())

	if base == nil {
		base = &url.URL{}
	}
	article, err := readability.FromReader(bytes.NewReader(body), base)
	if err == nil {
		text := collapse(article.TextContent)
		if text != "" {
			page.Title = collapse(article.Title)
			if page.Title == "" {
				page.Title = htmlTitle
			}
			page.Text = truncate(text, MaxContent)
			page.Snippet = truncate(collapse(article.Excerpt), MaxSnippet)
			if page.Snippet == "" {
				page.Snippet = truncate(page.Text, MaxSnippet)
			}
			if article.PublishedTime != nil && !article.PublishedTime.IsZero() {
				published := article.PublishedTime.UTC()
				page.PublishedAt = &published
			}
			return page
		}
	}

	page.Title = htmlTitle
	page.Text = truncate(collapse(doc.Find("body").Text()), MaxFallbackText)
	page.Snippet = truncate(page.Text, MaxSnippet)
	return page
}

// Accept is the indexing gate: the text must be longer than MinContent runes
// and the title non-empty.
func Accept(page crawler.Page) bool {
	return page.Indexable()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
