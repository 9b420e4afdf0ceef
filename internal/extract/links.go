package extract

import (
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/synapse-search/internal/crawler"
)

// Links returns the absolute http(s) targets of every a[href] in document
// order, deduplicated. A <base href> overrides the page URL for resolution.
func Links(doc *goquery.Document, pageURL *url.URL) []string {
	if doc == nil || pageURL == nil {
		return nil
	}
	base := pageURL
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if ref, err := url.Parse(href); err == nil {
			base = pageURL.ResolveReference(ref)
		}
	}

	seen := make(map[string]struct{})
	var out []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		link, ok := crawler.ResolveLink(base, href)
		if !ok {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		out = append(out, link)
	})
	return out
}
