// Package classify assigns coarse categories to outbound links based on
// hostname substrings. Rules are evaluated in a fixed order and the first
// match wins.
package classify

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/synapse-search/internal/crawler"
)

type rule struct {
	category crawler.Category
	hosts    []string
	// paths match against the whole URL rather than the host.
	paths []string
}

var rules = []rule{
	{category: crawler.CategoryVideo, hosts: []string{"youtube", "vimeo", "twitch", "tiktok"}},
	{category: crawler.CategorySocial, hosts: []string{
		"twitter", "x.com", "facebook", "instagram", "reddit", "linkedin", "bluesky", "mastodon",
	}},
	{category: crawler.CategoryTechCode, hosts: []string{"github", "gitlab", "stackoverflow", "npm", "developer"}},
	{category: crawler.CategoryWiki, hosts: []string{"wikipedia", "fandom", "wiki"}},
	{category: crawler.CategorySearchEngine, hosts: []string{"google", "bing", "duckduckgo", "search"}},
	{category: crawler.CategoryMainstreamNews, hosts: []string{"nytimes", "bbc", "cnn", "reuters", "apnews"}},
	{category: crawler.CategoryBlog, hosts: []string{"medium", "substack", "wordpress"}, paths: []string{"/blog"}},
}

// Classifier implements crawler.Classifier.
type Classifier struct{}

// New returns a Classifier.
func New() Classifier {
	return Classifier{}
}

// Classify implements crawler.Classifier.
func (Classifier) Classify(rawURL string) (crawler.Category, error) {
	return Classify(rawURL)
}

// Classify returns the category of rawURL. Unparsable URLs and URLs without a
// host yield crawler.ErrInvalidURL.
func Classify(rawURL string) (crawler.Category, error) {
	host, err := Domain(rawURL)
	if err != nil {
		return "", err
	}
	for _, r := range rules {
		for _, needle := range r.paths {
			if strings.Contains(rawURL, needle) {
				return r.category, nil
			}
		}
		for _, needle := range r.hosts {
			if strings.Contains(host, needle) {
				return r.category, nil
			}
		}
	}
	return crawler.CategoryGeneral, nil
}

// Domain returns the lowercased hostname of rawURL.
func Domain(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", crawler.ErrInvalidURL, err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: %q has no host", crawler.ErrInvalidURL, rawURL)
	}
	return host, nil
}
