package crawler

import (
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// MinContentRunes is the exclusive lower bound on extracted text length for a
// page to become an Article.
const MinContentRunes = 100

// Category labels an outbound link by the kind of site it points at.
type Category string

// Categories assigned by the link classifier.
const (
	CategoryVideo          Category = "Video"
	CategorySocial         Category = "Social"
	CategoryTechCode       Category = "Tech/Code"
	CategoryWiki           Category = "Wiki"
	CategorySearchEngine   Category = "Search Engine"
	CategoryMainstreamNews Category = "Mainstream News"
	CategoryBlog           Category = "Blog"
	CategoryGeneral        Category = "General"
)

// Source is a configured seed for recurring traversals.
type Source struct {
	ID              int64      `json:"id"`
	URL             string     `json:"url"`
	Name            string     `json:"name"`
	IntervalMinutes int        `json:"interval_minutes"`
	Depth           int        `json:"depth"`
	LastCrawledAt   *time.Time `json:"last_crawled_at,omitempty"`
	Active          bool       `json:"active"`
	ScrapeOutbound  bool       `json:"scrape_outbound"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Due reports whether the source should be traversed at now. A source that has
// never been crawled is always due.
func (s Source) Due(now time.Time) bool {
	if s.LastCrawledAt == nil {
		return true
	}
	elapsed := now.Sub(*s.LastCrawledAt)
	return elapsed >= time.Duration(s.IntervalMinutes)*time.Minute
}

// Source defaults applied on registration.
const (
	DefaultIntervalMinutes = 60
	DefaultSourceDepth     = 7
)

// NewSource captures the fields accepted when registering a source.
type NewSource struct {
	URL             string
	Name            string
	IntervalMinutes int
	Depth           int
	ScrapeOutbound  bool
}

// Normalize cleans the URL, rejects values that cannot seed a traversal and
// fills defaults. The name defaults to the host.
func (n NewSource) Normalize() (NewSource, error) {
	u, err := ParseStartURL(n.URL)
	if err != nil {
		return NewSource{}, err
	}
	n.URL = normalize(u)
	n.Name = strings.TrimSpace(n.Name)
	if n.Name == "" {
		n.Name = strings.ToLower(u.Hostname())
	}
	if n.IntervalMinutes <= 0 {
		n.IntervalMinutes = DefaultIntervalMinutes
	}
	if n.Depth <= 0 {
		n.Depth = DefaultSourceDepth
	}
	return n, nil
}

// Article is an indexed page. URL is the unique key.
type Article struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Source      string     `json:"source"`
	Snippet     string     `json:"snippet"`
	Content     string     `json:"content"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CrawledAt   time.Time  `json:"crawled_at"`
}

// OutboundLink is a directed edge discovered while traversing a source.
type OutboundLink struct {
	ID        int64     `json:"id"`
	FromURL   string    `json:"from_url"`
	ToURL     string    `json:"to_url"`
	Domain    string    `json:"domain"`
	Category  Category  `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// DomainCount aggregates outbound links by destination domain.
type DomainCount struct {
	Domain   string   `json:"domain"`
	Category Category `json:"category"`
	Count    int      `json:"count"`
}

// Result summarises a completed traversal. PagesIndexed counts pages that
// passed the acceptance gate and were written (duplicates included); PagesNew
// counts only rows that did not exist before.
type Result struct {
	TraversalID  string        `json:"traversal_id"`
	Source       string        `json:"source"`
	PagesVisited int           `json:"pages_visited"`
	PagesIndexed int           `json:"pages_indexed"`
	PagesNew     int           `json:"pages_new"`
	Duration     time.Duration `json:"duration"`
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Page is the extractor's view of a fetched document.
type Page struct {
	Title       string
	Text        string
	Snippet     string
	PublishedAt *time.Time
	Links       []string
}

// Indexable is the acceptance gate: a non-empty title and more than
// MinContentRunes runes of text.
func (p Page) Indexable() bool {
	return p.Title != "" && utf8.RuneCountInString(p.Text) > MinContentRunes
}
