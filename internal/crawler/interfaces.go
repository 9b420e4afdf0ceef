package crawler

import (
	"context"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

// Extractor turns raw HTML into a Page. Implementations must not panic on
// malformed markup.
type Extractor interface {
	Extract(body []byte, pageURL string) Page
}

// Classifier assigns a category to an absolute URL.
type Classifier interface {
	Classify(rawURL string) (Category, error)
}

// HostPolicy gates fetches per host. The returned release func must be called
// once the fetch completes.
type HostPolicy interface {
	Acquire(ctx context.Context, rawURL string) (func(), error)
}

// ArticleWriter persists extracted pages with insert-or-ignore semantics.
type ArticleWriter interface {
	InsertArticle(ctx context.Context, article Article) (bool, error)
}

// LinkWriter persists outbound links with insert-or-ignore semantics.
type LinkWriter interface {
	InsertOutboundLink(ctx context.Context, link OutboundLink) (bool, error)
}

// CrawlMarker records the completion time of a source traversal.
type CrawlMarker interface {
	MarkCrawled(ctx context.Context, sourceID int64, at time.Time) error
}

// SourceStore manages the configured sources.
type SourceStore interface {
	CrawlMarker
	AddSource(ctx context.Context, src NewSource) (Source, error)
	GetSource(ctx context.Context, id int64) (Source, error)
	ListSources(ctx context.Context) ([]Source, error)
	ActiveSources(ctx context.Context) ([]Source, error)
	UpdateSourceInterval(ctx context.Context, id int64, minutes int) error
	UpdateSourceDepth(ctx context.Context, id int64, depth int) error
	UpdateSourceScrapeOutbound(ctx context.Context, id int64, enabled bool) error
	DeleteSource(ctx context.Context, id int64) error
	ClearSources(ctx context.Context) error
}

// ArticleStore owns the article corpus and its search index.
type ArticleStore interface {
	ArticleWriter
	Search(ctx context.Context, query string, limit int) ([]Article, error)
	Recent(ctx context.Context, limit int) ([]Article, error)
	ClearArticles(ctx context.Context) error
}

// LinkStore owns recorded outbound links.
type LinkStore interface {
	LinkWriter
	ListDomains(ctx context.Context, limit int) ([]DomainCount, error)
	LinksFor(ctx context.Context, fromURL string) ([]OutboundLink, error)
	RecentLinks(ctx context.Context, limit int) ([]OutboundLink, error)
	LinkedPages(ctx context.Context, limit int) ([]string, error)
}

// Store is the full persistence surface used by the application.
type Store interface {
	SourceStore
	ArticleStore
	LinkStore
	Ping(ctx context.Context) error
	Close() error
}

// Listing defaults shared by the store implementations.
const (
	DefaultRecentLimit      = 100
	DefaultDomainLimit      = 200
	DefaultLinkedPagesLimit = 100
	DefaultRecentLinksLimit = 500
)

// LimitOr returns limit, or def when limit is not positive.
func LimitOr(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces traversal IDs.
type IDGenerator interface {
	NewID() (string, error)
}
