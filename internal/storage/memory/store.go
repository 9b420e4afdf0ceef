// Package memory provides an in-memory crawler store for development and
// tests. It has no full-text index: search is always a substring scan.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/synapse-search/internal/crawler"
	"github.com/JakeFAU/synapse-search/internal/search"
)

type linkKey struct {
	from, to string
}

// Store keeps sources, articles and outbound links in maps guarded by a
// single RWMutex.
type Store struct {
	mu sync.RWMutex

	articles    map[string]crawler.Article
	nextArticle int64

	sources    map[int64]crawler.Source
	sourceURLs map[string]int64
	nextSource int64

	links    map[linkKey]crawler.OutboundLink
	nextLink int64

	search *search.Resilient
}

// New constructs an empty Store.
func New(logger *zap.Logger) *Store {
	s := &Store{
		articles:   make(map[string]crawler.Article),
		sources:    make(map[int64]crawler.Source),
		sourceURLs: make(map[string]int64),
		links:      make(map[linkKey]crawler.OutboundLink),
	}
	// NewResilient only fails on a nil fallback.
	s.search, _ = search.NewResilient(nil, search.BackendFunc(s.MatchSubstring), logger)
	return s
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// InsertArticle stores a unless its URL already exists.
func (s *Store) InsertArticle(_ context.Context, a crawler.Article) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.articles[a.URL]; ok {
		return false, nil
	}
	s.nextArticle++
	a.ID = s.nextArticle
	s.articles[a.URL] = a
	return true, nil
}

// Search matches q as a substring.
func (s *Store) Search(ctx context.Context, q string, limit int) ([]crawler.Article, error) {
	return s.search.Search(ctx, q, limit)
}

// MatchSubstring returns articles whose title, snippet or content contains q,
// case-insensitively, newest first.
func (s *Store) MatchSubstring(_ context.Context, q string, limit int) ([]crawler.Article, error) {
	needle := strings.ToLower(strings.TrimSpace(q))
	if needle == "" {
		return []crawler.Article{}, nil
	}
	s.mu.RLock()
	matches := make([]crawler.Article, 0)
	for _, a := range s.articles {
		if strings.Contains(strings.ToLower(a.Title), needle) ||
			strings.Contains(strings.ToLower(a.Snippet), needle) ||
			strings.Contains(strings.ToLower(a.Content), needle) {
			matches = append(matches, a)
		}
	}
	s.mu.RUnlock()
	sortNewest(matches)
	return head(matches, search.Limit(limit)), nil
}

// Recent returns the newest articles by crawl time.
func (s *Store) Recent(_ context.Context, limit int) ([]crawler.Article, error) {
	s.mu.RLock()
	all := make([]crawler.Article, 0, len(s.articles))
	for _, a := range s.articles {
		all = append(all, a)
	}
	s.mu.RUnlock()
	sortNewest(all)
	return head(all, crawler.LimitOr(limit, crawler.DefaultRecentLimit)), nil
}

// ClearArticles deletes every article.
func (s *Store) ClearArticles(context.Context) error {
	s.mu.Lock()
	s.articles = make(map[string]crawler.Article)
	s.mu.Unlock()
	return nil
}

// AddSource registers src. Registering an existing URL returns the stored row
// unchanged.
func (s *Store) AddSource(_ context.Context, src crawler.NewSource) (crawler.Source, error) {
	src, err := src.Normalize()
	if err != nil {
		return crawler.Source{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.sourceURLs[src.URL]; ok {
		return s.sources[id], nil
	}
	s.nextSource++
	stored := crawler.Source{
		ID:              s.nextSource,
		URL:             src.URL,
		Name:            src.Name,
		IntervalMinutes: src.IntervalMinutes,
		Depth:           src.Depth,
		Active:          true,
		ScrapeOutbound:  src.ScrapeOutbound,
		CreatedAt:       time.Now().UTC(),
	}
	s.sources[stored.ID] = stored
	s.sourceURLs[stored.URL] = stored.ID
	return stored, nil
}

// GetSource returns the source with id.
func (s *Store) GetSource(_ context.Context, id int64) (crawler.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[id]
	if !ok {
		return crawler.Source{}, crawler.ErrNotFound
	}
	return src, nil
}

// ListSources returns every source, newest first.
func (s *Store) ListSources(context.Context) ([]crawler.Source, error) {
	out := s.sourcesWhere(func(crawler.Source) bool { return true })
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// ActiveSources returns active sources in registration order.
func (s *Store) ActiveSources(context.Context) ([]crawler.Source, error) {
	out := s.sourcesWhere(func(src crawler.Source) bool { return src.Active })
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) sourcesWhere(keep func(crawler.Source) bool) []crawler.Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Source, 0, len(s.sources))
	for _, src := range s.sources {
		if keep(src) {
			out = append(out, src)
		}
	}
	return out
}

// UpdateSourceInterval sets the crawl interval of a source.
func (s *Store) UpdateSourceInterval(_ context.Context, id int64, minutes int) error {
	return s.updateSource(id, func(src *crawler.Source) { src.IntervalMinutes = minutes })
}

// UpdateSourceDepth sets the traversal depth of a source.
func (s *Store) UpdateSourceDepth(_ context.Context, id int64, depth int) error {
	return s.updateSource(id, func(src *crawler.Source) { src.Depth = depth })
}

// UpdateSourceScrapeOutbound toggles outbound link recording.
func (s *Store) UpdateSourceScrapeOutbound(_ context.Context, id int64, enabled bool) error {
	return s.updateSource(id, func(src *crawler.Source) { src.ScrapeOutbound = enabled })
}

// MarkCrawled records the completion time of a traversal. A missing source is
// not an error.
func (s *Store) MarkCrawled(_ context.Context, id int64, at time.Time) error {
	err := s.updateSource(id, func(src *crawler.Source) {
		t := at.UTC()
		src.LastCrawledAt = &t
	})
	if err != nil && !errors.Is(err, crawler.ErrNotFound) {
		return err
	}
	return nil
}

func (s *Store) updateSource(id int64, apply func(*crawler.Source)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return fmt.Errorf("source %d: %w", id, crawler.ErrNotFound)
	}
	apply(&src)
	s.sources[id] = src
	return nil
}

// DeleteSource removes a source.
func (s *Store) DeleteSource(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return fmt.Errorf("source %d: %w", id, crawler.ErrNotFound)
	}
	delete(s.sources, id)
	delete(s.sourceURLs, src.URL)
	return nil
}

// ClearSources deletes every source.
func (s *Store) ClearSources(context.Context) error {
	s.mu.Lock()
	s.sources = make(map[int64]crawler.Source)
	s.sourceURLs = make(map[string]int64)
	s.mu.Unlock()
	return nil
}

// InsertOutboundLink stores l unless the (from, to) pair already exists.
func (s *Store) InsertOutboundLink(_ context.Context, l crawler.OutboundLink) (bool, error) {
	key := linkKey{from: l.FromURL, to: l.ToURL}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[key]; ok {
		return false, nil
	}
	s.nextLink++
	l.ID = s.nextLink
	s.links[key] = l
	return true, nil
}

// ListDomains aggregates links by destination domain, most linked first.
func (s *Store) ListDomains(_ context.Context, limit int) ([]crawler.DomainCount, error) {
	s.mu.RLock()
	byDomain := make(map[string]*crawler.DomainCount)
	for _, l := range s.links {
		d, ok := byDomain[l.Domain]
		if !ok {
			d = &crawler.DomainCount{Domain: l.Domain}
			byDomain[l.Domain] = d
		}
		d.Count++
		if l.Category > d.Category {
			d.Category = l.Category
		}
	}
	s.mu.RUnlock()

	out := make([]crawler.DomainCount, 0, len(byDomain))
	for _, d := range byDomain {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Domain < out[j].Domain
	})
	return head(out, crawler.LimitOr(limit, crawler.DefaultDomainLimit)), nil
}

// LinksFor returns the links recorded from fromURL.
func (s *Store) LinksFor(_ context.Context, fromURL string) ([]crawler.OutboundLink, error) {
	out := s.linksWhere(func(l crawler.OutboundLink) bool { return l.FromURL == fromURL })
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RecentLinks returns the newest recorded links.
func (s *Store) RecentLinks(_ context.Context, limit int) ([]crawler.OutboundLink, error) {
	out := s.linksWhere(func(crawler.OutboundLink) bool { return true })
	sortLinksNewest(out)
	return head(out, crawler.LimitOr(limit, crawler.DefaultRecentLinksLimit)), nil
}

// LinkedPages returns distinct pages that have outbound links, most recently
// active first.
func (s *Store) LinkedPages(_ context.Context, limit int) ([]string, error) {
	all := s.linksWhere(func(crawler.OutboundLink) bool { return true })
	sortLinksNewest(all)
	seen := make(map[string]struct{})
	out := []string{}
	for _, l := range all {
		if _, ok := seen[l.FromURL]; ok {
			continue
		}
		seen[l.FromURL] = struct{}{}
		out = append(out, l.FromURL)
	}
	return head(out, crawler.LimitOr(limit, crawler.DefaultLinkedPagesLimit)), nil
}

func (s *Store) linksWhere(keep func(crawler.OutboundLink) bool) []crawler.OutboundLink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.OutboundLink, 0, len(s.links))
	for _, l := range s.links {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}

func sortNewest(in []crawler.Article) {
	sort.Slice(in, func(i, j int) bool {
		if !in[i].CrawledAt.Equal(in[j].CrawledAt) {
			return in[i].CrawledAt.After(in[j].CrawledAt)
		}
		return in[i].ID > in[j].ID
	})
}

func sortLinksNewest(in []crawler.OutboundLink) {
	sort.Slice(in, func(i, j int) bool {
		if !in[i].CreatedAt.Equal(in[j].CreatedAt) {
			return in[i].CreatedAt.After(in[j].CreatedAt)
		}
		return in[i].ID > in[j].ID
	})
}

func head[T any](in []T, n int) []T {
	if len(in) > n {
		return in[:n]
	}
	return in
}
