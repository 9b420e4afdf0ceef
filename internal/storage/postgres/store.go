// Package postgres implements the crawler store on PostgreSQL, using a
// generated tsvector column for ranked search.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/synapse-search/internal/crawler"
	"github.com/JakeFAU/synapse-search/internal/search"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Pool is the subset of pgxpool.Pool used by the store. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store persists sources, articles and outbound links in Postgres.
type Store struct {
	pool     Pool
	log      *zap.Logger
	fullText bool
	search   *search.Resilient
}

// New connects to cfg.DSN, migrates the schema and returns a Store.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	fullText, err := Migrate(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return NewWithPool(pool, fullText, logger)
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool Pool, fullText bool, logger *zap.Logger) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{pool: pool, log: logger.Named("postgres"), fullText: fullText}
	var primary search.Backend
	if fullText {
		primary = search.BackendFunc(s.MatchFullText)
	}
	strategy, err := search.NewResilient(primary, search.BackendFunc(s.MatchSubstring), s.log)
	if err != nil {
		return nil, err
	}
	s.search = strategy
	return s, nil
}

// FullText reports whether ranked search is available.
func (s *Store) FullText() bool {
	return s.fullText
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

const articleColumns = `id, title, url, source, snippet, content, published_at, crawled_at`

// InsertArticle stores a unless its URL already exists.
func (s *Store) InsertArticle(ctx context.Context, a crawler.Article) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
INSERT INTO articles (title, url, source, snippet, content, published_at, crawled_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (url) DO NOTHING`,
		a.Title, a.URL, a.Source, a.Snippet, a.Content, a.PublishedAt, a.CrawledAt)
	if err != nil {
		return false, fmt.Errorf("insert article %q: %w", a.URL, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Search runs q through the index, falling back to substring matching.
func (s *Store) Search(ctx context.Context, q string, limit int) ([]crawler.Article, error) {
	return s.search.Search(ctx, q, limit)
}

// MatchFullText ranks articles by ts_rank against the phrase or any term
// prefix of q.
func (s *Store) MatchFullText(ctx context.Context, q string, limit int) ([]crawler.Article, error) {
	if !s.fullText {
		return nil, crawler.ErrIndexUnavailable
	}
	q = strings.TrimSpace(q)
	if q == "" {
		return []crawler.Article{}, nil
	}
	tsquery := `phraseto_tsquery('english', $1)`
	args := []any{q, search.Limit(limit)}
	if prefix := search.PrefixTSQuery(q); prefix != "" {
		tsquery += ` || to_tsquery('english', $3)`
		args = append(args, prefix)
	}
	rows, err := s.pool.Query(ctx, `
SELECT `+articleColumns+`
FROM articles, (SELECT `+tsquery+` AS q) AS query
WHERE search_vector @@ query.q
ORDER BY ts_rank(search_vector, query.q) DESC, crawled_at DESC
LIMIT $2`, args...)
	if err != nil {
		return nil, fmt.Errorf("fts query: %w", err)
	}
	return scanArticles(rows)
}

// MatchSubstring returns articles whose title, snippet or content contains q,
// case-insensitively, newest first.
func (s *Store) MatchSubstring(ctx context.Context, q string, limit int) ([]crawler.Article, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []crawler.Article{}, nil
	}
	rows, err := s.pool.Query(ctx, `
SELECT `+articleColumns+`
FROM articles
WHERE title ILIKE $1 OR snippet ILIKE $1 OR content ILIKE $1
ORDER BY crawled_at DESC, id DESC
LIMIT $2`, search.LikePattern(q), search.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("substring query: %w", err)
	}
	return scanArticles(rows)
}

// Recent returns the newest articles by crawl time.
func (s *Store) Recent(ctx context.Context, limit int) ([]crawler.Article, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+articleColumns+`
FROM articles
ORDER BY crawled_at DESC, id DESC
LIMIT $1`, crawler.LimitOr(limit, crawler.DefaultRecentLimit))
	if err != nil {
		return nil, fmt.Errorf("recent articles: %w", err)
	}
	return scanArticles(rows)
}

// ClearArticles deletes every article.
func (s *Store) ClearArticles(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM articles`); err != nil {
		return fmt.Errorf("clear articles: %w", err)
	}
	return nil
}

const sourceColumns = `id, url, name, interval_minutes, depth, last_crawled_at, active, scrape_outbound, created_at`

// AddSource registers src. Registering an existing URL returns the stored row
// unchanged.
func (s *Store) AddSource(ctx context.Context, src crawler.NewSource) (crawler.Source, error) {
	src, err := src.Normalize()
	if err != nil {
		return crawler.Source{}, err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO sources (url, name, interval_minutes, depth, scrape_outbound)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (url) DO NOTHING`,
		src.URL, src.Name, src.IntervalMinutes, src.Depth, src.ScrapeOutbound)
	if err != nil {
		return crawler.Source{}, fmt.Errorf("insert source %q: %w", src.URL, err)
	}
	return scanSource(s.pool.QueryRow(ctx, `SELECT `+sourceColumns+` FROM sources WHERE url = $1`, src.URL))
}

// GetSource returns the source with id.
func (s *Store) GetSource(ctx context.Context, id int64) (crawler.Source, error) {
	return scanSource(s.pool.QueryRow(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id))
}

// ListSources returns every source, newest first.
func (s *Store) ListSources(ctx context.Context) ([]crawler.Source, error) {
	return s.querySources(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY id DESC`)
}

// ActiveSources returns active sources in registration order.
func (s *Store) ActiveSources(ctx context.Context) ([]crawler.Source, error) {
	return s.querySources(ctx, `SELECT `+sourceColumns+` FROM sources WHERE active ORDER BY id`)
}

func (s *Store) querySources(ctx context.Context, query string) ([]crawler.Source, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()
	out := []crawler.Source{}
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return out, nil
}

// UpdateSourceInterval sets the crawl interval of a source.
func (s *Store) UpdateSourceInterval(ctx context.Context, id int64, minutes int) error {
	return s.updateSource(ctx, id, `UPDATE sources SET interval_minutes = $1 WHERE id = $2`, minutes)
}

// UpdateSourceDepth sets the traversal depth of a source.
func (s *Store) UpdateSourceDepth(ctx context.Context, id int64, depth int) error {
	return s.updateSource(ctx, id, `UPDATE sources SET depth = $1 WHERE id = $2`, depth)
}

// UpdateSourceScrapeOutbound toggles outbound link recording.
func (s *Store) UpdateSourceScrapeOutbound(ctx context.Context, id int64, enabled bool) error {
	return s.updateSource(ctx, id, `UPDATE sources SET scrape_outbound = $1 WHERE id = $2`, enabled)
}

func (s *Store) updateSource(ctx context.Context, id int64, query string, value any) error {
	tag, err := s.pool.Exec(ctx, query, value, id)
	if err != nil {
		return fmt.Errorf("update source %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("source %d: %w", id, crawler.ErrNotFound)
	}
	return nil
}

// MarkCrawled records the completion time of a traversal. A missing source is
// not an error.
func (s *Store) MarkCrawled(ctx context.Context, id int64, at time.Time) error {
	if _, err := s.pool.Exec(ctx, `UPDATE sources SET last_crawled_at = $1 WHERE id = $2`, at, id); err != nil {
		return fmt.Errorf("mark source %d crawled: %w", id, err)
	}
	return nil
}

// DeleteSource removes a source.
func (s *Store) DeleteSource(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete source %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("source %d: %w", id, crawler.ErrNotFound)
	}
	return nil
}

// ClearSources deletes every source.
func (s *Store) ClearSources(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sources`); err != nil {
		return fmt.Errorf("clear sources: %w", err)
	}
	return nil
}

const linkColumns = `id, from_url, to_url, domain, category, created_at`

// InsertOutboundLink stores l unless the (from, to) pair already exists.
func (s *Store) InsertOutboundLink(ctx context.Context, l crawler.OutboundLink) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
INSERT INTO outbound_links (from_url, to_url, domain, category, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (from_url, to_url) DO NOTHING`,
		l.FromURL, l.ToURL, l.Domain, string(l.Category), l.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert outbound link: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListDomains aggregates links by destination domain, most linked first.
func (s *Store) ListDomains(ctx context.Context, limit int) ([]crawler.DomainCount, error) {
	rows, err := s.pool.Query(ctx, `
SELECT domain, MAX(category), COUNT(*) AS n
FROM outbound_links
GROUP BY domain
ORDER BY n DESC, domain
LIMIT $1`, crawler.LimitOr(limit, crawler.DefaultDomainLimit))
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()
	out := []crawler.DomainCount{}
	for rows.Next() {
		var (
			d        crawler.DomainCount
			category string
			count    int64
		)
		if err := rows.Scan(&d.Domain, &category, &count); err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		d.Category = crawler.Category(category)
		d.Count = int(count)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domains: %w", err)
	}
	return out, nil
}

// LinksFor returns the links recorded from fromURL.
func (s *Store) LinksFor(ctx context.Context, fromURL string) ([]crawler.OutboundLink, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+linkColumns+` FROM outbound_links WHERE from_url = $1 ORDER BY id`, fromURL)
	if err != nil {
		return nil, fmt.Errorf("links for %q: %w", fromURL, err)
	}
	return scanLinks(rows)
}

// RecentLinks returns the newest recorded links.
func (s *Store) RecentLinks(ctx context.Context, limit int) ([]crawler.OutboundLink, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+linkColumns+` FROM outbound_links ORDER BY created_at DESC, id DESC LIMIT $1`,
		crawler.LimitOr(limit, crawler.DefaultRecentLinksLimit))
	if err != nil {
		return nil, fmt.Errorf("recent links: %w", err)
	}
	return scanLinks(rows)
}

// LinkedPages returns distinct pages that have outbound links, most recently
// active first.
func (s *Store) LinkedPages(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
SELECT from_url
FROM outbound_links
GROUP BY from_url
ORDER BY MAX(created_at) DESC, from_url
LIMIT $1`, crawler.LimitOr(limit, crawler.DefaultLinkedPagesLimit))
	if err != nil {
		return nil, fmt.Errorf("linked pages: %w", err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan linked page: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate linked pages: %w", err)
	}
	return out, nil
}

func scanArticles(rows pgx.Rows) ([]crawler.Article, error) {
	defer rows.Close()
	out := []crawler.Article{}
	for rows.Next() {
		var a crawler.Article
		if err := rows.Scan(&a.ID, &a.Title, &a.URL, &a.Source, &a.Snippet, &a.Content, &a.PublishedAt, &a.CrawledAt); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return out, nil
}

func scanSource(row pgx.Row) (crawler.Source, error) {
	var src crawler.Source
	err := row.Scan(&src.ID, &src.URL, &src.Name, &src.IntervalMinutes, &src.Depth,
		&src.LastCrawledAt, &src.Active, &src.ScrapeOutbound, &src.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Source{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.Source{}, fmt.Errorf("scan source: %w", err)
	}
	return src, nil
}

func scanLinks(rows pgx.Rows) ([]crawler.OutboundLink, error) {
	defer rows.Close()
	out := []crawler.OutboundLink{}
	for rows.Next() {
		var (
			l        crawler.OutboundLink
			category string
		)
		if err := rows.Scan(&l.ID, &l.FromURL, &l.ToURL, &l.Domain, &category, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbound link: %w", err)
		}
		l.Category = crawler.Category(category)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbound links: %w", err)
	}
	return out, nil
}
