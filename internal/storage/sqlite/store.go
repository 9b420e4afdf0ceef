// Package sqlite implements the crawler store on an embedded SQLite database
// with an FTS5 index over articles.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/synapse-search/internal/crawler"
	"github.com/JakeFAU/synapse-search/internal/search"
)

// Config controls how the database is opened.
type Config struct {
	// Path is a file path or ":memory:". Empty means ":memory:".
	Path string
	// DisableFullText skips the FTS5 index; search then only does substring
	// matching.
	DisableFullText bool
}

// Store persists sources, articles and outbound links in SQLite.
type Store struct {
	db       *sql.DB
	log      *zap.Logger
	fullText bool
	search   *search.Resilient
}

// Open opens (creating if needed) the database at cfg.Path and applies the
// schema. Failure to create the full-text index is not fatal.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	dsn := path
	inMemory := path == ":memory:"
	if !inMemory {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if inMemory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	s, err := New(ctx, db, cfg.DisableFullText, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database handle.
func New(ctx context.Context, db *sql.DB, disableFullText bool, logger *zap.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("sqlite: db is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := applySchema(ctx, db); err != nil {
		return nil, err
	}
	s := &Store{db: db, log: logger.Named("sqlite")}
	if !disableFullText {
		if err := applyFullText(ctx, db); err != nil {
			s.log.Warn("full-text index disabled", zap.Error(err))
		} else {
			s.fullText = true
		}
	}
	var primary search.Backend
	if s.fullText {
		primary = search.BackendFunc(s.MatchFullText)
	}
	strategy, err := search.NewResilient(primary, search.BackendFunc(s.MatchSubstring), s.log)
	if err != nil {
		return nil, err
	}
	s.search = strategy
	return s, nil
}

// FullText reports whether the FTS5 index is available.
func (s *Store) FullText() bool {
	return s.fullText
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

const articleColumns = `id, title, url, source, snippet, content, published_at, crawled_at`

// InsertArticle stores a unless its URL already exists.
func (s *Store) InsertArticle(ctx context.Context, a crawler.Article) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO articles (title, url, source, snippet, content, published_at, crawled_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(url) DO NOTHING`,
		a.Title, a.URL, a.Source, a.Snippet, a.Content, nullMillis(a.PublishedAt), millis(a.CrawledAt))
	if err != nil {
		return false, fmt.Errorf("insert article %q: %w", a.URL, err)
	}
	return affected(res)
}

// Search runs q through the index, falling back to substring matching.
func (s *Store) Search(ctx context.Context, q string, limit int) ([]crawler.Article, error) {
	return s.search.Search(ctx, q, limit)
}

// MatchFullText ranks articles against the FTS5 index.
func (s *Store) MatchFullText(ctx context.Context, q string, limit int) ([]crawler.Article, error) {
	if !s.fullText {
		return nil, crawler.ErrIndexUnavailable
	}
	expr := search.MatchExpression(q)
	if expr == "" {
		return []crawler.Article{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT a.id, a.title, a.url, a.source, a.snippet, a.content, a.published_at, a.crawled_at
FROM articles_fts f
JOIN articles a ON a.id = f.rowid
WHERE articles_fts MATCH ?
ORDER BY rank
LIMIT ?`, expr, search.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("fts query: %w", err)
	}
	return scanArticles(rows)
}

// MatchSubstring returns articles whose title, snippet or content contains q,
// newest first.
func (s *Store) MatchSubstring(ctx context.Context, q string, limit int) ([]crawler.Article, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []crawler.Article{}, nil
	}
	pattern := search.LikePattern(q)
	rows, err := s.db.QueryContext(ctx, `
SELECT `+articleColumns+`
FROM articles
WHERE title LIKE ? ESCAPE '\' OR snippet LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\'
ORDER BY crawled_at DESC, id DESC
LIMIT ?`, pattern, pattern, pattern, search.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("substring query: %w", err)
	}
	return scanArticles(rows)
}

// Recent returns the newest articles by crawl time.
func (s *Store) Recent(ctx context.Context, limit int) ([]crawler.Article, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+articleColumns+`
FROM articles
ORDER BY crawled_at DESC, id DESC
LIMIT ?`, crawler.LimitOr(limit, crawler.DefaultRecentLimit))
	if err != nil {
		return nil, fmt.Errorf("recent articles: %w", err)
	}
	return scanArticles(rows)
}

// ClearArticles deletes every article. The index follows via triggers.
func (s *Store) ClearArticles(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM articles`); err != nil {
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
	_, err = s.db.ExecContext(ctx, `
INSERT INTO sources (url, name, interval_minutes, depth, scrape_outbound, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(url) DO NOTHING`,
		src.URL, src.Name, src.IntervalMinutes, src.Depth, src.ScrapeOutbound, millis(time.Now()))
	if err != nil {
		return crawler.Source{}, fmt.Errorf("insert source %q: %w", src.URL, err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE url = ?`, src.URL)
	return scanSource(row)
}

// GetSource returns the source with id.
func (s *Store) GetSource(ctx context.Context, id int64) (crawler.Source, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	return scanSource(row)
}

// ListSources returns every source, newest first.
func (s *Store) ListSources(ctx context.Context) ([]crawler.Source, error) {
	return s.querySources(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY id DESC`)
}

// ActiveSources returns active sources in registration order.
func (s *Store) ActiveSources(ctx context.Context) ([]crawler.Source, error) {
	return s.querySources(ctx, `SELECT `+sourceColumns+` FROM sources WHERE active = 1 ORDER BY id`)
}

func (s *Store) querySources(ctx context.Context, query string) ([]crawler.Source, error) {
	rows, err := s.db.QueryContext(ctx, query)
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
	return out, rows.Err()
}

// UpdateSourceInterval sets the crawl interval of a source.
func (s *Store) UpdateSourceInterval(ctx context.Context, id int64, minutes int) error {
	return s.updateSource(ctx, id, `UPDATE sources SET interval_minutes = ? WHERE id = ?`, minutes)
}

// UpdateSourceDepth sets the traversal depth of a source.
func (s *Store) UpdateSourceDepth(ctx context.Context, id int64, depth int) error {
	return s.updateSource(ctx, id, `UPDATE sources SET depth = ? WHERE id = ?`, depth)
}

// UpdateSourceScrapeOutbound toggles outbound link recording.
func (s *Store) UpdateSourceScrapeOutbound(ctx context.Context, id int64, enabled bool) error {
	return s.updateSource(ctx, id, `UPDATE sources SET scrape_outbound = ? WHERE id = ?`, enabled)
}

func (s *Store) updateSource(ctx context.Context, id int64, query string, value any) error {
	res, err := s.db.ExecContext(ctx, query, value, id)
	if err != nil {
		return fmt.Errorf("update source %d: %w", id, err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("source %d: %w", id, crawler.ErrNotFound)
	}
	return nil
}

// MarkCrawled records the completion time of a traversal. A missing source is
// not an error.
func (s *Store) MarkCrawled(ctx context.Context, id int64, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE sources SET last_crawled_at = ? WHERE id = ?`, millis(at), id); err != nil {
		return fmt.Errorf("mark source %d crawled: %w", id, err)
	}
	return nil
}

// DeleteSource removes a source.
func (s *Store) DeleteSource(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete source %d: %w", id, err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("source %d: %w", id, crawler.ErrNotFound)
	}
	return nil
}

// ClearSources deletes every source.
func (s *Store) ClearSources(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sources`); err != nil {
		return fmt.Errorf("clear sources: %w", err)
	}
	return nil
}

const linkColumns = `id, from_url, to_url, domain, category, created_at`

// InsertOutboundLink stores l unless the (from, to) pair already exists.
func (s *Store) InsertOutboundLink(ctx context.Context, l crawler.OutboundLink) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO outbound_links (from_url, to_url, domain, category, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(from_url, to_url) DO NOTHING`,
		l.FromURL, l.ToURL, l.Domain, string(l.Category), millis(l.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("insert outbound link: %w", err)
	}
	return affected(res)
}

// ListDomains aggregates links by destination domain, most linked first.
func (s *Store) ListDomains(ctx context.Context, limit int) ([]crawler.DomainCount, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT domain, MAX(category), COUNT(*) AS n
FROM outbound_links
GROUP BY domain
ORDER BY n DESC, domain
LIMIT ?`, crawler.LimitOr(limit, crawler.DefaultDomainLimit))
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()
	out := []crawler.DomainCount{}
	for rows.Next() {
		var d crawler.DomainCount
		var category string
		if err := rows.Scan(&d.Domain, &category, &d.Count); err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		d.Category = crawler.Category(category)
		out = append(out, d)
	}
	return out, rows.Err()
}

// LinksFor returns the links recorded from fromURL.
func (s *Store) LinksFor(ctx context.Context, fromURL string) ([]crawler.OutboundLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+linkColumns+` FROM outbound_links WHERE from_url = ? ORDER BY id`, fromURL)
	if err != nil {
		return nil, fmt.Errorf("links for %q: %w", fromURL, err)
	}
	return scanLinks(rows)
}

// RecentLinks returns the newest recorded links.
func (s *Store) RecentLinks(ctx context.Context, limit int) ([]crawler.OutboundLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+linkColumns+` FROM outbound_links ORDER BY created_at DESC, id DESC LIMIT ?`,
		crawler.LimitOr(limit, crawler.DefaultRecentLinksLimit))
	if err != nil {
		return nil, fmt.Errorf("recent links: %w", err)
	}
	return scanLinks(rows)
}

// LinkedPages returns distinct pages that have outbound links, most recently
// active first.
func (s *Store) LinkedPages(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT from_url
FROM outbound_links
GROUP BY from_url
ORDER BY MAX(created_at) DESC, from_url
LIMIT ?`, crawler.LimitOr(limit, crawler.DefaultLinkedPagesLimit))
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
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArticles(rows *sql.Rows) ([]crawler.Article, error) {
	defer rows.Close()
	out := []crawler.Article{}
	for rows.Next() {
		var (
			a         crawler.Article
			published sql.NullInt64
			crawled   int64
		)
		if err := rows.Scan(&a.ID, &a.Title, &a.URL, &a.Source, &a.Snippet, &a.Content, &published, &crawled); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		a.PublishedAt = fromNullMillis(published)
		a.CrawledAt = fromMillis(crawled)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return out, nil
}

func scanSource(row scanner) (crawler.Source, error) {
	var (
		src     crawler.Source
		last    sql.NullInt64
		created int64
	)
	err := row.Scan(&src.ID, &src.URL, &src.Name, &src.IntervalMinutes, &src.Depth,
		&last, &src.Active, &src.ScrapeOutbound, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return crawler.Source{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.Source{}, fmt.Errorf("scan source: %w", err)
	}
	src.LastCrawledAt = fromNullMillis(last)
	src.CreatedAt = fromMillis(created)
	return src, nil
}

func scanLinks(rows *sql.Rows) ([]crawler.OutboundLink, error) {
	defer rows.Close()
	out := []crawler.OutboundLink{}
	for rows.Next() {
		var (
			l        crawler.OutboundLink
			category string
			created  int64
		)
		if err := rows.Scan(&l.ID, &l.FromURL, &l.ToURL, &l.Domain, &category, &created); err != nil {
			return nil, fmt.Errorf("scan outbound link: %w", err)
		}
		l.Category = crawler.Category(category)
		l.CreatedAt = fromMillis(created)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbound links: %w", err)
	}
	return out, nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
