package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// Timestamps are stored as Unix milliseconds.
const schema = `
CREATE TABLE IF NOT EXISTS articles (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	title        TEXT NOT NULL DEFAULT '',
	url          TEXT NOT NULL UNIQUE,
	source       TEXT NOT NULL DEFAULT '',
	snippet      TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL DEFAULT '',
	published_at INTEGER,
	crawled_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_articles_crawled_at ON articles(crawled_at DESC);

CREATE TABLE IF NOT EXISTS sources (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	url              TEXT NOT NULL UNIQUE,
	name             TEXT NOT NULL DEFAULT '',
	interval_minutes INTEGER NOT NULL DEFAULT 60,
	depth            INTEGER NOT NULL DEFAULT 7,
	last_crawled_at  INTEGER,
	active           INTEGER NOT NULL DEFAULT 1,
	scrape_outbound  INTEGER NOT NULL DEFAULT 1,
	created_at       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS outbound_links (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	from_url   TEXT NOT NULL,
	to_url     TEXT NOT NULL,
	domain     TEXT NOT NULL DEFAULT '',
	category   TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	UNIQUE(from_url, to_url)
);
CREATE INDEX IF NOT EXISTS idx_outbound_links_domain ON outbound_links(domain);
CREATE INDEX IF NOT EXISTS idx_outbound_links_created_at ON outbound_links(created_at DESC);
`

// The index is an external-content table over articles. The update trigger
// issues a 'delete' for the old row before inserting the new one, which is
// the only sequence FTS5 accepts for external content.
const ftsTable = `CREATE VIRTUAL TABLE articles_fts USING fts5(
	title, content, snippet, url,
	content='articles', content_rowid='id'
)`

const ftsTriggers = `
CREATE TRIGGER IF NOT EXISTS articles_ai AFTER INSERT ON articles BEGIN
	INSERT INTO articles_fts(rowid, title, content, snippet, url)
	VALUES (new.id, new.title, new.content, new.snippet, new.url);
END;
CREATE TRIGGER IF NOT EXISTS articles_ad AFTER DELETE ON articles BEGIN
	INSERT INTO articles_fts(articles_fts, rowid, title, content, snippet, url)
	VALUES ('delete', old.id, old.title, old.content, old.snippet, old.url);
END;
CREATE TRIGGER IF NOT EXISTS articles_au AFTER UPDATE ON articles BEGIN
	INSERT INTO articles_fts(articles_fts, rowid, title, content, snippet, url)
	VALUES ('delete', old.id, old.title, old.content, old.snippet, old.url);
	INSERT INTO articles_fts(rowid, title, content, snippet, url)
	VALUES (new.id, new.title, new.content, new.snippet, new.url);
END;
`

func applySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// applyFullText creates the index on first run and backfills it from the
// existing articles. Later runs only make sure the triggers exist.
func applyFullText(ctx context.Context, db *sql.DB) error {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'articles_fts'`).Scan(&n)
	if err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fts setup: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if n == 0 {
		if _, err := tx.ExecContext(ctx, ftsTable); err != nil {
			return fmt.Errorf("create fts table: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO articles_fts(articles_fts) VALUES ('rebuild')`); err != nil {
			return fmt.Errorf("backfill fts table: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, ftsTriggers); err != nil {
		return fmt.Errorf("create fts triggers: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit fts setup: %w", err)
	}
	return nil
}
