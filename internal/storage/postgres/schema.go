package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS articles (
	id           BIGSERIAL PRIMARY KEY,
	title        TEXT NOT NULL DEFAULT '',
	url          TEXT NOT NULL UNIQUE,
	source       TEXT NOT NULL DEFAULT '',
	snippet      TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL DEFAULT '',
	published_at TIMESTAMPTZ,
	crawled_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_articles_crawled_at ON articles (crawled_at DESC);

CREATE TABLE IF NOT EXISTS sources (
	id               BIGSERIAL PRIMARY KEY,
	url              TEXT NOT NULL UNIQUE,
	name             TEXT NOT NULL DEFAULT '',
	interval_minutes INTEGER NOT NULL DEFAULT 60,
	depth            INTEGER NOT NULL DEFAULT 7,
	last_crawled_at  TIMESTAMPTZ,
	active           BOOLEAN NOT NULL DEFAULT TRUE,
	scrape_outbound  BOOLEAN NOT NULL DEFAULT TRUE,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS outbound_links (
	id         BIGSERIAL PRIMARY KEY,
	from_url   TEXT NOT NULL,
	to_url     TEXT NOT NULL,
	domain     TEXT NOT NULL DEFAULT '',
	category   TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (from_url, to_url)
);
CREATE INDEX IF NOT EXISTS idx_outbound_links_domain ON outbound_links (domain);
CREATE INDEX IF NOT EXISTS idx_outbound_links_created_at ON outbound_links (created_at DESC);
`

// The search column is generated, so it can never drift from the row.
const searchSchema = `
ALTER TABLE articles ADD COLUMN IF NOT EXISTS search_vector tsvector
	GENERATED ALWAYS AS (
		setweight(to_tsvector('english', coalesce(title, '')), 'A') ||
		setweight(to_tsvector('english', coalesce(snippet, '')), 'B') ||
		setweight(to_tsvector('english', coalesce(content, '')), 'C')
	) STORED;
CREATE INDEX IF NOT EXISTS idx_articles_search ON articles USING GIN (search_vector);
`

// Migrate applies the schema. It reports whether the full-text column is
// available; failing to create it only disables ranked search.
func Migrate(ctx context.Context, pool Pool, logger *zap.Logger) (bool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return false, fmt.Errorf("apply schema: %w", err)
	}
	if _, err := pool.Exec(ctx, searchSchema); err != nil {
		logger.Warn("full-text index disabled", zap.Error(err))
		return false, nil
	}
	return true, nil
}
