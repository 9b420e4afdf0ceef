package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/synapse-search/internal/crawler"
	"github.com/JakeFAU/synapse-search/internal/extract"
)

// CrawlURL runs one traversal of rawURL outside the source registry. depth <= 0
// uses the engine default.
func (a *App) CrawlURL(ctx context.Context, rawURL string, depth int, outbound bool) (crawler.Result, error) {
	res, err := a.engine.Crawl(ctx, crawler.Source{
		URL:            rawURL,
		Depth:          depth,
		ScrapeOutbound: outbound,
	})
	if err != nil {
		return res, fmt.Errorf("crawl %s: %w", rawURL, err)
	}
	return res, nil
}

// FetchPage fetches and extracts a single page without indexing it or
// following its links. The request is bounded by crawler.page_timeout.
func (a *App) FetchPage(ctx context.Context, rawURL string) (crawler.Page, error) {
	u, err := crawler.ParseStartURL(rawURL)
	if err != nil {
		return crawler.Page{}, err
	}
	if a.cfg.Crawler.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Crawler.PageTimeout)
		defer cancel()
	}
	resp, err := a.pageFetcher.Fetch(ctx, u.String())
	if err != nil {
		return crawler.Page{}, fmt.Errorf("fetch page %s: %w", rawURL, err)
	}
	page := extract.Extract(resp.Body, u.String())
	a.logger.Debug("page fetched",
		zap.String("url", u.String()),
		zap.Int("status", resp.StatusCode),
		zap.Int("text_len", len(page.Text)),
		zap.Duration("dur", resp.Duration))
	return page, nil
}

// Search queries the article index.
func (a *App) Search(ctx context.Context, query string, limit int) ([]crawler.Article, error) {
	if limit <= 0 {
		limit = a.cfg.Search.DefaultLimit
	}
	articles, err := a.store.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	return articles, nil
}

// Seed registers every configured seed source. Seeds already present are left
// untouched. It returns the stored sources in configuration order.
func (a *App) Seed(ctx context.Context) ([]crawler.Source, error) {
	out := make([]crawler.Source, 0, len(a.cfg.Sources.Seeds))
	for _, seed := range a.cfg.Sources.Seeds {
		src, err := a.store.AddSource(ctx, a.cfg.Sources.NewSource(seed))
		if err != nil {
			return out, fmt.Errorf("seed %s: %w", seed.URL, err)
		}
		a.logger.Info("source seeded", zap.Int64("source_id", src.ID), zap.String("url", src.URL))
		out = append(out, src)
	}
	return out, nil
}

// Reset deletes articles and/or sources. Outbound links are kept.
func (a *App) Reset(ctx context.Context, articles, sources bool) error {
	if articles {
		if err := a.store.ClearArticles(ctx); err != nil {
			return fmt.Errorf("clear articles: %w", err)
		}
		a.logger.Info("articles cleared")
	}
	if sources {
		if err := a.store.ClearSources(ctx); err != nil {
			return fmt.Errorf("clear sources: %w", err)
		}
		a.logger.Info("sources cleared")
	}
	return nil
}
