package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/synapse-search/internal/crawler"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestInsertArticleConcurrentRace(t *testing.T) {
	t.Parallel()
	s := New(nil)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := s.InsertArticle(context.Background(), crawler.Article{URL: "https://a.test", CrawledAt: base})
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, created)
}

func TestSearchIsSubstringScan(t *testing.T) {
	t.Parallel()
	s := New(nil)
	ctx := context.Background()

	for i, title := range []string{"Stars tonight", "Rain", "Starship"} {
		_, err := s.InsertArticle(ctx, crawler.Article{
			URL:       fmt.Sprintf("https://a.test/%d", i),
			Title:     title,
			CrawledAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	got, err := s.Search(ctx, "STAR", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Starship", got[0].Title)

	again, err := s.Search(ctx, "STAR", 0)
	require.NoError(t, err)
	require.Equal(t, got, again)

	got, err = s.Search(ctx, "star", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = s.Search(ctx, "", 10)
	require.NoError(t, err)
	require.Empty(t, got)

	recent, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, "Starship", recent[0].Title)

	require.NoError(t, s.ClearArticles(ctx))
	recent, err = s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, recent)
}

func TestSources(t *testing.T) {
	t.Parallel()
	s := New(nil)
	ctx := context.Background()

	a, err := s.AddSource(ctx, crawler.NewSource{URL: "a.test"})
	require.NoError(t, err)
	b, err := s.AddSource(ctx, crawler.NewSource{URL: "https://b.test", IntervalMinutes: 5})
	require.NoError(t, err)
	dup, err := s.AddSource(ctx, crawler.NewSource{URL: "https://a.test"})
	require.NoError(t, err)
	require.Equal(t, a.ID, dup.ID)

	all, err := s.ListSources(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{b.ID, a.ID}, []int64{all[0].ID, all[1].ID})

	require.NoError(t, s.MarkCrawled(ctx, a.ID, base))
	got, err := s.GetSource(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, got.LastCrawledAt.Equal(base))

	require.NoError(t, s.UpdateSourceScrapeOutbound(ctx, a.ID, true))
	require.NoError(t, s.UpdateSourceInterval(ctx, a.ID, 1))
	require.NoError(t, s.UpdateSourceDepth(ctx, a.ID, 2))
	got, err = s.GetSource(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, got.ScrapeOutbound)
	require.Equal(t, 1, got.IntervalMinutes)
	require.Equal(t, 2, got.Depth)

	require.NoError(t, s.DeleteSource(ctx, a.ID))
	require.ErrorIs(t, s.DeleteSource(ctx, a.ID), crawler.ErrNotFound)
	require.ErrorIs(t, s.UpdateSourceInterval(ctx, a.ID, 3), crawler.ErrNotFound)
	require.NoError(t, s.MarkCrawled(ctx, a.ID, base))

	again, err := s.AddSource(ctx, crawler.NewSource{URL: "https://a.test"})
	require.NoError(t, err)
	require.NotEqual(t, a.ID, again.ID, "a deleted url can be registered again")

	active, err := s.ActiveSources(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.NoError(t, s.ClearSources(ctx))
	_, err = s.GetSource(ctx, b.ID)
	require.ErrorIs(t, err, crawler.ErrNotFound)
}

func TestOutboundLinks(t *testing.T) {
	t.Parallel()
	s := New(nil)
	ctx := context.Background()

	add := func(from, to, domain string, cat crawler.Category, at time.Time) bool {
		ok, err := s.InsertOutboundLink(ctx, crawler.OutboundLink{FromURL: from, ToURL: to, Domain: domain, Category: cat, CreatedAt: at})
		require.NoError(t, err)
		return ok
	}
	require.True(t, add("https://a.test", "https://github.com/x", "github.com", crawler.CategoryTechCode, base))
	require.True(t, add("https://a.test", "https://github.com/y", "github.com", crawler.CategoryTechCode, base.Add(time.Second)))
	require.True(t, add("https://b.test", "https://youtube.com/v", "youtube.com", crawler.CategoryVideo, base.Add(2*time.Second)))
	require.False(t, add("https://a.test", "https://github.com/x", "github.com", crawler.CategoryTechCode, base))

	domains, err := s.ListDomains(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, []crawler.DomainCount{
		{Domain: "github.com", Category: crawler.CategoryTechCode, Count: 2},
		{Domain: "youtube.com", Category: crawler.CategoryVideo, Count: 1},
	}, domains)

	links, err := s.LinksFor(ctx, "https://a.test")
	require.NoError(t, err)
	require.Len(t, links, 2)
	require.Equal(t, "https://github.com/x", links[0].ToURL)

	pages, err := s.LinkedPages(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"https://b.test", "https://a.test"}, pages)

	recent, err := s.RecentLinks(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, "https://youtube.com/v", recent[0].ToURL)
	require.Len(t, recent, 2)
}
