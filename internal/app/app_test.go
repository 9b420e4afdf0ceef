package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/synapse-search/internal/config"
	"github.com/JakeFAU/synapse-search/internal/crawler"
	"github.com/JakeFAU/synapse-search/internal/progress"
)

type siteFetcher struct {
	mu    sync.Mutex
	pages map[string]string
}

func (f *siteFetcher) Fetch(_ context.Context, url string) (crawler.FetchResponse, error) {
	f.mu.Lock()
	body, ok := f.pages[url]
	f.mu.Unlock()
	if !ok {
		return crawler.FetchResponse{URL: url, StatusCode: http.StatusNotFound}, crawler.ErrFetchFailure
	}
	return crawler.FetchResponse{
		URL:        url,
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:       []byte(body),
	}, nil
}

func article(title string, links ...string) string {
	var b strings.Builder
	b.WriteString("<html><head><title>" + title + "</title></head><body><article><h1>" + title + "</h1><p>")
	b.WriteString(strings.Repeat(title+" is reported in depth with enough words to count as real content. ", 4))
	b.WriteString("</p>")
	for _, l := range links {
		b.WriteString(`<a href="` + l + `">link</a>`)
	}
	b.WriteString("</article></body></html>")
	return b.String()
}

func testConfig() config.Config {
	return config.Config{
		Server:  config.ServerConfig{Port: 3000},
		Crawler: config.CrawlerConfig{
			Concurrency:  4,
			MaxPages:     50,
			MaxQueue:     100,
			DefaultDepth: 2,
			FetchTimeout: time.Second,
			PageTimeout:  2 * time.Second,
		},
		Scheduler: config.SchedulerConfig{
			Enabled:  false,
			Interval: time.Minute,
		},
		Sources: config.SourcesConfig{
			DefaultIntervalMinutes: 60,
			DefaultDepth:           2,
			Seeds: []config.SeedSource{
				{URL: "https://news.test", Name: "News"},
				{URL: "blog.test"},
			},
		},
		Database: config.DatabaseConfig{Driver: "memory"},
		Search:   config.LimitConfig{DefaultLimit: 100},
		Feed:     config.LimitConfig{DefaultLimit: 100},
		Progress: config.ProgressConfig{
			BufferSize:    64,
			Batch:         config.BatchConfig{MaxEvents: 8, MaxWaitMs: 10},
			SinkTimeoutMs: 1000,
			ClientBuffer:  64,
			MaxClients:    4,
		},
	}
}

func newTestApp(t *testing.T, cfg config.Config) *App {
	t.Helper()
	fetcher := &siteFetcher{pages: map[string]string{
		"https://news.test":      article("Front page", "/mars", "https://youtube.com/watch?v=1"),
		"https://news.test/mars": article("Mars rover lands"),
		"https://blog.test":      article("Blog home"),
		"https://self.test":      article("Self linking home", "/", "/#top", "https://SELF.test:443/"),
	}}
	a, err := Build(context.Background(), cfg,
		WithLogger(zap.NewNop()),
		WithRegisterer(prometheus.NewRegistry()),
		WithFetcher(fetcher))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func TestBuildWiresServices(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, testConfig())

	require.NotNil(t, a.Store())
	require.NotNil(t, a.Engine())
	require.NotNil(t, a.Scheduler())
	require.Equal(t, 2, a.Engine().Config().DefaultDepth)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCrawlURLFetchesRootOnce(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, testConfig())

	res, err := a.CrawlURL(context.Background(), "https://self.test/", 2, false)
	require.NoError(t, err)
	require.Equal(t, 1, res.PagesVisited)
	require.Equal(t, 1, res.PagesIndexed)
	require.Equal(t, 1, res.PagesNew)
}

// stallingFetcher blocks until the request context ends.
type stallingFetcher struct{}

func (stallingFetcher) Fetch(ctx context.Context, url string) (crawler.FetchResponse, error) {
	<-ctx.Done()
	return crawler.FetchResponse{URL: url}, fmt.Errorf("%w: %w", crawler.ErrFetchFailure, ctx.Err())
}

func TestFetchPageExtractsWithoutIndexing(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, testConfig())
	ctx := context.Background()

	page, err := a.FetchPage(ctx, "news.test/mars")
	require.NoError(t, err)
	require.Equal(t, "Mars rover lands", page.Title)
	require.Contains(t, page.Text, "reported in depth")

	got, err := a.Search(ctx, "mars", 0)
	require.NoError(t, err)
	require.Empty(t, got)

	_, err = a.FetchPage(ctx, "http://")
	require.ErrorIs(t, err, crawler.ErrInvalidURL)
}

func TestFetchPageHonoursPageTimeout(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Crawler.PageTimeout = 20 * time.Millisecond
	a, err := Build(context.Background(), cfg,
		WithLogger(zap.NewNop()),
		WithRegisterer(prometheus.NewRegistry()),
		WithFetcher(stallingFetcher{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	start := time.Now()
	_, err = a.FetchPage(context.Background(), "https://slow.test")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorIs(t, err, crawler.ErrFetchFailure)
	require.Less(t, time.Since(start), time.Second)
}

func TestBuildRejectsUnknownDriver(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Database.Driver = "mysql"

	_, err := Build(context.Background(), cfg, WithLogger(zap.NewNop()), WithRegisterer(prometheus.NewRegistry()))
	require.ErrorContains(t, err, "store init failed")
}

func TestCrawlURLIndexesAndSearches(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, testConfig())
	ctx := context.Background()

	res, err := a.CrawlURL(ctx, "https://news.test", 1, true)
	require.NoError(t, err)
	require.Equal(t, 2, res.PagesIndexed)
	require.True(t, strings.HasPrefix(res.TraversalID, TraversalIDPrefix))

	got, err := a.Search(ctx, "mars", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "https://news.test/mars", got[0].URL)

	domains, err := a.Store().ListDomains(ctx, 0)
	require.NoError(t, err)
	require.Contains(t, domains, crawler.DomainCount{Domain: "youtube.com", Category: crawler.CategoryVideo, Count: 1})
}

func TestCrawlEventsReachSubscribers(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, cleanup, ok := a.Broker().Subscribe(ctx)
	require.True(t, ok)
	defer cleanup()

	_, err := a.CrawlURL(ctx, "https://blog.test", 0, false)
	require.NoError(t, err)

	var types []progress.Type
	require.Eventually(t, func() bool {
		for {
			select {
			case evt := <-events:
				types = append(types, evt.Type)
			default:
				return len(types) > 0 && types[len(types)-1] == progress.TypeFinish
			}
		}
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []progress.Type{progress.TypeStart, progress.TypeVisit, progress.TypeIndexed, progress.TypeFinish}, types)
}

func TestSeedIsIdempotent(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, testConfig())
	ctx := context.Background()

	first, err := a.Seed(ctx)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, "News", first[0].Name)
	require.Equal(t, "blog.test", first[1].Name)

	second, err := a.Seed(ctx)
	require.NoError(t, err)
	require.Equal(t, first[0].ID, second[0].ID)

	all, err := a.Store().ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestSchedulerCrawlsSeededSources(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, testConfig())
	ctx := context.Background()

	_, err := a.Seed(ctx)
	require.NoError(t, err)

	res := a.Scheduler().Tick(ctx)
	require.Equal(t, 2, res.Due)
	require.Equal(t, 2, res.Crawled)

	sources, err := a.Store().ActiveSources(ctx)
	require.NoError(t, err)
	for _, src := range sources {
		require.NotNil(t, src.LastCrawledAt, src.URL)
	}
	require.Zero(t, a.Scheduler().Tick(ctx).Due)
}

func TestReset(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, testConfig())
	ctx := context.Background()

	_, err := a.Seed(ctx)
	require.NoError(t, err)
	_, err = a.CrawlURL(ctx, "https://blog.test", 0, false)
	require.NoError(t, err)

	require.NoError(t, a.Reset(ctx, true, false))
	recent, err := a.Store().Recent(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, recent)
	sources, err := a.Store().ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 2)

	require.NoError(t, a.Reset(ctx, false, true))
	sources, err = a.Store().ListSources(ctx)
	require.NoError(t, err)
	require.Empty(t, sources)
}
