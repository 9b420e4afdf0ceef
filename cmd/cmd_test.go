package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/synapse-search/internal/config"
	"github.com/JakeFAU/synapse-search/internal/crawler"
)

type mockRuntime struct {
	mock.Mock
}

func (m *mockRuntime) Run(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockRuntime) CrawlURL(ctx context.Context, rawURL string, depth int, outbound bool) (crawler.Result, error) {
	args := m.Called(ctx, rawURL, depth, outbound)
	return args.Get(0).(crawler.Result), args.Error(1)
}

func (m *mockRuntime) FetchPage(ctx context.Context, rawURL string) (crawler.Page, error) {
	args := m.Called(ctx, rawURL)
	return args.Get(0).(crawler.Page), args.Error(1)
}

func (m *mockRuntime) Search(ctx context.Context, query string, limit int) ([]crawler.Article, error) {
	args := m.Called(ctx, query, limit)
	return args.Get(0).([]crawler.Article), args.Error(1)
}

func (m *mockRuntime) Seed(ctx context.Context) ([]crawler.Source, error) {
	args := m.Called(ctx)
	return args.Get(0).([]crawler.Source), args.Error(1)
}

func (m *mockRuntime) Reset(ctx context.Context, articles, sources bool) error {
	return m.Called(ctx, articles, sources).Error(0)
}

func (m *mockRuntime) Logger() *zap.Logger { return zap.NewNop() }

func (m *mockRuntime) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// useRuntime swaps the application factory for the duration of the test.
func useRuntime(t *testing.T, rt Runtime) *config.Config {
	t.Helper()
	var seen config.Config
	orig := newApp
	newApp = func(_ context.Context, cfg config.Config) (Runtime, error) {
		seen = cfg
		return rt, nil
	}
	t.Cleanup(func() { newApp = orig })
	return &seen
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := execute(context.Background(), args, &out)
	return out.String(), err
}

func TestCrawlCommand(t *testing.T) {
	rt := &mockRuntime{}
	useRuntime(t, rt)
	rt.On("CrawlURL", mock.Anything, "https://news.test", 2, true).Return(crawler.Result{
		TraversalID:  "trv_1",
		Source:       "https://news.test",
		PagesVisited: 5,
		PagesIndexed: 3,
		PagesNew:     2,
		Duration:     1500 * time.Millisecond,
	}, nil)
	rt.On("Close", mock.Anything).Return(nil)

	out, err := runCLI(t, "crawl", "--url", "https://news.test", "--depth", "2", "--outbound")
	require.NoError(t, err)
	require.Equal(t, "https://news.test: visited 5, indexed 3 (2 new) in 1.5s\n", out)
	rt.AssertExpectations(t)
}

func TestCrawlCommandRequiresURL(t *testing.T) {
	rt := &mockRuntime{}
	useRuntime(t, rt)
	rt.On("Close", mock.Anything).Return(nil)

	_, err := runCLI(t, "crawl")
	require.ErrorContains(t, err, "url")
	rt.AssertNotCalled(t, "CrawlURL", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFetchCommand(t *testing.T) {
	rt := &mockRuntime{}
	useRuntime(t, rt)
	rt.On("FetchPage", mock.Anything, "news.test/mars").Return(crawler.Page{
		Title:   "Mars rover lands",
		Snippet: "The rover touched down.",
		Text:    "The rover touched down. Scientists cheered.",
		Links:   []string{"https://news.test", "https://news.test/space"},
	}, nil)
	rt.On("FetchPage", mock.Anything, "down.test").Return(crawler.Page{}, crawler.ErrFetchFailure)
	rt.On("Close", mock.Anything).Return(nil)

	out, err := runCLI(t, "fetch", "news.test/mars", "--text")
	require.NoError(t, err)
	require.Equal(t, "title: Mars rover lands\nsnippet: The rover touched down.\nlinks: 2\n\n"+
		"The rover touched down. Scientists cheered.\n", out)

	_, err = runCLI(t, "fetch", "down.test")
	require.ErrorIs(t, err, crawler.ErrFetchFailure)
	rt.AssertExpectations(t)
}

func TestSearchCommand(t *testing.T) {
	rt := &mockRuntime{}
	useRuntime(t, rt)
	rt.On("Search", mock.Anything, "mars rover", 5).Return([]crawler.Article{
		{Title: "Mars rover lands", URL: "https://news.test/mars"},
	}, nil).Once()
	rt.On("Search", mock.Anything, "nothing", 0).Return([]crawler.Article{}, nil).Once()
	rt.On("Close", mock.Anything).Return(nil)

	out, err := runCLI(t, "search", "mars", "rover", "--limit", "5")
	require.NoError(t, err)
	require.Equal(t, "Mars rover lands\n  https://news.test/mars\n", out)

	out, err = runCLI(t, "search", "nothing")
	require.NoError(t, err)
	require.Equal(t, "no results\n", out)
	rt.AssertExpectations(t)
}

func TestSeedCommandClosesOnError(t *testing.T) {
	rt := &mockRuntime{}
	useRuntime(t, rt)
	rt.On("Seed", mock.Anything).Return([]crawler.Source{
		{ID: 1, Name: "News", URL: "https://news.test"},
	}, errors.New("seed https://bad.test: invalid url"))
	rt.On("Close", mock.Anything).Return(nil)

	out, err := runCLI(t, "seed")
	require.ErrorContains(t, err, "invalid url")
	require.Equal(t, "1\tNews\thttps://news.test\n", out)
	rt.AssertCalled(t, "Close", mock.Anything)
}

func TestResetCommand(t *testing.T) {
	rt := &mockRuntime{}
	useRuntime(t, rt)
	rt.On("Reset", mock.Anything, true, false).Return(nil)
	rt.On("Close", mock.Anything).Return(nil)

	out, err := runCLI(t, "reset", "--articles")
	require.NoError(t, err)
	require.Equal(t, "reset complete\n", out)

	_, err = runCLI(t, "reset")
	require.ErrorContains(t, err, "nothing to reset")
	rt.AssertNumberOfCalls(t, "Reset", 1)
}

func TestServeCommandUsesConfigFile(t *testing.T) {
	rt := &mockRuntime{}
	seen := useRuntime(t, rt)
	rt.On("Run", mock.Anything).Return(nil)
	rt.On("Close", mock.Anything).Return(nil)

	path := filepath.Join(t.TempDir(), "synapse.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8088\ndatabase:\n  driver: memory\n"), 0o600))

	_, err := runCLI(t, "serve", "--config", path)
	require.NoError(t, err)
	require.Equal(t, 8088, seen.Server.Port)
	require.Equal(t, "memory", seen.Database.Driver)
	rt.AssertExpectations(t)
}

func TestInvalidConfigFails(t *testing.T) {
	rt := &mockRuntime{}
	useRuntime(t, rt)

	_, err := runCLI(t, "serve", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "load config")
	rt.AssertNotCalled(t, "Run", mock.Anything)
}
