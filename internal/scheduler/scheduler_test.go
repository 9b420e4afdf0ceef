package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/synapse-search/internal/clock"
	"github.com/JakeFAU/synapse-search/internal/crawler"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type staticSources struct {
	sources []crawler.Source
	err     error
}

func (s staticSources) ActiveSources(context.Context) ([]crawler.Source, error) {
	return s.sources, s.err
}

type fakeCrawler struct {
	mu    sync.Mutex
	calls []int64
	fail  map[int64]bool
	block chan struct{}
}

func (f *fakeCrawler) Crawl(ctx context.Context, src crawler.Source) (crawler.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, src.ID)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return crawler.Result{}, ctx.Err()
		}
	}
	if f.fail[src.ID] {
		return crawler.Result{}, errors.New("boom")
	}
	return crawler.Result{PagesIndexed: 1}, nil
}

func (f *fakeCrawler) Calls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.calls...)
}

func ago(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func TestTickCrawlsOnlyDueSourcesInOrder(t *testing.T) {
	t.Parallel()

	sources := staticSources{sources: []crawler.Source{
		{ID: 1, URL: "https://never.test", IntervalMinutes: 60},
		{ID: 2, URL: "https://fresh.test", IntervalMinutes: 60, LastCrawledAt: ago(10 * time.Minute)},
		{ID: 3, URL: "https://stale.test", IntervalMinutes: 60, LastCrawledAt: ago(2 * time.Hour)},
		{ID: 4, URL: "https://edge.test", IntervalMinutes: 30, LastCrawledAt: ago(30 * time.Minute)},
	}}
	fc := &fakeCrawler{fail: map[int64]bool{1: true}}
	s, err := New(time.Minute, sources, fc, clock.NewManual(now), nil)
	require.NoError(t, err)

	res := s.Tick(context.Background())
	require.False(t, res.Skipped)
	require.Equal(t, 3, res.Due)
	require.Equal(t, 2, res.Crawled)
	require.Equal(t, 1, res.Failed, "a failing source does not stop the batch")
	require.Equal(t, []int64{1, 3, 4}, fc.Calls())
	require.False(t, s.Running())
}

func TestTickIsNotReentrant(t *testing.T) {
	t.Parallel()

	fc := &fakeCrawler{block: make(chan struct{})}
	s, err := New(time.Minute, staticSources{sources: []crawler.Source{{ID: 1, URL: "https://a.test"}}}, fc, clock.NewManual(now), nil)
	require.NoError(t, err)

	done := make(chan TickResult, 1)
	go func() { done <- s.Tick(context.Background()) }()
	require.Eventually(t, s.Running, time.Second, 5*time.Millisecond)

	require.True(t, s.Tick(context.Background()).Skipped)

	close(fc.block)
	first := <-done
	require.Equal(t, 1, first.Crawled)

	// The guard is released once a tick finishes.
	second := s.Tick(context.Background())
	require.False(t, second.Skipped)
	require.Equal(t, []int64{1, 1}, fc.Calls())
}

func TestTickReportsListError(t *testing.T) {
	t.Parallel()

	s, err := New(time.Minute, staticSources{err: errors.New("db down")}, &fakeCrawler{}, nil, nil)
	require.NoError(t, err)
	res := s.Tick(context.Background())
	require.ErrorContains(t, res.Err, "db down")
	require.False(t, s.Running())
}

func TestStartRunsImmediateTickAndStopDrains(t *testing.T) {
	t.Parallel()

	fc := &fakeCrawler{block: make(chan struct{})}
	s, err := New(time.Hour, staticSources{sources: []crawler.Source{{ID: 7, URL: "https://a.test"}}}, fc, clock.NewManual(now), nil)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	require.Error(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return len(fc.Calls()) == 1 }, time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not cancel the in-flight crawl")
	}
	require.False(t, s.Running())
}

func TestTriggerCrawlsInBackground(t *testing.T) {
	t.Parallel()

	fc := &fakeCrawler{}
	s, err := New(time.Hour, staticSources{}, fc, nil, nil)
	require.NoError(t, err)

	s.Trigger(crawler.Source{ID: 9, URL: "https://a.test"})
	require.Eventually(t, func() bool { return len(fc.Calls()) == 1 }, time.Second, 5*time.Millisecond)
	s.Stop()
	require.Equal(t, []int64{9}, fc.Calls())
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(time.Second, nil, &fakeCrawler{}, nil, nil)
	require.Error(t, err)
	s, err := New(0, staticSources{}, &fakeCrawler{}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultInterval, s.Interval())
}
