// Package scheduler periodically crawls the sources that are due.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/synapse-search/internal/crawler"
	"github.com/JakeFAU/synapse-search/internal/metrics"
)

// DefaultInterval is the tick period when none is configured.
const DefaultInterval = 30 * time.Second

// Crawler runs one traversal.
type Crawler interface {
	Crawl(ctx context.Context, src crawler.Source) (crawler.Result, error)
}

// SourceLister returns the sources eligible for scheduling.
type SourceLister interface {
	ActiveSources(ctx context.Context) ([]crawler.Source, error)
}

// TickResult summarises one tick.
type TickResult struct {
	// Skipped is set when another tick was still running.
	Skipped bool
	Due     int
	Crawled int
	Failed  int
	Err     error
}

// Scheduler drives the crawl engine. Due sources are crawled one after the
// other; only one tick runs at a time.
type Scheduler struct {
	interval time.Duration
	sources  SourceLister
	crawler  Crawler
	clock    crawler.Clock
	log      *zap.Logger

	running atomic.Bool

	mu     sync.Mutex
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Scheduler. A nil clock uses the wall clock.
func New(interval time.Duration, sources SourceLister, c Crawler, clock crawler.Clock, logger *zap.Logger) (*Scheduler, error) {
	if sources == nil || c == nil {
		return nil, errors.New("scheduler: sources and crawler are required")
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clock == nil {
		clock = wallClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		interval: interval,
		sources:  sources,
		crawler:  c,
		clock:    clock,
		log:      logger.Named("scheduler"),
		ctx:      context.Background(),
	}, nil
}

// Tick crawls every due source. A call made while another tick is running
// returns immediately with Skipped set. A failing source does not stop the
// remaining ones.
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	if !s.running.CompareAndSwap(false, true) {
		metrics.ObserveSchedulerTick("skipped")
		s.log.Debug("tick skipped, previous tick still running")
		return TickResult{Skipped: true}
	}
	defer s.running.Store(false)

	sources, err := s.sources.ActiveSources(ctx)
	if err != nil {
		metrics.ObserveSchedulerTick("error")
		s.log.Error("list active sources", zap.Error(err))
		return TickResult{Err: fmt.Errorf("list active sources: %w", err)}
	}

	now := s.clock.Now()
	var due []crawler.Source
	for _, src := range sources {
		if src.Due(now) {
			due = append(due, src)
		}
	}
	res := TickResult{Due: len(due)}
	for _, src := range due {
		if ctx.Err() != nil {
			break
		}
		out, err := s.crawler.Crawl(ctx, src)
		if err != nil {
			res.Failed++
			s.log.Warn("source crawl failed",
				zap.Int64("source_id", src.ID),
				zap.String("url", src.URL),
				zap.Error(err))
			continue
		}
		res.Crawled++
		s.log.Info("source crawled",
			zap.Int64("source_id", src.ID),
			zap.String("url", src.URL),
			zap.Int("indexed", out.PagesIndexed),
			zap.Duration("dur", out.Duration))
	}
	metrics.ObserveSchedulerTick("ran")
	return res
}

// Start runs one tick right away and then one every interval until Stop is
// called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("scheduler already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx

	c := cron.New(cron.WithChain(cron.Recover(cronLogger{s.log})))
	if _, err := c.AddFunc("@every "+s.interval.String(), func() { s.Tick(runCtx) }); err != nil {
		s.cancel()
		return fmt.Errorf("schedule tick: %w", err)
	}
	s.cron = c
	c.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Tick(runCtx)
	}()
	s.log.Info("scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Stop cancels running traversals and waits for them to drain.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		<-c.Stop().Done()
	}
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

// Trigger crawls src in the background, outside the tick cycle. It is used
// for admin "crawl now" requests and newly added sources.
func (s *Scheduler) Trigger(src crawler.Source) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res, err := s.crawler.Crawl(ctx, src)
		if err != nil {
			s.log.Warn("triggered crawl failed", zap.Int64("source_id", src.ID), zap.String("url", src.URL), zap.Error(err))
			return
		}
		s.log.Info("triggered crawl finished",
			zap.Int64("source_id", src.ID),
			zap.String("url", src.URL),
			zap.Int("indexed", res.PagesIndexed))
	}()
}

// Running reports whether a tick is in progress.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Interval returns the tick period.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }
