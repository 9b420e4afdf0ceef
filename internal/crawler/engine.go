package crawler

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/synapse-search/internal/metrics"
	"github.com/JakeFAU/synapse-search/internal/progress"
)

// Dependencies bundles the collaborators of an Engine. Fetcher, Extractor and
// Articles are required; the rest are optional.
type Dependencies struct {
	Fetcher   Fetcher
	Extractor Extractor
	Articles  ArticleWriter
	// Links and Classifier enable outbound link recording; both must be set.
	Links      LinkWriter
	Classifier Classifier
	// Sources receives the completion timestamp of each traversal.
	Sources CrawlMarker
	Policy  HostPolicy
	Emitter progress.Emitter
	Clock   Clock
	IDs     IDGenerator
	Logger  *zap.Logger
}

// Engine runs breadth-first traversals of sources. A single Engine may run
// several traversals concurrently; each owns its own frontier.
type Engine struct {
	cfg  Config
	deps Dependencies
	log  *zap.Logger
	seq  atomic.Uint64
}

// NewEngine validates deps and returns an Engine.
func NewEngine(cfg Config, deps Dependencies) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Fetcher == nil:
		return nil, errors.New("crawler: fetcher is required")
	case deps.Extractor == nil:
		return nil, errors.New("crawler: extractor is required")
	case deps.Articles == nil:
		return nil, errors.New("crawler: article writer is required")
	case (deps.Links == nil) != (deps.Classifier == nil):
		return nil, errors.New("crawler: links and classifier must be set together")
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.Discard
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg.WithDefaults(), deps: deps, log: logger.Named("engine")}, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Crawl traverses src to completion and returns its summary. Only an invalid
// start URL, a cancelled ctx, or a failed completion timestamp write produce
// an error; per-page failures are contained.
func (e *Engine) Crawl(ctx context.Context, src Source) (Result, error) {
	start, err := ParseStartURL(src.URL)
	if err != nil {
		e.log.Warn("invalid source url", zap.Int64("source_id", src.ID), zap.String("url", src.URL))
		return Result{Source: src.URL}, err
	}
	depth := src.Depth
	if depth <= 0 {
		depth = e.cfg.DefaultDepth
	}
	t := &traversal{
		engine:   e,
		id:       e.traversalID(),
		src:      src,
		source:   CleanURL(src.URL),
		seed:     normalize(start),
		maxDepth: depth,
		frontier: newFrontier(e.cfg.MaxQueue),
		outbound: src.ScrapeOutbound && e.deps.Links != nil,
	}
	return t.run(ctx)
}

func (e *Engine) traversalID() string {
	if e.deps.IDs != nil {
		if id, err := e.deps.IDs.NewID(); err == nil {
			return id
		}
	}
	return fmt.Sprintf("trv-%d-%d", e.deps.Clock.Now().UnixNano(), e.seq.Add(1))
}

type traversal struct {
	engine   *Engine
	id       string
	src      Source
	source   string
	seed     string
	maxDepth int
	frontier *frontier
	outbound bool

	visits  atomic.Int64
	indexed atomic.Int64
	created atomic.Int64
}

func (t *traversal) run(ctx context.Context) (Result, error) {
	e := t.engine
	began := e.deps.Clock.Now()
	t.emit(progress.Event{Type: progress.TypeStart})
	e.log.Info("traversal started",
		zap.String("traversal_id", t.id),
		zap.String("source", t.source),
		zap.Int("depth", t.maxDepth))

	t.frontier.push(t.seed, 0)
	done := make(chan struct{}, e.cfg.Concurrency)
	inFlight := 0
	for {
		for inFlight < e.cfg.Concurrency && !t.capReached() && ctx.Err() == nil {
			item, ok := t.frontier.pop()
			if !ok {
				break
			}
			inFlight++
			go func(item frontierItem) {
				defer func() { done <- struct{}{} }()
				t.visit(ctx, item)
			}(item)
		}
		if inFlight == 0 {
			break
		}
		<-done
		inFlight--
	}

	finished := e.deps.Clock.Now()
	result := Result{
		TraversalID:  t.id,
		Source:       t.source,
		PagesVisited: int(t.visits.Load()),
		PagesIndexed: int(t.indexed.Load()),
		PagesNew:     int(t.created.Load()),
		Duration:     finished.Sub(began),
	}
	fields := []zap.Field{
		zap.String("traversal_id", t.id),
		zap.String("source", t.source),
		zap.Int("visited", result.PagesVisited),
		zap.Int("indexed", result.PagesIndexed),
		zap.Int("new", result.PagesNew),
		zap.Duration("dur", result.Duration),
	}
	if err := ctx.Err(); err != nil {
		e.log.Warn("traversal interrupted", fields...)
		return result, fmt.Errorf("traversal %s interrupted: %w", t.id, err)
	}

	var markErr error
	if e.deps.Sources != nil && t.src.ID != 0 {
		if err := e.deps.Sources.MarkCrawled(ctx, t.src.ID, finished); err != nil {
			markErr = fmt.Errorf("mark source %d crawled: %w", t.src.ID, err)
			e.log.Error("failed to record crawl time", append(fields, zap.Error(err))...)
		}
	}
	t.emit(progress.Event{Type: progress.TypeFinish, Count: result.PagesIndexed, Dur: result.Duration})
	e.log.Info("traversal finished", fields...)
	return result, markErr
}

func (t *traversal) capReached() bool {
	return t.indexed.Load() >= int64(t.engine.cfg.MaxPages)
}

func (t *traversal) visit(ctx context.Context, item frontierItem) {
	e := t.engine
	metrics.IncInflightFetches()
	defer metrics.DecInflightFetches()

	t.visits.Add(1)
	t.emit(progress.Event{Type: progress.TypeVisit, URL: item.url})

	if e.deps.Policy != nil {
		release, err := e.deps.Policy.Acquire(ctx, item.url)
		if err != nil {
			e.log.Debug("host policy refused fetch", zap.String("url", item.url), zap.Error(err))
			return
		}
		defer release()
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	resp, err := e.deps.Fetcher.Fetch(fetchCtx, item.url)
	cancel()
	if err != nil {
		metrics.ObserveFetch(item.url, metrics.FetchError, 0, resp.Duration)
		e.log.Debug("fetch failed", zap.String("url", item.url), zap.Int("depth", item.depth), zap.Error(err))
		return
	}
	if !isHTML(resp.Headers) {
		metrics.ObserveFetch(item.url, metrics.FetchRejected, len(resp.Body), resp.Duration)
		return
	}

	page := e.deps.Extractor.Extract(resp.Body, item.url)
	outcome := t.index(ctx, item.url, page)
	metrics.ObserveFetch(item.url, outcome, len(resp.Body), resp.Duration)

	follow := item.depth < t.maxDepth
	if !follow && !t.outbound {
		return
	}
	for _, link := range page.Links {
		if t.outbound {
			t.recordOutbound(ctx, item.url, link)
		}
		if follow {
			t.frontier.push(link, item.depth+1)
		}
	}
}

// index applies the acceptance gate and writes the article. It returns the
// metrics outcome label.
func (t *traversal) index(ctx context.Context, pageURL string, page Page) string {
	e := t.engine
	if !page.Indexable() {
		e.log.Debug("page rejected", zap.String("url", pageURL), zap.Error(ErrExtractionEmpty))
		return metrics.FetchRejected
	}
	article := Article{
		Title:       page.Title,
		URL:         pageURL,
		Source:      t.source,
		Snippet:     page.Snippet,
		Content:     page.Text,
		PublishedAt: page.PublishedAt,
		CrawledAt:   e.deps.Clock.Now().UTC(),
	}
	inserted, err := e.deps.Articles.InsertArticle(ctx, article)
	if err != nil {
		e.log.Warn("article insert failed", zap.String("url", pageURL), zap.Error(err))
		return metrics.FetchError
	}
	t.indexed.Add(1)
	t.emit(progress.Event{Type: progress.TypeIndexed, URL: pageURL, Title: page.Title})
	if !inserted {
		return metrics.FetchDuplicate
	}
	t.created.Add(1)
	return metrics.FetchIndexed
}

func (t *traversal) recordOutbound(ctx context.Context, from, to string) {
	e := t.engine
	category, err := e.deps.Classifier.Classify(to)
	if err != nil {
		e.log.Debug("skipping unclassifiable link", zap.String("url", to), zap.Error(err))
		return
	}
	link := OutboundLink{
		FromURL:   from,
		ToURL:     to,
		Domain:    HostOf(to),
		Category:  category,
		CreatedAt: e.deps.Clock.Now().UTC(),
	}
	inserted, err := e.deps.Links.InsertOutboundLink(ctx, link)
	if err != nil {
		e.log.Debug("outbound link insert failed", zap.String("from", from), zap.String("to", to), zap.Error(err))
		return
	}
	if inserted {
		metrics.ObserveOutboundLink(string(category))
	}
}

func (t *traversal) emit(evt progress.Event) {
	evt.TraversalID = t.id
	evt.Source = t.source
	evt.TS = t.engine.deps.Clock.Now().UTC()
	t.engine.deps.Emitter.Emit(evt)
}

// isHTML treats a missing Content-Type as HTML.
func isHTML(h http.Header) bool {
	ct := h.Get("Content-Type")
	if ct == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.Contains(strings.ToLower(ct), "html")
	}
	return strings.Contains(mediaType, "html")
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}
