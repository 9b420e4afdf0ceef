package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/synapse-search/internal/metrics"
	"github.com/JakeFAU/synapse-search/internal/progress"
)

// PrometheusSink exports traversal progress via Prometheus. It owns the
// collectors for traversals started/finished/running and per-site page counts.
type PrometheusSink struct {
	traversalsStarted  prometheus.Counter
	traversalsFinished prometheus.Counter
	traversalsRunning  prometheus.Gauge
	traversalRuntime   prometheus.Histogram
	traversalArticles  prometheus.Histogram

	pagesVisited    *prometheus.CounterVec
	articlesIndexed *prometheus.CounterVec

	tracker *traversalTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		traversalsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_traversals_started_total",
			Help: "Total traversals that have started.",
		}),
		traversalsFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_traversals_finished_total",
			Help: "Total traversals that have finished.",
		}),
		traversalsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crawler_traversals_running",
			Help: "Current number of running traversals.",
		}),
		traversalRuntime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crawler_traversal_runtime_seconds",
			Help:    "Wall time per finished traversal.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		traversalArticles: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crawler_traversal_articles",
			Help:    "Articles indexed per finished traversal.",
			Buckets: []float64{0, 1, 10, 50, 100, 500, 1000, 5000},
		}),
		pagesVisited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_pages_visited_total",
			Help: "Pages visited partitioned by site.",
		}, []string{"site"}),
		articlesIndexed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_articles_indexed_total",
			Help: "Newly indexed articles partitioned by site.",
		}, []string{"site"}),
		tracker: newTraversalTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.traversalsStarted,
		s.traversalsFinished,
		s.traversalsRunning,
		s.traversalRuntime,
		s.traversalArticles,
		s.pagesVisited,
		s.articlesIndexed,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Type {
	case progress.TypeStart:
		s.traversalsStarted.Inc()
		if s.tracker.start(trackerKey(evt)) {
			s.traversalsRunning.Inc()
		}
	case progress.TypeFinish:
		s.traversalsFinished.Inc()
		s.traversalArticles.Observe(float64(evt.Count))
		if evt.Dur > 0 {
			s.traversalRuntime.Observe(evt.Dur.Seconds())
		}
		if s.tracker.complete(trackerKey(evt)) {
			s.traversalsRunning.Dec()
		}
	case progress.TypeVisit:
		s.pagesVisited.WithLabelValues(metrics.SanitizeSite(evt.URL)).Inc()
	case progress.TypeIndexed:
		s.articlesIndexed.WithLabelValues(metrics.SanitizeSite(evt.URL)).Inc()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func trackerKey(evt progress.Event) string {
	if evt.TraversalID != "" {
		return evt.TraversalID
	}
	return evt.Source
}

type traversalTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newTraversalTracker() *traversalTracker {
	return &traversalTracker{running: make(map[string]struct{})}
}

func (t *traversalTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *traversalTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
