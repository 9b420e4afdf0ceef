package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/synapse-search/internal/crawler"
	"github.com/JakeFAU/synapse-search/internal/metrics"
)

// Resilient serves queries from a ranked full-text backend and degrades to a
// substring scan. The primary is fixed at construction: a nil primary means
// the index is unavailable and every query goes to the fallback. A failing
// primary query is retried on the fallback; the first such failure is logged
// at Warn, later ones at Debug.
type Resilient struct {
	primary  Backend
	fallback Backend
	log      *zap.Logger
	warned   atomic.Bool
	failures atomic.Int64
}

// NewResilient returns a Resilient strategy. fallback is required.
func NewResilient(primary, fallback Backend, logger *zap.Logger) (*Resilient, error) {
	if fallback == nil {
		return nil, errors.New("search: fallback backend is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resilient{primary: primary, fallback: fallback, log: logger.Named("search")}
	if primary == nil {
		r.warned.Store(true)
		r.log.Warn("full-text index unavailable, serving substring matches", zap.Error(crawler.ErrIndexUnavailable))
	}
	return r, nil
}

// Indexed reports whether a full-text backend is configured.
func (r *Resilient) Indexed() bool {
	return r.primary != nil
}

// Failures returns the number of primary queries that fell back.
func (r *Resilient) Failures() int64 {
	return r.failures.Load()
}

// Search runs q. An empty query yields an empty result without touching
// either backend.
func (r *Resilient) Search(ctx context.Context, q string, limit int) ([]crawler.Article, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []crawler.Article{}, nil
	}
	limit = Limit(limit)

	if r.primary != nil {
		out, err := r.primary.Search(ctx, q, limit)
		if err == nil {
			metrics.ObserveSearch(BackendFullText)
			return nonNil(out), nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("search %q: %w", q, ctx.Err())
		}
		r.failures.Add(1)
		metrics.ObserveSearchFallback()
		if r.warned.CompareAndSwap(false, true) {
			r.log.Warn("full-text query failed, falling back to substring match",
				zap.String("query", q), zap.Error(err))
		} else {
			r.log.Debug("full-text query failed", zap.String("query", q), zap.Error(err))
		}
	}

	out, err := r.fallback.Search(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", q, err)
	}
	metrics.ObserveSearch(BackendScan)
	return nonNil(out), nil
}

func nonNil(in []crawler.Article) []crawler.Article {
	if in == nil {
		return []crawler.Article{}
	}
	return in
}
