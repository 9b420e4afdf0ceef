package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/synapse-search/internal/config"
	"github.com/JakeFAU/synapse-search/internal/crawler"
)

type addSourceRequest struct {
	URL            string `json:"url"`
	Name           string `json:"name"`
	Interval       int    `json:"interval"`
	Depth          int    `json:"depth"`
	ScrapeOutbound *bool  `json:"scrape_outbound"`
}

type updateSourceRequest struct {
	Interval       *int  `json:"interval"`
	Depth          *int  `json:"depth"`
	ScrapeOutbound *bool `json:"scrape_outbound"`
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	sources, err := s.store.ListSources(ctx)
	if err != nil {
		s.logger.Error("list sources failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list sources")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(sources))
}

// addSource registers a source and starts its first traversal in the
// background. Registering an existing URL returns the stored source.
func (s *Server) addSource(w http.ResponseWriter, r *http.Request) {
	var req addSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if req.Interval < 0 || req.Depth < 0 {
		writeError(w, http.StatusBadRequest, "interval and depth must be positive")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	src, err := s.store.AddSource(ctx, s.cfg.Sources.NewSource(config.SeedSource{
		URL:             req.URL,
		Name:            req.Name,
		IntervalMinutes: req.Interval,
		Depth:           req.Depth,
		ScrapeOutbound:  req.ScrapeOutbound,
	}))
	if err != nil {
		if errors.Is(err, crawler.ErrInvalidURL) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("add source failed", zap.String("url", req.URL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to add source")
		return
	}
	s.logger.Info("source added", zap.Int64("source_id", src.ID), zap.String("url", src.URL))
	if s.crawls != nil {
		s.crawls.Trigger(src)
	}
	writeJSON(w, http.StatusCreated, src)
}

// updateSource applies the fields present in the body.
func (s *Server) updateSource(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req updateSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Interval == nil && req.Depth == nil && req.ScrapeOutbound == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}
	if (req.Interval != nil && *req.Interval <= 0) || (req.Depth != nil && *req.Depth <= 0) {
		writeError(w, http.StatusBadRequest, "interval and depth must be positive")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	if req.Interval != nil {
		err = s.store.UpdateSourceInterval(ctx, id, *req.Interval)
	}
	if err == nil && req.Depth != nil {
		err = s.store.UpdateSourceDepth(ctx, id, *req.Depth)
	}
	if err == nil && req.ScrapeOutbound != nil {
		err = s.store.UpdateSourceScrapeOutbound(ctx, id, *req.ScrapeOutbound)
	}
	if err != nil {
		s.writeStoreError(w, "update source", id, err)
		return
	}
	src, err := s.store.GetSource(ctx, id)
	if err != nil {
		s.writeStoreError(w, "get source", id, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (s *Server) deleteSource(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	if err := s.store.DeleteSource(ctx, id); err != nil {
		s.writeStoreError(w, "delete source", id, err)
		return
	}
	s.logger.Info("source deleted", zap.Int64("source_id", id))
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

// crawlSource handles POST /api/sources/{id}/crawl.
func (s *Server) crawlSource(w http.ResponseWriter, r *http.Request) {
	if s.crawls == nil {
		writeError(w, http.StatusServiceUnavailable, "crawling unavailable")
		return
	}
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	src, err := s.store.GetSource(ctx, id)
	if err != nil {
		s.writeStoreError(w, "get source", id, err)
		return
	}
	s.crawls.Trigger(src)
	writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "status": "started"})
}

func (s *Server) writeStoreError(w http.ResponseWriter, op string, id int64, err error) {
	if errors.Is(err, crawler.ErrNotFound) {
		writeError(w, http.StatusNotFound, "source not found")
		return
	}
	s.logger.Error(op+" failed", zap.Int64("source_id", id), zap.Error(err))
	writeError(w, http.StatusInternalServerError, op+" failed")
}
