package api

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/synapse-search/internal/crawler"
)

func (s *Server) outboundDomains(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, crawler.DefaultDomainLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	domains, err := s.store.ListDomains(ctx, limit)
	if err != nil {
		s.logger.Error("list domains failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list domains")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(domains))
}

// outboundLinks handles GET /api/outbound/links?url=, the links recorded on
// one page.
func (s *Server) outboundLinks(w http.ResponseWriter, r *http.Request) {
	from := strings.TrimSpace(r.URL.Query().Get("url"))
	if from == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	links, err := s.store.LinksFor(ctx, from)
	if err != nil {
		s.logger.Error("list links failed", zap.String("url", from), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list links")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(links))
}

func (s *Server) linkedPages(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, crawler.DefaultLinkedPagesLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	pages, err := s.store.LinkedPages(ctx, limit)
	if err != nil {
		s.logger.Error("list linked pages failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list pages")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(pages))
}

func (s *Server) recentLinks(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, crawler.DefaultRecentLinksLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	links, err := s.store.RecentLinks(ctx, limit)
	if err != nil {
		s.logger.Error("list recent links failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list links")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(links))
}
