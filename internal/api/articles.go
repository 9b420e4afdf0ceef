package api

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/synapse-search/internal/crawler"
)

// graphLimit caps the number of articles rendered as graph nodes.
const graphLimit = 500

// search handles GET /api/search?q=&limit=. A blank query yields an empty list.
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	limit, err := parseLimit(r, s.cfg.Search.DefaultLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if query == "" {
		writeJSON(w, http.StatusOK, []crawler.Article{})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	results, err := s.store.Search(ctx, query, limit)
	if err != nil {
		s.logger.Error("search failed", zap.String("query", query), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	s.logger.Debug("search served", zap.String("query", query), zap.Int("results", len(results)))
	writeJSON(w, http.StatusOK, results)
}

// news handles GET /api/news?limit=, newest articles first.
func (s *Server) news(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, s.cfg.Feed.DefaultLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	articles, err := s.store.Recent(ctx, limit)
	if err != nil {
		s.logger.Error("news feed failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load news")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(articles))
}

type graphNode struct {
	ID     string `json:"id"`
	Group  string `json:"group"`
	Title  string `json:"title,omitempty"`
	Source string `json:"source,omitempty"`
}

type graphLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

type graphResponse struct {
	Nodes []graphNode `json:"nodes"`
	Links []graphLink `json:"links"`
}

// graph handles GET /api/graph: recent articles linked to the source that
// produced them.
func (s *Server) graph(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	articles, err := s.store.Recent(ctx, graphLimit)
	if err != nil {
		s.logger.Error("graph load failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load graph")
		return
	}
	writeJSON(w, http.StatusOK, buildGraph(articles))
}

func buildGraph(articles []crawler.Article) graphResponse {
	resp := graphResponse{
		Nodes: make([]graphNode, 0, len(articles)),
		Links: make([]graphLink, 0, len(articles)),
	}
	seen := make(map[string]bool, len(articles))
	for _, a := range articles {
		if !seen[a.Source] {
			seen[a.Source] = true
			resp.Nodes = append(resp.Nodes, graphNode{ID: a.Source, Group: "source"})
		}
		if seen[a.URL] {
			continue
		}
		seen[a.URL] = true
		resp.Nodes = append(resp.Nodes, graphNode{ID: a.URL, Group: "article", Title: a.Title, Source: a.Source})
		resp.Links = append(resp.Links, graphLink{Source: a.Source, Target: a.URL})
	}
	return resp
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
