// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - GET /healthz and /readyz for probes, GET /metrics for Prometheus.
//   - GET /api/search, /api/news and /api/graph over the article corpus.
//   - /api/sources for source administration; mutating routes honor the
//     optional API key.
//   - GET /api/outbound/... for recorded outbound links.
//   - GET /api/events streams traversal events as server-sent events.
package api
