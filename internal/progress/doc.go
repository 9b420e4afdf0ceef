// Package progress provides the traversal event primitives, the non-blocking
// hub, and the emitter interface the crawl engine reports through. The hub
// batches events on a background goroutine and fans them out to pluggable
// sinks such as structured logs, Prometheus metrics, live subscribers, or a
// Pub/Sub topic.
package progress
