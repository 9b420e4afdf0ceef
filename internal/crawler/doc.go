// Package crawler implements the bounded-concurrency, depth-limited traversal
// engine together with the domain types (sources, articles, outbound links)
// shared by the storage, scheduling and HTTP layers.
package crawler
