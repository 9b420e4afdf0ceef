// Package sinks implements concrete event consumers: structured logging,
// Prometheus collectors, and a Pub/Sub notifier. Each sink satisfies the
// progress.Sink interface and is safe for repeated Consume/Close cycles.
package sinks
