// Package metrics defines the Prometheus instrumentation for the pipeline:
// per-stage counters, cache hit/miss/eviction counters, and request metrics
// for the external generation service. The optional /metrics listener is
// started with Serve when the CLI is given --metrics-addr.
package metrics
