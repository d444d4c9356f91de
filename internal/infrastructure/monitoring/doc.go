// Package monitoring provides Prometheus metrics for the viewer service:
// HTTP request counters and latencies, session lifecycle counts, and
// bridge connection gauges plus relayed byte counters. Metrics are
// exposed on /metrics via promhttp.
package monitoring
