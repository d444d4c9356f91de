// Package tracing provides lightweight in-process request tracing: one
// span per HTTP request, trace id propagation via X-Trace-ID, and span
// emission through the service logger.
package tracing
