// Package resilience provides a circuit breaker used to guard queries to
// the external container runtime. Repeated query failures trip the
// breaker open so discovery fails fast instead of piling up blocked
// docker calls; after a timeout a single probe request decides whether to
// close it again.
package resilience
