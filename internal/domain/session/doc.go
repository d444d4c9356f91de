// Package session implements the session registry, port allocation,
// discovery, and lifecycle orchestration for containerized desktop sessions.
//
// Components:
//   - Record: one tracked session (container id, VNC/debug ports, display)
//   - Registry: authoritative in-memory map of session id -> Record
//   - Allocator: free-port bookkeeping across the debug, VNC, and display bands
//   - Discoverer: rebuilds state from containers created out-of-band
//   - Manager: create/stop/cleanup orchestration against the external runtime
//
// The registry is process-lifetime state only. On startup it is rebuilt by
// discovery; there is no persistence.
package session
