// Package ws bridges browser WebSocket connections to the raw VNC TCP
// endpoints of running sessions. The bridge never inspects the carried
// protocol: one WebSocket message maps to one upstream write, upstream
// reads are flushed immediately as binary messages, and either side
// closing tears down both connections.
package ws
