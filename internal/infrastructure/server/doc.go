// Package server assembles the service: configuration, logging, metrics,
// the Docker runtime, the session manager, the VNC bridge, and the gin
// router with its middleware stack.
package server
