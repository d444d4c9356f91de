// Package runtime implements the external collaborators the session
// manager consumes: the Docker runtime (list, inspect, logs, stop) and
// the launch script that starts a chrome-gui container with its VNC
// server. Both satisfy the interfaces defined in the session package, so
// the domain never depends on the Docker SDK directly.
package runtime
