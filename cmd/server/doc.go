// Command server runs the agent-viewer service: the session lifecycle
// API and the WebSocket-to-VNC bridge.
package main
