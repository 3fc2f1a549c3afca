// Package server provides the HTTP surface of a livegrid instance.
//
// This package is internal to livegrid and handles all HTTP concerns:
//
//   - Dashboard serving: Serves the embedded HTML/CSS/JS grid at "/"
//   - REST API: JSON snapshot of every record at "/api/records"
//   - Server-Sent Events: A live grid per connection at "/api/sse"
//   - WebSocket: The same live grid over a WebSocket at "/api/ws"
//   - Operations: "/healthz" and, when enabled, Prometheus "/metrics"
//
// Every streaming connection owns a [view.Grid] attached to the shared
// broadcaster for as long as the client stays connected.
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
