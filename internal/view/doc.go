// Package view holds the presentation side of livegrid.
//
// A [Grid] is a headless table model: it owns an ordered list of rows,
// subscribes itself to a broadcaster, and turns every change batch into a
// [RowsChanged] event that a transport (SSE, WebSocket) renders for one
// client. Grid work runs on the grid's own [Loop] so the broadcaster's
// dispatch goroutine never waits on a client.
package view
