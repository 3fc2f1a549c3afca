// Package dashboard embeds the browser grid served at "/".
//
// The page renders the record table and subscribes to /api/sse; each event
// replaces the table body and flashes the rows named in the batch.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Grid page with inline CSS and JavaScript
//
// The server replaces every {{.Title}} marker before writing the page.
//
//go:embed assets/*
var Assets embed.FS
