// Package web embeds the Mini App assets.
package web

import "embed"

// Content holds the Mini App page
//
//go:embed index.html
var Content embed.FS
