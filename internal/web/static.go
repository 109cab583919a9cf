package web

import (
	"embed"
)

// staticFiles holds the control page (index.html, app.js, style.css),
// built into the binary.
//
//go:embed static/*
var staticFiles embed.FS
