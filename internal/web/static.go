package web

import (
	"embed"
)

// staticFiles holds the embedded UI (HTML, CSS, JS).
//
//go:embed static/*
var staticFiles embed.FS
