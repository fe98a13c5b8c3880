// Package webui serves the embedded graph visualization bundle.
package webui

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var files embed.FS

// Handler serves the visualization shell. The index is served at the
// root; everything else resolves against the embedded static tree.
func Handler() http.Handler {
	sub, err := fs.Sub(files, "static")
	if err != nil {
		// The embed directive guarantees the subtree exists.
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}
