// Package web embeds the browser UI. Secrets are encrypted in the browser
// before they reach the API; the key travels only in the URL fragment.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/*
var staticFiles embed.FS

func StaticFS() http.FileSystem {
	fsys, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(fsys)
}

func GetFile(name string) ([]byte, error) {
	return staticFiles.ReadFile("static/" + name)
}
