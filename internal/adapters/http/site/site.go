// Package site serves the embedded browser client.
package site

import (
	"context"
	"embed"
	"io/fs"
	"net/http"

	"github.com/gorilla/mux"
)

//go:embed static
var staticFS embed.FS

// FS returns an http.FileSystem rooted at the embedded static directory.
func FS() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return http.FS(staticFS)
	}
	return http.FS(sub)
}

// Register serves the client at / as a catch-all, so it must be registered
// after every API route.
func Register(_ context.Context, router *mux.Router) {
	if router == nil {
		panic("router is nil")
	}
	router.PathPrefix("/").Handler(http.FileServer(FS())).Methods(http.MethodGet, http.MethodHead)
}
