// Package server exposes the commentary pipeline over HTTP: source video
// listing, session launch with server-sent progress events, session history,
// chunk file serving, and a websocket observer feed.
package server

import (
	"net/http"

	"github.com/ovrbk/matchcast/internal/teamdata"
)

// Deps are the collaborators the HTTP surface is built from. Nil optional
// collaborators degrade the matching endpoints instead of failing startup.
type Deps struct {
	Hub      *Hub
	Catalog  SessionCatalog
	Analyzer Analyzer
	Teamdata *teamdata.Manager

	// VideosDir holds the source videos offered for analysis; OutputDir
	// holds per-session chunk and final files served under /videos/.
	VideosDir string
	OutputDir string
}

func Handler(deps Deps) http.Handler {
	mux := http.NewServeMux()

	registerWSRoute(mux, deps)
	registerAPIRoutes(mux, deps)

	if deps.OutputDir != "" {
		fileServer := http.FileServer(http.Dir(deps.OutputDir))
		mux.Handle("GET /videos/", http.StripPrefix("/videos/", noDirListing(fileServer)))
	}

	return mux
}

// noDirListing serves files but rejects directory browsing.
func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || r.URL.Path[len(r.URL.Path)-1] == '/' {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
