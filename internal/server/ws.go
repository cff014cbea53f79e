package server

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/ovrbk/matchcast/internal/catalog"
)

var upgrader = websocket.Upgrader{CheckOrigin: checkWSOrigin}

// checkWSOrigin admits same-host browsers and non-browser clients, which
// send no Origin header.
func checkWSOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

// registerWSRoute serves the observer feed: a hello frame carrying the
// session history, then every progress event the hub broadcasts. Observers
// joining mid-run catch up from the history and follow live from there.
func registerWSRoute(mux *http.ServeMux, deps Deps) {
	if deps.Hub == nil {
		return
	}

	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("ws upgrade error: %v", err)
			return
		}
		defer func() { _ = conn.Close() }()

		hello := connectionEvent(recentSessions(deps.Catalog))
		if payload, err := json.Marshal(hello); err == nil {
			_ = conn.WriteMessage(websocket.TextMessage, payload)
		}

		ch := deps.Hub.Subscribe()
		defer deps.Hub.Unsubscribe(ch)

		for msg := range ch {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	})
}

func recentSessions(cat SessionCatalog) []catalog.Session {
	if cat == nil {
		return nil
	}
	sessions, err := cat.GetSessions()
	if err != nil {
		log.Printf("ws: list sessions: %v", err)
		return nil
	}
	return sessions
}
