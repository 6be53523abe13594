package router

import (
	"net/http"

	docHandler "codocs/internal/document"
	"codocs/middleware"
	"codocs/socket"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Setup wires the REST API and the websocket endpoint.
func Setup(docs *docHandler.DocumentHandler, hub *socket.Hub, corsOrigin string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORSMiddleware(corsOrigin))

	// WebSocket
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		socket.ServeWs(hub, w, r)
	})

	// REST API
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequestLogger)
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		})
		docs.MountRoutes(r)
	})

	return r
}
