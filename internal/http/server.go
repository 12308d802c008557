package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Server struct {
	Router *chi.Mux
}

// NewServer wires the routes. ws may be nil when push updates are not
// served.
func NewServer(handler *Handler, ws http.HandlerFunc, allowedOrigins []string) *Server {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/", handler.Index)

	r.Route("/api/networks", func(r chi.Router) {
		r.Get("/", handler.ListNetworks)
		r.Get("/{network}/status", handler.GetStatus)
		r.Get("/{network}/chains/{id}", handler.GetChain)
	})

	if ws != nil {
		r.Get("/ws", ws)
	}

	return &Server{Router: r}
}
