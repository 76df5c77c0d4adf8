package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// setupRoutes configures all API routes. /dev is mounted only when the
// environment is dev.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Server-Identity", "weekly-campaign")
			w.Header().Set("X-Environment", s.cfg.Environment)
			next.ServeHTTP(w, req)
		})
	})

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Get("/jobs", s.handleJobs)
	r.Post("/jobs/tick", s.handleTick)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/config", s.handleConfig)
		r.Get("/weekly", s.handleWeekly)
		r.Get("/candidates", s.handleCandidates)
		r.Post("/candidates/generate", s.handleGenerate)
		r.Post("/candidates/select", s.handleSelect)
		r.Get("/sends", s.handleSends)
		r.Get("/sends/{sendID}/recipients", s.handleRecipients)
	})

	if s.cfg.IsDev() {
		r.Route("/dev", func(r chi.Router) {
			r.Get("/ping", s.handleDevPing)
			r.Post("/run", s.handleDevRun)
		})
	}

	return r
}
