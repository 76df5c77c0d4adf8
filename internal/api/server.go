package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/weekly-campaign/internal/config"
	"github.com/ignite/weekly-campaign/internal/service/weekly"
)

// Server represents the API server
type Server struct {
	cfg     *config.Config
	svc     *weekly.Service
	health  *HealthChecker
	router  *chi.Mux
	handler http.Handler
	server  *http.Server

	// Redis client, only used by the health check
	redisClient *redis.Client
	now         func() time.Time
}

// Option customizes a Server.
type Option func(*Server)

// WithRedis adds a Redis component to the health check.
func WithRedis(c *redis.Client) Option {
	return func(s *Server) { s.redisClient = c }
}

// WithClock replaces time.Now for ticks and default week resolution.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer creates a new API server
func NewServer(svc *weekly.Service, cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		cfg: cfg,
		svc: svc,
		now: time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.health = NewHealthChecker(svc, s.redisClient)
	s.router = s.setupRoutes()
	s.handler = s.router
	return s
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.handler,
		// A tick can include a full send pass to the contact list.
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
