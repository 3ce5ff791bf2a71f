package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/courier/internal/directory"
	"github.com/mattjoyce/courier/internal/events"
	"github.com/mattjoyce/courier/internal/store"
)

// ClientDirectory defines the directory operations the admin API exposes.
type ClientDirectory interface {
	Get(ctx context.Context, clientID string) (*directory.Entry, error)
	Upsert(ctx context.Context, e directory.Entry) (directory.Entry, error)
}

// EventStore defines the message store operations the admin API exposes.
type EventStore interface {
	Write(ctx context.Context, ev store.InboundEvent) (store.WriteResult, error)
	Get(ctx context.Context, id string) (*store.InboundEvent, error)
}

// QueueDepther reports relay queue depth for /healthz.
type QueueDepther interface {
	Depth(ctx context.Context) (int, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is the admin bearer token. Empty means every protected route
	// answers 500.
	APIKey string
}

// Server represents the admin HTTP API server
type Server struct {
	config    Config
	directory ClientDirectory
	store     EventStore
	queue     QueueDepther
	events    *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance
func New(config Config, dir ClientDirectory, st EventStore, queue QueueDepther, hub *events.Hub, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		directory: dir,
		store:     st,
		queue:     queue,
		events:    hub,
		logger:    logger.With("component", "api"),
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.setupRoutes(),
		ReadTimeout: 10 * time.Second,
		// The SSE stream is long-lived; write deadlines are left to the client.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/openapi.json", s.handleOpenAPI)
		r.Post("/seed/client", s.handleSeedClient)
		r.Get("/directory/{clientID}", s.handleGetClient)
		r.Post("/test/client-message", s.handleTestClientMessage)
		r.Get("/events", s.handleEvents)
		r.Get("/events/{eventID}", s.handleGetEvent)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
