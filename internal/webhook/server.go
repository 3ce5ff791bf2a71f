package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server represents the webhook HTTP server.
type Server struct {
	config    Config
	processor Processor
	logger    *slog.Logger
	server    *http.Server

	// inflight tracks detached processing started after the 200 ack.
	inflight sync.WaitGroup
}

// New creates a new webhook server instance.
func New(config Config, processor Processor, logger *slog.Logger) *Server {
	config.applyDefaults()
	return &Server{
		config:    config,
		processor: processor,
		logger:    logger.With("component", "webhook"),
	}
}

// Start starts the webhook HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if s.config.AppSecret == "" {
		if s.config.RequireSignature {
			s.logger.Error("app secret not configured; all webhook POSTs will be rejected")
		} else {
			s.logger.Warn("app secret not configured; signature verification disabled")
		}
	}
	s.logger.Info("webhook server starting", "listen", s.config.Listen, "path", s.config.Path, "legacy_paths", s.config.LegacyPaths)

	// Run server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		if !s.Drain(s.config.ProcessTimeout) {
			s.logger.Warn("detached processing still running at shutdown")
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// Drain waits up to timeout for detached processing to finish. It reports
// whether everything completed.
func (s *Server) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	for _, path := range append([]string{s.config.Path}, s.config.LegacyPaths...) {
		r.Get(path, s.handleVerify)
		r.Post(path, s.handleWebhook)
	}
	r.Get("/health", s.handleHealth)

	return r
}

// loggingMiddleware logs HTTP requests (excludes sensitive payloads).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// handleVerify answers Meta's subscription handshake.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")

	tokenOK := s.config.VerifyToken != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(s.config.VerifyToken)) == 1
	if mode != "subscribe" || !tokenOK {
		s.logger.Warn("invalid webhook verification attempt", "mode", mode, "token_match", tokenOK)
		s.respondText(w, http.StatusForbidden, "Forbidden")
		return
	}

	s.respondText(w, http.StatusOK, q.Get("hub.challenge"))
}

// handleWebhook verifies the body, acknowledges, then hands it off.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	// Enforce body size limit
	limitedReader := io.LimitReader(r.Body, s.config.MaxBodySize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read request body")
		return
	}
	if int64(len(body)) > s.config.MaxBodySize {
		s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	if s.config.AppSecret != "" {
		if !Verify(body, r.Header.Get(s.config.SignatureHeader), s.config.AppSecret) {
			s.logger.Warn("webhook signature verification failed",
				"path", r.URL.Path,
				"header", s.config.SignatureHeader,
				"request_id", middleware.GetReqID(r.Context()),
			)
			s.respondText(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
	} else if s.config.RequireSignature {
		s.logger.Error("webhook rejected: app secret not configured", "path", r.URL.Path)
		s.respondText(w, http.StatusUnauthorized, "Unauthorized")
		return
	} else {
		s.logger.Warn("app secret not configured, skipping signature verification", "path", r.URL.Path)
	}

	s.respondText(w, http.StatusOK, "OK")
	s.detach(r.Context(), body)
}

func (s *Server) detach(parent context.Context, body []byte) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.config.ProcessTimeout)
	reqID := middleware.GetReqID(parent)

	s.inflight.Go(func() {
		defer cancel()
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic in webhook processing", "panic", rec, "request_id", reqID)
			}
		}()
		s.processor.Process(ctx, body)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError sends a JSON error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}

func (s *Server) respondText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
