package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/seoforge-ai/seoforge/internal/auth"
	"github.com/seoforge-ai/seoforge/internal/draft"
	"github.com/seoforge-ai/seoforge/internal/model"
	"github.com/seoforge-ai/seoforge/internal/ratelimit"
	"github.com/seoforge-ai/seoforge/internal/service/playbook"
	"github.com/seoforge-ai/seoforge/internal/storage"
)

// Server is the HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Limiter is optional; nil disables rate limiting.
type ServerConfig struct {
	DB          *storage.DB
	JWTMgr      *auth.JWTManager
	PlaybookSvc *playbook.Service
	Drafts      *draft.Store
	Logger      *slog.Logger
	Limiter     ratelimit.Limiter

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	APIToken            string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		JWTMgr:              cfg.JWTMgr,
		PlaybookSvc:         cfg.PlaybookSvc,
		Drafts:              cfg.Drafts,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		APIToken:            cfg.APIToken,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	limited := rateLimitMiddleware(cfg.Limiter, cfg.Logger)

	mux := http.NewServeMux()

	// Token exchange (no auth required).
	mux.Handle("POST /auth/token", http.HandlerFunc(h.HandleAuthToken))

	// Playbook reads (viewer+).
	readRole := requireRole(model.RoleViewer)
	mux.Handle("GET /v1/playbooks", readRole(http.HandlerFunc(h.HandleListPlaybooks)))
	mux.Handle("GET /v1/playbooks/{playbook_id}", readRole(http.HandlerFunc(h.HandleGetPlaybook)))
	mux.Handle("GET /v1/playbooks/{playbook_id}/estimate", readRole(http.HandlerFunc(h.HandleEstimate)))

	// Engine writes (editor+, rate limited — preview and draft generation
	// can trigger AI, apply mutates the store).
	writeRole := requireRole(model.RoleEditor)
	mux.Handle("POST /v1/playbooks/{playbook_id}/preview", limited(writeRole(http.HandlerFunc(h.HandlePreview))))
	mux.Handle("POST /v1/playbooks/{playbook_id}/draft", limited(writeRole(http.HandlerFunc(h.HandleGenerateDraft))))
	mux.Handle("POST /v1/playbooks/{playbook_id}/apply", limited(writeRole(http.HandlerFunc(h.HandleApply))))

	// Usage (viewer+).
	mux.Handle("GET /v1/usage", readRole(http.HandlerFunc(h.HandleUsage)))

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
