package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/haken/internal/auth"
	"github.com/ashita-ai/haken/internal/ctxutil"
	"github.com/ashita-ai/haken/internal/model"
	"github.com/ashita-ai/haken/internal/ratelimit"
	"github.com/ashita-ai/haken/internal/service/selection"
)

// Server is the haken HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Registry, Limiter, MCPServer.
type ServerConfig struct {
	// Required dependencies.
	DB           Pinger
	JWTMgr       *auth.JWTManager
	SelectionSvc *selection.Service
	Logger       *slog.Logger

	// Optional dependencies (nil = disabled).
	Registry  RegistryWriter
	Limiter   ratelimit.Limiter
	MCPServer *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		SelectionSvc:        cfg.SelectionSvc,
		Registry:            cfg.Registry,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	reqIDFunc := func(r *http.Request) string {
		return ctxutil.RequestIDFromContext(r.Context())
	}
	ingestRL := ratelimit.Middleware(cfg.Limiter, accountKeyFunc, reqIDFunc, cfg.Logger)

	mux := http.NewServeMux()

	// Selection ingestion (scheduler+, rate limited per account).
	writeRole := requireRole(model.RoleScheduler)
	mux.Handle("POST /v1/selection-logs", writeRole(ingestRL(http.HandlerFunc(h.HandleRecordSelection))))

	// Selection queries (operator+).
	readRole := requireRole(model.RoleOperator)
	mux.Handle("GET /v1/tasks/{task_id}/selection-logs", readRole(http.HandlerFunc(h.HandleTaskSelectionLogs)))
	mux.Handle("GET /v1/tasks/{task_id}/selection-logs/data", readRole(http.HandlerFunc(h.HandleTaskSelectionLogsData)))
	mux.Handle("GET /v1/tasks/{task_id}/selected-delegate", readRole(http.HandlerFunc(h.HandleSelectedDelegate)))

	// Reference data sync (admin-only).
	if cfg.Registry != nil {
		adminOnly := requireRole(model.RoleAdmin)
		mux.Handle("PUT /v1/delegates/{delegate_id}", adminOnly(http.HandlerFunc(h.HandlePutDelegate)))
		mux.Handle("DELETE /v1/delegates/{delegate_id}", adminOnly(http.HandlerFunc(h.HandleDeleteDelegate)))
		mux.Handle("PUT /v1/delegate-profiles/{profile_id}", adminOnly(http.HandlerFunc(h.HandlePutDelegateProfile)))
		mux.Handle("DELETE /v1/delegate-profiles/{profile_id}", adminOnly(http.HandlerFunc(h.HandleDeleteDelegateProfile)))
		mux.Handle("PUT /v1/entities/{kind}/{entity_id}", adminOnly(http.HandlerFunc(h.HandlePutEntity)))
	}

	// MCP StreamableHTTP transport (operator+).
	if cfg.MCPServer != nil {
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer, mcpserver.WithStateLess(true))
		mux.Handle("/mcp", readRole(mcpHTTP))
	}

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// accountKeyFunc keys ingestion rate limits by account.
// Admin tokens are exempt.
func accountKeyFunc(r *http.Request) string {
	claims := ctxutil.ClaimsFromContext(r.Context())
	if claims == nil || model.RoleAtLeast(claims.Role, model.RoleAdmin) {
		return ""
	}
	return claims.AccountID
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
