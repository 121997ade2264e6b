// Package server assembles the DriftWatch HTTP surface: core and
// plugin routes, the middleware chain, and lifecycle of the listener.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/HerbHall/driftwatch/internal/version"
	"github.com/HerbHall/driftwatch/pkg/plugin"
)

// PluginSource supplies plugin metadata and routes. Declared here on
// the consumer side so the server does not import the registry.
type PluginSource interface {
	AllRoutes() map[string][]plugin.Route
	All() []plugin.Plugin
}

// ReadinessChecker reports whether the server can serve traffic, nil
// meaning ready.
type ReadinessChecker func(ctx context.Context) error

// RouteRegistrar contributes routes plus a middleware to the chain.
// The auth handler implements this.
type RouteRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
	Middleware() func(http.Handler) http.Handler
}

// SimpleRouteRegistrar contributes routes only, no middleware.
type SimpleRouteRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
}

// Server is the DriftWatch HTTP server.
type Server struct {
	httpServer *http.Server
	plugins    PluginSource
	logger     *zap.Logger
	mux        *http.ServeMux
	ready      ReadinessChecker
}

// Operational endpoints excluded from request logging and rate limits.
var quietPaths = []string{"/healthz", "/readyz", "/metrics"}

// New assembles the server. A nil auth registrar disables the auth
// routes and middleware; extraRoutes adds further surfaces such as the
// WebSocket handler.
func New(addr string, plugins PluginSource, logger *zap.Logger, ready ReadinessChecker, auth RouteRegistrar, extraRoutes ...SimpleRouteRegistrar) *Server {
	s := &Server{
		plugins: plugins,
		logger:  logger,
		mux:     http.NewServeMux(),
		ready:   ready,
	}

	s.mountCoreRoutes()
	if auth != nil {
		auth.RegisterRoutes(s.mux)
	}
	for _, r := range extraRoutes {
		r.RegisterRoutes(s.mux)
	}
	s.mountPluginRoutes()

	// Outermost first.
	chain := []Middleware{
		RecoveryMiddleware(logger),
		RequestIDMiddleware,
		LoggingMiddleware(logger, quietPaths),
		SecurityHeadersMiddleware,
		VersionHeaderMiddleware,
		RateLimitMiddleware(100, 200, quietPaths),
	}
	if auth != nil {
		chain = append(chain, auth.Middleware())
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      Chain(s.mux, chain...),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) mountCoreRoutes() {
	// Unversioned operational endpoints.
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	// Versioned API.
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/plugins", s.handlePlugins)
}

// mountPluginRoutes publishes each plugin route under
// /api/v1/<plugin><path>.
func (s *Server) mountPluginRoutes() {
	for name, routes := range s.plugins.AllRoutes() {
		for _, rt := range routes {
			pattern := fmt.Sprintf("%s /api/v1/%s%s", rt.Method, name, rt.Path)
			s.mux.HandleFunc(pattern, rt.Handler)
			s.logger.Debug("mounted route",
				zap.String("plugin", name),
				zap.String("pattern", pattern),
			)
		}
	}
}

// EnableDemoMode wraps the handler chain with the read-only demo
// middleware. Call before Start.
func (s *Server) EnableDemoMode() {
	s.httpServer.Handler = DemoMiddleware(s.httpServer.Handler)
	s.logger.Info("demo mode enabled: mutating requests are rejected")
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func writeStatus(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// Liveness: 200 whenever the process is up.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Readiness: 200 only when the readiness check passes.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeStatus(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Version map[string]string `json:"version"`
}

// PluginResponse describes one registered plugin in GET /api/v1/plugins.
type PluginResponse struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: "driftwatch",
		Version: version.Map(),
	})
}

func (s *Server) handlePlugins(w http.ResponseWriter, _ *http.Request) {
	active := s.plugins.All()
	out := make([]PluginResponse, 0, len(active))
	for _, p := range active {
		info := p.Info()
		out = append(out, PluginResponse{
			Name:        info.Name,
			Version:     info.Version,
			Description: info.Description,
		})
	}
	writeStatus(w, http.StatusOK, out)
}
