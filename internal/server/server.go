// Package server assembles the apikey-hub HTTP surface: router, global
// middleware, per-route permission checks, and graceful lifecycle.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/flavien-hugs/apikey-hub/internal/audit"
	"github.com/flavien-hugs/apikey-hub/internal/authgw"
	"github.com/flavien-hugs/apikey-hub/internal/config"
	"github.com/flavien-hugs/apikey-hub/internal/handler"
	"github.com/flavien-hugs/apikey-hub/internal/keys"
	"github.com/flavien-hugs/apikey-hub/internal/openapi"
	"github.com/flavien-hugs/apikey-hub/internal/server/middleware"
	"github.com/flavien-hugs/apikey-hub/internal/store"
)

// Server owns the chi router and the HTTP listener. Construct with New,
// start with ListenAndServe; the router is also an http.Handler for tests.
type Server struct {
	cfg        config.ServerConfig
	router     chi.Router
	store      *store.Store
	httpServer *http.Server
	logger     *slog.Logger
}

// Deps are the wired collaborators the server routes to.
type Deps struct {
	Service *keys.Service
	Gateway authgw.Gateway
	Store   *store.Store
	Trail   audit.Recorder
	Version string
}

// New builds the server with all routes and middleware attached.
func New(cfg config.ServerConfig, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		store:  deps.Store,
		logger: logger,
	}
	s.setupRouter(deps)
	return s
}

func (s *Server) setupRouter(deps Deps) {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	sysHandler := handler.NewSystemHandler(deps.Store, deps.Version)
	r.Get("/healthz", sysHandler.Healthz)
	r.Get("/readyz", sysHandler.Readyz)
	r.Get("/@ping", sysHandler.Ping)

	baseURL := fmt.Sprintf("http://%s:%d", s.cfg.Host, s.cfg.Port)
	r.Get("/openapi.json", handler.NewOpenAPIHandler(openapi.Document(deps.Version, baseURL)).ServeSpec)

	keysHandler := handler.NewKeysHandler(deps.Service, deps.Trail, s.logger)
	r.Route("/keys", func(r chi.Router) {
		r.With(middleware.Access(deps.Gateway, handler.PermCreate)).
			Post("/", keysHandler.Create)
		r.With(middleware.Access(deps.Gateway, handler.PermRead)).
			Get("/", keysHandler.List)
		r.With(middleware.Access(deps.Gateway, handler.PermRead)).
			Get("/{id}", keysHandler.Get)
		r.With(middleware.Access(deps.Gateway, handler.PermRegenerate)).
			Put("/{id}", keysHandler.Regenerate)
		r.With(middleware.Access(deps.Gateway, handler.PermToggle)).
			Put("/{id}/action", keysHandler.Action)
		r.With(middleware.Access(deps.Gateway, handler.PermDelete)).
			Delete("/{id}", keysHandler.Delete)
	})

	verifyHandler := handler.NewVerifyHandler(deps.Service, s.logger)
	r.Group(func(r chi.Router) {
		if s.cfg.VerifyRatePerMin > 0 {
			r.Use(middleware.VerifyRateLimit(s.cfg.VerifyRatePerMin))
		}
		r.Get("/verify-api-key", verifyHandler.Verify)
	})

	s.router = r
}

// ListenAndServe starts the server and blocks until SIGINT or SIGTERM, then
// drains in-flight requests within the configured shutdown window.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
