package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/tasklight/tasklight/internal/auth"
	"github.com/tasklight/tasklight/internal/config"
	"github.com/tasklight/tasklight/internal/database"
	"github.com/tasklight/tasklight/internal/web/handlers"
	"github.com/tasklight/tasklight/internal/web/middleware"
	"github.com/tasklight/tasklight/internal/web/sse"
	"github.com/tasklight/tasklight/internal/web/ws"
)

// Server represents the web server
type Server struct {
	db            *database.DB
	port          int
	bind          string
	allowedNet    *net.IPNet
	router        *chi.Mux
	loader        *config.Loader
	apiKeyService *auth.APIKeyService
	sseBroker     *sse.Broker
	wsFeed        *ws.Feed
	handlers      *handlers.Handlers
}

// NewServer creates a new web server
func NewServer(db *database.DB, port int, bind string, allowedNet *net.IPNet) *Server {
	broker := sse.NewBroker()
	s := &Server{
		db:            db,
		port:          port,
		bind:          bind,
		allowedNet:    allowedNet,
		router:        chi.NewRouter(),
		loader:        config.NewLoader(db),
		apiKeyService: auth.NewAPIKeyService(db),
		sseBroker:     broker,
		wsFeed:        ws.NewFeed(broker),
	}

	s.setupRoutes()

	return s
}

// SSEBroker returns the event broker for broadcasting events
func (s *Server) SSEBroker() *sse.Broker {
	return s.sseBroker
}

// APIKeyService returns the API key service
func (s *Server) APIKeyService() *auth.APIKeyService {
	return s.apiKeyService
}

// AuthRequired reports whether API requests must carry an API key.
// Read per-request so the setting can be flipped without a restart.
func (s *Server) AuthRequired() bool {
	return s.loader.Bool("auth.required", false)
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	r := s.router

	// Global middleware (applied to all routes, except timeout which is per-group)
	r.Use(chimiddleware.RequestID)
	// AllowSubnet must come BEFORE RealIP so we check the actual connection source
	r.Use(middleware.AllowSubnet(s.allowedNet))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)
	// Note: Timeout middleware is applied per-group, not globally, to allow
	// SSE and websocket long-lived connections

	h := handlers.New(s.db, s.sseBroker)
	s.handlers = h

	// Event streams - no timeout (long-lived connections)
	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s, s.apiKeyService))
		r.Get("/api/events", s.sseBroker.ServeHTTP)
		r.Get("/api/ws", s.wsFeed.ServeHTTP)
	})

	// Health check (no auth)
	r.Get("/api/health", h.Health)

	// JSON API
	r.Route("/api", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(60 * time.Second))
		r.Use(middleware.APIKeyAuth(s, s.apiKeyService))

		r.Route("/todos", func(r chi.Router) {
			r.Post("/", h.TodoCreate)
			r.Get("/", h.TodoList)
			r.Get("/{id}", h.TodoGet)
			r.Patch("/{id}", h.TodoUpdate)
			r.Delete("/{id}", h.TodoDelete)
		})

		r.Route("/labels", func(r chi.Router) {
			r.Post("/", h.LabelCreate)
			r.Get("/", h.LabelList)
			r.Delete("/{id}", h.LabelDelete)
		})
	})
}

// Start starts the web server
func (s *Server) Start(ctx context.Context) error {
	var addr string
	if s.bind != "" {
		addr = fmt.Sprintf("%s:%d", s.bind, s.port)
	} else {
		addr = fmt.Sprintf(":%d", s.port)
	}

	server := &http.Server{
		Addr:    addr,
		Handler: s.router,
		// ReadTimeout is for reading request body
		ReadTimeout: 15 * time.Second,
		// WriteTimeout disabled (0) to allow SSE long-lived connections
		// Chi middleware timeout (60s) protects regular requests
		WriteTimeout: 0,
		// IdleTimeout for keep-alive connections between requests
		IdleTimeout: 120 * time.Second,
	}

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down HTTP server")
		// Stop the broker first to close all client connections gracefully
		s.sseBroker.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}
