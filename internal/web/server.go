package web

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/notebox/internal/auth"
	"github.com/saltyorg/notebox/internal/config"
	"github.com/saltyorg/notebox/internal/database"
	"github.com/saltyorg/notebox/internal/records"
	"github.com/saltyorg/notebox/internal/web/handlers"
	"github.com/saltyorg/notebox/internal/web/middleware"
)

// Options configures a Server
type Options struct {
	Port       int
	Bind       string
	AllowedNet *net.IPNet
	// Dev relaxes cookie security for plain HTTP development setups
	Dev bool
	// ErrorLog receives every error reported while serving a request
	ErrorLog io.Writer
	// AuthService defaults to auth.NewAuthService(db)
	AuthService *auth.AuthService
	Timeouts    *config.TimeoutConfig
}

// Server represents the web server
type Server struct {
	db          *database.DB
	opts        Options
	router      *chi.Mux
	authService *auth.AuthService
	store       *records.Store
	handlers    *handlers.Handlers
}

// NewServer creates a new web server
func NewServer(ctx context.Context, db *database.DB, opts Options) (*Server, error) {
	if opts.Timeouts == nil {
		opts.Timeouts = config.DefaultTimeoutConfig()
	}
	authService := opts.AuthService
	if authService == nil {
		authService = auth.NewAuthService(db)
	}

	store, err := records.Open(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to open record tables: %w", err)
	}

	s := &Server{
		db:          db,
		opts:        opts,
		router:      chi.NewRouter(),
		authService: authService,
		store:       store,
	}
	s.handlers = handlers.New(db, authService, store, opts.Dev)
	s.setupRoutes()

	return s, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// AuthService returns the authentication service
func (s *Server) AuthService() *auth.AuthService {
	return s.authService
}

// Store returns the private record tables
func (s *Server) Store() *records.Store {
	return s.store
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	r := s.router
	h := s.handlers

	r.Use(chimiddleware.RequestID)
	// AllowSubnet must come BEFORE RealIP so we check the actual connection source
	r.Use(middleware.AllowSubnet(s.opts.AllowedNet))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.ErrorSink(s.opts.ErrorLog))
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(chimiddleware.Timeout(s.opts.Timeouts.Request))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Public routes (no auth required)
		r.Post("/user/register", h.Register)
		r.Post("/user/login", h.Login)
		r.Post("/user/logout", h.Logout)

		// Protected routes (session auth required)
		r.Group(func(r chi.Router) {
			r.Use(middleware.SessionAuth(s.authService))

			r.Get("/user/me", h.Me)
			r.Post("/user/password", h.ChangePassword)
			r.Route("/notes", h.MountResource(h.Notes()))
			r.Route("/todos", h.MountResource(h.Todos()))
		})
	})
}

// Start starts the web server
func (s *Server) Start(ctx context.Context) error {
	var addr string
	if s.opts.Bind != "" {
		addr = fmt.Sprintf("%s:%d", s.opts.Bind, s.opts.Port)
	} else {
		addr = fmt.Sprintf(":%d", s.opts.Port)
	}

	server := &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: s.opts.Timeouts.Read,
		IdleTimeout: s.opts.Timeouts.Idle,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.Timeouts.Shutdown)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}
