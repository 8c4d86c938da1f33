package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/repteam/rep/internal/services"
	"github.com/repteam/rep/internal/shared"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an http.Handler that knows the paths it serves.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                         // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler)     // Handle registers a handler for the specified method and path
	Handler(handler Handler)                              // Handler registers a custom Handler implementation
	Group(prefix string, middleware ...Middleware) Router // Group returns a router for paths under prefix
	ServeHTTP(w http.ResponseWriter, r *http.Request)     // ServeHTTP implements http.Handler for the entire router
}

const shutdownTimeout = 10 * time.Second

// Server is the HTTP front of the backend.
type Server struct {
	http   *http.Server
	logger *log.Logger
}

// NewHandler builds the full route tree: callables under /v1 behind token verification and
// rate limiting, events under /v1/events behind the shared secret and the liveness probe.
// CORS wraps the whole tree so preflight requests never reach the router.
func NewHandler(api *API, identity services.Identity, cfg shared.ServerConfig, logger *log.Logger) http.Handler {
	router := NewRouter()
	router.Use(Recover(logger), Logging(logger))
	router.Handler(Health{})

	limiter := NewRateLimiter(cfg.RateLimit, cfg.RateBurst)
	events := router.Group("/v1/events", EventSecret(cfg.EventSecret))
	callables := router.Group("/v1", Authenticate(identity, logger), limiter.Middleware)

	api.RegisterEvents(events)
	api.RegisterCallables(callables)

	return CORS(cfg.AllowedOrigins)(router)
}

// New creates a Server listening on cfg.Addr().
func New(handler http.Handler, cfg shared.ServerConfig, logger *log.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      5 * time.Minute,
			IdleTimeout:       2 * time.Minute,
		},
		logger: logger,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is [Server.Run] on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", ln.Addr().String())
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
