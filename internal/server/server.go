package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/mozoqr/waiterpush/internal/domain"
	"github.com/mozoqr/waiterpush/internal/server/handler"
	"github.com/mozoqr/waiterpush/internal/server/middleware"
	"github.com/mozoqr/waiterpush/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	// RateLimit is requests per RateWindow per client IP; 0 disables it.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Nil handlers leave their routes unregistered.
type Handlers struct {
	Health        *handler.HealthHandler
	Status        *handler.StatusHandler
	Push          *handler.PushHandler
	Notifications *handler.NotificationHandler
	Deliveries    *handler.DeliveryHandler
	Channels      *handler.ChannelHandler
	Metrics       http.Handler
}

// Options are the optional collaborators of the middleware chain.
type Options struct {
	Limiter  domain.RateLimiter
	Observer middleware.Observer
}

// Server is the HTTP + WebSocket ingress of waiterpush.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (recover, rate limit, auth, logging, CORS) and
// attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, opts Options, logger *slog.Logger) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewHandler(cfg, handlers, wsHub, opts, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// NewHandler builds the routed and wrapped handler without binding a port.
func NewHandler(cfg Config, handlers Handlers, wsHub *ws.Hub, opts Options, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health and metrics are public.
	if handlers.Health != nil {
		mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	}
	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}
	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}

	if handlers.Push != nil {
		mux.HandleFunc("POST /api/push/messages", handlers.Push.PostMessage)
		mux.HandleFunc("POST /api/push/token", handlers.Push.PostToken)
		mux.HandleFunc("GET /api/push/token", handlers.Push.GetToken)
	}
	if handlers.Notifications != nil {
		mux.HandleFunc("GET /api/notifications", handlers.Notifications.ListNotifications)
		mux.HandleFunc("DELETE /api/notifications/{id}", handlers.Notifications.DismissNotification)
	}
	if handlers.Deliveries != nil {
		mux.HandleFunc("GET /api/deliveries", handlers.Deliveries.ListDeliveries)
	}
	if handlers.Channels != nil {
		mux.HandleFunc("GET /api/channels", handlers.Channels.ListChannels)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)
	h = middleware.RateLimit(opts.Limiter, cfg.RateLimit, cfg.RateWindow)(h)
	h = middleware.Logging(logger, opts.Observer)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	h = middleware.Recover(logger)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("server: starting", slog.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
