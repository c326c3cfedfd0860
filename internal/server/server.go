// Package server exposes the notification hub over HTTP. The websocket
// endpoint lives at "/" so browsers can connect to ws://host:port; when a
// static root is configured the same port also serves the page files.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/hupe1980/livemirror/internal/hub"
)

// DefaultPort is the channel listen port browsers connect to.
const DefaultPort = 9996

const defaultShutdownTimeout = 5 * time.Second

// Options configures a Server.
type Options struct {
	// Host is the bind address. Empty binds all interfaces.
	Host string

	// Port is the listen port. Zero means DefaultPort.
	Port int

	// Hub receives websocket upgrades. Required.
	Hub *hub.Hub

	// StaticDir, when set, is served for plain HTTP requests.
	StaticDir string

	// ShutdownTimeout bounds graceful shutdown. Defaults to 5s.
	ShutdownTimeout time.Duration

	Logger *slog.Logger
}

// Server is the HTTP front of the hub.
type Server struct {
	addr            string
	hub             *hub.Hub
	router          chi.Router
	httpServer      *http.Server
	listener        net.Listener
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// New builds the router. It does not bind the port; call Listen.
func New(opts Options) (*Server, error) {
	if opts.Hub == nil {
		return nil, errors.New("server: hub is required")
	}

	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}

	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("server: invalid port %d", port)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	s := &Server{
		addr:            net.JoinHostPort(opts.Host, strconv.Itoa(port)),
		hub:             opts.Hub,
		shutdownTimeout: timeout,
		logger:          logger,
	}

	s.router = s.routes(opts.StaticDir)

	return s, nil
}

func (s *Server) routes(staticDir string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	var files http.Handler = http.NotFoundHandler()
	if staticDir != "" {
		files = http.FileServer(http.Dir(staticDir))
	}

	r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if websocket.IsWebSocketUpgrade(req) {
			s.hub.ServeHTTP(w, req)
			return
		}

		// Pages are reloaded constantly during development.
		w.Header().Set("Cache-Control", "no-store")
		files.ServeHTTP(w, req)
	}))

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.hub.Count(),
	})
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Addr returns the bound address once Listen succeeded, else the
// configured one.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}

	return s.addr
}

// Listen binds the port. Failing here is the one fatal startup error of
// watch mode, so callers should abort on it.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}

	s.listener = ln

	return nil
}

// Serve handles connections until ctx is done, then shuts down gracefully
// and closes every client channel. Listen must have been called.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("server: Serve called before Listen")
	}

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- s.httpServer.Serve(s.listener)
	}()

	s.logger.Info("notification channel listening", slog.String("addr", s.Addr()))

	select {
	case err := <-errCh:
		_ = s.hub.Close()

		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("serving %s: %w", s.Addr(), err)
	case <-ctx.Done():
	}

	// Websocket connections are hijacked, so Shutdown does not wait for
	// them; the hub closes them.
	_ = s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("server shutdown failed", slog.String("error", err.Error()))
		return fmt.Errorf("shutting down: %w", err)
	}

	<-errCh

	s.logger.Info("notification channel stopped")

	return nil
}
