// Package server exposes the HTTP surface of the chat service: the
// WebSocket upgrade endpoint, the health check, and graceful shutdown of
// the listener.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/hub"
)

// Server upgrades HTTP requests into hub-managed WebSocket connections.
type Server struct {
	cfg      *config.Config
	hub      *hub.Hub
	origins  *originSet
	upgrader websocket.Upgrader
}

// New creates the HTTP surface for the given hub.
func New(cfg *config.Config, h *hub.Hub) *Server {
	s := &Server{
		cfg:     cfg,
		hub:     h,
		origins: newOriginSet(cfg.AllowedOrigins),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Routes returns the HTTP handler with all application routes.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)

	return r
}

// handleWebSocket upgrades the request and hands the connection to the hub,
// which registers it and launches its read/write pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := hub.NewClient(conn, s.hub, r.RemoteAddr)
	s.hub.Register(client)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "parley server is running")
}

// CreateServer creates an HTTP server with production timeout defaults.
// ReadTimeout is deliberately absent: WebSocket connections are long-lived
// and the liveness sweep owns their teardown.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// StartServer starts the HTTP server and blocks until it exits.
func StartServer(server *http.Server) error {
	log.Printf("Server listening on %s", server.Addr)
	return server.ListenAndServe()
}

// ShutdownServer gracefully shuts down the HTTP server, waiting for active
// connections to close or until the timeout is reached.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	log.Println("Shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		return err
	}

	log.Println("HTTP server shutdown completed")
	return nil
}
