// Package server constructs and wires the Whisperwire HTTP service with
// helpers that apply sensible production defaults.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/whisperwire/whisperwire/internal/store"
)

// Server owns the live chat core plus the HTTP glue around it.
type Server struct {
	cfg      Config
	log      *zap.Logger
	hub      *Hub
	creds    store.CredentialStore
	upgrader websocket.Upgrader
}

// New assembles the full chat core over the given stores: registry, delivery
// tracker, presence broadcaster, router, hub, and HTTP surface.
func New(cfg Config, messages store.MessageStore, creds store.CredentialStore, log *zap.Logger) *Server {
	registry := NewRegistry()
	tracker := NewDeliveryTracker()
	presence := NewPresence(registry, log)
	router := NewRouter(registry, tracker, messages, log)
	hub := NewHub(cfg, registry, presence, router, log)

	origins := newOriginPolicy(cfg.AllowedOrigins, log)

	return &Server{
		cfg:   cfg,
		log:   log,
		hub:   hub,
		creds: creds,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
	}
}

// Hub returns the hub for lifecycle control (Run/Shutdown) and tests.
func (s *Server) Hub() *Hub { return s.hub }

// Start launches the hub event loop.
func (s *Server) Start() {
	go s.hub.Run()
	s.log.Info("hub started")
}

// Routes configures and returns the application's HTTP mux: health check,
// WebSocket endpoint, and the signup/login account glue.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.HealthHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	mux.HandleFunc("/signup", s.SignupHandler)
	mux.HandleFunc("/login", s.LoginHandler)
	return mux
}

// CreateHTTPServer creates the HTTP server with timeouts suited for
// production use.
func CreateHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Shutdown stops the HTTP listener and then drains the hub, bounded by the
// configured shutdown timeout.
func (s *Server) Shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		s.log.Error("http shutdown", zap.Error(err))
		return err
	}
	return s.hub.Shutdown(s.cfg.ShutdownTimeout)
}
