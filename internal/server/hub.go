// Package server coordinates connection registration, identity binding, and
// presence fan-out for the Whisperwire WebSocket system via the Hub type.
package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Hub owns the set of live connections and the chat core components built on
// top of them: the username registry, the presence broadcaster, and the
// message router. Registration and teardown of connections are serialized
// through the hub's event loop.
type Hub struct {
	cfg      Config
	log      *zap.Logger
	registry *Registry
	presence *Presence
	router   *Router

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client

	mu     sync.Mutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub wired to the given router components. The returned
// hub is ready to manage connections once Run is started.
func NewHub(cfg Config, registry *Registry, presence *Presence, router *Router, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:        cfg,
		log:        log,
		registry:   registry,
		presence:   presence,
		router:     router,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Registry exposes the connection registry for handlers and tests.
func (h *Hub) Registry() *Registry { return h.registry }

// Presence exposes the presence broadcaster.
func (h *Hub) Presence() *Presence { return h.presence }

// Router exposes the message router.
func (h *Hub) Router() *Router { return h.router }

// Run starts the hub's event loop, handling connection registration and
// teardown. It should be called in its own goroutine; it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.closeAllClients()
			return

		case c := <-h.register:
			if c == nil {
				h.log.Warn("nil client registration; skipping")
				continue
			}
			h.addClient(c)

		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	total := len(h.clients)
	h.mu.Unlock()

	h.log.Info("connection opened", zap.String("addr", c.addr), zap.Int("total", total))

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
}

// removeClient tears a connection down: drop it from the live set, close its
// send channel, and release its registry binding. The registry's handle-match
// guard makes this safe when an old session disconnects after a newer one has
// already taken over the username.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	total := len(h.clients)
	h.mu.Unlock()

	c.shutdown()

	if h.registry.Unregister(c) {
		username := c.Username()
		h.presence.Forget(username)
		h.presence.Broadcast()
		h.log.Info("user went offline", zap.String("username", username), zap.Int("total", total))
		return
	}
	h.log.Info("connection closed", zap.String("addr", c.addr), zap.Int("total", total))
}

// closeAllClients closes every live connection during shutdown.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if c.conn == nil {
			continue
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Warn("close client connection", zap.String("addr", c.addr), zap.Error(err))
		}
	}

	h.log.Info("closed client connections", zap.Int("count", len(clients)))
}

// Shutdown stops the event loop, closes all connections, and waits for the
// pump goroutines to finish or for the timeout to pass.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("hub shutting down")

	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		h.log.Info("hub shutdown complete")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timed out; some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
