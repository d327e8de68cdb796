// Package server manages individual WebSocket clients, handling read/write
// pumps, event dispatch, rate limiting, and lifecycle control for each
// connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeWait bounds a single write to the peer.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent before it is
	// considered dead.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = 54 * time.Second

	sendBufferSize = 256
)

// Client represents one live WebSocket connection. Its username is unset
// until the peer identifies; identity is asserted by the client and trusted
// here, authentication happens elsewhere.
type Client struct {
	conn    *websocket.Conn
	hub     *Hub
	addr    string
	limiter *rateLimiter
	log     *zap.Logger

	mu       sync.Mutex
	send     chan []byte
	closed   bool
	username string
}

// NewClient creates a Client for an upgraded connection. The hub launches
// the pump goroutines once the client registers.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := hub.cfg
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		conn:    conn,
		hub:     hub,
		addr:    addr,
		limiter: newRateLimiter(cfg.RateLimitBurst, cfg.RateLimitRefill),
		log:     hub.log.With(zap.String("addr", addr)),
		send:    make(chan []byte, sendBufferSize),
	}
}

// Username returns the identity bound to this connection, or "" before the
// peer has identified.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// setUsername binds the identity exactly once; later attempts report false.
func (c *Client) setUsername(username string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.username != "" {
		return false
	}
	c.username = username
	return true
}

// enqueue queues a raw frame for the write pump. It reports false when the
// connection is closed or the buffer is full; a slow peer misses the frame
// rather than blocking the caller.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// sendEvent encodes and queues an event frame for this connection.
func (c *Client) sendEvent(event string, data any) bool {
	payload, err := encodeEvent(event, data)
	if err != nil {
		c.log.Error("encode event", zap.String("event", event), zap.Error(err))
		return false
	}
	return c.enqueue(payload)
}

// shutdown marks the client closed and closes its send channel so the write
// pump drains and exits. Safe to call at most once per client; the hub's
// unregister path is the only caller.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("set read deadline", zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// handleReadError logs the error appropriately; the read loop always stops
// afterwards.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("message exceeded read limit")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Debug("client disconnected", zap.Error(err))
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		c.log.Debug("connection closed", zap.Error(err))
	default:
		c.log.Warn("websocket read error", zap.Error(err))
	}
}

func (c *Client) readPump() {
	defer func() {
		// During shutdown the hub's event loop is gone; don't block on it.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Debug("close connection", zap.Error(err))
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		if !c.limiter.allow() {
			c.log.Warn("rate limit exceeded; discarding frame")
			continue
		}

		c.dispatch(raw)
	}
}

// dispatch decodes one inbound frame and routes it to the matching handler.
// Malformed frames and unknown events are dropped without closing the
// connection; this is a best-effort surface, not a validated API.
func (c *Client) dispatch(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.log.Debug("invalid frame", zap.Error(err))
		return
	}

	switch env.Event {
	case EventIdentify:
		c.handleIdentify(env.Data)
	case EventRequestHistory:
		c.handleRequestHistory(env.Data)
	case EventSendMessage:
		c.handleSendMessage(env.Data)
	case EventAcknowledgeSeen:
		c.handleAcknowledgeSeen(env.Data)
	case EventNotifyTyping:
		c.handleNotifyTyping(env.Data)
	default:
		c.log.Debug("unknown event", zap.String("event", env.Event))
	}
}

func (c *Client) handleIdentify(data json.RawMessage) {
	var p IdentifyPayload
	if err := json.Unmarshal(data, &p); err != nil || p.Username == "" {
		c.log.Debug("dropping malformed identify")
		return
	}
	if !c.setUsername(p.Username) {
		// Identity is set once per connection.
		return
	}

	c.hub.registry.Register(p.Username, c)
	if p.Status != "" {
		c.hub.presence.SetStatus(p.Username, p.Status)
	}
	c.hub.presence.Broadcast()
	c.log.Info("client identified", zap.String("username", p.Username))
}

func (c *Client) handleRequestHistory(data json.RawMessage) {
	var p HistoryRequestPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.log.Debug("dropping malformed history request")
		return
	}
	c.hub.router.LoadHistory(c.hub.ctx, c, p.UserA, p.UserB)
}

func (c *Client) handleSendMessage(data json.RawMessage) {
	var p SendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.log.Debug("dropping malformed message frame")
		return
	}
	c.hub.router.SendPrivate(c.hub.ctx, c, p.Sender, p.Receiver, p.Text, p.ID)
}

func (c *Client) handleAcknowledgeSeen(data json.RawMessage) {
	var p SeenPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.log.Debug("dropping malformed seen ack")
		return
	}
	c.hub.router.MarkSeen(c.hub.ctx, p.ID)
}

func (c *Client) handleNotifyTyping(data json.RawMessage) {
	var p TypingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.log.Debug("dropping malformed typing signal")
		return
	}
	c.hub.router.RelayTyping(p.Sender, p.Receiver)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Debug("close connection", zap.Error(err))
		}
	}()

	for {
		select {
		case <-c.hub.ctx.Done():
			return
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				// Hub closed the channel; say goodbye.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !c.writeFrame(payload) {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeFrame writes one queued frame, draining any others already buffered
// into the same WebSocket message.
func (c *Client) writeFrame(payload []byte) bool {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return false
	}
	if _, err := w.Write(payload); err != nil {
		return false
	}

	queued := len(c.send)
	for i := 0; i < queued; i++ {
		if _, err := w.Write([]byte{'\n'}); err != nil {
			return false
		}
		if _, err := w.Write(<-c.send); err != nil {
			return false
		}
	}

	if err := w.Close(); err != nil {
		c.log.Debug("close frame writer", zap.Error(err))
		return false
	}
	return true
}

// isExpectedCloseError checks if an error is expected during connection
// closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "websocket: close sent") ||
		strings.Contains(msg, "broken pipe")
}
