// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeWait bounds how long a single outbound write may take.
	writeWait = 10 * time.Second
	// pongWait is how long the connection may stay silent before the read
	// side gives up on it.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait so a healthy peer always
	// answers in time.
	pingPeriod = 54 * time.Second
	// sendBufferSize is the outbound queue depth per connection.
	sendBufferSize = 256
)

// Client represents one accepted WebSocket connection. Each client is
// assigned an opaque identifier at accept time; the room registry keys all
// membership checks off that identifier, never off the socket handle, so a
// reconnect can take over a participant slot cleanly.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	addr   string
	closed atomic.Bool

	maxMessageSize int64
	limiter        *tokenBucket
	logger         *zap.Logger
}

// NewClient creates a Client for the given WebSocket connection. The send
// channel is buffered so broadcasts never block on a slow peer.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := hub.relayConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	id := uuid.NewString()
	return &Client{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, sendBufferSize),
		hub:            hub,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        newTokenBucket(cfg.RateLimitBurst, cfg.RateLimitRefillInterval),
		logger:         hub.logger.With(zap.String("conn_id", id), zap.String("addr", addr)),
	}
}

// ID returns the stable identifier assigned at accept time.
func (c *Client) ID() string {
	return c.id
}

// Open reports whether the connection can still receive payloads.
func (c *Client) Open() bool {
	return !c.closed.Load()
}

// Send queues a payload for delivery without blocking. It reports false when
// the payload was dropped because the connection is closed or its buffer is
// full; delivery is best effort either way.
func (c *Client) Send(payload []byte) (ok bool) {
	if !c.Open() {
		return false
	}

	// The send channel is closed by the hub during unregistration; a
	// concurrent push would panic, so recover and report the drop.
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// markClosed flips the client into the non-sendable state. Called by the hub
// while it owns the client's registration.
func (c *Client) markClosed() {
	c.closed.Store(true)
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("setting initial read deadline", zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Warn("setting read deadline in pong handler", zap.Error(err))
		}
		return nil
	})
}

// logReadError classifies the terminal read error so expected disconnects
// stay quiet and genuine transport faults are visible.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Warn("message exceeded read limit",
			zap.Int64("max_message_size", c.maxMessageSize),
		)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.logger.Debug("client disconnected", zap.Error(err))
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		c.logger.Debug("connection closed", zap.Error(err))
	default:
		c.logger.Warn("websocket read error", zap.Error(err))
	}
}

// readPump reads inbound frames and feeds them to the relay until the
// connection dies, then hands the client back to the hub for unregistration
// and eviction scheduling.
func (c *Client) readPump() {
	defer func() {
		// The hub loop stops consuming unregistrations once shutdown begins.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Debug("closing connection in readPump", zap.Error(err))
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if c.limiter != nil && !c.limiter.allow() {
			c.logger.Debug("rate limit exceeded, discarding message")
			c.Send(errorMessage("Too many messages, slow down"))
			continue
		}

		c.hub.relay.HandleMessage(c, raw)
	}
}

// writePump drains the send queue onto the socket and keeps the connection
// alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Debug("closing connection in writePump", zap.Error(err))
		}
	}()

	for {
		select {
		case payload, open := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("setting write deadline", zap.Error(err))
				return
			}
			if !open {
				// Hub closed the queue; say goodbye properly.
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
					c.logger.Debug("writing close message", zap.Error(err))
				}
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug("writing message", zap.Error(err))
				return
			}

			// Flush anything already queued behind this payload.
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					c.logger.Debug("writing queued message", zap.Error(err))
					return
				}
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("setting write deadline for ping", zap.Error(err))
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
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
