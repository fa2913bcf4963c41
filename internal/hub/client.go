// Package hub manages individual WebSocket clients, handling read/write
// pumps, rate limiting, liveness, and lifecycle control for each connection.
package hub

import (
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Client represents one WebSocket connection in the chat system. It holds
// the transport handle, the buffered outbound queue, the liveness flag the
// sweep inspects, and the bound user identity once authenticated.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	ping   chan struct{}
	hub    *Hub
	addr   string
	closed bool

	mu     sync.Mutex
	alive  bool
	userID string

	hangupOnce sync.Once

	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateBurst      int
	rateInterval   time.Duration
}

// NewClient creates a Client for the given connection. A fresh connection
// starts alive, so it survives one full sweep interval before the first
// ping is expected back.
func NewClient(conn *websocket.Conn, h *Hub, addr string) *Client {
	cfg := h.cfg
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	return &Client{
		conn:           conn,
		send:           make(chan []byte, 256),
		ping:           make(chan struct{}, 1),
		hub:            h,
		addr:           addr,
		alive:          true,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateBurst, cfg.RateRefillInterval),
		rateBurst:      cfg.RateBurst,
		rateInterval:   cfg.RateRefillInterval,
	}
}

// Addr returns the remote address recorded at accept time.
func (c *Client) Addr() string { return c.addr }

// SendChan exposes the outbound queue for reading; used by transport tests.
func (c *Client) SendChan() <-chan []byte { return c.send }

// UserID returns the bound user identity, and whether one is bound. A
// client counts as a session only while a user is bound.
func (c *Client) UserID() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID, c.userID != ""
}

func (c *Client) setUser(id string) {
	c.mu.Lock()
	c.userID = id
	c.mu.Unlock()
}

// markAlive sets the liveness flag; called from the pong handler.
func (c *Client) markAlive() {
	c.mu.Lock()
	c.alive = true
	c.mu.Unlock()
}

// clearAlive lowers the liveness flag and reports its previous value. The
// sweep uses the previous value to decide between ping and terminate.
func (c *Client) clearAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.alive
	c.alive = false
	return prev
}

// requestPing asks the write pump to emit a ping control frame. Dropping
// the request when one is already pending is fine: one ping per sweep is
// all the contract needs.
func (c *Client) requestPing() {
	select {
	case c.ping <- struct{}{}:
	default:
	}
}

// hangup runs the hub's disconnect pseudo-command exactly once for this
// client, whatever path tears it down.
func (c *Client) hangup() {
	c.hangupOnce.Do(func() {
		if c.hub.onHangup != nil {
			c.hub.onHangup(c)
		}
	})
}

func (c *Client) setupReadConnection() {
	c.conn.SetPongHandler(func(string) error {
		c.markAlive()
		if c.hub.onPong != nil {
			c.hub.onPong(c)
		}
		return nil
	})
}

// handleReadError logs an appropriate message for the error type and
// reports whether the read loop should stop.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		log.Printf("Message from %s exceeded maximum size of %d bytes", c.addr, c.maxMessageSize)
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		log.Printf("Client %s disconnected: %v", c.addr, err)
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		log.Printf("Client %s connection closed: %v", c.addr, err)
		return true
	}

	log.Printf("WebSocket read error from %s: %v", c.addr, err)
	return true
}

func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		log.Printf("Rate limit exceeded for %s (%d messages per %s); discarding message", c.addr, c.rateBurst, c.rateInterval)
		return false
	}
	return true
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				log.Printf("Error closing connection in readPump: %v", err)
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
			continue
		}

		if !c.checkRateLimit() {
			continue
		}

		if c.hub.onMessage != nil {
			c.hub.onMessage(c, rawMessage)
		}
	}
}

func (c *Client) writePump() {
	defer c.closeConnection()

	for {
		select {
		case message, ok := <-c.send:
			if !c.handleMessage(message, ok) {
				return
			}
		case <-c.ping:
			if !c.writePing() {
				return
			}
		}
	}
}

func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error closing connection in writePump: %v", err)
		}
	}
}

// handleMessage writes one outbound envelope and returns false if the
// connection should be closed.
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("Error setting write deadline for %s: %v", c.addr, err)
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			if !isExpectedCloseError(err) {
				log.Printf("Error writing close message to %s: %v", c.addr, err)
			}
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		log.Printf("Error writing message to %s: %v", c.addr, err)
		return false
	}
	return true
}

// writePing emits the ping control frame requested by the liveness sweep.
func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("Error setting write deadline for ping to %s: %v", c.addr, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		log.Printf("Error writing ping message to %s: %v", c.addr, err)
		return false
	}
	return true
}
