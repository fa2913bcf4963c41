// Package hub coordinates client registration, session binding, liveness
// sweeps, and fan-out delivery for all live WebSocket connections.
package hub

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"
)

// Config carries the transport-level tunables the hub and its clients use.
type Config struct {
	SweepInterval      time.Duration
	MaxMessageSize     int64
	RateBurst          int
	RateRefillInterval time.Duration
}

// Hub is the session registry: it tracks every live connection, the
// Connection->User bindings, and runs the liveness sweep. Handlers reach
// clients exclusively through the Reply and Notify primitives.
type Hub struct {
	cfg        Config
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}

	onMessage func(*Client, []byte)
	onPong    func(*Client)
	onHangup  func(*Client)
}

// New creates a Hub ready to manage connections with the given tunables.
func New(cfg Config) *Hub {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 64 * 1024
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:        cfg,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// SetHandlers registers the single seam between transport and domain
// logic: inbound envelopes, pong control frames, and connection teardown
// all resolve into these callbacks. Must be called before Run.
func (h *Hub) SetHandlers(onMessage func(*Client, []byte), onPong, onHangup func(*Client)) {
	h.onMessage = onMessage
	h.onPong = onPong
	h.onHangup = onHangup
}

// Register hands a new client to the hub's event loop.
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// Run starts the hub's main event loop: registration, unregistration, and
// the periodic liveness sweep. Call in its own goroutine; it runs until
// Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	sweep := time.NewTicker(h.cfg.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mutex.Unlock()
			log.Printf("Client registered from %s. Total clients: %d", client.addr, clientCount)

			if client.conn != nil {
				h.wg.Add(2)
				go func() {
					defer h.wg.Done()
					client.writePump()
				}()
				go func() {
					defer h.wg.Done()
					client.readPump()
				}()
			}

		case client := <-h.unregister:
			client.hangup()
			h.drop(client)

		case <-sweep.C:
			h.sweepLiveness()
		}
	}
}

// drop removes a client from the registry and closes its send channel if it
// is still registered. Safe to call from any teardown path; only the first
// caller closes the channel.
func (h *Hub) drop(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.closed = true
		clientCount := len(h.clients)
		h.mutex.Unlock()
		close(client.send)
		log.Printf("Client unregistered from %s. Total clients: %d", client.addr, clientCount)
	} else {
		h.mutex.Unlock()
	}
}

// sweepLiveness runs one ping/pong cycle: a client whose flag is still down
// from the previous sweep is terminated; everyone else gets the flag
// lowered and a fresh ping to answer before the next sweep.
func (h *Hub) sweepLiveness() {
	for _, client := range h.snapshot() {
		if !client.clearAlive() {
			log.Printf("Client %s failed liveness check; terminating", client.addr)
			h.Terminate(client)
			continue
		}
		client.requestPing()
	}
}

// Terminate force-closes a connection, routing teardown through the same
// disconnect pseudo-command as any other mutation so identity resolution
// stays consistent.
func (h *Hub) Terminate(client *Client) {
	client.hangup()
	h.drop(client)
	if client.conn != nil {
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing terminated connection from %s: %v", client.addr, err)
		}
	}
}

// Bind attaches an authenticated user identity to a connection, making it a
// session.
func (h *Hub) Bind(client *Client, userID string) {
	client.setUser(userID)
	log.Printf("Session bound: %s -> %s", client.addr, userID)
}

// Unbind removes the session binding, leaving the connection tracked but
// unauthenticated.
func (h *Hub) Unbind(client *Client) {
	client.setUser("")
}

func (h *Hub) snapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// Sessions returns every client with a bound user identity.
func (h *Hub) Sessions() []*Client {
	return h.SessionsWhere(func(string) bool { return true })
}

// SessionsWhere returns the bound clients whose user id satisfies pred.
// Handlers call this at each step rather than caching membership, since
// registry state can change between suspension points.
func (h *Hub) SessionsWhere(pred func(userID string) bool) []*Client {
	var sessions []*Client
	for _, client := range h.snapshot() {
		if id, ok := client.UserID(); ok && pred(id) {
			sessions = append(sessions, client)
		}
	}
	return sessions
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeSend: %v", r)
		}
	}()

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// Reply sends one payload to exactly one connection.
func (h *Hub) Reply(client *Client, payload []byte) {
	if !h.safeSend(client, payload) {
		h.removeFailed([]*Client{client})
	}
}

// Notify fans an identical payload out to zero or more connections. It is
// never used for the requester's own terminal reply; that is Reply's job.
func (h *Hub) Notify(clients []*Client, payload []byte) {
	var failed []*Client
	for _, client := range clients {
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}
	h.removeFailed(failed)
}

func (h *Hub) removeFailed(clients []*Client) {
	if len(clients) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clients {
		if _, exists := h.clients[client]; exists {
			delete(h.clients, client)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			log.Printf("Client from %s removed due to full send buffer", client.addr)
		}
	}
	h.mutex.Unlock()

	for _, ch := range channelsToClose {
		close(ch)
	}
}

func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	clients := h.snapshot()
	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error closing client connection from %s: %v", client.addr, err)
				}
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all client
// goroutines to complete, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}

// isExpectedCloseError checks if an error is expected during connection
// closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
