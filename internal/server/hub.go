// Package server coordinates client registration, disconnect handling, and
// graceful shutdown for the roomcast WebSocket system via the Hub type.
package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/roomcast/internal/config"
)

// Hub tracks all live WebSocket connections. It owns no room state; rooms
// and membership live in the registry behind the Relay. The hub's job is the
// connection lifecycle: launch the pump goroutines on register, tear down
// the send queue on unregister, and hand the disconnect to the relay so a
// grace-period eviction gets scheduled.
type Hub struct {
	relay      *Relay
	cfg        config.RelayConfig
	logger     *zap.Logger
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub ready to manage connections for the given relay.
func NewHub(relay *Relay, cfg config.RelayConfig, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		relay:      relay,
		cfg:        cfg,
		logger:     logger,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Register hands a new client to the hub, which launches its pump goroutines.
// A client arriving during shutdown is closed instead of registered.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
		if client != nil && client.conn != nil {
			_ = client.conn.Close()
		}
	}
}

func (h *Hub) relayConfig() config.RelayConfig {
	return h.cfg
}

// ClientCount returns the number of currently registered connections.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Run starts the hub's event loop, handling client registration and
// unregistration. It should be called in its own goroutine; it returns only
// on shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.logger.Warn("nil client registration, skipping")
				continue
			}

			h.mutex.Lock()
			h.clients[client.id] = client
			count := len(h.clients)
			h.mutex.Unlock()

			h.logger.Info("client registered",
				zap.String("conn_id", client.id),
				zap.String("addr", client.addr),
				zap.Int("total_clients", count),
			)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.dropClient(client)
		}
	}
}

// dropClient removes a disconnected client and schedules its grace-period
// eviction from whatever room it occupied. The participant entry itself is
// left alone so a rejoin can reclaim it before the eviction fires.
func (h *Hub) dropClient(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client.id]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client.id)
	client.markClosed()
	count := len(h.clients)
	h.mutex.Unlock()

	// Close the queue after releasing the lock; Send recovers from the race.
	close(client.send)

	h.logger.Info("client unregistered",
		zap.String("conn_id", client.id),
		zap.String("addr", client.addr),
		zap.Int("total_clients", count),
	)

	h.relay.ScheduleEviction(client.id)
}

// shutdownClients tears down every live connection during hub shutdown.
// Closing the send queues lets the write pumps exit promptly instead of
// waiting out the next ping tick.
func (h *Hub) shutdownClients() {
	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[string]*Client)
	h.mutex.Unlock()

	for _, client := range clients {
		client.markClosed()
		close(client.send)
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.logger.Debug("closing client connection",
				zap.String("conn_id", client.id),
				zap.Error(err),
			)
		}
	}

	h.logger.Info("closed client connections", zap.Int("count", len(clients)))
}

// Shutdown stops the hub and waits for all pump goroutines to finish, or
// until the timeout elapses.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("hub shutting down")

	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		h.logger.Info("hub shutdown complete")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub shutdown timed out, goroutines may still be running")
		return context.DeadlineExceeded
	}
}
