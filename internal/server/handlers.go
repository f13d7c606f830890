// Package server exposes the HTTP surface: WebSocket upgrades, the health
// check, and the built-in test page.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/roomcast/internal/room"
)

// Service bundles the HTTP handlers with their collaborators. It is
// constructed once at startup; nothing here is reached through package
// globals, so tests can stand up isolated services.
type Service struct {
	hub      *Hub
	registry *room.Registry
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewService creates the HTTP service for the given hub and registry.
// allowedOrigins drives the WebSocket origin check.
func NewService(hub *Hub, registry *room.Registry, allowedOrigins []string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	checker := newOriginChecker(allowedOrigins, logger)
	return &Service{
		hub:      hub,
		registry: registry,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checker.check,
		},
	}
}

// WebSocketHandler upgrades the HTTP connection, assigns the connection its
// identity, and registers it with the hub, which launches the pumps.
func (s *Service) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr)
	s.hub.Register(client)
}

type healthResponse struct {
	Status  string     `json:"status"`
	Clients int        `json:"clients"`
	Rooms   room.Stats `json:"registry"`
}

// HealthHandler reports server liveness along with current occupancy.
func (s *Service) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	resp := healthResponse{
		Status:  "ok",
		Clients: s.hub.ClientCount(),
		Rooms:   s.registry.Stats(),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("writing health response", zap.Error(err))
	}
}
