// Package server implements the relay protocol, validating each inbound
// envelope against the room registry and answering with direct replies and
// room broadcasts.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/roomcast/internal/room"
)

// Relay decodes inbound messages and drives the room registry. It holds no
// membership state of its own; everything lives in the registry, so a Relay
// is safe to share across all connections.
type Relay struct {
	registry *room.Registry
	logger   *zap.Logger
	grace    time.Duration
}

// NewRelay creates a Relay backed by the given registry. The grace period is
// how long a disconnected participant's membership is retained before
// eviction.
func NewRelay(registry *room.Registry, logger *zap.Logger, grace time.Duration) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		registry: registry,
		logger:   logger,
		grace:    grace,
	}
}

// HandleMessage processes one raw inbound frame from sender. Every failure
// mode ends in an error reply to the sender; nothing here closes the
// connection or propagates beyond it.
func (r *Relay) HandleMessage(sender room.Conn, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		r.logger.Debug("undecodable message",
			zap.String("conn_id", sender.ID()),
			zap.Error(err),
		)
		sender.Send(errorMessage("Invalid format"))
		return
	}

	switch env.MessageType {
	case KindCreateRoom:
		r.handleCreateRoom(sender, env.Payload)
	case KindJoin:
		r.handleJoin(sender, env.Payload)
	case KindChat:
		r.handleChat(sender, env.Payload)
	case KindRejoin:
		r.handleRejoin(sender, env.Payload)
	default:
		r.logger.Debug("unknown message type",
			zap.String("conn_id", sender.ID()),
			zap.String("message_type", env.MessageType),
		)
		sender.Send(errorMessage("Unknown message type"))
	}
}

func (r *Relay) handleCreateRoom(sender room.Conn, rawPayload json.RawMessage) {
	var payload CreateRoomPayload
	if len(rawPayload) > 0 {
		if err := json.Unmarshal(rawPayload, &payload); err != nil {
			sender.Send(errorMessage("Invalid format"))
			return
		}
	}

	roomID := r.registry.CreateRoom()

	if payload.Username != "" {
		// A fresh collision-checked room cannot already contain the creator.
		if err := r.registry.AddParticipant(roomID, payload.Username, sender); err != nil {
			r.logger.Error("adding creator to fresh room",
				zap.String("room_id", roomID),
				zap.Error(err),
			)
		}
	}

	sender.Send(connectionMessage(roomID, payload.Username))
}

func (r *Relay) handleJoin(sender room.Conn, rawPayload json.RawMessage) {
	var payload JoinPayload
	if len(rawPayload) > 0 {
		if err := json.Unmarshal(rawPayload, &payload); err != nil {
			sender.Send(errorMessage("Invalid format"))
			return
		}
	}

	if payload.RoomID == "" || payload.Username == "" {
		sender.Send(errorMessage("Missing roomId or username"))
		return
	}

	roomID := room.NormalizeCode(payload.RoomID)
	at := time.Now()

	err := r.registry.AddParticipant(roomID, payload.Username, sender)
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		sender.Send(errorMessage(fmt.Sprintf("Room %s does not exist", roomID)))
		return
	case errors.Is(err, room.ErrAlreadyMember):
		sender.Send(errorMessage("Already in this room"))
		return
	case err != nil:
		sender.Send(errorMessage("Unable to join room"))
		return
	}

	sender.Send(joinedMessage(roomID))
	r.registry.Broadcast(roomID, chatMessage(payload.Username+" joined the room", at), sender.ID())
}

func (r *Relay) handleChat(sender room.Conn, rawPayload json.RawMessage) {
	var payload ChatPayload
	if len(rawPayload) > 0 {
		if err := json.Unmarshal(rawPayload, &payload); err != nil {
			sender.Send(errorMessage("Invalid format"))
			return
		}
	}

	if payload.RoomID == "" || payload.Username == "" || payload.Message == "" {
		sender.Send(errorMessage("Missing required chat data"))
		return
	}

	roomID := room.NormalizeCode(payload.RoomID)
	if !r.registry.RoomExists(roomID) {
		sender.Send(errorMessage(fmt.Sprintf("Room %s does not exist", roomID)))
		return
	}

	// The sender is included: chat is delivered uniformly to the whole room
	// with one shared timestamp.
	at := time.Now()
	r.registry.Broadcast(roomID, chatMessage(payload.Username+": "+payload.Message, at), "")
}

func (r *Relay) handleRejoin(sender room.Conn, rawPayload json.RawMessage) {
	var payload RejoinPayload
	if len(rawPayload) > 0 {
		if err := json.Unmarshal(rawPayload, &payload); err != nil {
			sender.Send(errorMessage("Invalid format"))
			return
		}
	}

	if payload.RoomID == "" || payload.Username == "" {
		sender.Send(errorMessage("Missing username or roomId for rejoin"))
		return
	}

	roomID := room.NormalizeCode(payload.RoomID)
	at := time.Now()

	outcome, err := r.registry.RejoinOrAdd(roomID, payload.Username, sender)
	switch {
	case errors.Is(err, room.ErrAlreadyMember):
		sender.Send(errorMessage("Already in this room"))
		return
	case err != nil:
		sender.Send(errorMessage("Room not found"))
		return
	}

	r.logger.Info("rejoin handled",
		zap.String("room_id", roomID),
		zap.String("username", payload.Username),
		zap.Bool("replaced_connection", outcome == room.OutcomeUpdated),
	)

	sender.Send(rejoinedMessage(roomID, payload.Username))
	r.registry.Broadcast(roomID, chatMessage(payload.Username+" rejoined the room", at), "")
}
