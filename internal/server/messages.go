// Package server defines the wire format exchanged with clients, a two-field
// envelope carrying a messageType discriminator and a kind-specific payload.
package server

import (
	"encoding/json"
	"fmt"
	"time"
)

// Inbound message kinds accepted from clients.
const (
	KindCreateRoom = "createRoom"
	KindJoin       = "join"
	KindChat       = "chat"
	KindRejoin     = "rejoin"
)

// Outbound message kinds sent to clients.
const (
	KindConnection = "connection"
	KindJoined     = "joined"
	KindRejoined   = "rejoined"
	KindError      = "error"
)

// Envelope is the top-level shape of every message in both directions.
// The payload is decoded a second time into the kind-specific struct, so a
// field that belongs to a different kind can never leak into a handler.
type Envelope struct {
	MessageType string          `json:"messageType"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// CreateRoomPayload is the inbound payload for createRoom. The username is
// optional: without one the room is created unoccupied.
type CreateRoomPayload struct {
	Username string `json:"username,omitempty"`
}

// JoinPayload is the inbound payload for join.
type JoinPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// ChatPayload is the inbound payload for chat.
type ChatPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// RejoinPayload is the inbound payload for rejoin.
type RejoinPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

type connectionPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username,omitempty"`
}

type joinedPayload struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

type rejoinedPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

type chatDeliveryPayload struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// timestampLayout renders server-assigned timestamps as ISO-8601 with
// millisecond precision in UTC.
const timestampLayout = "2006-01-02T15:04:05.000Z"

func marshalEnvelope(kind string, payload any) []byte {
	raw, err := json.Marshal(payload)
	if err != nil {
		// All outbound payload types marshal cleanly; this is unreachable
		// unless a payload type gains an unmarshalable field.
		panic(fmt.Sprintf("marshalling %s payload: %v", kind, err))
	}
	out, err := json.Marshal(Envelope{MessageType: kind, Payload: raw})
	if err != nil {
		panic(fmt.Sprintf("marshalling %s envelope: %v", kind, err))
	}
	return out
}

// connectionMessage acknowledges room creation back to the requester.
func connectionMessage(roomID, username string) []byte {
	return marshalEnvelope(KindConnection, connectionPayload{RoomID: roomID, Username: username})
}

// joinedMessage acknowledges a successful join back to the joiner.
func joinedMessage(roomID string) []byte {
	return marshalEnvelope(KindJoined, joinedPayload{
		RoomID:  roomID,
		Message: fmt.Sprintf("Successfully joined room %s", roomID),
	})
}

// rejoinedMessage acknowledges a successful rejoin back to the rejoiner.
func rejoinedMessage(roomID, username string) []byte {
	return marshalEnvelope(KindRejoined, rejoinedPayload{RoomID: roomID, Username: username})
}

// chatMessage wraps broadcast text with the server-assigned timestamp. The
// timestamp is captured once per logical event so every recipient sees the
// same value.
func chatMessage(text string, at time.Time) []byte {
	return marshalEnvelope(KindChat, chatDeliveryPayload{
		Message:   text,
		Timestamp: at.UTC().Format(timestampLayout),
	})
}

// errorMessage wraps a human-readable failure description.
func errorMessage(text string) []byte {
	return marshalEnvelope(KindError, errorPayload{Message: text})
}
