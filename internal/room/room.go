// Package room implements the in-memory registry that maps room codes to
// their connected participants and performs room-scoped broadcasts.
package room

// Conn is the send-side view of one accepted connection. The registry never
// closes a connection or writes framing bytes; it only pushes payloads and
// checks whether the peer is still sendable. Identity is the stable ID
// assigned at accept time, not handle equality, so a reconnect can swap the
// underlying socket without ambiguity.
type Conn interface {
	// ID returns the stable identifier assigned when the connection was accepted.
	ID() string
	// Send queues a payload for delivery. It reports false when the payload
	// was dropped (slow or closed peer); delivery is best effort.
	Send(payload []byte) bool
	// Open reports whether the connection is still able to receive payloads.
	Open() bool
}

// Participant is one named occupant of a room, backed by one connection at a
// time. The Conn handle is replaced in place on rejoin; the display name may
// change with it.
type Participant struct {
	Name string
	Conn Conn
}

// RejoinOutcome reports which branch RejoinOrAdd took.
type RejoinOutcome int

const (
	// OutcomeAdded means no participant with the name existed, so a new one
	// was appended.
	OutcomeAdded RejoinOutcome = iota
	// OutcomeUpdated means an existing participant had its connection handle
	// replaced.
	OutcomeUpdated
)

// Removal describes what RemoveParticipant took out of the registry so the
// caller can send a farewell broadcast.
type Removal struct {
	RoomID string
	Name   string
	// RoomDeleted is true when the departing participant was the last one and
	// the room was deleted with them.
	RoomDeleted bool
}

// Stats is a point-in-time snapshot of registry occupancy.
type Stats struct {
	Rooms        int `json:"rooms"`
	Participants int `json:"participants"`
}
