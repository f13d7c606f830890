// Package room provides the Registry, the process-wide owner of room
// membership state. A Registry is constructed once at startup and passed by
// reference into the connection-handling layer; there is no package-level
// instance, so tests can build isolated registries.
package room

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Errors returned by membership operations. Callers translate these into
// protocol error replies; nothing here is fatal.
var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrAlreadyMember = errors.New("already a member of this room")
)

// Registry maps room codes to their join-ordered participants. All methods
// are safe for concurrent use; mutations are atomic with respect to each
// other, so every invariant (non-empty live rooms, unique connection IDs per
// room) holds between any two calls.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string][]*Participant
	logger *zap.Logger
}

// New creates an empty Registry.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		rooms:  make(map[string][]*Participant),
		logger: logger,
	}
}

// CreateRoom allocates a fresh room code, registers an empty room under it,
// and returns the code. The code is re-rolled until it is absent from the
// live registry, so a returned code never collides with an existing room.
// CreateRoom does not add any participants.
func (r *Registry) CreateRoom() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var code string
	for {
		code = generateCode()
		if _, taken := r.rooms[code]; !taken {
			break
		}
	}
	r.rooms[code] = nil

	r.logger.Info("room created", zap.String("room_id", code))
	return code
}

// AddParticipant appends a participant to the room's membership list.
// It returns ErrRoomNotFound if the room does not exist and ErrAlreadyMember
// if the connection is already a member of that room. Membership identity is
// the connection ID: two different connections may share a display name.
func (r *Registry) AddParticipant(roomID, name string, conn Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	participants, exists := r.rooms[roomID]
	if !exists {
		return ErrRoomNotFound
	}

	for _, p := range participants {
		if p.Conn.ID() == conn.ID() {
			return ErrAlreadyMember
		}
	}

	r.rooms[roomID] = append(participants, &Participant{Name: name, Conn: conn})

	r.logger.Info("participant joined",
		zap.String("room_id", roomID),
		zap.String("username", name),
		zap.String("conn_id", conn.ID()),
		zap.Int("occupancy", len(participants)+1),
	)
	return nil
}

// RejoinOrAdd re-associates a connection with an existing named participant,
// or appends a new participant when the name is unknown. When the name
// matches, the stored connection handle is replaced so a reconnecting peer
// keeps its spot without duplicating the entry. Returns which branch was
// taken, or ErrRoomNotFound. Appending is refused with ErrAlreadyMember when
// the connection already backs a differently-named participant, so a
// connection ID is never listed twice in one room.
func (r *Registry) RejoinOrAdd(roomID, name string, conn Conn) (RejoinOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	participants, exists := r.rooms[roomID]
	if !exists {
		return OutcomeAdded, ErrRoomNotFound
	}

	for _, p := range participants {
		if p.Name == name {
			old := p.Conn.ID()
			p.Conn = conn
			r.logger.Info("participant rejoined",
				zap.String("room_id", roomID),
				zap.String("username", name),
				zap.String("old_conn_id", old),
				zap.String("conn_id", conn.ID()),
			)
			return OutcomeUpdated, nil
		}
	}

	for _, p := range participants {
		if p.Conn.ID() == conn.ID() {
			return OutcomeAdded, ErrAlreadyMember
		}
	}

	r.rooms[roomID] = append(participants, &Participant{Name: name, Conn: conn})

	r.logger.Info("participant joined via rejoin",
		zap.String("room_id", roomID),
		zap.String("username", name),
		zap.String("conn_id", conn.ID()),
	)
	return OutcomeAdded, nil
}

// RemoveParticipant removes every participant entry backed by connID, in
// whatever rooms it appears. Emptied rooms are deleted in the same critical
// section, so a live room is never observed empty. Returns one Removal per
// membership taken out; the slice is empty when the connection was not a
// member anywhere.
func (r *Registry) RemoveParticipant(connID string) []Removal {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removals []Removal
	for roomID, participants := range r.rooms {
		for i, p := range participants {
			if p.Conn.ID() != connID {
				continue
			}

			removal := Removal{RoomID: roomID, Name: p.Name}
			remaining := append(participants[:i:i], participants[i+1:]...)
			if len(remaining) == 0 {
				delete(r.rooms, roomID)
				removal.RoomDeleted = true
				r.logger.Info("room deleted",
					zap.String("room_id", roomID),
					zap.String("last_participant", p.Name),
				)
			} else {
				r.rooms[roomID] = remaining
				r.logger.Info("participant removed",
					zap.String("room_id", roomID),
					zap.String("username", p.Name),
					zap.Int("occupancy", len(remaining)),
				)
			}
			removals = append(removals, removal)
			break
		}
	}
	return removals
}

// Broadcast sends payload to every participant of the room whose connection
// is currently open, in join order, skipping excludeID when non-empty.
// Closed or slow peers are silently skipped; their cleanup belongs to the
// connection-lifecycle layer, not the broadcaster. Broadcasting to an
// unknown room is a no-op.
func (r *Registry) Broadcast(roomID string, payload []byte, excludeID string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.rooms[roomID] {
		if excludeID != "" && p.Conn.ID() == excludeID {
			continue
		}
		if !p.Conn.Open() {
			continue
		}
		p.Conn.Send(payload)
	}
}

// RoomExists reports whether a room is registered under the given code.
func (r *Registry) RoomExists(roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.rooms[roomID]
	return exists
}

// FindByConn returns the participant currently backed by the given
// connection ID, along with its room.
func (r *Registry) FindByConn(connID string) (roomID string, p Participant, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, participants := range r.rooms {
		for _, candidate := range participants {
			if candidate.Conn.ID() == connID {
				return id, *candidate, true
			}
		}
	}
	return "", Participant{}, false
}

// ParticipantCount returns the occupancy of a room, or 0 for an unknown room.
func (r *Registry) ParticipantCount(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// ParticipantNames returns the display names of a room's occupants in join
// order.
func (r *Registry) ParticipantNames(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	participants := r.rooms[roomID]
	names := make([]string, 0, len(participants))
	for _, p := range participants {
		names = append(names, p.Name)
	}
	return names
}

// Stats returns a snapshot of current occupancy across all rooms.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, participants := range r.rooms {
		total += len(participants)
	}
	return Stats{Rooms: len(r.rooms), Participants: total}
}
