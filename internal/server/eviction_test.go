package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomcast/internal/room"
)

func setupOccupiedRoom(t *testing.T, relay *Relay) (roomID string, alice, bob *fakeConn) {
	t.Helper()
	alice = newFakeConn("c-alice")
	send(relay, alice, KindCreateRoom, map[string]any{"username": "alice"})
	_, created := lastMessage(t, alice)
	roomID = created["roomId"].(string)

	bob = newFakeConn("c-bob")
	send(relay, bob, KindJoin, map[string]any{"roomId": roomID, "username": "bob"})
	return roomID, alice, bob
}

func TestEvictRemovesClosedParticipant(t *testing.T) {
	relay, registry := newTestRelay(t)
	roomID, alice, bob := setupOccupiedRoom(t, relay)

	bob.close()
	relay.evict("c-bob")

	assert.Equal(t, 1, registry.ParticipantCount(roomID))
	_, _, ok := registry.FindByConn("c-bob")
	assert.False(t, ok)

	kind, payload := lastMessage(t, alice)
	assert.Equal(t, KindChat, kind)
	assert.Equal(t, "bob left the room", payload["message"])
}

func TestEvictSkipsOpenConnection(t *testing.T) {
	relay, registry := newTestRelay(t)
	roomID, _, _ := setupOccupiedRoom(t, relay)

	relay.evict("c-bob")

	assert.Equal(t, 2, registry.ParticipantCount(roomID))
}

func TestEvictIsNoOpAfterRejoin(t *testing.T) {
	relay, registry := newTestRelay(t)
	roomID, _, bob := setupOccupiedRoom(t, relay)

	// Bob's first connection dies; he rejoins on a fresh one before the
	// grace period elapses.
	bob.close()
	fresh := newFakeConn("c-bob-2")
	send(relay, fresh, KindRejoin, map[string]any{"roomId": roomID, "username": "bob"})

	relay.evict("c-bob")

	// The current occupant is untouched; the stale eviction found nothing.
	assert.Equal(t, 2, registry.ParticipantCount(roomID))
	_, p, ok := registry.FindByConn("c-bob-2")
	require.True(t, ok)
	assert.Equal(t, "bob", p.Name)
}

func TestEvictLastParticipantDeletesRoom(t *testing.T) {
	relay, registry := newTestRelay(t)
	conn := newFakeConn("c1")
	send(relay, conn, KindCreateRoom, map[string]any{"username": "alice"})
	_, created := lastMessage(t, conn)
	roomID := created["roomId"].(string)

	conn.close()
	relay.evict("c1")

	assert.False(t, registry.RoomExists(roomID))
	assert.Equal(t, room.Stats{}, registry.Stats())
}

func TestEvictClearsEveryRoomTheConnectionOccupies(t *testing.T) {
	relay, registry := newTestRelay(t)
	roomA, alice, bob := setupOccupiedRoom(t, relay)

	// The same connection joins a second room before disconnecting.
	carol := newFakeConn("c-carol")
	send(relay, carol, KindCreateRoom, map[string]any{"username": "carol"})
	_, created := lastMessage(t, carol)
	roomB := created["roomId"].(string)
	send(relay, bob, KindJoin, map[string]any{"roomId": roomB, "username": "bob"})

	bob.close()
	relay.evict("c-bob")

	// One fired timer clears both memberships; no ghost entry survives.
	assert.Equal(t, 1, registry.ParticipantCount(roomA))
	assert.Equal(t, 1, registry.ParticipantCount(roomB))
	_, _, ok := registry.FindByConn("c-bob")
	assert.False(t, ok)

	kind, payload := lastMessage(t, alice)
	assert.Equal(t, KindChat, kind)
	assert.Equal(t, "bob left the room", payload["message"])

	kind, payload = lastMessage(t, carol)
	assert.Equal(t, KindChat, kind)
	assert.Equal(t, "bob left the room", payload["message"])
}

func TestEvictUnknownConnectionIsNoOp(t *testing.T) {
	relay, registry := newTestRelay(t)
	_, _, _ = setupOccupiedRoom(t, relay)

	assert.NotPanics(t, func() {
		relay.evict("never-seen")
	})
	assert.Equal(t, 2, registry.Stats().Participants)
}

func TestScheduleEvictionFiresAfterGracePeriod(t *testing.T) {
	registry := room.New(nil)
	relay := NewRelay(registry, nil, 20*time.Millisecond)

	alice := newFakeConn("c-alice")
	send(relay, alice, KindCreateRoom, map[string]any{"username": "alice"})
	_, created := lastMessage(t, alice)
	roomID := created["roomId"].(string)

	bob := newFakeConn("c-bob")
	send(relay, bob, KindJoin, map[string]any{"roomId": roomID, "username": "bob"})

	bob.close()
	relay.ScheduleEviction("c-bob")

	// Still a member inside the grace period.
	assert.Equal(t, 2, registry.ParticipantCount(roomID))

	assert.Eventually(t, func() bool {
		return registry.ParticipantCount(roomID) == 1
	}, time.Second, 5*time.Millisecond)

	// The leave broadcast lands right after the removal.
	assert.Eventually(t, func() bool {
		msgs := alice.messages()
		if len(msgs) == 0 {
			return false
		}
		var env Envelope
		if err := json.Unmarshal(msgs[len(msgs)-1], &env); err != nil {
			return false
		}
		var payload map[string]string
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return false
		}
		return env.MessageType == KindChat && payload["message"] == "bob left the room"
	}, time.Second, 5*time.Millisecond)
}

func TestTimestampFormat(t *testing.T) {
	raw := chatMessage("alice: hi", time.Date(2025, 3, 9, 12, 30, 45, 123_000_000, time.UTC))

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	var payload map[string]string
	require.NoError(t, json.Unmarshal(env.Payload, &payload))

	assert.Equal(t, "2025-03-09T12:30:45.123Z", payload["timestamp"])
	_, err := time.Parse(timestampLayout, payload["timestamp"])
	assert.NoError(t, err)
}
