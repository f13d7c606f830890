package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Tyrowin/roomcast/internal/config"
	"github.com/Tyrowin/roomcast/internal/room"
)

func startTestService(t *testing.T, grace time.Duration) (*httptest.Server, *room.Registry, *Hub) {
	t.Helper()

	registry := room.New(nil)
	relay := NewRelay(registry, nil, grace)
	hub := NewHub(relay, config.RelayConfig{
		MaxMessageSize:          512,
		EvictionGracePeriod:     grace,
		RateLimitBurst:          100,
		RateLimitRefillInterval: time.Second,
	}, zap.NewNop())
	go hub.Run()

	svc := NewService(hub, registry, []string{"*"}, nil)
	ts := httptest.NewServer(svc.Routes())

	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(time.Second)
	})
	return ts, registry, hub
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	headers := http.Header{}
	headers.Set("Origin", "http://localhost:8080")

	conn, resp, err := websocket.DefaultDialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func writeEnvelope(t *testing.T, conn *websocket.Conn, kind string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Envelope{MessageType: kind, Payload: raw}))
}

func readEnvelope(t *testing.T, conn *websocket.Conn) (string, map[string]any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))

	payload := map[string]any{}
	if len(env.Payload) > 0 {
		require.NoError(t, json.Unmarshal(env.Payload, &payload))
	}
	return env.MessageType, payload
}

func TestHealthEndpoint(t *testing.T) {
	ts, _, _ := startTestService(t, time.Second)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
}

func TestWebSocketRejectsNonGET(t *testing.T) {
	ts, _, _ := startTestService(t, time.Second)

	resp, err := http.Post(ts.URL+"/ws", "text/plain", http.NoBody)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

// TestRelayScenario walks the full protocol over real connections: create a
// room, have two users join, chat, and probe the failure replies.
func TestRelayScenario(t *testing.T) {
	ts, registry, _ := startTestService(t, time.Second)

	alice := dialWS(t, ts)
	writeEnvelope(t, alice, KindCreateRoom, map[string]any{})
	kind, payload := readEnvelope(t, alice)
	require.Equal(t, KindConnection, kind)
	roomID := payload["roomId"].(string)
	require.Len(t, roomID, 6)
	assert.Equal(t, 0, registry.ParticipantCount(roomID))

	writeEnvelope(t, alice, KindJoin, map[string]any{"roomId": roomID, "username": "alice"})
	kind, payload = readEnvelope(t, alice)
	require.Equal(t, KindJoined, kind)
	assert.Equal(t, roomID, payload["roomId"])

	bob := dialWS(t, ts)
	writeEnvelope(t, bob, KindJoin, map[string]any{"roomId": roomID, "username": "bob"})
	kind, _ = readEnvelope(t, bob)
	require.Equal(t, KindJoined, kind)

	kind, payload = readEnvelope(t, alice)
	require.Equal(t, KindChat, kind)
	assert.Equal(t, "bob joined the room", payload["message"])

	writeEnvelope(t, alice, KindChat, map[string]any{"roomId": roomID, "username": "alice", "message": "hi"})
	kindA, payloadA := readEnvelope(t, alice)
	kindB, payloadB := readEnvelope(t, bob)
	require.Equal(t, KindChat, kindA)
	require.Equal(t, KindChat, kindB)
	assert.Equal(t, "alice: hi", payloadA["message"])
	assert.Equal(t, "alice: hi", payloadB["message"])
	assert.Equal(t, payloadA["timestamp"], payloadB["timestamp"])

	carol := dialWS(t, ts)
	writeEnvelope(t, carol, KindJoin, map[string]any{"roomId": "ZZZZZZ", "username": "carol"})
	kind, payload = readEnvelope(t, carol)
	require.Equal(t, KindError, kind)
	assert.Equal(t, "Room ZZZZZZ does not exist", payload["message"])
}

func TestDisconnectEvictsAfterGrace(t *testing.T) {
	ts, registry, _ := startTestService(t, 100*time.Millisecond)

	alice := dialWS(t, ts)
	writeEnvelope(t, alice, KindCreateRoom, map[string]any{"username": "alice"})
	_, payload := readEnvelope(t, alice)
	roomID := payload["roomId"].(string)

	bob := dialWS(t, ts)
	writeEnvelope(t, bob, KindJoin, map[string]any{"roomId": roomID, "username": "bob"})
	_, _ = readEnvelope(t, bob)
	_, _ = readEnvelope(t, alice) // join notice

	require.NoError(t, bob.Close())

	// Membership survives the disconnect until the grace period elapses.
	assert.Eventually(t, func() bool {
		return registry.ParticipantCount(roomID) == 1
	}, 2*time.Second, 10*time.Millisecond)

	kind, payload := readEnvelope(t, alice)
	assert.Equal(t, KindChat, kind)
	assert.Equal(t, "bob left the room", payload["message"])
}

func TestRejoinWithinGraceKeepsMembership(t *testing.T) {
	ts, registry, _ := startTestService(t, 300*time.Millisecond)

	alice := dialWS(t, ts)
	writeEnvelope(t, alice, KindCreateRoom, map[string]any{"username": "alice"})
	_, payload := readEnvelope(t, alice)
	roomID := payload["roomId"].(string)

	bob := dialWS(t, ts)
	writeEnvelope(t, bob, KindJoin, map[string]any{"roomId": roomID, "username": "bob"})
	_, _ = readEnvelope(t, bob)
	_, _ = readEnvelope(t, alice) // join notice

	require.NoError(t, bob.Close())

	// Bob comes back on a fresh connection before the grace period elapses.
	bob2 := dialWS(t, ts)
	writeEnvelope(t, bob2, KindRejoin, map[string]any{"roomId": roomID, "username": "bob"})
	kind, _ := readEnvelope(t, bob2)
	require.Equal(t, KindRejoined, kind)

	kind, payload = readEnvelope(t, alice)
	require.Equal(t, KindChat, kind)
	assert.Equal(t, "bob rejoined the room", payload["message"])

	// Wait out the stale eviction; the current occupant must survive it.
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, 2, registry.ParticipantCount(roomID))
}

func TestUpgradeBlockedForDisallowedOrigin(t *testing.T) {
	registry := room.New(nil)
	relay := NewRelay(registry, nil, time.Second)
	hub := NewHub(relay, config.RelayConfig{
		MaxMessageSize:          512,
		RateLimitBurst:          5,
		RateLimitRefillInterval: time.Second,
	}, zap.NewNop())
	go hub.Run()
	svc := NewService(hub, registry, []string{"http://localhost:8080"}, nil)
	ts := httptest.NewServer(svc.Routes())
	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(time.Second)
	})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	headers := http.Header{}
	headers.Set("Origin", "http://evil.example")

	conn, resp, err := websocket.DefaultDialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
	assert.Error(t, err)
}
