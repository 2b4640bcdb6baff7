package transport_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/btasarimambalaj-afk/adminara-sub000/internal/ratelimit"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/room"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/store"
	"github.com/btasarimambalaj-afk/adminara-sub000/internal/transport"
)

type testEnv struct {
	hub         *transport.Hub
	coordinator *room.Coordinator
	server      *httptest.Server
}

// hubSender defers to the hub once it exists, mirroring the wiring in main.
type hubSender struct {
	hub *transport.Hub
}

func (s *hubSender) Send(connID string, event room.Event) {
	s.hub.Send(connID, event)
}

func newTestEnv(t *testing.T, maxConns int) *testEnv {
	t.Helper()
	sender := &hubSender{}
	limiter := ratelimit.New(store.NewMemoryStore(), zap.NewNop())
	coordinator := room.New(sender, limiter, nil, room.Options{WaitTimeout: time.Hour}, zap.NewNop())
	hub := transport.NewHub(coordinator, maxConns, zap.NewNop())
	sender.hub = hub

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		role := room.RoleCustomer
		if r.URL.Query().Get("role") == "admin" {
			role = room.RoleAdmin
		}
		hub.HandleWS(w, r, role, r.URL.Query().Get("name"))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &testEnv{hub: hub, coordinator: coordinator, server: server}
}

func (e *testEnv) dial(t *testing.T, role string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?role=" + role
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) room.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event room.Event
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

// readUntil drains events until name arrives or the deadline hits.
func readUntil(t *testing.T, conn *websocket.Conn, name string) room.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		event := readEvent(t, conn)
		if event.Event == name {
			return event
		}
	}
	t.Fatalf("event %q never arrived", name)
	return room.Event{}
}

func TestPairingOverWebsocket(t *testing.T) {
	env := newTestEnv(t, 10)

	adminConn := env.dial(t, "admin")
	readUntil(t, adminConn, room.EventRoomState)
	require.Equal(t, room.StatusReady, env.coordinator.Status())

	customerConn := env.dial(t, "customer")
	readUntil(t, customerConn, room.EventPeerJoined)
	readUntil(t, adminConn, room.EventPeerJoined)

	require.Eventually(t, func() bool {
		return env.coordinator.Status() == room.StatusBusy
	}, time.Second, 10*time.Millisecond)
}

func TestSignalRelayOverWebsocket(t *testing.T) {
	env := newTestEnv(t, 10)

	adminConn := env.dial(t, "admin")
	customerConn := env.dial(t, "customer")
	readUntil(t, adminConn, room.EventPeerJoined)
	readUntil(t, customerConn, room.EventPeerJoined)

	payload := map[string]any{"type": "offer", "sdp": "v=0"}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, adminConn.WriteJSON(room.Event{Event: room.EventDescription, Data: raw}))

	event := readUntil(t, customerConn, room.EventDescription)
	var received map[string]any
	require.NoError(t, json.Unmarshal(event.Data, &received))
	require.Equal(t, "offer", received["type"])
}

func TestSecondCustomerGetsBusyNotice(t *testing.T) {
	env := newTestEnv(t, 10)

	first := env.dial(t, "customer")
	readUntil(t, first, room.EventRoomState)

	second := env.dial(t, "customer")
	event := readUntil(t, second, room.EventChannelBusy)
	require.Equal(t, room.EventChannelBusy, event.Event)
}

func TestConnectionCeiling(t *testing.T) {
	env := newTestEnv(t, 2)

	env.dial(t, "admin")
	env.dial(t, "customer")
	require.Eventually(t, func() bool {
		return env.hub.ConnectionCount() == 2
	}, time.Second, 10*time.Millisecond)

	extra := env.dial(t, "customer")
	event := readEvent(t, extra)
	require.Equal(t, "capacity", event.Event)
}

func TestDisconnectReachesCoordinator(t *testing.T) {
	env := newTestEnv(t, 10)

	adminConn := env.dial(t, "admin")
	customerConn := env.dial(t, "customer")
	readUntil(t, customerConn, room.EventPeerJoined)

	require.NoError(t, adminConn.Close())
	readUntil(t, customerConn, room.EventPeerDisconnected)
}
