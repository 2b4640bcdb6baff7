// Package transport carries room events over WebSocket connections. The hub
// owns connection identity, the total connection ceiling, and the dispatch
// of inbound envelopes to the room coordinator; it implements room.Sender
// for the outbound direction.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/btasarimambalaj-afk/adminara-sub000/internal/room"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Coordinator is the subset of the room coordinator the hub drives.
type Coordinator interface {
	AdminJoin(conn *room.Connection) error
	CustomerJoin(conn *room.Connection) error
	Disconnect(id string)
	CallEnd(id string)
	Relay(ctx context.Context, fromID, eventType string, payload json.RawMessage) error
}

// Hub tracks live connections and routes events between them and the room.
type Hub struct {
	coordinator Coordinator
	logger      *zap.Logger
	maxConns    int

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

// NewHub constructs the hub with the given connection ceiling.
func NewHub(coordinator Coordinator, maxConns int, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		coordinator: coordinator,
		logger:      logger,
		maxConns:    maxConns,
		clients:     make(map[string]*client),
	}
}

// Send implements room.Sender. Events for unknown connections are dropped.
func (h *Hub) Send(connID string, event room.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.clients[connID]; ok {
		c.enqueue(event)
	}
}

// ConnectionCount reports the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and runs the connection until it closes.
// role must be validated by the caller (the admin role requires a session).
// Exceeding the connection ceiling rejects the attempt before any room
// logic runs.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request, role room.Role, displayName string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		role: role,
		conn: conn,
		hub:  h,
		send: make(chan room.Event, sendBuffer),
	}

	if !h.register(c) {
		h.logger.Warn("connection ceiling reached", zap.Int("max", h.maxConns))
		_ = conn.WriteJSON(room.NewEvent("capacity", map[string]string{"error": "too many connections"}))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "capacity"))
		_ = conn.Close()
		return
	}

	go c.writePump()

	member := &room.Connection{
		ID:          c.id,
		Role:        role,
		DisplayName: displayName,
		JoinedAt:    time.Now(),
	}
	var joinErr error
	if role == room.RoleAdmin {
		joinErr = h.coordinator.AdminJoin(member)
	} else {
		joinErr = h.coordinator.CustomerJoin(member)
	}
	if joinErr != nil {
		h.Send(c.id, joinNotice(joinErr))
		h.unregister(c)
		return
	}

	c.readPump()
}

func joinNotice(err error) room.Event {
	switch {
	case errors.Is(err, room.ErrSessionActive):
		return room.NewEvent(room.EventSessionActive, map[string]string{"error": "admin session already active"})
	case errors.Is(err, room.ErrChannelBusy):
		return room.NewEvent(room.EventChannelBusy, map[string]string{"error": "channel busy"})
	default:
		return room.NewEvent(room.EventServerShutdown, nil)
	}
}

// register adds c unless the ceiling is reached or shutdown has begun.
func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || len(h.clients) >= h.maxConns {
		return false
	}
	h.clients[c.id] = c
	return true
}

// unregister drops c from the hub and the room. Safe to call twice.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	h.mu.Unlock()

	h.coordinator.Disconnect(c.id)
}

// dispatch routes one inbound envelope to the coordinator.
func (h *Hub) dispatch(c *client, envelope inboundEnvelope) {
	switch envelope.Event {
	case "call-end":
		h.coordinator.CallEnd(c.id)
	case room.EventDescription, room.EventICECandidate, room.EventChatMessage:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := h.coordinator.Relay(ctx, c.id, envelope.Event, envelope.Data)
		cancel()
		if err == nil {
			return
		}
		var limited *room.LimitedError
		var invalid *room.ValidationError
		switch {
		case errors.As(err, &limited):
			h.Send(c.id, room.NewEvent(room.EventRateLimited, map[string]any{
				"event":      limited.EventType,
				"retryAfter": int(limited.RetryAfter.Seconds() + 0.999),
			}))
		case errors.As(err, &invalid):
			h.logger.Warn("invalid signaling payload dropped",
				zap.String("conn_id", c.id),
				zap.String("event", envelope.Event),
				zap.String("detail", invalid.Detail))
		default:
			h.logger.Error("signal relay failed",
				zap.String("conn_id", c.id),
				zap.String("event", envelope.Event),
				zap.Error(err))
		}
	default:
		h.logger.Warn("unknown event dropped",
			zap.String("conn_id", c.id),
			zap.String("event", envelope.Event))
	}
}

// Shutdown stops accepting connections, lets the coordinator notify all
// parties, then closes every socket.
func (h *Hub) Shutdown(ctx context.Context, coordinatorShutdown func(context.Context)) {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	if coordinatorShutdown != nil {
		coordinatorShutdown(ctx)
	}

	h.mu.Lock()
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
	h.mu.Unlock()
}
