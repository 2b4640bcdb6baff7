package transport

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/btasarimambalaj-afk/adminara-sub000/internal/room"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	sendBuffer = 32
)

// client is one live WebSocket connection.
type client struct {
	id   string
	role room.Role
	conn *websocket.Conn
	hub  *Hub

	// send queues outbound envelopes for the write pump. Closed by the hub
	// when the client is unregistered; the hub only writes to it while the
	// client is still registered, under the hub lock.
	send chan room.Event
}

// inboundEnvelope is the wire shape of client messages.
type inboundEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// readPump consumes inbound frames until the connection dies, dispatching
// each event to the hub. Malformed frames are dropped and logged; the
// connection continues.
func (c *client) readPump() {
	defer c.hub.unregister(c)
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read error", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}
		var envelope inboundEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Event == "" {
			c.hub.logger.Warn("malformed frame dropped", zap.String("conn_id", c.id))
			continue
		}
		c.hub.dispatch(c, envelope)
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue hands an event to the write pump without blocking the caller. A
// full queue means the client is too slow; the event is dropped. Only the
// hub calls this, while holding its lock with the client still registered.
func (c *client) enqueue(event room.Event) {
	select {
	case c.send <- event:
	default:
		c.hub.logger.Warn("send queue full, dropping event",
			zap.String("conn_id", c.id),
			zap.String("event", event.Event))
	}
}
