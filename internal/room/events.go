package room

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the room's pairing state, derived purely from slot occupancy:
// BUSY when both slots are filled, READY when only the admin waits,
// AVAILABLE otherwise.
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusReady     Status = "READY"
	StatusBusy      Status = "BUSY"
)

// Role identifies which side of the support channel a connection is.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

// Connection is a live client channel as the coordinator sees it.
type Connection struct {
	ID          string
	Role        Role
	DisplayName string
	JoinedAt    time.Time
}

// Inbound signaling event types, relayed verbatim between the two parties.
const (
	EventDescription  = "description"
	EventICECandidate = "ice-candidate"
	EventChatMessage  = "chat-message"
)

// Outbound notice event types.
const (
	EventRoomState        = "room-state"
	EventPeerJoined       = "peer-joined"
	EventPeerDisconnected = "peer-disconnected"
	EventWaitTimeout      = "wait-timeout"
	EventCallEnded        = "call-ended"
	EventRateLimited      = "rate-limited"
	EventServerShutdown   = "server-shutdown"
	EventSessionActive    = "session-active"
	EventChannelBusy      = "channel-busy"
)

// Event is the envelope carried over the transport.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEvent marshals data into an envelope. Marshal failures cannot happen
// for the fixed notice payloads used here, so they only surface as an
// empty data field.
func NewEvent(name string, data any) Event {
	if data == nil {
		return Event{Event: name}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{Event: name}
	}
	return Event{Event: name, Data: raw}
}

// Sender delivers events to a specific connection. Delivery is best effort;
// the transport drops events for connections that are already gone.
type Sender interface {
	Send(connID string, event Event)
}

// ValidationError marks a malformed inbound payload. It is handled locally
// (drop and log) and never forwarded to the other party.
type ValidationError struct {
	EventType string
	Detail    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s payload: %s", e.EventType, e.Detail)
}

// LimitedError reports that a signaling payload exceeded its per-type rate
// budget.
type LimitedError struct {
	EventType  string
	RetryAfter time.Duration
}

func (e *LimitedError) Error() string {
	return fmt.Sprintf("%s rate limited, retry in %s", e.EventType, e.RetryAfter)
}

// signalShapes lists the fields that must be present in each relayed payload.
// Content beyond shape is the clients' concern.
var signalShapes = map[string][]string{
	EventDescription:  {"type", "sdp"},
	EventICECandidate: {"candidate"},
	EventChatMessage:  {"message"},
}

// validateShape checks required-field presence for a relayed payload.
func validateShape(eventType string, payload json.RawMessage) error {
	required, ok := signalShapes[eventType]
	if !ok {
		return &ValidationError{EventType: eventType, Detail: "unknown event type"}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return &ValidationError{EventType: eventType, Detail: "not a JSON object"}
	}
	for _, name := range required {
		if _, ok := fields[name]; !ok {
			return &ValidationError{EventType: eventType, Detail: "missing field " + name}
		}
	}
	return nil
}
