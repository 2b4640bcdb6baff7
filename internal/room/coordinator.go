// Package room implements the single support channel: one admin slot, one
// customer slot, a wait timer guarding the customer against an absent
// admin, and the signaling relay between the two parties. Every event is
// handled to completion under one mutex, so room mutations are serialized
// within the process. The slots themselves are process-local; only the
// security primitives underneath (locks, counters, sessions) are shared
// through the state store.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/btasarimambalaj-afk/adminara-sub000/internal/ratelimit"
)

// ErrSessionActive rejects a second admin while one is connected.
var ErrSessionActive = errors.New("admin session already active")

// ErrChannelBusy rejects a second customer; channel capacity is one.
var ErrChannelBusy = errors.New("support channel busy")

// ErrClosed rejects joins after shutdown has begun.
var ErrClosed = errors.New("room closed")

// Options carries the coordinator's tunable policy.
type Options struct {
	WaitTimeout time.Duration

	// SignalLimits maps relayed event types to a per-second budget per
	// connection. Missing types fall back to DefaultSignalLimits.
	SignalLimits map[string]int64
}

// DefaultSignalLimits are the per-second relay budgets per connection.
var DefaultSignalLimits = map[string]int64{
	EventDescription:  5,
	EventICECandidate: 20,
	EventChatMessage:  3,
}

// Coordinator owns the room state machine.
type Coordinator struct {
	mu       sync.Mutex
	admin    *Connection
	customer *Connection
	closed   bool

	waitTimer *time.Timer
	timerGen  uint64

	sender   Sender
	limiter  *ratelimit.Limiter
	observer Observer
	logger   *zap.Logger
	opts     Options
}

// New constructs the coordinator. A nil observer disables mutation tracing.
func New(sender Sender, limiter *ratelimit.Limiter, observer Observer, opts Options, logger *zap.Logger) *Coordinator {
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 60 * time.Second
	}
	if opts.SignalLimits == nil {
		opts.SignalLimits = DefaultSignalLimits
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		sender:   sender,
		limiter:  limiter,
		observer: observer,
		logger:   logger,
		opts:     opts,
	}
}

// Status derives the pairing state from slot occupancy.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Coordinator) statusLocked() Status {
	switch {
	case c.admin != nil && c.customer != nil:
		return StatusBusy
	case c.admin != nil:
		return StatusReady
	default:
		return StatusAvailable
	}
}

func connID(conn *Connection) string {
	if conn == nil {
		return ""
	}
	return conn.ID
}

func (c *Coordinator) setAdminLocked(conn *Connection) {
	from := connID(c.admin)
	before := c.statusLocked()
	c.admin = conn
	c.observeLocked("adminConnection", from, connID(conn), before)
}

func (c *Coordinator) setCustomerLocked(conn *Connection) {
	from := connID(c.customer)
	before := c.statusLocked()
	c.customer = conn
	c.observeLocked("customerConnection", from, connID(conn), before)
}

func (c *Coordinator) observeLocked(field, from, to string, before Status) {
	if c.observer == nil {
		return
	}
	c.observer.StateChanged(field, from, to)
	if after := c.statusLocked(); after != before {
		c.observer.StateChanged("status", string(before), string(after))
	}
}

// AdminJoin registers conn as the admin. A second admin with a different id
// is rejected and never replaces the current one. Any pending wait timer is
// cleared first; with a customer already waiting both sides are
// cross-notified.
func (c *Coordinator) AdminJoin(conn *Connection) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.admin != nil && c.admin.ID != conn.ID {
		return ErrSessionActive
	}

	c.clearWaitTimerLocked()
	conn.Role = RoleAdmin
	c.setAdminLocked(conn)
	c.logger.Info("admin joined", zap.String("conn_id", conn.ID))

	if c.customer != nil {
		c.sender.Send(conn.ID, NewEvent(EventPeerJoined, map[string]string{
			"id":          c.customer.ID,
			"role":        string(RoleCustomer),
			"displayName": c.customer.DisplayName,
		}))
		c.sender.Send(c.customer.ID, NewEvent(EventPeerJoined, map[string]string{
			"id":   conn.ID,
			"role": string(RoleAdmin),
		}))
	}
	c.broadcastStateLocked()
	return nil
}

// CustomerJoin registers conn as the waiting customer. Capacity is one. Any
// pending wait timer is cleared first; without an admin present a fresh one
// is armed.
func (c *Coordinator) CustomerJoin(conn *Connection) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.customer != nil && c.customer.ID != conn.ID {
		return ErrChannelBusy
	}

	c.clearWaitTimerLocked()
	conn.Role = RoleCustomer
	c.setCustomerLocked(conn)
	c.logger.Info("customer joined", zap.String("conn_id", conn.ID))

	if c.admin != nil {
		c.sender.Send(c.admin.ID, NewEvent(EventPeerJoined, map[string]string{
			"id":          conn.ID,
			"role":        string(RoleCustomer),
			"displayName": conn.DisplayName,
		}))
		c.sender.Send(conn.ID, NewEvent(EventPeerJoined, map[string]string{
			"id":   c.admin.ID,
			"role": string(RoleAdmin),
		}))
	} else {
		c.armWaitTimerLocked()
	}
	c.broadcastStateLocked()
	return nil
}

// Disconnect clears whichever slot id occupied. An admin drop arms the wait
// timer instead of resetting the room, leaving a grace window for a quick
// reconnect; a customer drop notifies the admin.
func (c *Coordinator) Disconnect(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.admin != nil && c.admin.ID == id:
		c.clearWaitTimerLocked()
		c.setAdminLocked(nil)
		c.logger.Info("admin disconnected", zap.String("conn_id", id))
		if c.customer != nil {
			c.sender.Send(c.customer.ID, NewEvent(EventPeerDisconnected, map[string]string{"role": string(RoleAdmin)}))
		}
		c.armWaitTimerLocked()
	case c.customer != nil && c.customer.ID == id:
		c.clearWaitTimerLocked()
		c.setCustomerLocked(nil)
		c.logger.Info("customer disconnected", zap.String("conn_id", id))
		if c.admin != nil {
			c.sender.Send(c.admin.ID, NewEvent(EventPeerDisconnected, map[string]string{"role": string(RoleCustomer)}))
		}
	default:
		return
	}
	c.broadcastStateLocked()
}

// CallEnd terminates the call from either side: the customer slot is
// cleared unconditionally and the wait timer armed as in the timeout path.
func (c *Coordinator) CallEnd(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.admin == nil && c.customer == nil {
		return
	}
	c.clearWaitTimerLocked()

	if c.admin != nil && c.admin.ID != id {
		c.sender.Send(c.admin.ID, NewEvent(EventCallEnded, nil))
	}
	if c.customer != nil {
		if c.customer.ID != id {
			c.sender.Send(c.customer.ID, NewEvent(EventCallEnded, nil))
		}
		c.setCustomerLocked(nil)
	}
	c.logger.Info("call ended", zap.String("conn_id", id))
	c.armWaitTimerLocked()
	c.broadcastStateLocked()
}

// Relay forwards a signaling payload to the other party after shape
// validation and the per-type rate check. Backend failures of the rate
// check propagate; the payload is not forwarded on any error.
func (c *Coordinator) Relay(ctx context.Context, fromID, eventType string, payload json.RawMessage) error {
	if err := validateShape(eventType, payload); err != nil {
		return err
	}

	limit, ok := c.opts.SignalLimits[eventType]
	if !ok {
		limit = DefaultSignalLimits[eventType]
	}
	result, err := c.limiter.Check(ctx, fmt.Sprintf("sig:%s:%s", fromID, eventType), limit, time.Second)
	if err != nil {
		return fmt.Errorf("signal rate check: %w", err)
	}
	if result.Limited {
		return &LimitedError{EventType: eventType, RetryAfter: result.RetryAfter}
	}

	c.mu.Lock()
	peer := c.peerOfLocked(fromID)
	c.mu.Unlock()
	if peer == nil {
		return &ValidationError{EventType: eventType, Detail: "no peer in room"}
	}
	c.sender.Send(peer.ID, Event{Event: eventType, Data: payload})
	return nil
}

func (c *Coordinator) peerOfLocked(id string) *Connection {
	switch {
	case c.admin != nil && c.admin.ID == id:
		return c.customer
	case c.customer != nil && c.customer.ID == id:
		return c.admin
	default:
		return nil
	}
}

// Shutdown notifies every connected party, clears the room, and rejects
// all further joins.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.clearWaitTimerLocked()
	if c.admin != nil {
		c.sender.Send(c.admin.ID, NewEvent(EventServerShutdown, nil))
		c.setAdminLocked(nil)
	}
	if c.customer != nil {
		c.sender.Send(c.customer.ID, NewEvent(EventServerShutdown, nil))
		c.setCustomerLocked(nil)
	}
	c.logger.Info("room shut down")
}

// clearWaitTimerLocked cancels the pending wait timer. Bumping the
// generation makes an already-fired callback a no-op, so a cancelled timer
// can never act on state it no longer guards.
func (c *Coordinator) clearWaitTimerLocked() {
	c.timerGen++
	if c.waitTimer != nil {
		c.waitTimer.Stop()
		c.waitTimer = nil
	}
}

func (c *Coordinator) armWaitTimerLocked() {
	c.clearWaitTimerLocked()
	gen := c.timerGen
	c.waitTimer = time.AfterFunc(c.opts.WaitTimeout, func() {
		c.waitTimeout(gen)
	})
}

// waitTimeout fires when no admin arrived in time: both parties still
// connected are notified and the customer slot is cleared.
func (c *Coordinator) waitTimeout(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.timerGen || c.closed {
		return
	}
	c.waitTimer = nil

	c.logger.Info("wait timeout elapsed")
	if c.admin != nil {
		c.sender.Send(c.admin.ID, NewEvent(EventWaitTimeout, nil))
	}
	if c.customer != nil {
		c.sender.Send(c.customer.ID, NewEvent(EventWaitTimeout, nil))
		c.setCustomerLocked(nil)
	}
	c.broadcastStateLocked()
}

func (c *Coordinator) broadcastStateLocked() {
	event := NewEvent(EventRoomState, map[string]any{
		"status":          string(c.statusLocked()),
		"adminPresent":    c.admin != nil,
		"customerPresent": c.customer != nil,
	})
	if c.admin != nil {
		c.sender.Send(c.admin.ID, event)
	}
	if c.customer != nil {
		c.sender.Send(c.customer.ID, event)
	}
}
