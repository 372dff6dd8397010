package hub

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Sink is the write side of one client channel. Send must not block: it either queues the
// frame behind every frame queued before it or fails. A sink belongs to exactly one Connection.
type Sink interface {
	Send(frame Frame) error
	Close() error
	Transport() string
}

type State int32

const (
	StateConnecting State = iota
	StateAdmitted
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAdmitted:
		return "admitted"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection is one admitted client channel. Only lastLiveness and the lifecycle state
// change after admission.
type Connection struct {
	id         string
	ownerID    string
	privileged bool
	sink       Sink
	createdAt  time.Time

	state atomic.Int32

	livenessMu   sync.RWMutex
	lastLiveness time.Time
}

func newConnection(id, ownerID string, privileged bool, sink Sink, now time.Time) *Connection {
	c := &Connection{
		id:           id,
		ownerID:      ownerID,
		privileged:   privileged,
		sink:         sink,
		createdAt:    now,
		lastLiveness: now,
	}
	c.state.Store(int32(StateAdmitted))
	return c
}

func (c *Connection) ID() string           { return c.id }
func (c *Connection) OwnerID() string      { return c.ownerID }
func (c *Connection) IsPrivileged() bool   { return c.privileged }
func (c *Connection) CreatedAt() time.Time { return c.createdAt }
func (c *Connection) Transport() string    { return c.sink.Transport() }
func (c *Connection) State() State         { return State(c.state.Load()) }

func (c *Connection) LastLiveness() time.Time {
	c.livenessMu.RLock()
	defer c.livenessMu.RUnlock()
	return c.lastLiveness
}

// touch never moves lastLiveness backwards.
func (c *Connection) touch(now time.Time) {
	c.livenessMu.Lock()
	if now.After(c.lastLiveness) {
		c.lastLiveness = now
	}
	c.livenessMu.Unlock()
}

func (c *Connection) transition(from, to State) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// Send hands frame to the sink. A panicking sink is reported as a failed send.
func (c *Connection) Send(frame Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &sinkPanicError{value: r}
		}
	}()
	return c.sink.Send(frame)
}

// ConnectionInfo is a read-only view used by status endpoints.
type ConnectionInfo struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	Privileged   bool      `json:"privileged"`
	Transport    string    `json:"transport"`
	State        string    `json:"state"`
	CreatedAt    time.Time `json:"createdAt"`
	LastLiveness time.Time `json:"lastLiveness"`
}

func (c *Connection) Info() ConnectionInfo {
	return ConnectionInfo{
		ID:           c.id,
		OwnerID:      c.ownerID,
		Privileged:   c.privileged,
		Transport:    c.Transport(),
		State:        c.State().String(),
		CreatedAt:    c.createdAt,
		LastLiveness: c.LastLiveness(),
	}
}

type sinkPanicError struct {
	value any
}

func (e *sinkPanicError) Error() string {
	return fmt.Sprintf("sink panicked: %v", e.value)
}
