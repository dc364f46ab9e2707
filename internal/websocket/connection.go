package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// enqueueTimeout bounds how long a sender may wait for space in the
	// outbound buffer before the write is reported as failed.
	enqueueTimeout = 5 * time.Second

	// writeWait is the per-frame write deadline on the underlying socket.
	writeWait = 10 * time.Second

	// sendBuffer is the outbound frame buffer per connection.
	sendBuffer = 100
)

// Wire is the write side of an underlying transport. *websocket.Conn from
// gorilla satisfies it; tests substitute fakes.
type Wire interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Connection binds one live transport to a (user, team) identity. Writes go
// through a buffered channel drained by a single writer goroutine, so
// concurrent senders never race on the socket. A user may hold several
// Connections at once; each carries its own ID.
type Connection struct {
	ID       string
	UserID   string
	UserName string
	TeamID   string

	wire      Wire
	writeCh   chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	lastSeen atomic.Int64 // unix millis
	typing   atomic.Bool
}

// NewConnection wraps a transport with identity and starts the writer
// goroutine. The identity fields must already be validated.
func NewConnection(wire Wire, userID, userName, teamID string) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		ID:       uuid.New().String(),
		UserID:   userID,
		UserName: userName,
		TeamID:   teamID,
		wire:     wire,
		writeCh:  make(chan []byte, sendBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}
	c.lastSeen.Store(time.Now().UnixMilli())

	go c.writeLoop()

	return c
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.wire.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.wire.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON marshals v and queues it for delivery. It fails without blocking
// the caller indefinitely: a full buffer or a closed connection surfaces as
// an error for the broadcaster to log.
func (c *Connection) WriteJSON(v any) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(enqueueTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Ping sends a transport-level probe frame. A live peer answers with a pong
// handled by the read pump.
func (c *Connection) Ping(deadline time.Time) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}
	return c.wire.WriteControl(websocket.PingMessage, nil, deadline)
}

// Touch records a liveness signal observed now.
func (c *Connection) Touch() {
	c.lastSeen.Store(time.Now().UnixMilli())
}

// TouchAt records a liveness signal observed at t.
func (c *Connection) TouchAt(t time.Time) {
	c.lastSeen.Store(t.UnixMilli())
}

// LastSeen returns the time of the most recent liveness signal.
func (c *Connection) LastSeen() time.Time {
	return time.UnixMilli(c.lastSeen.Load())
}

// SetTyping records the typing flag carried by the latest typing envelope.
func (c *Connection) SetTyping(typing bool) {
	c.typing.Store(typing)
}

// IsTyping reports the last known typing flag.
func (c *Connection) IsTyping() bool {
	return c.typing.Load()
}

// Done is closed when the connection has been shut down.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close shuts down the writer goroutine and the underlying transport. Safe
// to call multiple times.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.wire.Close()
	})
	return err
}
