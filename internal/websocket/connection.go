package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection implements the interfaces.Connection interface for one
// classroom display socket.
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized; every frame goes
// through the single writer goroutine
type Connection struct {
	conn         *websocket.Conn
	id           string
	channel      string
	writeCh      chan []byte // FUNCTIONAL DISCOVERY: 100 buffer absorbs a burst of calls at dismissal time
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
	closeErr     error
}

// DefaultWriteTimeout bounds both enqueueing and writing a frame
const DefaultWriteTimeout = 5 * time.Second

// NewConnection wraps an upgraded socket joined to channel and starts its writer.
func NewConnection(conn *websocket.Conn, channel string, writeTimeout time.Duration, bufferSize int) *Connection {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	if bufferSize <= 0 {
		bufferSize = 100
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		id:           uuid.New().String(),
		channel:      channel,
		writeCh:      make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

// ID returns the connection id.
func (c *Connection) ID() string { return c.id }

// Channel returns the channel this socket joined.
func (c *Connection) Channel() string { return c.channel }

// Done is closed once the connection has been closed.
func (c *Connection) Done() <-chan struct{} { return c.ctx.Done() }

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				_ = c.Close()
				return
			}
			// FUNCTIONAL DISCOVERY: a socket that cannot take a frame is dead; closing it
			// ends the read loop, which removes it from the registry
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = c.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON marshals v and queues it for the writer.
func (c *Connection) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return c.WriteRaw(data)
}

// WriteRaw queues an already encoded text frame. The router marshals an
// envelope once and fans the same bytes out to every socket.
func (c *Connection) WriteRaw(data []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	timer := time.NewTimer(c.writeTimeout)
	defer timer.Stop()

	select {
	case c.writeCh <- data:
		return nil
	case <-timer.C:
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Ping sends a ping control frame. Control frames may be written
// concurrently with the writer goroutine.
func (c *Connection) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.writeTimeout))
}

// Close stops the writer and closes the socket. Safe to call repeatedly.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			c.closeErr = c.conn.Close()
		}
	})
	return c.closeErr
}
