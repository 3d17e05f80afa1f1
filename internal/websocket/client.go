package websocket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// StatusUnauthorized is the close code sent when a handshake carries no
// valid session.
const StatusUnauthorized websocket.StatusCode = 4001

var (
	// ErrClientClosed is returned when sending to a connection that has closed.
	ErrClientClosed = errors.New("client closed")
	// ErrSendBufferFull is returned when a slow reader has not drained its buffer.
	ErrSendBufferFull = errors.New("client send buffer full")
)

// State is where a connection is in its lifecycle. States only move forward.
type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Client represents a single connected WebSocket client.
type Client struct {
	id   string
	conn *websocket.Conn

	mu     sync.RWMutex
	userID string
	state  State
	send   chan []byte
}

// NewClient wraps an accepted connection. conn may be nil in tests that only
// exercise the send side.
func NewClient(conn *websocket.Conn, sendBuffer int) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Client{
		id:    uuid.NewString(),
		conn:  conn,
		state: StateConnecting,
		send:  make(chan []byte, sendBuffer),
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// UserID returns the authenticated user, or "" before authentication.
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// authenticate binds the connection to userID.
func (c *Client) authenticate(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnecting {
		return false
	}
	c.userID = userID
	c.state = StateAuthenticated
	return true
}

// activate makes the connection eligible for broadcasts.
func (c *Client) activate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAuthenticated {
		return false
	}
	c.state = StateActive
	return true
}

// Send queues msg for the write pump without blocking.
func (c *Client) Send(msg []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state == StateClosed {
		return ErrClientClosed
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops the write pump. It is safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return
	}
	c.state = StateClosed
	close(c.send)
}

// closeWith closes the underlying socket with code.
func (c *Client) closeWith(code websocket.StatusCode, reason string) {
	if c.conn != nil {
		_ = c.conn.Close(code, reason)
	}
	c.Close()
}

// writePump sends queued frames until the client is closed or a write fails.
func (c *Client) writePump(writeTimeout time.Duration) {
	defer c.conn.Close(websocket.StatusNormalClosure, "")

	for message := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := c.conn.Write(ctx, websocket.MessageText, message)
		cancel()
		if err != nil {
			slog.Warn("WebSocket write error", "connID", c.id, "userID", c.UserID(), "error", err)
			return
		}
	}
}

// readPump delivers every text frame to handle until the peer goes away.
func (c *Client) readPump(handle func([]byte)) {
	for {
		typ, message, err := c.conn.Read(context.Background())
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				slog.Debug("WebSocket closed normally", "connID", c.id, "userID", c.UserID())
			} else if !errors.Is(err, io.EOF) {
				slog.Debug("WebSocket read ended", "connID", c.id, "userID", c.UserID(), "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		handle(message)
	}
}
