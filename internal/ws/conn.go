package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ugaemi/netraiders-server/internal/game"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// ErrBadHello is returned when the opening message does not name a usable player.
var ErrBadHello = errors.New("invalid hello message")

// probeMessage is the text frame the client echoes to measure round-trip time.
const probeMessage = "ping"

// Conn wraps a single WebSocket connection for one player.
//
// Reads must come from one goroutine. Writes are serialized internally so the
// keepalive pinger can share the socket with the session loop.
type Conn struct {
	ID string

	conn    *websocket.Conn
	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
	now     func() time.Time
}

// NewConn wraps an upgraded connection and configures read limits and the
// pong handler.
func NewConn(conn *websocket.Conn) *Conn {
	c := &Conn{
		ID:   uuid.NewString(),
		conn: conn,
		done: make(chan struct{}),
		now:  time.Now,
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return c
}

// Keepalive sends control pings until the connection is closed.
func (c *Conn) Keepalive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				slog.Debug("keepalive ping failed", "conn", c.ID, "error", err)
				return
			}
		}
	}
}

// ReadHello reads the opening message and returns the requested username.
func (c *Conn) ReadHello() (string, error) {
	data, err := c.read()
	if err != nil {
		return "", err
	}
	var hello Hello
	if err := json.Unmarshal(data, &hello); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadHello, err)
	}
	if err := hello.Validate(); err != nil {
		return "", err
	}
	return hello.Username, nil
}

// Probe sends the ping text frame and waits for any reply.
func (c *Conn) Probe() (time.Duration, error) {
	start := c.now()
	if err := c.write(websocket.TextMessage, []byte(probeMessage)); err != nil {
		return 0, err
	}
	if _, err := c.read(); err != nil {
		return 0, err
	}
	return c.now().Sub(start), nil
}

// ReadInput blocks for the next client input.
//
// A malformed payload yields an error wrapping game.ErrInvalidInput and leaves
// the connection usable; any other error means the transport is gone.
func (c *Conn) ReadInput() (game.ClientInput, error) {
	data, err := c.read()
	if err != nil {
		return game.ClientInput{}, err
	}
	return game.DecodeClientInput(data)
}

// WriteSnapshot sends one snapshot as a JSON text frame.
func (c *Conn) WriteSnapshot(snap game.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return c.write(websocket.TextMessage, data)
}

// Close sends a close frame and releases the socket. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = c.conn.Close()
	})
	return err
}

func (c *Conn) read() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
			slog.Warn("websocket read error", "conn", c.ID, "error", err)
		}
		return nil, err
	}
	return data, nil
}

func (c *Conn) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}
