package signaling

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the relay's handle for one websocket client. The only state it
// owns is the room it has joined and the sender id it asserted there.
type Conn struct {
	id  string
	ws  *websocket.Conn
	log *slog.Logger

	// send is the outbound queue drained by writePump.
	send chan []byte

	mu       sync.Mutex
	room     string
	senderID string
	closed   bool
}

func newConn(id string, ws *websocket.Conn, buffer int, logger *slog.Logger) *Conn {
	return &Conn{
		id:   id,
		ws:   ws,
		log:  logger.With("conn", id),
		send: make(chan []byte, buffer),
	}
}

// ID is the transport-assigned handle, stable for one physical connection.
func (c *Conn) ID() string { return c.id }

// Room returns the joined room id, or "" before the first join.
func (c *Conn) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Conn) setRoom(id string) {
	c.mu.Lock()
	c.room = id
	c.mu.Unlock()
}

// SenderID is the identity the client asserted in its last join.
func (c *Conn) SenderID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.senderID
}

func (c *Conn) setSenderID(id string) {
	c.mu.Lock()
	c.senderID = id
	c.mu.Unlock()
}

// trySend queues frame without blocking. It reports false when the
// connection is closed or its queue is full.
func (c *Conn) trySend(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// closeSend stops writePump. Safe to call more than once.
func (c *Conn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump pumps frames from the websocket into the router.
//
// It runs in a per-connection goroutine, which is the only reader of the
// connection. Frames are dispatched one at a time, so a sender's messages
// leave the relay in the order they arrived.
func (c *Conn) readPump(ctx context.Context, cfg Config, router *Router, done func(*Conn)) {
	defer done(c)

	if cfg.MaxMessageSize > 0 {
		c.ws.SetReadLimit(cfg.MaxMessageSize)
	}
	if cfg.PingInterval > 0 {
		pongWait := cfg.pongWait()
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.ws.SetPongHandler(func(string) error {
			c.ws.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
	}

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("read failed", "err", err)
			}
			return
		}
		router.Dispatch(ctx, c, frame)
	}
}

// writePump pumps queued frames to the websocket. It is the only writer of
// the connection.
func (c *Conn) writePump(cfg Config) {
	var tick <-chan time.Time
	if cfg.PingInterval > 0 {
		ticker := time.NewTicker(cfg.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	defer c.ws.Close()

	for {
		select {
		case frame, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("write failed", "err", err)
				return
			}

		case <-tick:
			c.ws.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
