// Package signaling implements the room-scoped relay: one Conn per websocket
// client, a RoomTable of who is in which room, and a Router that joins
// rooms, forwards offers, answers and ICE candidates untouched, and persists
// chat before broadcasting it.
package signaling

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	DefaultSendBuffer     = 256
	DefaultWriteWait      = 10 * time.Second
	DefaultMaxMessageSize = 64 * 1024 // enough for SDP blobs
)

var ErrHubClosed = errors.New("hub closed")

// Config tunes per-connection behaviour. Zero values fall back to defaults,
// except PingInterval: zero disables websocket pings entirely, so a
// half-open client is only noticed when the transport reports it.
type Config struct {
	SendBuffer     int
	WriteWait      time.Duration
	MaxMessageSize int64
	PingInterval   time.Duration
}

func (c Config) withDefaults() Config {
	if c.SendBuffer <= 0 {
		c.SendBuffer = DefaultSendBuffer
	}
	if c.WriteWait <= 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	return c
}

// pongWait spans two ping intervals so one lost pong is tolerated.
func (c Config) pongWait() time.Duration {
	return c.PingInterval * 2
}

// Hub owns the room table and every live connection.
type Hub struct {
	cfg    Config
	log    *slog.Logger
	table  *RoomTable
	router *Router

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	conns  map[*Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewHub(cfg Config, chats ChatGateway, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	table := NewRoomTable(logger)
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:    cfg.withDefaults(),
		log:    logger,
		table:  table,
		router: NewRouter(table, chats, logger),
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[*Conn]struct{}),
	}
}

// Rooms exposes the room table for inspection.
func (h *Hub) Rooms() *RoomTable { return h.table }

// Register takes ownership of ws and starts its read and write pumps.
func (h *Hub) Register(ws *websocket.Conn) (*Conn, error) {
	c := newConn(uuid.NewString(), ws, h.cfg.SendBuffer, h.log)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		ws.Close()
		return nil, ErrHubClosed
	}
	h.conns[c] = struct{}{}
	h.wg.Add(2)
	h.mu.Unlock()

	h.log.Info("client registered", "conn", c.ID(), "remote", ws.RemoteAddr().String())

	go func() {
		defer h.wg.Done()
		c.writePump(h.cfg)
	}()
	go func() {
		defer h.wg.Done()
		c.readPump(h.ctx, h.cfg, h.router, h.unregister)
	}()
	return c, nil
}

// unregister is the only place room cleanup happens for a connection.
func (h *Hub) unregister(c *Conn) {
	h.table.Leave(c)

	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()

	c.closeSend()
	c.ws.Close()
	h.log.Info("client unregistered", "conn", c.ID())
}

// Connections is the number of registered clients.
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close disconnects every client and waits for their pumps to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	h.cancel()
	for _, c := range conns {
		c.ws.Close()
	}
	h.wg.Wait()
}
