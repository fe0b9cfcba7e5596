// Package agent keeps a client attached to its room on the relay. It dials,
// joins, and after any transport failure waits a fixed interval and does it
// all again, until Close is called.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/mindconnect/internal/dns"
	"github.com/BioHazard786/mindconnect/internal/signaling"
)

const (
	DefaultRetryInterval = 3 * time.Second
	writeWait            = 10 * time.Second
	maxMessageSize       = 64 * 1024
)

var (
	ErrNotConnected = errors.New("agent not connected")
	ErrClosed       = errors.New("agent closed")
	ErrNoRoom       = errors.New("agent has no room")
	ErrStarted      = errors.New("agent already started")
)

// State is the connection state of an Agent.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type Config struct {
	URL      string
	RoomID   string
	SenderID string

	// RetryInterval is the fixed wait between a disconnect and the next
	// dial. Retries never back off and never give up.
	RetryInterval time.Duration

	// Dialer defaults to one that resolves through the public DNS fallback.
	Dialer *websocket.Dialer
	Logger *slog.Logger
}

// Agent is the client side of one relay connection.
type Agent struct {
	cfg    Config
	dialer *websocket.Dialer
	log    *slog.Logger

	incoming chan signaling.Envelope
	states   chan State

	mu      sync.Mutex
	state   State
	room    string
	ws      *websocket.Conn
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}

	// writeMu serializes writers; gorilla allows only one at a time.
	writeMu sync.Mutex
}

func New(cfg Config) *Agent {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			NetDialContext:   dns.DialContext,
			HandshakeTimeout: 10 * time.Second,
		}
	}
	return &Agent{
		cfg:      cfg,
		dialer:   dialer,
		log:      cfg.Logger.With("component", "agent"),
		incoming: make(chan signaling.Envelope, 64),
		states:   make(chan State, 64),
		room:     cfg.RoomID,
		done:     make(chan struct{}),
	}
}

// Incoming delivers every envelope received from the relay, across
// reconnects. It is closed after Close.
func (a *Agent) Incoming() <-chan signaling.Envelope { return a.incoming }

// States reports every state transition. Transitions are dropped if the
// channel is not drained.
func (a *Agent) States() <-chan State { return a.states }

func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) Room() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.room
}

// Start begins connecting in the background. It fails if no room has been
// assigned yet.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case a.closed:
		return ErrClosed
	case a.started:
		return ErrStarted
	case a.room == "":
		return ErrNoRoom
	}
	a.started = true

	ctx, a.cancel = context.WithCancel(ctx)
	go a.run(ctx)
	return nil
}

// SetRoom assigns a new room. When connected the join is sent right away;
// otherwise it is sent on the next successful dial.
func (a *Agent) SetRoom(roomID string) error {
	if roomID == "" {
		return ErrNoRoom
	}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	a.room = roomID
	ws := a.ws
	a.mu.Unlock()

	if ws == nil {
		return nil
	}
	return a.write(ws, a.joinEnvelope(roomID))
}

// Send writes env to the relay. The room and sender default to the
// agent's own when env leaves them empty.
func (a *Agent) Send(env signaling.Envelope) error {
	a.mu.Lock()
	ws, closed, room := a.ws, a.closed, a.room
	a.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if ws == nil {
		return ErrNotConnected
	}
	if env.RoomID == "" {
		env.RoomID = room
	}
	if env.SenderID == "" {
		env.SenderID = a.cfg.SenderID
	}
	return a.write(ws, env)
}

// Close cancels any pending retry, closes the transport and waits for the
// agent to stop. No reconnect is attempted afterwards.
func (a *Agent) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	started := a.started
	cancel := a.cancel
	ws := a.ws
	a.mu.Unlock()

	if !started {
		close(a.incoming)
		return nil
	}

	cancel()
	if ws != nil {
		a.writeMu.Lock()
		ws.SetWriteDeadline(time.Now().Add(time.Second))
		ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		a.writeMu.Unlock()
		ws.Close()
	}
	<-a.done
	return nil
}

func (a *Agent) run(ctx context.Context) {
	defer close(a.done)
	defer close(a.incoming)

	retry := time.NewTimer(0)
	defer retry.Stop()
	<-retry.C

	for {
		a.setState(Connecting)
		if ws, err := a.dial(ctx); err != nil {
			if ctx.Err() == nil {
				a.log.Warn("dial failed", "url", a.cfg.URL, "err", err)
			}
		} else {
			a.serve(ctx, ws)
		}
		a.setState(Disconnected)

		if ctx.Err() != nil {
			return
		}
		retry.Reset(a.cfg.RetryInterval)
		select {
		case <-ctx.Done():
			return
		case <-retry.C:
		}
	}
}

func (a *Agent) dial(ctx context.Context) (*websocket.Conn, error) {
	ws, resp, err := a.dialer.DialContext(ctx, a.cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	ws.SetReadLimit(maxMessageSize)
	return ws, nil
}

// serve owns one live connection: it rejoins the assigned room, then
// reads until the transport fails or ctx is cancelled.
func (a *Agent) serve(ctx context.Context, ws *websocket.Conn) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		ws.Close()
		return
	}
	a.ws = ws
	room := a.room
	a.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer func() {
		stop()
		a.mu.Lock()
		a.ws = nil
		a.mu.Unlock()
		ws.Close()
	}()

	a.setState(Connected)
	if err := a.write(ws, a.joinEnvelope(room)); err != nil {
		a.log.Warn("join failed", "room", room, "err", err)
		return
	}
	a.log.Info("joined room", "room", room)

	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				a.log.Info("connection lost", "err", err)
			}
			return
		}
		var env signaling.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			a.log.Warn("ignoring malformed frame", "err", err)
			continue
		}
		select {
		case a.incoming <- env:
		case <-ctx.Done():
			return
		}
	}
}

func (a *Agent) joinEnvelope(room string) signaling.Envelope {
	return signaling.Envelope{Kind: signaling.KindJoin, RoomID: room, SenderID: a.cfg.SenderID}
}

func (a *Agent) write(ws *websocket.Conn, env signaling.Envelope) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteJSON(env); err != nil {
		return fmt.Errorf("write %s: %w", env.Kind, err)
	}
	return nil
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	if a.state == s {
		a.mu.Unlock()
		return
	}
	a.state = s
	a.mu.Unlock()

	a.log.Debug("state changed", "state", s)
	select {
	case a.states <- s:
	default:
		a.log.Warn("dropped state transition", "state", s)
	}
}
