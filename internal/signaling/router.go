package signaling

import (
	"context"
	"errors"
	"log/slog"
)

// ErrNotInRoom is logged when a client signals or chats before joining.
var ErrNotInRoom = errors.New("connection has not joined a room")

// Router classifies client frames and applies them to the RoomTable.
// Nothing a client sends makes Dispatch fail or close the connection.
type Router struct {
	table *RoomTable
	chats ChatGateway
	log   *slog.Logger
}

func NewRouter(table *RoomTable, chats ChatGateway, logger *slog.Logger) *Router {
	return &Router{table: table, chats: chats, log: logger}
}

// Dispatch handles one frame from c. It returns once the frame is fully
// processed, which for chat includes the store round trip.
func (r *Router) Dispatch(ctx context.Context, c *Conn, frame []byte) {
	in, err := Decode(frame)
	if err != nil {
		r.log.Warn("ignoring malformed frame", "conn", c.ID(), "err", err)
		return
	}

	switch msg := in.(type) {
	case *JoinRequest:
		c.setSenderID(msg.SenderID)
		r.table.Join(c, msg.RoomID)

	case *Signal:
		r.relay(c, msg)

	case *ChatRequest:
		r.chat(ctx, c, msg)

	case *Unknown:
		r.log.Warn("ignoring unknown kind", "conn", c.ID(), "kind", msg.Kind)
	}
}

func (r *Router) relay(c *Conn, sig *Signal) {
	roomID := c.Room()
	if roomID == "" {
		r.log.Warn("dropping signal", "conn", c.ID(), "kind", sig.Kind, "err", ErrNotInRoom)
		return
	}
	n := r.table.BroadcastFrame(roomID, sig.Frame, c)
	r.log.Debug("relayed signal", "room", roomID, "conn", c.ID(), "kind", sig.Kind, "recipients", n)
}

func (r *Router) chat(ctx context.Context, c *Conn, req *ChatRequest) {
	roomID := c.Room()
	if roomID == "" {
		r.log.Warn("dropping chat", "conn", c.ID(), "err", ErrNotInRoom)
		return
	}

	sender := req.SenderID
	if sender == "" {
		sender = c.SenderID()
	}
	if sender == "" {
		sender = c.ID()
	}

	msg, err := r.chats.SaveChat(ctx, ChatInput{
		RoomID:    roomID,
		SessionID: req.SessionID,
		SenderID:  sender,
		Body:      req.Body,
	})
	if err != nil {
		r.log.Error("chat not stored", "room", roomID, "conn", c.ID(), "err", err)
		if !c.trySend(errorFrame(roomID, "failed to store chat message")) {
			r.log.Warn("dropped error frame", "room", roomID, "conn", c.ID())
		}
		return
	}

	frame, err := chatFrame(roomID, msg)
	if err != nil {
		r.log.Error("encode chat record", "room", roomID, "err", err)
		return
	}
	r.table.BroadcastFrame(roomID, frame, nil)
}
