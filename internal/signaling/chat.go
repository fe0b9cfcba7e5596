package signaling

import (
	"context"
	"fmt"

	"github.com/BioHazard786/mindconnect/internal/store"
)

// ChatInput is a chat line as the relay received it, before it is stored.
type ChatInput struct {
	RoomID    string
	SessionID string
	SenderID  string
	Body      string
}

// ChatGateway durably stores a chat line and returns the canonical record,
// including the id and timestamp every room member will see.
type ChatGateway interface {
	SaveChat(ctx context.Context, in ChatInput) (*store.ChatMessage, error)
}

// StoreGateway is the ChatGateway over the session and message stores.
type StoreGateway struct {
	sessions store.SessionStore
	messages store.MessageStore
}

func NewStoreGateway(sessions store.SessionStore, messages store.MessageStore) *StoreGateway {
	return &StoreGateway{sessions: sessions, messages: messages}
}

// SaveChat stores in. When the client did not name a session, the session
// bound to the room is used.
func (g *StoreGateway) SaveChat(ctx context.Context, in ChatInput) (*store.ChatMessage, error) {
	sessionID := in.SessionID
	if sessionID == "" {
		s, err := g.sessions.SessionByRoom(ctx, in.RoomID)
		if err != nil {
			return nil, fmt.Errorf("resolve session for room %q: %w", in.RoomID, err)
		}
		sessionID = s.ID
	}

	msg, err := g.messages.CreateMessage(ctx, store.NewChatMessage{
		SessionID: sessionID,
		SenderID:  in.SenderID,
		Body:      in.Body,
		Kind:      store.MessageUser,
	})
	if err != nil {
		return nil, fmt.Errorf("store chat message: %w", err)
	}
	return msg, nil
}
