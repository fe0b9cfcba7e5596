package signaling

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/BioHazard786/mindconnect/internal/store"
)

// Kind identifies the purpose of an envelope.
type Kind string

// Client to server.
const (
	KindJoin         Kind = "join"
	KindOffer        Kind = "offer"
	KindAnswer       Kind = "answer"
	KindICECandidate Kind = "ice-candidate"
	KindChat         Kind = "chat"
)

// Server to client.
const (
	KindPeerJoined Kind = "peer-joined"
	KindPeerLeft   Kind = "peer-left"
	KindError      Kind = "error"
)

// IsSignal reports whether k carries an opaque negotiation payload.
func (k Kind) IsSignal() bool {
	return k == KindOffer || k == KindAnswer || k == KindICECandidate
}

// Envelope is the JSON object exchanged over the websocket, one per frame.
type Envelope struct {
	Kind     Kind            `json:"kind"`
	RoomID   string          `json:"roomId,omitempty"`
	SenderID string          `json:"senderId,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// ChatPayload is the object form of a chat request payload.
type ChatPayload struct {
	SessionID string `json:"sessionId,omitempty"`
	Body      string `json:"body"`
}

// ErrorPayload is sent to a single client when its request failed.
type ErrorPayload struct {
	Error string `json:"error"`
}

var ErrMalformed = errors.New("malformed envelope")

// Inbound is a decoded client frame. The concrete type decides how the
// router treats it: *JoinRequest, *Signal, *ChatRequest or *Unknown.
type Inbound interface {
	inbound()
}

type JoinRequest struct {
	RoomID   string
	SenderID string
}

// Signal is an offer, answer or ICE candidate. Frame holds the bytes exactly
// as they arrived; the payload is never decoded.
type Signal struct {
	Kind     Kind
	RoomID   string
	SenderID string
	Frame    []byte
}

type ChatRequest struct {
	RoomID    string
	SenderID  string
	SessionID string
	Body      string
}

// Unknown is a well-formed envelope with a kind the relay does not handle.
type Unknown struct {
	Kind Kind
}

func (*JoinRequest) inbound() {}
func (*Signal) inbound()      {}
func (*ChatRequest) inbound() {}
func (*Unknown) inbound()     {}

// Decode classifies a raw client frame.
func Decode(frame []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch {
	case env.Kind == KindJoin:
		if env.RoomID == "" {
			return nil, fmt.Errorf("%w: join without roomId", ErrMalformed)
		}
		return &JoinRequest{RoomID: env.RoomID, SenderID: env.SenderID}, nil

	case env.Kind.IsSignal():
		return &Signal{Kind: env.Kind, RoomID: env.RoomID, SenderID: env.SenderID, Frame: frame}, nil

	case env.Kind == KindChat:
		chat, err := decodeChatPayload(env.Payload)
		if err != nil {
			return nil, err
		}
		return &ChatRequest{
			RoomID:    env.RoomID,
			SenderID:  env.SenderID,
			SessionID: chat.SessionID,
			Body:      chat.Body,
		}, nil

	case env.Kind == "":
		return nil, fmt.Errorf("%w: missing kind", ErrMalformed)

	default:
		return &Unknown{Kind: env.Kind}, nil
	}
}

// decodeChatPayload accepts either a bare JSON string or a ChatPayload object.
func decodeChatPayload(raw json.RawMessage) (ChatPayload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ChatPayload{}, fmt.Errorf("%w: chat without payload", ErrMalformed)
	}

	var p ChatPayload
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &p.Body); err != nil {
			return ChatPayload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	} else if err := json.Unmarshal(raw, &p); err != nil {
		return ChatPayload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if p.Body == "" {
		return ChatPayload{}, fmt.Errorf("%w: empty chat body", ErrMalformed)
	}
	return p, nil
}

func encode(env Envelope) []byte {
	b, err := json.Marshal(env)
	if err != nil {
		// Envelope holds only strings and pre-encoded JSON.
		panic(fmt.Sprintf("signaling: encode %s envelope: %v", env.Kind, err))
	}
	return b
}

func peerJoinedFrame(roomID, senderID string) []byte {
	return encode(Envelope{Kind: KindPeerJoined, RoomID: roomID, SenderID: senderID})
}

func peerLeftFrame(roomID, senderID string) []byte {
	return encode(Envelope{Kind: KindPeerLeft, RoomID: roomID, SenderID: senderID})
}

func chatFrame(roomID string, msg *store.ChatMessage) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return encode(Envelope{Kind: KindChat, RoomID: roomID, SenderID: msg.SenderID, Payload: payload}), nil
}

func errorFrame(roomID, reason string) []byte {
	payload, _ := json.Marshal(ErrorPayload{Error: reason})
	return encode(Envelope{Kind: KindError, RoomID: roomID, Payload: payload})
}
