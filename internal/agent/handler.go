package agent

import (
	"encoding/json"
	"log/slog"

	"github.com/BioHazard786/mindconnect/internal/signaling"
	"github.com/BioHazard786/mindconnect/internal/store"
)

// Handler routes the agent's incoming envelopes onto one channel per kind.
type Handler struct {
	agent *Agent
	log   *slog.Logger

	PeerJoined chan string // sender id of the newcomer
	PeerLeft   chan string
	Signal     chan signaling.Envelope
	Chat       chan store.ChatMessage
	Error      chan string
}

func NewHandler(a *Agent) *Handler {
	return &Handler{
		agent:      a,
		log:        a.log,
		PeerJoined: make(chan string, 4),
		PeerLeft:   make(chan string, 4),
		Signal:     make(chan signaling.Envelope, 32),
		Chat:       make(chan store.ChatMessage, 32),
		Error:      make(chan string, 4),
	}
}

// Start routes envelopes until the agent is closed, then closes every
// output channel.
func (h *Handler) Start() {
	defer h.close()

	for env := range h.agent.Incoming() {
		switch {
		case env.Kind == signaling.KindPeerJoined:
			h.PeerJoined <- env.SenderID

		case env.Kind == signaling.KindPeerLeft:
			h.PeerLeft <- env.SenderID

		case env.Kind.IsSignal():
			h.Signal <- env

		case env.Kind == signaling.KindChat:
			var msg store.ChatMessage
			if err := json.Unmarshal(env.Payload, &msg); err != nil {
				h.log.Warn("ignoring malformed chat record", "err", err)
				continue
			}
			h.Chat <- msg

		case env.Kind == signaling.KindError:
			var p signaling.ErrorPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil || p.Error == "" {
				p.Error = "relay reported an error"
			}
			h.Error <- p.Error

		default:
			h.log.Debug("ignoring envelope", "kind", env.Kind)
		}
	}
}

func (h *Handler) close() {
	close(h.PeerJoined)
	close(h.PeerLeft)
	close(h.Signal)
	close(h.Chat)
	close(h.Error)
}
