package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/mindconnect/internal/agent"
	"github.com/BioHazard786/mindconnect/internal/config"
	"github.com/BioHazard786/mindconnect/internal/ice"
	"github.com/BioHazard786/mindconnect/internal/peer"
	"github.com/BioHazard786/mindconnect/internal/signaling"
	"github.com/BioHazard786/mindconnect/internal/store"
	"github.com/BioHazard786/mindconnect/internal/ui"
)

var (
	flagReconnect string
	flagRelay     bool
)

var joinCmd = &cobra.Command{
	Use:     "join <roomId>",
	Aliases: []string{"j"},
	Short:   "Join a consultation room and chat",
	Long: `Join a room on the relay and open an interactive chat.

Chat lines are stored by the relay and shown to everyone in the room. When the
other participant is also a terminal client, a direct WebRTC data channel is
negotiated through the relay; "/note <text>" sends over it without storing.

The connection is kept alive across network drops: after a failure the client
waits a fixed interval, reconnects and rejoins the same room.

Examples:
  mindconnect join room-3f2a... --user therapist-1
  mindconnect join demo-91c0... --reconnect-interval 1s --relay`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(config.Options{
			ReconnectInterval: flagReconnect,
			ForceRelay:        flagRelay,
		}, slog.LevelError)
		if err != nil {
			return err
		}
		return join(cmd.Context(), cfg, args[0])
	},
}

func init() {
	f := joinCmd.Flags()
	f.StringVar(&flagReconnect, "reconnect-interval", "", "wait between reconnect attempts (env RECONNECT_INTERVAL)")
	f.BoolVar(&flagRelay, "relay", false, "force the data channel through TURN (env FORCE_RELAY)")
}

func join(ctx context.Context, cfg *config.Config, roomID string) error {
	logger := slog.Default()
	self := cfg.Client.UserID
	if self == "" {
		self = "guest-" + uuid.NewString()[:8]
		ui.PrintInfof("No user id configured, joining as %s", self)
	}

	api := newAPIClient(cfg.APIBaseURL())
	provider := ice.Fallback{Primary: api, Log: logger}

	sp := ui.NewConnectionSpinner("Preparing room...")
	sp.Start()
	servers, _ := provider.ICEServers(ctx)
	var (
		sessionID string
		history   []store.ChatMessage
	)
	if s, err := api.SessionByRoom(ctx, roomID); err == nil {
		sessionID = s.ID
		sp.UpdateMessage("Loading history...")
		history, _ = api.SessionMessages(ctx, s.ID)
		sp.Stop()
	} else {
		sp.Stop()
		logger.Debug("no session for room", "room", roomID, "err", err)
		ui.PrintWarning("This room has no session; chat lines will be rejected by the relay")
	}

	if cfg.Client.ForceRelay && !hasTURN(servers) {
		return WrapError("configure ICE", errors.New("relay mode needs a TURN server"), "the relay returned none")
	}

	a := agent.New(agent.Config{
		URL:           cfg.Client.ServerURL,
		RoomID:        roomID,
		SenderID:      self,
		RetryInterval: cfg.Client.ReconnectInterval,
		Logger:        logger,
	})
	handler := agent.NewHandler(a)
	go handler.Start()

	c := &consultation{
		self:       self,
		iceServers: servers,
		forceRelay: cfg.Client.ForceRelay,
		agent:      a,
		log:        logger,
	}
	chat := ui.NewChatUI(ui.ChatOptions{
		Self:   self,
		RoomID: roomID,
		OnSend: func(text string) error {
			payload, err := json.Marshal(signaling.ChatPayload{SessionID: sessionID, Body: text})
			if err != nil {
				return err
			}
			return a.Send(signaling.Envelope{Kind: signaling.KindChat, Payload: payload})
		},
		OnNote: c.sendNote,
	})
	c.chat = chat

	if err := a.Start(ctx); err != nil {
		return NewError("start agent", err)
	}
	defer a.Close()
	defer c.hangUp()

	go func() {
		for _, m := range history {
			chat.Post(ui.ChatMsg(m))
		}
		c.pump(ctx, handler)
	}()

	if err := chat.Run(); err != nil {
		return NewError("run chat", err)
	}
	return nil
}

// consultation ties the agent's events to the chat view and to at most one
// direct peer session.
type consultation struct {
	self       string
	iceServers []webrtc.ICEServer
	forceRelay bool
	agent      *agent.Agent
	chat       *ui.ChatUI
	log        *slog.Logger

	mu   sync.Mutex
	peer *peer.Session
}

func (c *consultation) pump(ctx context.Context, h *agent.Handler) {
	for {
		select {
		case <-ctx.Done():
			c.chat.Quit()
			return

		case s := <-c.agent.States():
			c.chat.Post(ui.StatusMsg(s.String()))

		case who, ok := <-h.PeerJoined:
			if !ok {
				return
			}
			c.chat.Post(ui.PeerMsg{ID: who, Joined: true})
			// The member already present makes the offer.
			if err := c.startCall(true, signaling.Envelope{}); err != nil {
				c.log.Warn("offer failed", "err", err)
			}

		case who, ok := <-h.PeerLeft:
			if !ok {
				return
			}
			c.chat.Post(ui.PeerMsg{ID: who})
			c.hangUp()

		case env, ok := <-h.Signal:
			if !ok {
				return
			}
			if err := c.signal(env); err != nil {
				c.log.Warn("signal failed", "kind", env.Kind, "err", err)
			}

		case m, ok := <-h.Chat:
			if !ok {
				return
			}
			c.chat.Post(ui.ChatMsg(m))

		case e, ok := <-h.Error:
			if !ok {
				return
			}
			c.chat.Post(ui.ErrorMsg(e))
		}
	}
}

func (c *consultation) signal(env signaling.Envelope) error {
	if env.Kind == signaling.KindOffer {
		return c.startCall(false, env)
	}
	c.mu.Lock()
	p := c.peer
	c.mu.Unlock()
	if p == nil {
		return errors.New("no call in progress")
	}
	return p.HandleSignal(env)
}

// startCall replaces any previous peer session. The caller creates the
// offer; the callee answers the given offer.
func (c *consultation) startCall(caller bool, offer signaling.Envelope) error {
	c.hangUp()

	p, err := peer.New(peer.Options{
		ICEServers: c.iceServers,
		ForceRelay: c.forceRelay,
		SenderID:   c.self,
		Signaler:   c.agent,
		Logger:     c.log,
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.peer = p
	c.mu.Unlock()
	go c.forwardNotes(p)

	if caller {
		return p.Offer()
	}
	return p.HandleSignal(offer)
}

func (c *consultation) forwardNotes(p *peer.Session) {
	for {
		select {
		case <-p.Done():
			return
		case <-p.Open():
			c.chat.Post(ui.NoteMsg{From: p.Remote(), Text: "direct channel open"})
			for {
				select {
				case <-p.Done():
					return
				case m := <-p.Messages():
					var note peer.NotePayload
					if m.Type == peer.TypeNote && m.DecodePayload(&note) == nil {
						c.chat.Post(ui.NoteMsg{From: p.Remote(), Text: note.Text})
					}
				}
			}
		}
	}
}

func (c *consultation) sendNote(text string) error {
	c.mu.Lock()
	p := c.peer
	c.mu.Unlock()
	if p == nil {
		return fmt.Errorf("send note: %w", peer.ErrChannelClosed)
	}
	return p.SendNote(text)
}

func (c *consultation) hangUp() {
	c.mu.Lock()
	p := c.peer
	c.peer = nil
	c.mu.Unlock()
	if p != nil {
		p.Close()
	}
}

func hasTURN(servers []webrtc.ICEServer) bool {
	for _, s := range servers {
		for _, u := range s.URLs {
			if strings.HasPrefix(u, "turn:") || strings.HasPrefix(u, "turns:") {
				return true
			}
		}
	}
	return false
}
