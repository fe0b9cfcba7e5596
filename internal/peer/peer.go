// Package peer is a terminal WebRTC participant. It negotiates through the
// relay like a browser would and opens one data channel to the other side.
package peer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/mindconnect/internal/logging"
	"github.com/BioHazard786/mindconnect/internal/signaling"
	"github.com/BioHazard786/mindconnect/internal/version"
)

const channelLabel = "consultation"

var ErrChannelClosed = errors.New("data channel not open")

// Signaler delivers negotiation envelopes to the other room member.
// *agent.Agent satisfies it.
type Signaler interface {
	Send(env signaling.Envelope) error
}

type Options struct {
	ICEServers []webrtc.ICEServer
	// ForceRelay restricts ICE to TURN candidates.
	ForceRelay bool
	SenderID   string
	Signaler   Signaler
	Logger     *slog.Logger
}

// Session is one peer connection and its data channel.
type Session struct {
	opts Options
	log  *slog.Logger
	pc   *webrtc.PeerConnection

	mu      sync.Mutex
	dc      *webrtc.DataChannel
	pending []webrtc.ICECandidateInit
	remote  string

	messages chan Message
	open     chan struct{}
	openOnce sync.Once
	done     chan struct{}
	doneOnce sync.Once
}

func New(opts Options) (*Session, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Signaler == nil {
		return nil, errors.New("peer: signaler is required")
	}

	se := webrtc.SettingEngine{LoggerFactory: logging.PionFactory(opts.Logger)}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	policy := webrtc.ICETransportPolicyAll
	if opts.ForceRelay {
		policy = webrtc.ICETransportPolicyRelay
	}
	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers:         opts.ICEServers,
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	s := &Session{
		opts:     opts,
		log:      opts.Logger.With("component", "peer"),
		pc:       pc,
		messages: make(chan Message, 32),
		open:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.setupHandlers()
	return s, nil
}

// Messages delivers data channel messages other than device info.
func (s *Session) Messages() <-chan Message { return s.messages }

// Open is closed once the data channel is usable.
func (s *Session) Open() <-chan struct{} { return s.open }

// Done is closed when the connection fails or is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Remote is the sender id the other side announced on the data channel,
// or "peer" before it has.
func (s *Session) Remote() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remote == "" {
		return "peer"
	}
	return s.remote
}

// SignalingState exposes the negotiation state, mostly for tests.
func (s *Session) SignalingState() webrtc.SignalingState { return s.pc.SignalingState() }

func (s *Session) setupHandlers() {
	s.pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		s.log.Debug("ice connection state", "state", state.String())
		if state == webrtc.ICEConnectionStateFailed || state == webrtc.ICEConnectionStateClosed {
			s.finish()
		}
	})

	// Trickle ICE through the relay.
	s.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if err := s.signal(signaling.KindICECandidate, c.ToJSON()); err != nil {
			s.log.Debug("candidate not sent", "err", err)
		}
	})

	s.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != channelLabel {
			return
		}
		s.attach(dc)
	})
}

// Offer starts negotiation. The member that was already in the room calls
// it when it sees peer-joined.
func (s *Session) Offer() error {
	dc, err := s.pc.CreateDataChannel(channelLabel, nil)
	if err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}
	s.attach(dc)

	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	return s.signal(signaling.KindOffer, offer)
}

// HandleSignal applies an offer, answer or ICE candidate from the other
// member. The payload is the browser's RTCSessionDescriptionInit or
// RTCIceCandidateInit JSON.
func (s *Session) HandleSignal(env signaling.Envelope) error {
	switch env.Kind {
	case signaling.KindOffer:
		var offer webrtc.SessionDescription
		if err := json.Unmarshal(env.Payload, &offer); err != nil {
			return fmt.Errorf("decode offer: %w", err)
		}
		if err := s.pc.SetRemoteDescription(offer); err != nil {
			return fmt.Errorf("set remote offer: %w", err)
		}
		s.flushCandidates()

		answer, err := s.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := s.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local description: %w", err)
		}
		return s.signal(signaling.KindAnswer, answer)

	case signaling.KindAnswer:
		var answer webrtc.SessionDescription
		if err := json.Unmarshal(env.Payload, &answer); err != nil {
			return fmt.Errorf("decode answer: %w", err)
		}
		if err := s.pc.SetRemoteDescription(answer); err != nil {
			return fmt.Errorf("set remote answer: %w", err)
		}
		s.flushCandidates()
		return nil

	case signaling.KindICECandidate:
		var c webrtc.ICECandidateInit
		if err := json.Unmarshal(env.Payload, &c); err != nil {
			return fmt.Errorf("decode candidate: %w", err)
		}
		if s.pc.RemoteDescription() == nil {
			s.mu.Lock()
			s.pending = append(s.pending, c)
			s.mu.Unlock()
			return nil
		}
		return s.pc.AddICECandidate(c)
	}
	return fmt.Errorf("not a signal: %s", env.Kind)
}

// Send writes m to the data channel.
func (s *Session) Send(m Message) error {
	s.mu.Lock()
	dc := s.dc
	s.mu.Unlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrChannelClosed
	}
	data, err := m.encode()
	if err != nil {
		return err
	}
	return dc.Send(data)
}

// SendNote is Send for a NotePayload.
func (s *Session) SendNote(text string) error {
	m, err := NewMessage(TypeNote, NotePayload{Text: text})
	if err != nil {
		return err
	}
	return s.Send(m)
}

func (s *Session) Close() error {
	if m, err := NewMessage(TypeBye, nil); err == nil {
		s.Send(m)
	}
	err := s.pc.Close()
	s.finish()
	return err
}

func (s *Session) attach(dc *webrtc.DataChannel) {
	s.mu.Lock()
	s.dc = dc
	s.mu.Unlock()

	dc.OnOpen(func() {
		s.log.Info("data channel open")
		s.openOnce.Do(func() { close(s.open) })
		s.sendDeviceInfo()
	})

	dc.OnMessage(func(raw webrtc.DataChannelMessage) {
		m, err := decodeMessage(raw.Data)
		if err != nil {
			s.log.Warn("failed to parse data channel message", "err", err)
			return
		}
		switch m.Type {
		case TypeDeviceInfo:
			var info DeviceInfoPayload
			if err := m.DecodePayload(&info); err == nil {
				s.mu.Lock()
				s.remote = info.SenderID
				s.mu.Unlock()
				s.log.Info("peer device", "name", info.DeviceName, "version", info.DeviceVersion, "sender", info.SenderID)
			}
		case TypeBye:
			s.finish()
		default:
			select {
			case s.messages <- m:
			case <-s.done:
			}
		}
	})
}

func (s *Session) sendDeviceInfo() {
	m, err := NewMessage(TypeDeviceInfo, DeviceInfoPayload{
		DeviceName:    "CLI",
		DeviceVersion: version.Version,
		SenderID:      s.opts.SenderID,
	})
	if err == nil {
		s.Send(m)
	}
}

func (s *Session) flushCandidates() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, c := range pending {
		if err := s.pc.AddICECandidate(c); err != nil {
			s.log.Debug("dropping buffered candidate", "err", err)
		}
	}
}

func (s *Session) signal(kind signaling.Kind, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.opts.Signaler.Send(signaling.Envelope{Kind: kind, SenderID: s.opts.SenderID, Payload: b})
}

func (s *Session) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}
