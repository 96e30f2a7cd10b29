// Package peer owns the WebRTC peer connection of one call and drives
// the offer, answer and ICE exchange for it.
package peer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/BioHazard786/chatterbox/internal/call"
	"github.com/BioHazard786/chatterbox/internal/config"
	"github.com/BioHazard786/chatterbox/internal/utils"
)

// iceCandidatePoolSize is the number of candidates gathered ahead of the
// first offer.
const iceCandidatePoolSize = 10

var errControlNotOpen = errors.New("control channel not open")

// Handlers are the session callbacks. Any of them may be nil. They run
// on pion's goroutines and must not block.
type Handlers struct {
	// OnICECandidate is called for every local candidate gathered.
	OnICECandidate func(webrtc.ICECandidateInit)

	// OnRemoteTrack is called when the peer's media arrives. The session
	// reads the track for statistics, so the callback must not.
	OnRemoteTrack func(*webrtc.TrackRemote)

	OnConnected func()

	// OnFailed is called at most once, when the connection fails for good.
	OnFailed func(error)

	OnControl func(Control)
}

// Options configure a session.
type Options struct {
	Handlers Handlers

	// Media provides the local tracks. Nil sends no local media.
	Media MediaSource

	// Video adds a receive-only video transceiver.
	Video bool

	// Settings adjusts the pion setting engine before the API is built.
	Settings func(*webrtc.SettingEngine)

	Logger *slog.Logger
}

// Session is the peer connection of one call.
type Session struct {
	pc      *webrtc.PeerConnection
	control *webrtc.DataChannel
	media   MediaSource
	h       Handlers
	log     *slog.Logger
	stats   *statsTable

	// mu serialises description changes with candidate buffering.
	mu         sync.Mutex
	negotiated bool
	remoteSet  bool
	pending    []webrtc.ICECandidateInit

	connectedOnce sync.Once
	failOnce      sync.Once
	closeOnce     sync.Once
	closeErr      error
}

// NewSession creates the peer connection, acquires local media and opens
// the control channel.
func NewSession(cfg *config.Config, opts Options) (*Session, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	api, err := newAPI(log, opts.Settings)
	if err != nil {
		return nil, call.NewError("create webrtc api", err)
	}

	pc, err := api.NewPeerConnection(iceConfiguration(cfg))
	if err != nil {
		return nil, call.NewError("create peer connection", err)
	}

	s := &Session{
		pc:    pc,
		media: opts.Media,
		h:     opts.Handlers,
		log:   log,
		stats: newStatsTable(),
	}

	if err := s.setup(opts); err != nil {
		pc.Close()
		if s.media != nil {
			s.media.Close()
		}
		return nil, err
	}
	return s, nil
}

func newAPI(log *slog.Logger, configure func(*webrtc.SettingEngine)) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, err
	}

	se := webrtc.SettingEngine{}
	se.LoggerFactory = newLoggerFactory(log)
	if configure != nil {
		configure(&se)
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(se),
	), nil
}

func iceConfiguration(cfg *config.Config) webrtc.Configuration {
	var servers []webrtc.ICEServer
	if stun := cfg.GetSTUNServers(); len(stun) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		servers = append(servers, webrtc.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := webrtc.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || utils.ShouldForceRelay()) {
		policy = webrtc.ICETransportPolicyRelay
	}

	return webrtc.Configuration{
		ICEServers:           servers,
		ICETransportPolicy:   policy,
		ICECandidatePoolSize: iceCandidatePoolSize,
	}
}

func (s *Session) setup(opts Options) error {
	if s.media != nil {
		tracks, err := s.media.Open()
		if err != nil {
			return call.WrapError("acquire media", call.ErrMediaAccess, err.Error())
		}
		for _, track := range tracks {
			sender, err := s.pc.AddTrack(track)
			if err != nil {
				return call.NewError("add track", err)
			}
			go drainRTCP(sender)
		}
	}

	if opts.Video {
		_, err := s.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		})
		if err != nil {
			return call.NewError("add video transceiver", err)
		}
	}

	negotiated := true
	id := controlChannelID
	dc, err := s.pc.CreateDataChannel(controlChannelLabel, &webrtc.DataChannelInit{
		Negotiated: &negotiated,
		ID:         &id,
	})
	if err != nil {
		return call.NewError("create control channel", err)
	}
	dc.OnMessage(s.handleControl)
	s.control = dc

	s.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || s.h.OnICECandidate == nil {
			return
		}
		s.h.OnICECandidate(c.ToJSON())
	})
	s.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.log.Debug("remote track", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
		if s.h.OnRemoteTrack != nil {
			s.h.OnRemoteTrack(track)
		}
		go s.readTrack(track)
	})
	s.pc.OnConnectionStateChange(s.handleState)

	return nil
}

// drainRTCP reads RTCP for sender so the interceptors keep working.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (s *Session) readTrack(track *webrtc.TrackRemote) {
	ts := s.stats.track(track.ID(), track.Kind().String(), track.Codec().MimeType)
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		s.stats.observe(ts, pkt)
	}
}

func (s *Session) handleState(state webrtc.PeerConnectionState) {
	s.log.Debug("peer connection state", "state", state.String())

	switch state {
	case webrtc.PeerConnectionStateConnected:
		s.connectedOnce.Do(func() {
			if s.media != nil {
				s.media.Start()
			}
			if s.h.OnConnected != nil {
				s.h.OnConnected()
			}
		})

	case webrtc.PeerConnectionStateFailed:
		s.failOnce.Do(func() {
			if s.h.OnFailed != nil {
				s.h.OnFailed(call.NewError("peer connection", call.ErrConnectionFailed))
			}
		})
	}
}

func (s *Session) handleControl(msg webrtc.DataChannelMessage) {
	var c Control
	if err := msgpack.Unmarshal(msg.Data, &c); err != nil {
		s.log.Debug("dropping malformed control message", "err", err)
		return
	}
	if s.h.OnControl != nil {
		s.h.OnControl(c)
	}
}

// CreateOffer creates an offer, sets it as the local description and
// returns it. A session negotiates once; a failed attempt may be retried.
func (s *Session) CreateOffer() (*webrtc.SessionDescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.negotiated {
		return nil, call.NewError("create offer", call.ErrAlreadyNegotiated)
	}

	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return nil, call.NewError("create offer", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return nil, call.NewError("set local description", err)
	}
	s.negotiated = true
	return s.pc.LocalDescription(), nil
}

// CreateAnswer applies offer, creates the answer and sets it as the local
// description.
func (s *Session) CreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.negotiated {
		return nil, call.NewError("create answer", call.ErrAlreadyNegotiated)
	}
	if offer.Type != webrtc.SDPTypeOffer {
		return nil, call.WrapError("create answer", call.ErrUnexpectedSignal, offer.Type.String())
	}

	if err := s.setRemote(offer); err != nil {
		return nil, err
	}

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return nil, call.NewError("create answer", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return nil, call.NewError("set local description", err)
	}
	s.negotiated = true
	return s.pc.LocalDescription(), nil
}

// HandleAnswer applies the peer's answer. It is a no-op once the
// signaling state is stable, so a duplicate answer is ignored.
func (s *Session) HandleAnswer(answer webrtc.SessionDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if answer.Type != webrtc.SDPTypeAnswer {
		return call.WrapError("handle answer", call.ErrUnexpectedSignal, answer.Type.String())
	}
	if s.pc.SignalingState() == webrtc.SignalingStateStable {
		s.log.Debug("ignoring answer in stable state")
		return nil
	}
	return s.setRemote(answer)
}

// AddICECandidate applies a remote candidate, or buffers it until the
// remote description is set.
func (s *Session) AddICECandidate(c webrtc.ICECandidateInit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.remoteSet {
		s.pending = append(s.pending, c)
		return nil
	}
	if err := s.pc.AddICECandidate(c); err != nil {
		return call.NewError("add ICE candidate", err)
	}
	return nil
}

// setRemote sets desc and flushes buffered candidates. Called with mu held.
func (s *Session) setRemote(desc webrtc.SessionDescription) error {
	if err := s.pc.SetRemoteDescription(desc); err != nil {
		return call.NewError("set remote description", err)
	}
	s.remoteSet = true

	pending := s.pending
	s.pending = nil
	for _, c := range pending {
		if err := s.pc.AddICECandidate(c); err != nil {
			s.log.Warn("buffered candidate rejected", "err", err)
		}
	}
	if len(pending) > 0 {
		s.log.Debug("applied buffered candidates", "count", len(pending))
	}
	return nil
}

// SendControl sends c to the peer over the control channel.
func (s *Session) SendControl(c Control) error {
	if s.control.ReadyState() != webrtc.DataChannelStateOpen {
		return call.NewError("send "+c.Type, errControlNotOpen)
	}
	b, err := msgpack.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode control message: %w", err)
	}
	return s.control.Send(b)
}

// SendHangup tells the peer the call is over.
func (s *Session) SendHangup() error {
	c, _ := NewControl(ControlHangup, nil)
	return s.SendControl(c)
}

// SendMute reports a mute change of the local track kind.
func (s *Session) SendMute(kind string, muted bool) error {
	c, err := NewControl(ControlMute, MutePayload{Kind: kind, Muted: muted})
	if err != nil {
		return err
	}
	return s.SendControl(c)
}

// ConnectionState returns the state of the underlying peer connection.
func (s *Session) ConnectionState() webrtc.PeerConnectionState {
	return s.pc.ConnectionState()
}

// Stats returns the receive statistics of every remote track so far.
func (s *Session) Stats() []TrackStats {
	return s.stats.snapshot()
}

// Close tears the connection down and releases local media. It is safe
// to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.media != nil {
			if err := s.media.Close(); err != nil {
				s.log.Debug("close media", "err", err)
			}
		}
		s.closeErr = s.pc.Close()
	})
	return s.closeErr
}
