// Package phone places and answers calls by driving the relay link, the
// peer session and the call record together.
package phone

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/chatterbox/internal/call"
	"github.com/BioHazard786/chatterbox/internal/config"
	"github.com/BioHazard786/chatterbox/internal/peer"
	"github.com/BioHazard786/chatterbox/internal/protocol"
	"github.com/BioHazard786/chatterbox/internal/signaling"
)

// DefaultRingTimeout bounds how long a call waits for the other side.
const DefaultRingTimeout = 60 * time.Second

const statsInterval = time.Second

// Observer receives progress of a call. Methods are called from the
// goroutine running Call or Answer.
type Observer interface {
	Progress(msg string)

	// Ready is called once the relay link and room are set up, before
	// waiting for the other participant.
	Ready()

	Connected(at time.Time)
	Stats([]peer.TrackStats)
}

// Options configure a Phone.
type Options struct {
	Config *config.Config
	UserID string
	Type   call.Type

	// RingTimeout bounds the wait for the other participant. Zero means
	// DefaultRingTimeout.
	RingTimeout time.Duration

	// Media builds the local media source of each call. Nil sends silence.
	Media func() peer.MediaSource

	// Settings adjusts the pion setting engine.
	Settings func(*webrtc.SettingEngine)

	Observer Observer
}

// Phone runs one call at a time.
type Phone struct {
	opts   Options
	hangup chan struct{}
	mute   chan struct{}
}

// New creates a Phone.
func New(opts Options) *Phone {
	if opts.RingTimeout <= 0 {
		opts.RingTimeout = DefaultRingTimeout
	}
	if opts.Type == "" {
		opts.Type = call.Audio
	}
	if opts.Media == nil {
		opts.Media = func() peer.MediaSource { return peer.NewSilenceSource() }
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Phone{
		opts:   opts,
		hangup: make(chan struct{}, 1),
		mute:   make(chan struct{}, 1),
	}
}

// Hangup ends the current call. It does not block.
func (p *Phone) Hangup() {
	select {
	case p.hangup <- struct{}{}:
	default:
	}
}

// ToggleMute flips the local mute state and tells the peer.
func (p *Phone) ToggleMute() {
	select {
	case p.mute <- struct{}{}:
	default:
	}
}

// line is the per-call state shared by both roles.
type line struct {
	callID  string
	self    string
	remote  string
	client  *signaling.Client
	events  *signaling.Handler
	session *peer.Session

	connected chan struct{}
	failed    chan error
	control   chan peer.Control
}

func (p *Phone) dial(ctx context.Context, callID string) (*line, error) {
	p.opts.Observer.Progress("Connecting to relay")

	client := signaling.NewClient(p.opts.Config.ServerURL)
	if err := client.Connect(ctx); err != nil {
		return nil, call.WrapError("connect to relay", call.ErrSignalingError, err.Error())
	}
	events := signaling.NewHandler(client)
	go events.Start()

	return &line{
		callID:    callID,
		self:      p.opts.UserID,
		client:    client,
		events:    events,
		connected: make(chan struct{}, 1),
		failed:    make(chan error, 1),
		control:   make(chan peer.Control, 8),
	}, nil
}

func (p *Phone) openSession(l *line) error {
	s, err := peer.NewSession(p.opts.Config, peer.Options{
		Media:    p.opts.Media(),
		Video:    p.opts.Type == call.Video,
		Settings: p.opts.Settings,
		Handlers: peer.Handlers{
			OnICECandidate: func(c webrtc.ICECandidateInit) {
				if err := l.client.SendSignal(l.callID, l.self, l.remote, protocol.KindICECandidate, c); err != nil {
					slog.Debug("send candidate", "err", err)
				}
			},
			OnConnected: func() { notify(l.connected, struct{}{}) },
			OnFailed:    func(err error) { notify(l.failed, err) },
			OnControl:   func(c peer.Control) { notify(l.control, c) },
		},
	})
	if err != nil {
		return err
	}
	l.session = s
	return nil
}

func (l *line) close() {
	if l.session != nil {
		l.session.Close()
	}
	l.client.Close()
}

// Call places a call to callee in room callID and blocks until it ends.
// The returned call is never nil.
func (p *Phone) Call(ctx context.Context, callID, callee string) (*call.Call, error) {
	c := call.New(callID, p.opts.Type, p.opts.UserID, callee)

	l, err := p.dial(ctx, callID)
	if err != nil {
		c.Fail()
		return c, err
	}
	defer l.close()
	l.remote = callee

	if err := l.client.JoinCall(callID, p.opts.UserID); err != nil {
		c.Fail()
		return c, call.WrapError("join call", call.ErrSignalingError, err.Error())
	}
	p.opts.Observer.Ready()
	p.opts.Observer.Progress("Ringing " + callee)

	timer := time.NewTimer(p.opts.RingTimeout)
	defer timer.Stop()

wait:
	for {
		select {
		case uj, ok := <-l.events.UserJoined:
			if !ok {
				c.Fail()
				return c, call.NewError("wait for callee", call.ErrSignalingError)
			}
			slog.Debug("participant joined", "user", uj.UserID)
			break wait
		case pl, ok := <-l.events.PeerLeft:
			if !ok {
				c.Fail()
				return c, call.NewError("wait for callee", call.ErrSignalingError)
			}
			slog.Debug("participant left while ringing", "user", pl.UserID)
		case err, ok := <-l.events.Error:
			if !ok {
				c.Fail()
				return c, call.NewError("wait for callee", call.ErrSignalingError)
			}
			slog.Debug("relay message", "err", err)
		case <-timer.C:
			c.End()
			l.client.LeaveCall(callID)
			return c, call.WrapError("wait for callee", call.ErrTimeout, callee+" did not answer")
		case <-p.hangup:
			c.End()
			l.client.LeaveCall(callID)
			return c, nil
		case <-ctx.Done():
			c.End()
			l.client.LeaveCall(callID)
			return c, nil
		}
	}

	if err := c.Accept(); err != nil {
		return c, err
	}
	p.opts.Observer.Progress("Connecting")

	if err := p.openSession(l); err != nil {
		c.Fail()
		return c, err
	}
	offer, err := l.session.CreateOffer()
	if err != nil {
		c.Fail()
		return c, err
	}
	if err := l.client.SendSignal(callID, p.opts.UserID, callee, protocol.KindOffer, offer); err != nil {
		c.Fail()
		return c, call.WrapError("send offer", call.ErrSignalingError, err.Error())
	}

	return c, p.converse(ctx, c, l)
}

// Answer joins room callID, waits for the caller's offer and blocks until
// the call ends. The returned call is nil only if no caller showed up.
// Hanging up after a caller joined but before its offer arrived rejects
// the call.
func (p *Phone) Answer(ctx context.Context, callID string) (*call.Call, error) {
	l, err := p.dial(ctx, callID)
	if err != nil {
		return nil, err
	}
	defer l.close()

	// The session exists before joining so candidates that race ahead of
	// the offer are buffered.
	p.opts.Observer.Progress("Preparing media")
	if err := p.openSession(l); err != nil {
		return nil, err
	}
	if err := l.client.JoinCall(callID, p.opts.UserID); err != nil {
		return nil, call.WrapError("join call", call.ErrSignalingError, err.Error())
	}
	p.opts.Observer.Ready()
	p.opts.Observer.Progress("Waiting for the caller")

	timer := time.NewTimer(p.opts.RingTimeout)
	defer timer.Stop()

	// announced holds the users we re-joined for. Each is told about us
	// once until it leaves.
	announced := make(map[string]bool)
	caller := ""

	decline := func() (*call.Call, error) {
		l.client.LeaveCall(callID)
		if caller == "" {
			return nil, nil
		}
		c := call.New(callID, p.opts.Type, caller, p.opts.UserID)
		return c, ignoreTransition(c.Reject())
	}

	for {
		select {
		case uj, ok := <-l.events.UserJoined:
			if !ok {
				return nil, call.NewError("wait for offer", call.ErrSignalingError)
			}
			caller = uj.UserID
			if announced[uj.UserID] {
				continue
			}
			announced[uj.UserID] = true
			// The caller joined after us and is waiting to hear of us.
			slog.Debug("caller joined, announcing", "user", uj.UserID)
			l.client.JoinCall(callID, p.opts.UserID)

		case pl, ok := <-l.events.PeerLeft:
			if !ok {
				return nil, call.NewError("wait for offer", call.ErrSignalingError)
			}
			delete(announced, pl.UserID)
			if pl.UserID == caller {
				caller = ""
			}

		case env, ok := <-l.events.Signal:
			if !ok {
				return nil, call.NewError("wait for offer", call.ErrSignalingError)
			}
			switch env.ResolvedKind() {
			case protocol.KindICECandidate:
				p.applyCandidate(l, env)
			case protocol.KindOffer:
				c, err := p.acceptOffer(l, env)
				if err != nil {
					return c, err
				}
				return c, p.converse(ctx, c, l)
			default:
				slog.Debug("ignoring signal before offer", "kind", env.ResolvedKind())
			}

		case err, ok := <-l.events.Error:
			if !ok {
				return nil, call.NewError("wait for offer", call.ErrSignalingError)
			}
			slog.Debug("relay message", "err", err)

		case <-timer.C:
			l.client.LeaveCall(callID)
			return nil, call.WrapError("wait for offer", call.ErrTimeout, "no caller in "+callID)

		case <-p.hangup:
			return decline()

		case <-ctx.Done():
			return decline()
		}
	}
}

func (p *Phone) acceptOffer(l *line, env *protocol.SignalEnvelope) (*call.Call, error) {
	l.remote = env.SenderID
	c := call.New(l.callID, p.opts.Type, env.SenderID, p.opts.UserID)
	if err := c.Accept(); err != nil {
		return c, err
	}
	p.opts.Observer.Progress("Connecting")

	var offer webrtc.SessionDescription
	if err := json.Unmarshal(env.Data, &offer); err != nil {
		c.Fail()
		return c, call.WrapError("read offer", call.ErrUnexpectedSignal, err.Error())
	}
	answer, err := l.session.CreateAnswer(offer)
	if err != nil {
		c.Fail()
		return c, err
	}
	if err := l.client.SendSignal(l.callID, p.opts.UserID, l.remote, protocol.KindAnswer, answer); err != nil {
		c.Fail()
		return c, call.WrapError("send answer", call.ErrSignalingError, err.Error())
	}
	return c, nil
}

func (p *Phone) applyCandidate(l *line, env *protocol.SignalEnvelope) {
	var cand webrtc.ICECandidateInit
	if err := json.Unmarshal(env.Data, &cand); err != nil {
		slog.Debug("malformed candidate", "err", err)
		return
	}
	if err := l.session.AddICECandidate(cand); err != nil {
		slog.Debug("add candidate", "err", err)
	}
}

// converse runs the negotiated call until either side ends it.
func (p *Phone) converse(ctx context.Context, c *call.Call, l *line) error {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	signals := l.events.Signal
	left := l.events.PeerLeft
	joined := l.events.UserJoined
	muted := false

	hangup := func() error {
		if err := l.session.SendHangup(); err != nil {
			slog.Debug("send hangup", "err", err)
		}
		l.client.LeaveCall(l.callID)
		return ignoreTransition(c.End())
	}

	for {
		select {
		case env, ok := <-signals:
			if !ok {
				signals, left, joined = nil, nil, nil
				if c.Status() != call.StatusConnected {
					c.Fail()
					return call.NewError("negotiate", call.ErrSignalingError)
				}
				slog.Warn("relay connection lost, media continues")
				continue
			}
			p.handleSignal(l, env)

		case pl, ok := <-left:
			if !ok {
				left = nil
				continue
			}
			if pl.CallID != "" && pl.CallID != l.callID {
				continue
			}
			p.opts.Observer.Progress("Peer left")
			wasConnected := c.Status() == call.StatusConnected
			if err := ignoreTransition(c.PeerLeft()); err != nil || wasConnected {
				return err
			}
			return call.WrapError("negotiate", call.ErrPeerLeft, pl.UserID+" left before the call connected")

		case _, ok := <-joined:
			if !ok {
				joined = nil
			}

		case <-l.connected:
			if err := c.Connected(); err != nil {
				return err
			}
			p.opts.Observer.Progress("Connected")
			p.opts.Observer.Connected(time.Now())

		case err := <-l.failed:
			c.Fail()
			return err

		case ctl := <-l.control:
			switch ctl.Type {
			case peer.ControlHangup:
				p.opts.Observer.Progress("Call ended by peer")
				return ignoreTransition(c.End())
			case peer.ControlMute:
				var m peer.MutePayload
				if err := ctl.DecodePayload(&m); err == nil && m.Muted {
					p.opts.Observer.Progress("Peer muted " + m.Kind)
				} else {
					p.opts.Observer.Progress("Connected")
				}
			}

		case <-p.mute:
			muted = !muted
			if err := l.session.SendMute("audio", muted); err != nil {
				slog.Debug("send mute", "err", err)
			}

		case <-ticker.C:
			p.opts.Observer.Stats(l.session.Stats())

		case <-p.hangup:
			return hangup()

		case <-ctx.Done():
			return hangup()
		}
	}
}

func (p *Phone) handleSignal(l *line, env *protocol.SignalEnvelope) {
	switch env.ResolvedKind() {
	case protocol.KindAnswer:
		var answer webrtc.SessionDescription
		if err := json.Unmarshal(env.Data, &answer); err != nil {
			slog.Debug("malformed answer", "err", err)
			return
		}
		if err := l.session.HandleAnswer(answer); err != nil {
			slog.Warn("apply answer", "err", err)
		}
	case protocol.KindICECandidate:
		p.applyCandidate(l, env)
	case protocol.KindOffer:
		slog.Debug("ignoring renegotiation offer")
	default:
		slog.Debug("ignoring unknown signal", "from", env.From)
	}
}

// ignoreTransition treats a call that already ended as ended.
func ignoreTransition(err error) error {
	if errors.Is(err, call.ErrInvalidTransition) {
		return nil
	}
	return err
}

func notify[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

type nopObserver struct{}

func (nopObserver) Progress(string)         {}
func (nopObserver) Ready()                  {}
func (nopObserver) Connected(time.Time)     {}
func (nopObserver) Stats([]peer.TrackStats) {}
