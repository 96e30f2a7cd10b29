package peer

import (
	"errors"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/chatterbox/internal/call"
	"github.com/BioHazard786/chatterbox/internal/config"
)

// loopback keeps ICE on the local host so tests need no network.
func loopback(se *webrtc.SettingEngine) {
	se.SetIncludeLoopbackCandidate(true)
	se.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4})
}

type testPeer struct {
	s          *Session
	candidates chan webrtc.ICECandidateInit
	connected  chan struct{}
	tracks     chan string
	control    chan Control
}

func newTestPeer(t *testing.T, media MediaSource) *testPeer {
	t.Helper()
	p := &testPeer{
		candidates: make(chan webrtc.ICECandidateInit, 64),
		connected:  make(chan struct{}),
		tracks:     make(chan string, 4),
		control:    make(chan Control, 4),
	}

	s, err := NewSession(&config.Config{}, Options{
		Media:    media,
		Settings: loopback,
		Handlers: Handlers{
			OnICECandidate: func(c webrtc.ICECandidateInit) { p.candidates <- c },
			OnConnected:    func() { close(p.connected) },
			OnRemoteTrack:  func(tr *webrtc.TrackRemote) { p.tracks <- tr.Kind().String() },
			OnControl:      func(c Control) { p.control <- c },
		},
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	p.s = s
	return p
}

// collect waits briefly for candidates gathered so far.
func collect(p *testPeer) []webrtc.ICECandidateInit {
	var out []webrtc.ICECandidateInit
	timeout := time.After(2 * time.Second)
	for {
		select {
		case c := <-p.candidates:
			out = append(out, c)
		case <-timeout:
			return out
		case <-time.After(300 * time.Millisecond):
			if len(out) > 0 {
				return out
			}
		}
	}
}

func waitConnected(t *testing.T, p *testPeer, name string) {
	t.Helper()
	select {
	case <-p.connected:
	case <-time.After(15 * time.Second):
		t.Fatalf("%s never connected (state %s)", name, p.s.ConnectionState())
	}
}

// TestCandidatesBeforeAnswer delivers every candidate before the
// receiving side has a remote description.
func TestCandidatesBeforeAnswer(t *testing.T) {
	caller := newTestPeer(t, NewSilenceSource())
	callee := newTestPeer(t, NewSilenceSource())

	offer, err := caller.s.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}

	callerCands := collect(caller)
	if len(callerCands) == 0 {
		t.Fatal("caller gathered no candidates")
	}
	for _, c := range callerCands {
		if err := callee.s.AddICECandidate(c); err != nil {
			t.Fatalf("callee AddICECandidate before offer: %v", err)
		}
	}

	answer, err := callee.s.CreateAnswer(*offer)
	if err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}

	for _, c := range collect(callee) {
		if err := caller.s.AddICECandidate(c); err != nil {
			t.Fatalf("caller AddICECandidate before answer: %v", err)
		}
	}

	if err := caller.s.HandleAnswer(*answer); err != nil {
		t.Fatalf("HandleAnswer: %v", err)
	}
	// Duplicate answer is ignored.
	if err := caller.s.HandleAnswer(*answer); err != nil {
		t.Fatalf("second HandleAnswer: %v", err)
	}

	waitConnected(t, caller, "caller")
	waitConnected(t, callee, "callee")

	select {
	case kind := <-callee.tracks:
		if kind != "audio" {
			t.Fatalf("remote track kind=%s", kind)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("callee never received the caller's audio")
	}
}

func TestHangupOverControlChannel(t *testing.T) {
	caller, callee := connectPair(t)

	deadline := time.Now().Add(10 * time.Second)
	for {
		err := caller.s.SendHangup()
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("SendHangup: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	select {
	case c := <-callee.control:
		if c.Type != ControlHangup {
			t.Fatalf("control type=%s", c.Type)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("hangup never arrived")
	}

	if err := callee.s.SendMute("audio", true); err != nil {
		t.Fatalf("SendMute: %v", err)
	}
	select {
	case c := <-caller.control:
		var m MutePayload
		if c.Type != ControlMute || c.DecodePayload(&m) != nil || !m.Muted || m.Kind != "audio" {
			t.Fatalf("control=%+v mute=%+v", c, m)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("mute never arrived")
	}
}

// connectPair negotiates two sessions, forwarding candidates as they
// arrive.
func connectPair(t *testing.T) (*testPeer, *testPeer) {
	t.Helper()
	caller := newTestPeer(t, nil)
	callee := newTestPeer(t, nil)

	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	forward := func(from, to *testPeer) {
		for {
			select {
			case c := <-from.candidates:
				to.s.AddICECandidate(c)
			case <-stop:
				return
			}
		}
	}
	go forward(caller, callee)
	go forward(callee, caller)

	offer, err := caller.s.CreateOffer()
	if err != nil {
		t.Fatal(err)
	}
	answer, err := callee.s.CreateAnswer(*offer)
	if err != nil {
		t.Fatal(err)
	}
	if err := caller.s.HandleAnswer(*answer); err != nil {
		t.Fatal(err)
	}

	waitConnected(t, caller, "caller")
	waitConnected(t, callee, "callee")
	return caller, callee
}

func TestNegotiatesOnce(t *testing.T) {
	p := newTestPeer(t, nil)
	offer, err := p.s.CreateOffer()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := p.s.CreateOffer(); !errors.Is(err, call.ErrAlreadyNegotiated) {
		t.Fatalf("second CreateOffer err=%v", err)
	}
	if _, err := p.s.CreateAnswer(*offer); !errors.Is(err, call.ErrAlreadyNegotiated) {
		t.Fatalf("CreateAnswer after offer err=%v", err)
	}
}

func TestHandleAnswerBeforeOfferIsIgnored(t *testing.T) {
	p := newTestPeer(t, nil)
	if err := p.s.HandleAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}); err != nil {
		t.Fatalf("HandleAnswer in stable state: %v", err)
	}
}

func TestRejectsWrongDescriptionType(t *testing.T) {
	p := newTestPeer(t, nil)
	if _, err := p.s.CreateAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer}); !errors.Is(err, call.ErrUnexpectedSignal) {
		t.Fatalf("CreateAnswer(answer) err=%v", err)
	}
	if err := p.s.HandleAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer}); !errors.Is(err, call.ErrUnexpectedSignal) {
		t.Fatalf("HandleAnswer(offer) err=%v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	p := newTestPeer(t, NewSilenceSource())
	if err := p.s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := p.s.SendHangup(); err == nil {
		t.Fatal("SendHangup after Close succeeded")
	}
}

type failingMedia struct{}

func (failingMedia) Open() ([]webrtc.TrackLocal, error) { return nil, errors.New("no device") }
func (failingMedia) Start()                             {}
func (failingMedia) Close() error                       { return nil }

func TestMediaFailureSurfacesAsMediaAccess(t *testing.T) {
	_, err := NewSession(&config.Config{}, Options{Media: failingMedia{}, Settings: loopback})
	if !errors.Is(err, call.ErrMediaAccess) {
		t.Fatalf("err=%v, want ErrMediaAccess", err)
	}
}

func TestTrackStatsCountsLoss(t *testing.T) {
	var ts TrackStats
	now := time.Now()
	for i, seq := range []uint16{65534, 65535, 2, 1, 3} {
		ts.observe(&rtp.Packet{Header: rtp.Header{SequenceNumber: seq}, Payload: make([]byte, 10)}, now.Add(time.Duration(i)*time.Second))
	}
	if ts.Packets != 5 || ts.Bytes != 50 {
		t.Fatalf("packets=%d bytes=%d", ts.Packets, ts.Bytes)
	}
	// 0 and 1 were missing when 2 arrived; the late 1 does not undo that.
	if ts.Lost != 2 {
		t.Fatalf("lost=%d, want 2", ts.Lost)
	}
	if got := ts.Bitrate(); got != 100 {
		t.Fatalf("bitrate=%v, want 100", got)
	}
}

func TestFailedAnswerCanBeRetried(t *testing.T) {
	caller := newTestPeer(t, nil)
	callee := newTestPeer(t, nil)

	if _, err := callee.s.CreateAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "not sdp"}); err == nil {
		t.Fatal("CreateAnswer accepted a broken offer")
	}

	offer, err := caller.s.CreateOffer()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := callee.s.CreateAnswer(*offer); err != nil {
		t.Fatalf("CreateAnswer after a failed attempt: %v", err)
	}
	if _, err := callee.s.CreateAnswer(*offer); !errors.Is(err, call.ErrAlreadyNegotiated) {
		t.Fatalf("third CreateAnswer err=%v", err)
	}
}

func TestICEConfiguration(t *testing.T) {
	got := iceConfiguration(&config.Config{})
	if len(got.ICEServers) != 0 {
		t.Fatalf("ICEServers=%v, want none", got.ICEServers)
	}
	if got.ICECandidatePoolSize != iceCandidatePoolSize {
		t.Fatalf("ICECandidatePoolSize=%d, want %d", got.ICECandidatePoolSize, iceCandidatePoolSize)
	}

	got = iceConfiguration(&config.Config{
		STUNServers: []string{"stun:stun.l.google.com:19302"},
		TURNServer:  "turn.example.com",
		TURNUser:    "u",
		TURNPass:    "p",
		ForceRelay:  true,
	})
	if len(got.ICEServers) != 2 {
		t.Fatalf("ICEServers=%v, want STUN and TURN", got.ICEServers)
	}
	if turn := got.ICEServers[1]; turn.Username != "u" || turn.Credential != "p" || len(turn.URLs) != 3 {
		t.Fatalf("TURN server=%+v", turn)
	}
	if got.ICETransportPolicy != webrtc.ICETransportPolicyRelay {
		t.Fatalf("policy=%s, want relay", got.ICETransportPolicy)
	}
}
