package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/BioHazard786/chatterbox/internal/config"
	"github.com/BioHazard786/chatterbox/internal/protocol"
	"github.com/BioHazard786/chatterbox/internal/relay"
	"github.com/BioHazard786/chatterbox/internal/server"
)

func newRelay(t *testing.T, origins ...string) (*httptest.Server, *relay.Hub) {
	t.Helper()
	if len(origins) == 0 {
		origins = config.DefaultAllowedOrigins
	}
	cfg := &config.Config{
		Port:            config.DefaultPort,
		AllowedOrigins:  origins,
		MaxMessageBytes: config.DefaultMaxMessageBytes,
	}

	reg := prometheus.NewRegistry()
	hub := relay.NewHub(relay.Options{MaxMessageBytes: cfg.MaxMessageBytes}, relay.NewMetrics(reg))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	ts := httptest.NewServer(server.NewHandler(hub, cfg, reg))
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return ts, hub
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func write(t *testing.T, c *websocket.Conn, typ string, payload any) {
	t.Helper()
	msg, err := protocol.NewMessage(typ, payload)
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if err := c.WriteJSON(msg); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
}

func read(t *testing.T, c *websocket.Conn) *protocol.Message {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg protocol.Message
	if err := c.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return &msg
}

func readSignal(t *testing.T, c *websocket.Conn) protocol.SignalEnvelope {
	t.Helper()
	msg := read(t, c)
	if msg.Type != protocol.TypeSignal {
		t.Fatalf("type=%q, want signal", msg.Type)
	}
	var env protocol.SignalEnvelope
	if err := msg.DecodePayload(&env); err != nil {
		t.Fatalf("decode signal: %v", err)
	}
	return env
}

func expectSilence(t *testing.T, c *websocket.Conn) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var msg protocol.Message
	if err := c.ReadJSON(&msg); err == nil {
		t.Fatalf("unexpected %s message: %s", msg.Type, msg.Payload)
	}
}

func waitMembers(t *testing.T, hub *relay.Hub, callID string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Members(callID) != n {
		if time.Now().After(deadline) {
			t.Fatalf("room %s never reached %d members", callID, n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCallScenario(t *testing.T) {
	ts, hub := newRelay(t)
	a := dial(t, ts)
	b := dial(t, ts)
	c := dial(t, ts)

	write(t, a, protocol.TypeJoinCall, protocol.JoinCall{CallID: "call-1", UserID: "userA"})
	waitMembers(t, hub, "call-1", 1)
	write(t, b, protocol.TypeJoinCall, protocol.JoinCall{CallID: "call-1", UserID: "userB"})

	joined := read(t, a)
	if joined.Type != protocol.TypeUserJoined {
		t.Fatalf("type=%q, want user-joined", joined.Type)
	}
	var uj protocol.UserJoined
	if err := joined.DecodePayload(&uj); err != nil || uj.UserID != "userB" {
		t.Fatalf("user-joined=%+v err=%v", uj, err)
	}

	write(t, c, protocol.TypeJoinCall, protocol.JoinCall{CallID: "call-2", UserID: "userC"})
	waitMembers(t, hub, "call-2", 1)

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=- 1 1 IN IP4 0.0.0.0\r\n"}`)
	write(t, a, protocol.TypeSignal, protocol.SignalEnvelope{CallID: "call-1", From: "offer", To: "userB", Data: offer})
	got := readSignal(t, b)
	if got.From != "offer" || got.To != "userB" {
		t.Fatalf("offer envelope=%+v", got)
	}
	var sdp struct{ Type, SDP string }
	if err := json.Unmarshal(got.Data, &sdp); err != nil || sdp.Type != "offer" {
		t.Fatalf("offer data=%s err=%v", got.Data, err)
	}

	write(t, b, protocol.TypeSignal, protocol.SignalEnvelope{CallID: "call-1", From: "answer", To: "userA", Data: json.RawMessage(`{"type":"answer","sdp":"v=0"}`)})
	if got := readSignal(t, a); got.From != "answer" {
		t.Fatalf("answer envelope=%+v", got)
	}

	// ICE in both directions, interleaved.
	for i := 0; i < 3; i++ {
		write(t, a, protocol.TypeSignal, protocol.SignalEnvelope{CallID: "call-1", From: "ice", Data: json.RawMessage(`{"candidate":"candidate:a"}`)})
		write(t, b, protocol.TypeSignal, protocol.SignalEnvelope{CallID: "call-1", From: "ice", Data: json.RawMessage(`{"candidate":"candidate:b"}`)})
	}
	for i := 0; i < 3; i++ {
		if env := readSignal(t, b); env.ResolvedKind() != protocol.KindICECandidate {
			t.Fatalf("b got %+v", env)
		}
		if env := readSignal(t, a); env.ResolvedKind() != protocol.KindICECandidate {
			t.Fatalf("a got %+v", env)
		}
	}

	// C is isolated in call-2 both ways.
	write(t, c, protocol.TypeSignal, protocol.SignalEnvelope{CallID: "call-2", From: "offer", Data: json.RawMessage(`{}`)})
	expectSilence(t, a)
	expectSilence(t, c)
}

func TestPeerLeftOnTransportClose(t *testing.T) {
	ts, hub := newRelay(t)
	a := dial(t, ts)
	b := dial(t, ts)

	write(t, a, protocol.TypeJoinCall, protocol.JoinCall{CallID: "call-1", UserID: "userA"})
	waitMembers(t, hub, "call-1", 1)
	write(t, b, protocol.TypeJoinCall, protocol.JoinCall{CallID: "call-1", UserID: "userB"})
	read(t, a)

	_ = b.Close()

	msg := read(t, a)
	if msg.Type != protocol.TypePeerLeft {
		t.Fatalf("type=%q, want peer-left", msg.Type)
	}
	waitMembers(t, hub, "call-1", 1)

	_ = a.Close()
	waitMembers(t, hub, "call-1", 0)
	if hub.Active("call-1") {
		t.Fatalf("room still active after everyone left")
	}
}

func TestMalformedFrameDoesNotCloseConnection(t *testing.T) {
	ts, hub := newRelay(t)
	a := dial(t, ts)
	b := dial(t, ts)

	if err := a.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	write(t, a, protocol.TypeJoinCall, protocol.JoinCall{CallID: "call-1", UserID: "userA"})
	waitMembers(t, hub, "call-1", 1)
	write(t, b, protocol.TypeJoinCall, protocol.JoinCall{CallID: "call-1", UserID: "userB"})

	if msg := read(t, a); msg.Type != protocol.TypeUserJoined {
		t.Fatalf("type=%q, want user-joined", msg.Type)
	}
}

func TestOddlyShapedSignalIsForwarded(t *testing.T) {
	ts, hub := newRelay(t)
	a := dial(t, ts)
	b := dial(t, ts)

	write(t, a, protocol.TypeJoinCall, protocol.JoinCall{CallID: "call-1", UserID: "userA"})
	waitMembers(t, hub, "call-1", 1)
	write(t, b, protocol.TypeJoinCall, protocol.JoinCall{CallID: "call-1", UserID: "userB"})
	read(t, a)

	frame := `{"type":"signal","payload":{"callId":"call-1","from":7,"to":{"id":"userB"},"data":{"sdp":"v=0"}}}`
	if err := a.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write: %v", err)
	}

	msg := read(t, b)
	if msg.Type != protocol.TypeSignal {
		t.Fatalf("type=%q, want signal", msg.Type)
	}
	var got struct {
		CallID string            `json:"callId"`
		From   int               `json:"from"`
		To     map[string]string `json:"to"`
	}
	if err := msg.DecodePayload(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.CallID != "call-1" || got.From != 7 || got.To["id"] != "userB" {
		t.Fatalf("payload=%s", msg.Payload)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts, _ := newRelay(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "healthy") {
		t.Fatalf("health status=%d body=%q", resp.StatusCode, body)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "chatterbox_relay_connections") {
		t.Fatalf("metrics missing relay gauge:\n%s", body)
	}
}

func TestOriginCheck(t *testing.T) {
	ts, _ := newRelay(t, "https://chat.example.com")
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	h := http.Header{}
	h.Set("Origin", "https://evil.example.com")
	if _, _, err := websocket.DefaultDialer.Dial(wsURL, h); err == nil {
		t.Fatalf("dial from disallowed origin succeeded")
	}

	h.Set("Origin", "https://chat.example.com")
	c, _, err := websocket.DefaultDialer.Dial(wsURL, h)
	if err != nil {
		t.Fatalf("dial from allowed origin: %v", err)
	}
	c.Close()
}
