package signaling

import (
	"fmt"
	"log/slog"

	"github.com/BioHazard786/chatterbox/internal/protocol"
)

// Handler routes incoming relay messages to typed channels. All channels
// are closed once the connection ends.
type Handler struct {
	client     *Client
	UserJoined chan protocol.UserJoined
	PeerLeft   chan protocol.PeerLeft
	Signal     chan *protocol.SignalEnvelope
	Error      chan error
}

// NewHandler creates a new message handler.
func NewHandler(client *Client) *Handler {
	return &Handler{
		client:     client,
		UserJoined: make(chan protocol.UserJoined, 4),
		PeerLeft:   make(chan protocol.PeerLeft, 4),
		Signal:     make(chan *protocol.SignalEnvelope, 64),
		Error:      make(chan error, 4),
	}
}

// Start routes messages until the client's incoming channel closes.
func (h *Handler) Start() {
	defer h.close()

	for msg := range h.client.Incoming() {
		switch msg.Type {
		case protocol.TypeUserJoined:
			var p protocol.UserJoined
			if h.decode(msg, &p) {
				h.UserJoined <- p
			}

		case protocol.TypePeerLeft:
			var p protocol.PeerLeft
			if h.decode(msg, &p) {
				h.PeerLeft <- p
			}

		case protocol.TypeSignal:
			var env protocol.SignalEnvelope
			if h.decode(msg, &env) {
				h.Signal <- &env
			}

		default:
			slog.Debug("ignoring relay message", "type", msg.Type)
		}
	}
}

func (h *Handler) decode(msg *protocol.Message, v any) bool {
	if err := msg.DecodePayload(v); err != nil {
		select {
		case h.Error <- fmt.Errorf("decode %s: %w", msg.Type, err):
		default:
		}
		return false
	}
	return true
}

func (h *Handler) close() {
	close(h.UserJoined)
	close(h.PeerLeft)
	close(h.Signal)
	close(h.Error)
}
