package relay

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BioHazard786/chatterbox/internal/protocol"
)

// Options tunes per-connection limits.
type Options struct {
	// MaxMessageBytes is the read limit of a connection.
	MaxMessageBytes int64

	// MaxMessagesPerSecond rate limits inbound frames per connection.
	// Zero disables the limit.
	MaxMessagesPerSecond float64

	// SendBuffer is the outbound queue length per connection.
	SendBuffer int
}

// DefaultOptions returns the limits used when none are configured.
func DefaultOptions() Options {
	return Options{
		MaxMessageBytes: 64 * 1024,
		SendBuffer:      256,
	}
}

type inbound struct {
	client *Client
	msg    *protocol.Message
}

// Hub is the central brain of the relay. It owns every room and
// connection; all of that state is touched only from Run.
type Hub struct {
	opts    Options
	metrics *Metrics

	rooms   map[string]*Room
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	queries    chan func()

	done     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a new Hub instance. A nil metrics gets unregistered
// collectors.
func NewHub(opts Options, metrics *Metrics) *Hub {
	def := DefaultOptions()
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = def.MaxMessageBytes
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = def.SendBuffer
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	return &Hub{
		opts:       opts,
		metrics:    metrics,
		rooms:      make(map[string]*Room),
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound),
		queries:    make(chan func()),
		done:       make(chan struct{}),
	}
}

// Register hands a new connection to the hub. It returns false once the
// hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes c from every room it joined. Unregistering a client
// twice is a no-op.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Dispatch queues a message read from c. It returns false once the hub
// has stopped.
func (h *Hub) Dispatch(c *Client, msg *protocol.Message) bool {
	select {
	case h.inbound <- inbound{client: c, msg: msg}:
		return true
	case <-h.done:
		return false
	}
}

// Active reports whether room callID currently has members.
func (h *Hub) Active(callID string) bool {
	return h.Members(callID) > 0
}

// Members returns the number of connections joined to room callID.
func (h *Hub) Members(callID string) int {
	reply := make(chan int, 1)
	if !h.query(func() {
		if room, ok := h.rooms[callID]; ok {
			reply <- len(room.Members)
			return
		}
		reply <- 0
	}) {
		return 0
	}
	return <-reply
}

// RoomCount returns the number of active rooms.
func (h *Hub) RoomCount() int {
	reply := make(chan int, 1)
	if !h.query(func() { reply <- len(h.rooms) }) {
		return 0
	}
	return <-reply
}

func (h *Hub) query(fn func()) bool {
	select {
	case h.queries <- fn:
		return true
	case <-h.done:
		return false
	}
}

// Run starts the hub's main processing loop. It is the single goroutine
// that manages rooms and clients, and returns when ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	defer h.stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.metrics.Connections.Inc()
			slog.Debug("client registered", "client", client.ID)

		case client := <-h.unregister:
			h.drop(client)

		case in := <-h.inbound:
			h.handle(in.client, in.msg)

		case fn := <-h.queries:
			fn()
		}
	}
}

func (h *Hub) stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		for c := range h.clients {
			close(c.send)
		}
		clear(h.clients)
		clear(h.rooms)
		h.metrics.Connections.Set(0)
		h.metrics.Rooms.Set(0)
	})
}

func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	for callID := range c.rooms {
		h.leave(c, callID)
	}

	delete(h.clients, c)
	close(c.send)
	h.metrics.Connections.Dec()
	slog.Debug("client unregistered", "client", c.ID)
}

func (h *Hub) handle(c *Client, msg *protocol.Message) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	switch msg.Type {
	case protocol.TypeJoinCall:
		var p protocol.JoinCall
		if err := msg.DecodePayload(&p); err != nil {
			h.metrics.Dropped.WithLabelValues(DropReasonMalformed).Inc()
			slog.Debug("malformed join-call", "client", c.ID, "err", err)
			return
		}
		h.join(c, p)

	case protocol.TypeLeaveCall:
		var p protocol.LeaveCall
		if err := msg.DecodePayload(&p); err != nil {
			h.metrics.Dropped.WithLabelValues(DropReasonMalformed).Inc()
			return
		}
		h.leave(c, p.CallID)

	case protocol.TypeSignal:
		var route protocol.SignalRoute
		if err := msg.DecodePayload(&route); err != nil {
			h.metrics.Dropped.WithLabelValues(DropReasonMalformed).Inc()
			slog.Debug("unroutable signal", "client", c.ID, "err", err)
			return
		}
		h.relay(c, route.CallID, msg)

	default:
		slog.Debug("unknown message type", "client", c.ID, "type", msg.Type)
	}
}

func (h *Hub) join(c *Client, p protocol.JoinCall) {
	if p.CallID == "" {
		slog.Debug("join ignored, empty call id", "client", c.ID)
		return
	}

	room, ok := h.rooms[p.CallID]
	if !ok {
		room = newRoom(p.CallID)
		h.rooms[p.CallID] = room
		h.metrics.Rooms.Inc()
		slog.Info("room created", "call", p.CallID)
	}

	room.Members[c] = p.UserID
	c.rooms[p.CallID] = struct{}{}
	h.metrics.Joins.Inc()
	slog.Info("participant joined", "call", p.CallID, "user", p.UserID, "client", c.ID, "members", len(room.Members))

	msg, err := protocol.NewMessage(protocol.TypeUserJoined, protocol.UserJoined{UserID: p.UserID, CallID: p.CallID})
	if err != nil {
		slog.Error("encode user-joined", "err", err)
		return
	}
	for _, peer := range room.others(c) {
		h.deliver(peer, msg)
	}
}

func (h *Hub) leave(c *Client, callID string) {
	room, ok := h.rooms[callID]
	if !ok {
		return
	}
	userID, ok := room.Members[c]
	if !ok {
		return
	}

	delete(room.Members, c)
	delete(c.rooms, callID)

	if len(room.Members) == 0 {
		delete(h.rooms, callID)
		h.metrics.Rooms.Dec()
		slog.Info("room closed", "call", callID)
		return
	}

	slog.Info("participant left", "call", callID, "user", userID, "client", c.ID)
	msg, err := protocol.NewMessage(protocol.TypePeerLeft, protocol.PeerLeft{UserID: userID, CallID: callID})
	if err != nil {
		slog.Error("encode peer-left", "err", err)
		return
	}
	for peer := range room.Members {
		h.deliver(peer, msg)
	}
}

// relay forwards msg unchanged to everyone in room callID but the
// sender. The sender does not have to be a member.
func (h *Hub) relay(c *Client, callID string, msg *protocol.Message) {
	var peers []*Client
	if room, ok := h.rooms[callID]; ok {
		peers = room.others(c)
	}

	if len(peers) == 0 {
		h.metrics.Dropped.WithLabelValues(DropReasonNoPeers).Inc()
		slog.Debug("signal dropped, no other peer in room", "call", callID, "client", c.ID)
		return
	}

	for _, peer := range peers {
		if h.deliver(peer, msg) {
			h.metrics.Relayed.Inc()
		}
	}
	slog.Debug("signal relayed", "call", callID, "client", c.ID, "recipients", len(peers))
}

// deliver queues msg for c without blocking the loop.
func (h *Hub) deliver(c *Client, msg *protocol.Message) bool {
	select {
	case c.send <- msg:
		return true
	default:
		h.metrics.Dropped.WithLabelValues(DropReasonBufferFull).Inc()
		slog.Warn("send buffer full, dropping message", "client", c.ID, "type", msg.Type)
		return false
	}
}
