package relay

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/BioHazard786/chatterbox/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Client is a wrapper for a single websocket connection.
type Client struct {
	// ID identifies the connection in logs.
	ID string

	hub  *Hub
	conn *websocket.Conn

	// send is a buffered channel of outbound messages. Only the hub loop
	// writes to it and closes it.
	send chan *protocol.Message

	// rooms holds the call ids this connection joined. Owned by the hub loop.
	rooms map[string]struct{}

	limiter *rate.Limiter
}

// NewClient wraps conn for hub. conn may be nil for connections driven
// directly through the hub, as the tests do.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	c := &Client{
		ID:    uuid.NewString(),
		hub:   hub,
		conn:  conn,
		send:  make(chan *protocol.Message, hub.opts.SendBuffer),
		rooms: make(map[string]struct{}),
	}
	if hub.opts.MaxMessagesPerSecond > 0 {
		burst := int(hub.opts.MaxMessagesPerSecond * 2)
		c.limiter = rate.NewLimiter(rate.Limit(hub.opts.MaxMessagesPerSecond), max(burst, 1))
	}
	return c
}

// Send exposes the outbound queue. It is closed once the hub has dropped
// the client.
func (c *Client) Send() <-chan *protocol.Message {
	return c.send
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.opts.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("read failed", "client", c.ID, "err", err)
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.hub.metrics.Dropped.WithLabelValues(DropReasonRateLimited).Inc()
			slog.Warn("rate limit exceeded, dropping message", "client", c.ID)
			continue
		}

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.metrics.Dropped.WithLabelValues(DropReasonMalformed).Inc()
			slog.Debug("dropping unparseable frame", "client", c.ID, "err", err)
			continue
		}

		if !c.hub.Dispatch(c, &msg) {
			return
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				slog.Debug("write failed", "client", c.ID, "err", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
