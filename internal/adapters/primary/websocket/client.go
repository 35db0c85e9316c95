package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/classpulse/classpulse-backend/internal/core/domain"
)

const (
	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

// Client is one authenticated, live connection. It is owned exclusively by
// the Registry: created after a successful handshake, destroyed on socket
// close or a failed liveness probe. Never persisted.
type Client struct {
	registry *Registry

	// The websocket connection. Nil in unit tests that exercise the
	// registry without a transport.
	conn *websocket.Conn

	// Buffered channel of outbound events. Never closed; the done channel
	// signals termination instead, so a delivery racing Close can never
	// panic on a closed channel.
	send chan domain.Event

	// Liveness probe requests for the write pump.
	ping chan struct{}

	// Closed exactly once when the connection is torn down.
	done chan struct{}

	ID       uuid.UUID
	UserID   string
	SchoolID string
	Role     domain.Role

	// alive is set by the pong handler and cleared by each liveness sweep.
	// A client that misses two consecutive sweeps is forcibly closed.
	alive atomic.Bool

	closeOnce sync.Once

	writeWait time.Duration
	pongWait  time.Duration

	logger *slog.Logger
}

// NewClient creates a client for an accepted connection. The caller is
// expected to pass it to Registry.Accept and then start the pumps.
func NewClient(registry *Registry, conn *websocket.Conn, userID, schoolID string, role domain.Role, logger *slog.Logger) *Client {
	c := &Client{
		registry:  registry,
		conn:      conn,
		send:      make(chan domain.Event, registry.sendBuffer),
		ping:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		ID:        uuid.New(),
		UserID:    userID,
		SchoolID:  schoolID,
		Role:      role,
		writeWait: registry.writeWait,
		pongWait:  2 * registry.pingInterval,
		logger:    logger.With("user_id", userID, "school_id", schoolID),
	}
	c.alive.Store(true)
	return c
}

// Closed reports whether the client has been torn down.
func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// markDone closes the done channel exactly once and reports whether this
// call was the one that closed it.
func (c *Client) markDone() bool {
	first := false
	c.closeOnce.Do(func() {
		close(c.done)
		first = true
	})
	return first
}

// requestPing asks the write pump to emit a ping control frame. Non-blocking:
// a probe request that cannot be queued is dropped, which counts as a missed
// probe for the client.
func (c *Client) requestPing() {
	select {
	case c.ping <- struct{}{}:
	default:
	}
}

// ReadPump pumps inbound control messages from the websocket connection.
// Runs in its own goroutine; returning triggers Close.
func (c *Client) ReadPump() {
	defer c.registry.Close(c)

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
		c.logger.Error("failed to set read deadline", "error", err)
		return
	}

	c.conn.SetPongHandler(func(string) error {
		c.alive.Store(true)
		if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
			c.logger.Error("failed to set read deadline in pong handler", "error", err)
		}
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		c.alive.Store(true)
		c.handleIncomingMessage(message)
	}
}

// WritePump pumps events from the registry to the websocket connection.
// Runs in its own goroutine. The single-writer rule for gorilla connections
// holds because all frames (events, pings, the close frame) go through here.
func (c *Client) WritePump() {
	defer c.registry.Close(c)

	for {
		select {
		case event := <-c.send:
			if err := c.writeJSON(event); err != nil {
				c.logger.Warn("failed to write event, closing connection",
					"event_type", event.Type,
					"error", err,
				)
				return
			}

		case <-c.ping:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
				c.logger.Error("failed to set write deadline for ping", "error", err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				return
			}

		case <-c.done:
			// Best effort close frame so the peer sees a clean shutdown.
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// writeJSON writes a JSON message to the websocket connection
func (c *Client) writeJSON(event domain.Event) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}

	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}

	if err := json.NewEncoder(w).Encode(event); err != nil {
		_ = w.Close()
		return err
	}

	return w.Close()
}

// --- Incoming Message Handling ---

// ClientMessage is the structure for messages sent from the client.
type ClientMessage struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// handleIncomingMessage processes messages received from the client.
// Unrecognized shapes are logged and ignored; nothing a client sends may
// crash the read loop.
func (c *Client) handleIncomingMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Warn("failed to unmarshal client message", "error", err)
		return
	}

	switch msg.Type {
	case "ping":
		c.sendPong()

	case "subscribe":
		// Reserved for fine-grained filtering (per class, per assignment).
		// Accepted and logged, not acted upon yet.
		c.logger.Debug("client subscribed", "channel", msg.Channel)

	case "unsubscribe":
		c.logger.Debug("client unsubscribed", "channel", msg.Channel)

	default:
		c.logger.Debug("received unknown message type", "type", msg.Type)
	}
}

func (c *Client) sendPong() {
	select {
	case c.send <- domain.NewPongEvent():
	default:
		// Buffer full, skip pong response
	}
}
