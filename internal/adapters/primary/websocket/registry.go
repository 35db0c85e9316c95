// Package websocket owns every live client connection: it authenticates
// connections on accept (via the HTTP handler), indexes them by school, user
// and role, and exposes the addressed-send primitives the translator targets.
package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/classpulse/classpulse-backend/internal/core/domain"
	"github.com/classpulse/classpulse-backend/internal/core/ports"
)

// Registry maintains the school-indexed connection sets and provides
// addressed delivery. All structural changes to a school's set (Accept,
// Close) and iterations over it (the broadcast operations) synchronize on
// that school's own lock, so sends to different schools proceed in parallel.
type Registry struct {
	// mu protects the schools map itself, not the per-school sets.
	mu      sync.RWMutex
	schools map[string]*schoolChannel

	pingInterval time.Duration
	writeWait    time.Duration
	sendBuffer   int

	logger *slog.Logger
}

var _ ports.Broadcaster = (*Registry)(nil)

// schoolChannel is the set of connections authenticated for one school.
// A connection appears in at most one school's set at a time.
type schoolChannel struct {
	mu    sync.RWMutex
	conns map[*Client]struct{}
}

// Options configures a Registry.
type Options struct {
	// PingInterval is the liveness probe period. A connection that misses
	// two consecutive probes is forcibly closed.
	PingInterval time.Duration

	// WriteWait bounds each socket write.
	WriteWait time.Duration

	// SendBuffer is the per-connection outbound queue length. A recipient
	// whose queue is full is treated as failed and closed.
	SendBuffer int
}

// NewRegistry creates a registry. Zero option fields fall back to defaults
// (30s probes, 10s writes, 256-event buffers).
func NewRegistry(opts Options, logger *slog.Logger) *Registry {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = 10 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	return &Registry{
		schools:      make(map[string]*schoolChannel),
		pingInterval: opts.PingInterval,
		writeWait:    opts.WriteWait,
		sendBuffer:   opts.SendBuffer,
		logger:       logger.With("component", "ws_registry"),
	}
}

// Accept inserts an authenticated connection into its school's set and sends
// the connected acknowledgement. Exactly one insertion into exactly one set;
// each handshake produces a fresh Client, so no idempotency is needed here.
func (r *Registry) Accept(c *Client) {
	ch := r.school(c.SchoolID, true)

	ch.mu.Lock()
	ch.conns[c] = struct{}{}
	ch.mu.Unlock()

	r.deliver(c, domain.NewConnectedEvent(c.UserID, c.SchoolID))

	r.logger.Info("client connected",
		"user_id", c.UserID,
		"school_id", c.SchoolID,
		"role", c.Role,
	)
}

// Close removes the connection from its school's set and tears down the
// transport. Safe to call more than once and concurrently with in-flight
// broadcasts: the second and later calls are no-ops, and a broadcast racing
// the close either skips the connection or enqueues an event that is never
// drained.
func (r *Registry) Close(c *Client) {
	if !c.markDone() {
		return
	}

	// Empty sets are kept around: dropping them would race a concurrent
	// Accept that resolved the channel just before the map delete, and a
	// deployment only ever has a bounded number of schools.
	if ch := r.school(c.SchoolID, false); ch != nil {
		ch.mu.Lock()
		delete(ch.conns, c)
		ch.mu.Unlock()
	}

	if c.conn != nil {
		_ = c.conn.Close()
	}

	r.logger.Info("client disconnected",
		"user_id", c.UserID,
		"school_id", c.SchoolID,
	)
}

// BroadcastToSchool sends the event to every connection registered under the
// school, regardless of role.
func (r *Registry) BroadcastToSchool(schoolID string, event domain.Event) {
	for _, c := range r.snapshot(schoolID) {
		r.deliver(c, event)
	}
}

// BroadcastToRole sends the event to the school's connections whose role
// matches.
func (r *Registry) BroadcastToRole(schoolID string, role domain.Role, event domain.Event) {
	for _, c := range r.snapshot(schoolID) {
		if c.Role == role {
			r.deliver(c, event)
		}
	}
}

// SendToUser sends the event to every connection matching both school and
// user; a user with multiple tabs receives it on each. An offline user is a
// silent no-op.
func (r *Registry) SendToUser(schoolID, userID string, event domain.Event) {
	for _, c := range r.snapshot(schoolID) {
		if c.UserID == userID {
			r.deliver(c, event)
		}
	}
}

// deliver enqueues the event for one recipient without ever blocking the
// caller. A closed client is skipped; a client whose queue is full has not
// drained sendBuffer events and is closed, dropping the message for it only.
func (r *Registry) deliver(c *Client, event domain.Event) {
	select {
	case <-c.done:
	case c.send <- event:
	default:
		r.logger.Warn("client send buffer full, closing connection",
			"user_id", c.UserID,
			"school_id", c.SchoolID,
			"event_type", event.Type,
		)
		r.Close(c)
	}
}

// RunLiveness probes every live connection on the configured interval until
// the context is canceled. A connection that did not answer the previous
// probe by the time the next one is due is forcibly closed.
func (r *Registry) RunLiveness(ctx context.Context) {
	ticker := time.NewTicker(r.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-ctx.Done():
			return
		}
	}
}

// sweep performs one liveness pass over all connections.
func (r *Registry) sweep() {
	for _, c := range r.snapshotAll() {
		if c.Closed() {
			continue
		}
		if !c.alive.Swap(false) {
			r.logger.Warn("client failed liveness probe, closing",
				"user_id", c.UserID,
				"school_id", c.SchoolID,
			)
			r.Close(c)
			continue
		}
		c.requestPing()
	}
}

// ClientCount returns the total number of live connections.
func (r *Registry) ClientCount() int {
	return len(r.snapshotAll())
}

// SchoolCount returns the number of schools with at least one connection.
func (r *Registry) SchoolCount() int {
	r.mu.RLock()
	channels := make([]*schoolChannel, 0, len(r.schools))
	for _, ch := range r.schools {
		channels = append(channels, ch)
	}
	r.mu.RUnlock()

	count := 0
	for _, ch := range channels {
		ch.mu.RLock()
		if len(ch.conns) > 0 {
			count++
		}
		ch.mu.RUnlock()
	}
	return count
}

// school returns the channel for the school, creating it when create is set.
func (r *Registry) school(schoolID string, create bool) *schoolChannel {
	r.mu.RLock()
	ch := r.schools[schoolID]
	r.mu.RUnlock()

	if ch != nil || !create {
		return ch
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ch = r.schools[schoolID]; ch == nil {
		ch = &schoolChannel{conns: make(map[*Client]struct{})}
		r.schools[schoolID] = ch
	}
	return ch
}

// snapshot copies a school's connection list so delivery never holds the
// set's lock while sending.
func (r *Registry) snapshot(schoolID string) []*Client {
	ch := r.school(schoolID, false)
	if ch == nil {
		return nil
	}

	ch.mu.RLock()
	defer ch.mu.RUnlock()

	clients := make([]*Client, 0, len(ch.conns))
	for c := range ch.conns {
		clients = append(clients, c)
	}
	return clients
}

// snapshotAll copies every live connection across all schools.
func (r *Registry) snapshotAll() []*Client {
	r.mu.RLock()
	channels := make([]*schoolChannel, 0, len(r.schools))
	for _, ch := range r.schools {
		channels = append(channels, ch)
	}
	r.mu.RUnlock()

	var clients []*Client
	for _, ch := range channels {
		ch.mu.RLock()
		for c := range ch.conns {
			clients = append(clients, c)
		}
		ch.mu.RUnlock()
	}
	return clients
}
