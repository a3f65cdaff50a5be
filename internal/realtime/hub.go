package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// ErrTooManyConnections is returned by Register when a user is at the
// per-user connection cap.
var ErrTooManyConnections = errors.New("too many connections for user")

// defaultMaxConnsPerUser bounds memory per user (multi-device).
const defaultMaxConnsPerUser = 8

// HubConfig configures a Hub.
type HubConfig struct {
	// MaxConnsPerUser caps concurrent connections per user; 0 means the default of 8.
	MaxConnsPerUser int
}

// Hub is the connection registry. It owns all connection and subscription
// state for this process, guarded by one mutex so that tearing a connection
// down is atomic with respect to concurrent broadcasts: a broadcast never
// observes a half-removed connection.
//
// A Hub is an explicitly owned, lifecycle-scoped instance: constructed at
// process start, passed by reference to every connection handler, torn down
// at shutdown. In-memory fan-out does not cross process boundaries; attach a
// Broker for multi-process deployments.
type Hub struct {
	logger     zerolog.Logger
	maxPerUser int

	mu      sync.Mutex
	conns   map[string]map[*Client]struct{} // userID -> live connections
	threads map[string]map[*Client]struct{} // threadID -> subscribed connections
	broker  Broker
}

// NewHub returns an empty registry.
func NewHub(cfg HubConfig, logger zerolog.Logger) *Hub {
	maxPerUser := cfg.MaxConnsPerUser
	if maxPerUser <= 0 {
		maxPerUser = defaultMaxConnsPerUser
	}
	return &Hub{
		logger:     logger.With().Str("component", "realtime.Hub").Logger(),
		maxPerUser: maxPerUser,
		conns:      make(map[string]map[*Client]struct{}),
		threads:    make(map[string]map[*Client]struct{}),
	}
}

// UseBroker routes SendToUser/BroadcastToThread through b instead of
// delivering directly. The broker's run loop feeds events back into this hub
// (and every other subscribed process) via deliverUser/deliverThread.
func (h *Hub) UseBroker(b Broker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broker = b
}

// Register admits a connection under its user. Returns ErrTooManyConnections
// at the per-user cap; the caller closes the connection with a backoff code.
func (h *Hub) Register(c *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.conns[c.userID]
	if len(set) >= h.maxPerUser {
		return ErrTooManyConnections
	}
	if set == nil {
		set = make(map[*Client]struct{})
		h.conns[c.userID] = set
	}
	set[c] = struct{}{}
	h.logger.Debug().Str("user", c.userID).Int("connections", len(set)).Msg("connection registered")
	return nil
}

// Unregister removes a connection from its user's set and from every thread
// subscription it holds, and releases the connection's pumps. Idempotent:
// unregistering an already-removed connection is a no-op.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.teardownLocked(c)
}

// Subscribe adds every live connection of userID to the thread's fan-out set.
// Authorization is the caller's concern: the registry is transport-agnostic
// and trusts that the calling layer verified thread access first.
func (h *Hub) Subscribe(userID, threadID string) {
	if userID == "" || threadID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.conns[userID]
	if len(conns) == 0 {
		// The user disconnected between the caller's check and this call.
		// Creating the set anyway would leave an empty entry behind forever.
		return
	}
	subs := h.threads[threadID]
	if subs == nil {
		subs = make(map[*Client]struct{})
		h.threads[threadID] = subs
	}
	for c := range conns {
		subs[c] = struct{}{}
		c.threads[threadID] = struct{}{}
	}
}

// Unsubscribe removes every connection of userID from the thread's fan-out set.
func (h *Hub) Unsubscribe(userID, threadID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.threads[threadID]
	for c := range h.conns[userID] {
		delete(subs, c)
		delete(c.threads, threadID)
	}
	if len(subs) == 0 {
		delete(h.threads, threadID)
	}
}

// SendToUser delivers ev to all live connections of userID. Silently does
// nothing when the user has no connection: at-most-once, fire-and-forget.
func (h *Hub) SendToUser(ctx context.Context, userID string, ev Event) {
	h.route(ctx, BrokerEvent{Scope: ScopeUser, Target: userID, Event: ev})
}

// BroadcastToThread delivers ev to every subscriber of threadID except
// excludeUserID (usually the sender; empty excludes nobody). Delivery order
// across subscribers is unspecified.
func (h *Hub) BroadcastToThread(ctx context.Context, threadID string, ev Event, excludeUserID string) {
	h.route(ctx, BrokerEvent{Scope: ScopeThread, Target: threadID, ExcludeUserID: excludeUserID, Event: ev})
}

// route hands the event to the broker when one is attached, otherwise applies
// it to local connections directly. A broker publish failure falls back to
// local delivery so a broker outage degrades to single-process behavior
// instead of dropping the event entirely.
func (h *Hub) route(ctx context.Context, bev BrokerEvent) {
	h.mu.Lock()
	broker := h.broker
	h.mu.Unlock()
	if broker != nil {
		err := broker.Publish(ctx, bev)
		if err == nil {
			return
		}
		h.logger.Warn().Err(err).Str("scope", bev.Scope).Str("target", bev.Target).Msg("broker publish failed; delivering locally")
	}
	h.apply(bev)
}

// apply delivers a (possibly remote) event to local connections only.
func (h *Hub) apply(bev BrokerEvent) {
	frame := bev.Event.Encode()
	if frame == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	switch bev.Scope {
	case ScopeUser:
		for c := range h.conns[bev.Target] {
			h.enqueueLocked(c, frame)
		}
	case ScopeThread:
		for c := range h.threads[bev.Target] {
			if bev.ExcludeUserID != "" && c.userID == bev.ExcludeUserID {
				continue
			}
			h.enqueueLocked(c, frame)
		}
	}
}

// enqueueLocked hands frame to c's writer. A connection that cannot accept
// the frame (full queue or already closing) is torn down on the spot; one bad
// connection never blocks delivery to the others. Errors are absorbed, never
// raised to the caller.
func (h *Hub) enqueueLocked(c *Client, frame []byte) {
	if !c.enqueue(frame) {
		h.logger.Warn().Str("user", c.userID).Msg("connection not accepting writes; reclaiming")
		h.teardownLocked(c)
	}
}

// teardownLocked removes c from all registry state and signals its pumps to
// stop. Safe to call for connections that were already removed.
func (h *Hub) teardownLocked(c *Client) {
	set, ok := h.conns[c.userID]
	if ok {
		if _, present := set[c]; present {
			delete(set, c)
			if len(set) == 0 {
				delete(h.conns, c.userID)
			}
			h.logger.Debug().Str("user", c.userID).Msg("connection unregistered")
		}
	}
	for threadID := range c.threads {
		subs := h.threads[threadID]
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.threads, threadID)
		}
	}
	c.threads = make(map[string]struct{})
	c.shutdown()
}

// UserConnections reports how many live connections userID has.
func (h *Hub) UserConnections(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[userID])
}

// ThreadSubscribers reports how many connections are subscribed to threadID.
func (h *Hub) ThreadSubscribers(threadID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.threads[threadID])
}

// Shutdown tears down every live connection. Called at process shutdown after
// the HTTP server has stopped accepting new sockets.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.conns {
		for c := range set {
			h.teardownLocked(c)
		}
	}
}
