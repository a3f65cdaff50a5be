package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// writeWait bounds a single outbound frame write.
	writeWait = 10 * time.Second
	// maxFrameSize bounds inbound client frames; the protocol only carries
	// small control frames.
	maxFrameSize = 4 << 10
	// defaultSendBuffer is the outbound queue length per connection.
	defaultSendBuffer = 64
)

// ThreadAuthorizer decides whether a user may receive events for a thread.
// The registry itself enforces nothing; the messaging layer implements this
// against thread membership.
type ThreadAuthorizer interface {
	CanAccessThread(ctx context.Context, userID, role, threadID string) (bool, error)
}

// Client is one live WebSocket connection owned by exactly one authenticated
// user. A user may hold several Clients concurrently (multi-device).
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	role   string
	authz  ThreadAuthorizer
	logger zerolog.Logger

	heartbeat time.Duration
	idleWait  time.Duration

	send chan []byte
	done chan struct{}
	once sync.Once

	// threads is this connection's subscription set, owned by hub.mu.
	threads map[string]struct{}
}

// newClient wraps an upgraded connection. heartbeat is the server ping
// period; idleWait is the read deadline (heartbeat times the configured
// multiplier), so a silent connection is reclaimed within roughly one idle
// window.
func newClient(hub *Hub, conn *websocket.Conn, userID, role string, authz ThreadAuthorizer, heartbeat, idleWait time.Duration, sendBuffer int, logger zerolog.Logger) *Client {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	if idleWait <= heartbeat {
		idleWait = 2 * heartbeat
	}
	return &Client{
		hub:       hub,
		conn:      conn,
		userID:    userID,
		role:      role,
		authz:     authz,
		logger:    logger.With().Str("component", "realtime.Client").Str("user", userID).Logger(),
		heartbeat: heartbeat,
		idleWait:  idleWait,
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
		threads:   make(map[string]struct{}),
	}
}

// enqueue hands a frame to the write pump without blocking. Returns false if
// the connection is closing or its queue is full; the hub reclaims it then.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// shutdown releases the pumps. Safe to call more than once; the write pump
// and a hub teardown may race to it.
func (c *Client) shutdown() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// run services the connection until it disconnects, errors, or goes stale.
// It blocks the caller (the HTTP handler goroutine) and always leaves the
// registry clean on exit.
func (c *Client) run(ctx context.Context) {
	go c.writePump()
	c.readPump(ctx)
	c.hub.Unregister(c)
}

// readPump processes inbound frames in arrival order. Every frame (and every
// pong) pushes the read deadline out by idleWait; when the deadline passes
// the blocked read fails and the connection is torn down, the write pump's
// periodic ping having failed to elicit any traffic by then.
func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.idleWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.idleWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug().Err(err).Msg("connection closed")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.idleWait))
		c.dispatch(ctx, data)
	}
}

// dispatch routes one inbound frame by its type discriminator. Unknown types
// and malformed payloads produce an error event on the same connection; the
// connection stays open.
func (c *Client) dispatch(ctx context.Context, data []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.reply(ErrorEvent("malformed frame"))
		return
	}
	switch frame.Type {
	case frameTypePing:
		c.reply(PongEvent())
	case frameTypeSubscribe:
		c.handleSubscribe(ctx, frame.ThreadID)
	case frameTypeUnsubscribe:
		if frame.ThreadID == "" {
			c.reply(ErrorEvent("thread_id required"))
			return
		}
		c.hub.Unsubscribe(c.userID, frame.ThreadID)
		c.reply(UnsubscribedEvent(frame.ThreadID))
	default:
		c.reply(ErrorEvent("unknown frame type"))
	}
}

func (c *Client) handleSubscribe(ctx context.Context, threadID string) {
	if threadID == "" {
		c.reply(ErrorEvent("thread_id required"))
		return
	}
	if c.authz != nil {
		ok, err := c.authz.CanAccessThread(ctx, c.userID, c.role, threadID)
		if err != nil {
			c.logger.Warn().Err(err).Str("thread", threadID).Msg("thread authorization failed")
			c.reply(ErrorEvent("subscription unavailable"))
			return
		}
		if !ok {
			c.reply(ErrorEvent("not a participant of this thread"))
			return
		}
	}
	c.hub.Subscribe(c.userID, threadID)
	c.reply(SubscribedEvent(threadID))
}

// reply enqueues a protocol response on this connection only. Dropping the
// reply when the queue is full is acceptable: the write pump is wedged and
// the heartbeat will reclaim the connection shortly.
func (c *Client) reply(ev Event) {
	frame := ev.Encode()
	if frame == nil {
		return
	}
	if !c.enqueue(frame) {
		c.logger.Warn().Str("type", ev.Type).Msg("dropping reply; connection not accepting writes")
	}
}

// writePump owns all writes to the socket: queued events plus the periodic
// heartbeat ping. Any write failure closes the socket, which unblocks the
// read pump and unregisters the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.heartbeat)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()
	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug().Err(err).Msg("write failed; closing connection")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug().Err(err).Msg("heartbeat ping failed; closing connection")
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}
