// Package realtime implements the WebSocket connection registry: live
// authenticated connections keyed by user, per-thread subscriptions, and
// fan-out of server-originated events to the connections that should see
// them. Delivery is at-most-once and best-effort; nothing is queued or
// persisted for offline users.
package realtime

import "encoding/json"

// Client frame types. Inbound frames are a discriminated dispatch on "type".
const (
	frameTypePing        = "ping"
	frameTypeSubscribe   = "subscribe_thread"
	frameTypeUnsubscribe = "unsubscribe_thread"
)

// Server event types.
const (
	EventPong         = "pong"
	EventSubscribed   = "subscribed"
	EventUnsubscribed = "unsubscribed"
	EventError        = "error"
	EventNewMessage   = "new_message"
	EventMessageRead  = "message_read"
	EventUnreadUpdate = "unread_update"
)

// ClientFrame is an inbound JSON frame from a connected client.
type ClientFrame struct {
	Type     string `json:"type"`
	ThreadID string `json:"thread_id,omitempty"`
}

// Event is an outbound JSON frame to a connected client.
type Event struct {
	Type        string `json:"type"`
	ThreadID    string `json:"thread_id,omitempty"`
	Message     string `json:"message,omitempty"`
	Payload     any    `json:"payload,omitempty"`
	TotalUnread *int   `json:"total_unread,omitempty"`
}

// Encode marshals the event for the wire. Marshal failure cannot happen for
// the payload types this backend produces; a nil slice is returned regardless.
func (e Event) Encode() []byte {
	b, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	return b
}

// PongEvent replies to a client ping.
func PongEvent() Event { return Event{Type: EventPong} }

// SubscribedEvent confirms a thread subscription.
func SubscribedEvent(threadID string) Event {
	return Event{Type: EventSubscribed, ThreadID: threadID}
}

// UnsubscribedEvent confirms a thread unsubscription.
func UnsubscribedEvent(threadID string) Event {
	return Event{Type: EventUnsubscribed, ThreadID: threadID}
}

// ErrorEvent reports a client-frame problem without closing the connection.
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}

// NewMessageEvent carries a freshly persisted message to thread subscribers.
func NewMessageEvent(threadID string, payload any) Event {
	return Event{Type: EventNewMessage, ThreadID: threadID, Payload: payload}
}

// MessageReadEvent carries a read receipt to thread subscribers.
func MessageReadEvent(threadID string, payload any) Event {
	return Event{Type: EventMessageRead, ThreadID: threadID, Payload: payload}
}

// UnreadUpdateEvent carries a user's new total unread count.
func UnreadUpdateEvent(total int) Event {
	return Event{Type: EventUnreadUpdate, TotalUnread: &total}
}
