package domain

import "time"

// Security event types emitted by the backend.
const (
	EventLogin          = "login"
	EventLoginFailure   = "login_failure"
	EventLogout         = "logout"
	EventTokenRevoked   = "token_revoked"
	EventMessageSent    = "message_sent"
	EventMessageFlagged = "message_flagged"
	EventWSConnected    = "ws_connected"
	EventWSDisconnected = "ws_disconnected"
)

// Event is a security event. Events flow to the OTel log pipeline and to the
// Kafka topic the worker drains into Loki.
type Event struct {
	UserID    string            `json:"user_id,omitempty"`
	ThreadID  string            `json:"thread_id,omitempty"`
	EventType string            `json:"event_type"`
	Source    string            `json:"source"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
