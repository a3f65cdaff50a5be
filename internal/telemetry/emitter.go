// Package telemetry emits security events. Emission is best-effort; callers
// log and ignore errors and never let telemetry fail a request.
package telemetry

import (
	"context"
	"time"

	"clinic-messaging/backend/internal/telemetry/domain"
)

// EventEmitter emits security events (e.g. to OTel logs or Kafka).
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.Event) error
}

// NewEvent returns an event of the given type with the timestamp set.
func NewEvent(eventType, userID string) *domain.Event {
	return &domain.Event{
		UserID:    userID,
		EventType: eventType,
		Source:    "backend",
		CreatedAt: time.Now().UTC(),
	}
}

// MultiEmitter fans one event out to several emitters. The first error wins
// but all emitters are attempted.
type MultiEmitter []EventEmitter

// Emit sends the event to every emitter in order.
func (m MultiEmitter) Emit(ctx context.Context, event *domain.Event) error {
	var firstErr error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
