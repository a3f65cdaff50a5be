// Package repository defines persistence for threads and messages.
package repository

import (
	"context"
	"time"

	"clinic-messaging/backend/internal/messaging/domain"
)

// Repository defines persistence for the messaging feature.
type Repository interface {
	// GetThread returns the thread for id, or nil if not found.
	GetThread(ctx context.Context, id string) (*domain.Thread, error)
	// GetThreadByParticipants returns the thread between the given doctor and
	// patient, or nil if none exists.
	GetThreadByParticipants(ctx context.Context, doctorID, patientID string) (*domain.Thread, error)
	// CreateThread persists a new thread. The thread must have ID set.
	CreateThread(ctx context.Context, t *domain.Thread) error
	// ListThreadsByUser returns previews of all threads the user participates
	// in, newest activity first, with the user's unread counts.
	ListThreadsByUser(ctx context.Context, userID string) ([]*domain.ThreadPreview, error)

	// CreateMessage persists a new message. The message must have ID set.
	CreateMessage(ctx context.Context, m *domain.Message) error
	// ListMessages returns up to limit messages of the thread, newest first,
	// older than before when it is non-zero.
	ListMessages(ctx context.Context, threadID string, limit int, before time.Time) ([]*domain.Message, error)
	// MarkThreadRead marks all messages in the thread not sent by readerID as
	// read at the given time. Returns how many messages changed state.
	MarkThreadRead(ctx context.Context, threadID, readerID string, at time.Time) (int, error)
	// CountUnread returns the total unread messages addressed to userID
	// across all threads.
	CountUnread(ctx context.Context, userID string) (int, error)
}
