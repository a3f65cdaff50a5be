package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"clinic-messaging/backend/internal/authz"
	"clinic-messaging/backend/internal/messaging/domain"
	"clinic-messaging/backend/internal/realtime"
	"clinic-messaging/backend/internal/telemetry"
	telemetrydomain "clinic-messaging/backend/internal/telemetry/domain"
)

// Sentinel errors for the messaging service; the handler maps them to HTTP codes.
var (
	ErrThreadNotFound = errors.New("thread not found")
	ErrNotParticipant = errors.New("user is not a participant of the thread")
	ErrEmptyBody      = errors.New("message body is required")
	ErrBodyTooLong    = errors.New("message body exceeds the maximum length")
	ErrInvalidPairing = errors.New("a thread needs exactly one doctor and one patient")
)

// MaxBodyLength bounds a single message body in bytes.
const MaxBodyLength = 4096

// Repo is the messaging repository surface the service needs.
type Repo interface {
	GetThread(ctx context.Context, id string) (*domain.Thread, error)
	GetThreadByParticipants(ctx context.Context, doctorID, patientID string) (*domain.Thread, error)
	CreateThread(ctx context.Context, t *domain.Thread) error
	ListThreadsByUser(ctx context.Context, userID string) ([]*domain.ThreadPreview, error)
	CreateMessage(ctx context.Context, m *domain.Message) error
	ListMessages(ctx context.Context, threadID string, limit int, before time.Time) ([]*domain.Message, error)
	MarkThreadRead(ctx context.Context, threadID, readerID string, at time.Time) (int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
}

// Notifier pushes events to live connections. The hub satisfies it.
type Notifier interface {
	SendToUser(ctx context.Context, userID string, ev realtime.Event)
	BroadcastToThread(ctx context.Context, threadID string, ev realtime.Event, excludeUserID string)
}

// Screener flags clinically risky message content. Screening is advisory and
// asynchronous; it never blocks or rejects a send.
type Screener interface {
	Screen(ctx context.Context, threadID, messageID, body string) (string, error)
}

// MessagingService implements thread listing, message send/history, and read
// receipts, pushing realtime events as a side effect of each mutation.
type MessagingService struct {
	repo     Repo
	notifier Notifier
	eval     authz.Evaluator
	screener Screener
	emitter  telemetry.EventEmitter
	logger   zerolog.Logger
}

// NewMessagingService returns a MessagingService. screener may be nil, in
// which case content screening is disabled.
func NewMessagingService(repo Repo, notifier Notifier, eval authz.Evaluator, screener Screener, logger zerolog.Logger) *MessagingService {
	return &MessagingService{
		repo:     repo,
		notifier: notifier,
		eval:     eval,
		screener: screener,
		logger:   logger.With().Str("component", "messaging").Logger(),
	}
}

// UseEmitter sets the security event emitter. May stay unset; events are then
// dropped.
func (s *MessagingService) UseEmitter(emitter telemetry.EventEmitter) {
	s.emitter = emitter
}

// authorize loads the thread and checks the caller may access it.
// Evaluation errors deny access.
func (s *MessagingService) authorize(ctx context.Context, userID, role, threadID string) (*domain.Thread, error) {
	thread, err := s.repo.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, ErrThreadNotFound
	}
	allowed, err := s.eval.CanAccessThread(ctx, authz.ThreadInput{
		UserID:    userID,
		Role:      role,
		DoctorID:  thread.DoctorID,
		PatientID: thread.PatientID,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("thread_id", threadID).Msg("thread access evaluation failed")
		return nil, ErrNotParticipant
	}
	if !allowed {
		return nil, ErrNotParticipant
	}
	return thread, nil
}

// CanAccessThread reports whether the user may read the thread. It satisfies
// the realtime subscribe path's authorizer so WebSocket subscriptions run the
// same policy as the HTTP API. Unknown threads and denied access are a plain
// false, not an error.
func (s *MessagingService) CanAccessThread(ctx context.Context, userID, role, threadID string) (bool, error) {
	_, err := s.authorize(ctx, userID, role, threadID)
	if err != nil {
		if errors.Is(err, ErrThreadNotFound) || errors.Is(err, ErrNotParticipant) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateThread opens a conversation between a doctor and a patient. The caller
// must be one of the two participants. Returns the existing thread if one is
// already open between the pair.
func (s *MessagingService) CreateThread(ctx context.Context, userID, role, doctorID, patientID string) (*domain.Thread, error) {
	doctorID = strings.TrimSpace(doctorID)
	patientID = strings.TrimSpace(patientID)
	if doctorID == "" || patientID == "" || doctorID == patientID {
		return nil, ErrInvalidPairing
	}
	switch role {
	case "doctor":
		if userID != doctorID {
			return nil, ErrNotParticipant
		}
	case "patient":
		if userID != patientID {
			return nil, ErrNotParticipant
		}
	default:
		return nil, ErrNotParticipant
	}
	existing, err := s.repo.GetThreadByParticipants(ctx, doctorID, patientID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	thread := &domain.Thread{
		ID:        uuid.New().String(),
		DoctorID:  doctorID,
		PatientID: patientID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateThread(ctx, thread); err != nil {
		return nil, err
	}
	return thread, nil
}

// Threads returns the caller's thread previews with unread counts.
func (s *MessagingService) Threads(ctx context.Context, userID string) ([]*domain.ThreadPreview, error) {
	return s.repo.ListThreadsByUser(ctx, userID)
}

// History returns up to limit messages of the thread, newest first. A zero
// before means no upper bound.
func (s *MessagingService) History(ctx context.Context, userID, role, threadID string, limit int, before time.Time) ([]*domain.Message, error) {
	if _, err := s.authorize(ctx, userID, role, threadID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, threadID, limit, before)
}

// Send persists a message and fans it out: new_message to the thread's other
// live subscribers and unread_update to the recipient. Fan-out failures do not
// fail the send.
func (s *MessagingService) Send(ctx context.Context, userID, role, threadID, body string) (*domain.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyBody
	}
	if len(body) > MaxBodyLength {
		return nil, ErrBodyTooLong
	}
	thread, err := s.authorize(ctx, userID, role, threadID)
	if err != nil {
		return nil, err
	}
	msg := &domain.Message{
		ID:        uuid.New().String(),
		ThreadID:  threadID,
		SenderID:  userID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	recipient := thread.OtherParticipant(userID)
	s.notifier.BroadcastToThread(ctx, threadID, realtime.NewMessageEvent(threadID, msg), userID)
	s.pushUnread(ctx, recipient)

	sent := telemetry.NewEvent(telemetrydomain.EventMessageSent, userID)
	sent.ThreadID = threadID
	telemetry.EmitAsync(s.emitter, ctx, sent)

	if s.screener != nil {
		go s.screen(threadID, msg.ID, body)
	}
	return msg, nil
}

// MarkRead marks the thread's messages from the other participant as read and
// notifies both sides: message_read to the thread, unread_update to the reader.
func (s *MessagingService) MarkRead(ctx context.Context, userID, role, threadID string) (int, error) {
	if _, err := s.authorize(ctx, userID, role, threadID); err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	n, err := s.repo.MarkThreadRead(ctx, threadID, userID, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.notifier.BroadcastToThread(ctx, threadID, realtime.MessageReadEvent(threadID, map[string]any{
			"reader_id": userID,
			"read_at":   now,
		}), userID)
	}
	s.pushUnread(ctx, userID)
	return n, nil
}

// pushUnread recomputes the user's total unread from storage and pushes it.
// Live counts are always derived from the database, never incremented in
// memory, so reconnecting clients converge on the same number.
func (s *MessagingService) pushUnread(ctx context.Context, userID string) {
	total, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("unread recount failed")
		return
	}
	s.notifier.SendToUser(ctx, userID, realtime.UnreadUpdateEvent(total))
}

func (s *MessagingService) screen(threadID, messageID, body string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	level, err := s.screener.Screen(ctx, threadID, messageID, body)
	if err != nil {
		s.logger.Warn().Err(err).Str("message_id", messageID).Msg("content screening failed")
		return
	}
	if level != "" && level != "none" {
		s.logger.Warn().
			Str("thread_id", threadID).
			Str("message_id", messageID).
			Str("risk_level", level).
			Msg("message flagged by content screening")
		flagged := telemetry.NewEvent(telemetrydomain.EventMessageFlagged, "")
		flagged.ThreadID = threadID
		flagged.Metadata = map[string]string{"message_id": messageID, "risk_level": level}
		telemetry.EmitAsync(s.emitter, ctx, flagged)
	}
}
