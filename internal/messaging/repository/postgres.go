package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"clinic-messaging/backend/internal/messaging/domain"
)

// PostgresRepository implements Repository against Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a messaging repository using the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetThread returns the thread for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetThread(ctx context.Context, id string) (*domain.Thread, error) {
	const q = `SELECT id, doctor_id, patient_id, created_at FROM threads WHERE id = $1`
	var t domain.Thread
	err := r.db.QueryRowContext(ctx, q, id).Scan(&t.ID, &t.DoctorID, &t.PatientID, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// GetThreadByParticipants returns the thread between doctor and patient, or nil.
func (r *PostgresRepository) GetThreadByParticipants(ctx context.Context, doctorID, patientID string) (*domain.Thread, error) {
	const q = `SELECT id, doctor_id, patient_id, created_at FROM threads WHERE doctor_id = $1 AND patient_id = $2`
	var t domain.Thread
	err := r.db.QueryRowContext(ctx, q, doctorID, patientID).Scan(&t.ID, &t.DoctorID, &t.PatientID, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// CreateThread persists the thread. The thread must have ID set.
func (r *PostgresRepository) CreateThread(ctx context.Context, t *domain.Thread) error {
	const q = `INSERT INTO threads (id, doctor_id, patient_id, created_at) VALUES ($1, $2, $3, $4)`
	_, err := r.db.ExecContext(ctx, q, t.ID, t.DoctorID, t.PatientID, t.CreatedAt)
	return err
}

// ListThreadsByUser returns previews of the user's threads, newest activity first.
func (r *PostgresRepository) ListThreadsByUser(ctx context.Context, userID string) ([]*domain.ThreadPreview, error) {
	const q = `
		SELECT t.id, t.doctor_id, t.patient_id, t.created_at,
		       COUNT(m.id) FILTER (WHERE m.sender_id <> $1 AND m.read_at IS NULL) AS unread,
		       MAX(m.created_at) AS last_message
		FROM threads t
		LEFT JOIN messages m ON m.thread_id = t.id
		WHERE t.doctor_id = $1 OR t.patient_id = $1
		GROUP BY t.id, t.doctor_id, t.patient_id, t.created_at
		ORDER BY COALESCE(MAX(m.created_at), t.created_at) DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.ThreadPreview
	for rows.Next() {
		var p domain.ThreadPreview
		var last sql.NullTime
		if err := rows.Scan(&p.ID, &p.DoctorID, &p.PatientID, &p.CreatedAt, &p.UnreadCount, &last); err != nil {
			return nil, err
		}
		if last.Valid {
			p.LastMessage = &last.Time
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// CreateMessage persists the message. The message must have ID set.
func (r *PostgresRepository) CreateMessage(ctx context.Context, m *domain.Message) error {
	const q = `INSERT INTO messages (id, thread_id, sender_id, body, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, q, m.ID, m.ThreadID, m.SenderID, m.Body, m.CreatedAt)
	return err
}

// ListMessages returns up to limit messages of the thread, newest first.
func (r *PostgresRepository) ListMessages(ctx context.Context, threadID string, limit int, before time.Time) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, thread_id, sender_id, body, created_at, read_at
	      FROM messages WHERE thread_id = $1`
	args := []any{threadID}
	if !before.IsZero() {
		q += ` AND created_at < $2 ORDER BY created_at DESC LIMIT $3`
		args = append(args, before, limit)
	} else {
		q += ` ORDER BY created_at DESC LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		var m domain.Message
		var readAt sql.NullTime
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.SenderID, &m.Body, &m.CreatedAt, &readAt); err != nil {
			return nil, err
		}
		if readAt.Valid {
			m.ReadAt = &readAt.Time
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// MarkThreadRead marks messages from the other participant as read.
func (r *PostgresRepository) MarkThreadRead(ctx context.Context, threadID, readerID string, at time.Time) (int, error) {
	const q = `UPDATE messages SET read_at = $3 WHERE thread_id = $1 AND sender_id <> $2 AND read_at IS NULL`
	res, err := r.db.ExecContext(ctx, q, threadID, readerID, at)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// CountUnread returns the user's total unread messages across threads.
func (r *PostgresRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	const q = `
		SELECT COUNT(*)
		FROM messages m
		JOIN threads t ON t.id = m.thread_id
		WHERE (t.doctor_id = $1 OR t.patient_id = $1)
		  AND m.sender_id <> $1
		  AND m.read_at IS NULL`
	var n int
	err := r.db.QueryRowContext(ctx, q, userID).Scan(&n)
	return n, err
}
