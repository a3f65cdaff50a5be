// Package domain holds the messaging entities: conversation threads between
// one doctor and one patient, and the messages inside them.
package domain

import "time"

// Thread is a persistent conversation channel between one doctor and one patient.
type Thread struct {
	ID        string
	DoctorID  string
	PatientID string
	CreatedAt time.Time
}

// OtherParticipant returns the participant who is not userID, or "" if
// userID is not part of the thread.
func (t *Thread) OtherParticipant(userID string) string {
	switch userID {
	case t.DoctorID:
		return t.PatientID
	case t.PatientID:
		return t.DoctorID
	default:
		return ""
	}
}

// Message is one chat message in a thread. ReadAt is nil until the recipient
// marks the thread read.
type Message struct {
	ID        string
	ThreadID  string
	SenderID  string
	Body      string
	CreatedAt time.Time
	ReadAt    *time.Time
}

// ThreadPreview is a thread plus the unread count for the requesting user,
// as listed on the inbox screen.
type ThreadPreview struct {
	Thread
	UnreadCount int
	LastMessage *time.Time
}
