// Package authz evaluates thread-access policy. The connection registry is
// transport-agnostic and enforces nothing; the messaging layer and the
// WebSocket subscribe path both go through this evaluator before touching
// subscriptions or fan-out.
package authz

import "context"

// ThreadInput is the policy input describing a requested thread access.
type ThreadInput struct {
	// UserID and Role identify the caller ("doctor" or "patient").
	UserID string
	Role   string
	// DoctorID and PatientID are the thread's two participants.
	DoctorID  string
	PatientID string
}

// Evaluator decides whether a user may read a conversation thread.
// Unlike the revocation check, authorization fails CLOSED: an evaluation
// error denies access.
type Evaluator interface {
	CanAccessThread(ctx context.Context, in ThreadInput) (bool, error)
}
