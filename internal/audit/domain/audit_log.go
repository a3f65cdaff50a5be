package domain

import "time"

// AuditLog represents one security-relevant event: a login, logout, token
// revocation, or message access.
type AuditLog struct {
	ID        string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
