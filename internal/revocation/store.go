// Package revocation tracks logically-invalidated token identifiers (jti)
// with automatic expiry. Every authenticated request and every WebSocket
// handshake consults it.
//
// Availability trade-off, deliberate and load-bearing: IsRevoked fails OPEN.
// If the backing store is unreachable the token is treated as not revoked,
// so a Redis outage degrades security slightly instead of taking down all
// authentication. Revoke fails closed in the weak sense: it reports failure
// to the caller as a boolean but never aborts the caller's flow.
package revocation

import (
	"context"
	"time"
)

// Entry describes a single revoked token. Entries are write-once: they are
// created by Revoke and disappear by TTL, never updated.
type Entry struct {
	JTI       string    `json:"jti"`
	UserID    string    `json:"user_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	RevokedAt time.Time `json:"revoked_at"`
}

// Store answers "is this token id revoked?" in O(1) amortized time.
type Store interface {
	// Revoke records jti as revoked until expiresAt, clamped to the store's
	// [floor, ceiling] lifetime bounds. The clamp only bounds store growth;
	// the token's cryptographic expiry is still enforced by the auth layer.
	// Returns false (and logs) on storage failure instead of erroring.
	Revoke(ctx context.Context, jti string, expiresAt time.Time, userID, reason string) bool

	// IsRevoked reports whether an unexpired entry exists for jti.
	// Fails open: storage errors are logged and reported as "not revoked".
	IsRevoked(ctx context.Context, jti string) bool

	// Cleanup removes expired entries where the backend does not do so
	// natively. For TTL-native backends it is a documented no-op.
	Cleanup(ctx context.Context) error
}

// Bounds holds the lifetime clamp applied to stored entries.
type Bounds struct {
	Floor   time.Duration
	Ceiling time.Duration
}

// DefaultBounds is a 60-second floor and 7-day ceiling.
var DefaultBounds = Bounds{Floor: 60 * time.Second, Ceiling: 168 * time.Hour}

// clampTTL converts expiresAt into a stored TTL within b, measured from now.
// Already-expired tokens still get the floor so a racing validation cannot
// slip through right after logout.
func (b Bounds) clampTTL(now, expiresAt time.Time) time.Duration {
	floor, ceiling := b.Floor, b.Ceiling
	if floor <= 0 {
		floor = DefaultBounds.Floor
	}
	if ceiling <= 0 {
		ceiling = DefaultBounds.Ceiling
	}
	ttl := expiresAt.Sub(now)
	if ttl < floor {
		return floor
	}
	if ttl > ceiling {
		return ceiling
	}
	return ttl
}
