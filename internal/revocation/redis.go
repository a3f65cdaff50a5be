package revocation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "revoked:"

// RedisStore implements Store on Redis, one key per jti with a native TTL.
// Redis is the single piece of cross-process shared state: many backend
// processes revoke and check concurrently with no coordination beyond
// single-key writes.
type RedisStore struct {
	client *redis.Client
	bounds Bounds
	logger zerolog.Logger
}

// NewRedisStore returns a Store backed by the given Redis client.
func NewRedisStore(client *redis.Client, bounds Bounds, logger zerolog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		bounds: bounds,
		logger: logger.With().Str("component", "revocation.RedisStore").Logger(),
	}
}

// Revoke stores an entry for jti with a TTL clamped to the store bounds.
// Storage failure is logged as a warning (security-relevant, not fatal) and
// reported as false; the caller's flow continues.
func (s *RedisStore) Revoke(ctx context.Context, jti string, expiresAt time.Time, userID, reason string) bool {
	if jti == "" {
		return false
	}
	now := time.Now().UTC()
	entry := Entry{JTI: jti, UserID: userID, Reason: reason, RevokedAt: now}
	payload, err := json.Marshal(entry)
	if err != nil {
		s.logger.Warn().Err(err).Str("jti", jti).Msg("failed to encode revocation entry")
		return false
	}
	ttl := s.bounds.clampTTL(now, expiresAt)
	if err := s.client.Set(ctx, keyPrefix+jti, payload, ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Str("jti", jti).Msg("failed to store revocation entry")
		return false
	}
	return true
}

// IsRevoked reports whether jti has an unexpired entry. Fails open on
// storage errors: the outage is logged and the token treated as not revoked.
func (s *RedisStore) IsRevoked(ctx context.Context, jti string) bool {
	if jti == "" {
		return false
	}
	err := s.client.Get(ctx, keyPrefix+jti).Err()
	if err == nil {
		return true
	}
	if errors.Is(err, redis.Nil) {
		return false
	}
	s.logger.Warn().Err(err).Str("jti", jti).Msg("revocation check failed; failing open")
	return false
}

// Cleanup is a no-op: Redis expires keys natively via per-key TTL.
func (s *RedisStore) Cleanup(ctx context.Context) error {
	return nil
}
