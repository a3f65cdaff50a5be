package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampTTL(t *testing.T) {
	b := Bounds{Floor: 60 * time.Second, Ceiling: 168 * time.Hour}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		want      time.Duration
	}{
		{"within bounds", now.Add(time.Hour), time.Hour},
		{"below floor", now.Add(10 * time.Second), 60 * time.Second},
		{"already expired", now.Add(-time.Hour), 60 * time.Second},
		{"above ceiling: 30 days capped to 7", now.Add(30 * 24 * time.Hour), 168 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.clampTTL(now, tt.expiresAt))
		})
	}
}

func TestClampTTL_ZeroBoundsUseDefaults(t *testing.T) {
	var b Bounds
	now := time.Now()
	assert.Equal(t, DefaultBounds.Floor, b.clampTTL(now, now))
	assert.Equal(t, DefaultBounds.Ceiling, b.clampTTL(now, now.Add(365*24*time.Hour)))
}

func TestMemoryStore_RevokeThenCheck(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(DefaultBounds)

	require.False(t, s.IsRevoked(ctx, "jti-1"))
	require.True(t, s.Revoke(ctx, "jti-1", time.Now().Add(10*time.Second), "u1", "logout"))
	assert.True(t, s.IsRevoked(ctx, "jti-1"))
	assert.False(t, s.IsRevoked(ctx, "jti-other"))
}

func TestMemoryStore_EmptyJTI(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(DefaultBounds)
	assert.False(t, s.Revoke(ctx, "", time.Now().Add(time.Hour), "", ""))
	assert.False(t, s.IsRevoked(ctx, ""))
}

func TestMemoryStore_EntryExpires(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(DefaultBounds)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	require.True(t, s.Revoke(ctx, "jti-1", base.Add(90*time.Second), "u1", "logout"))
	assert.True(t, s.IsRevoked(ctx, "jti-1"))

	// Advance past the stored TTL; the entry must not outlive the token.
	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	assert.False(t, s.IsRevoked(ctx, "jti-1"))
}

func TestMemoryStore_TTLFloorAppliesToExpiredTokens(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(Bounds{Floor: 60 * time.Second, Ceiling: time.Hour})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	// expiresAt in the past still yields a floor-length entry.
	require.True(t, s.Revoke(ctx, "jti-1", base.Add(-time.Hour), "u1", "logout"))
	s.now = func() time.Time { return base.Add(30 * time.Second) }
	assert.True(t, s.IsRevoked(ctx, "jti-1"))
	s.now = func() time.Time { return base.Add(61 * time.Second) }
	assert.False(t, s.IsRevoked(ctx, "jti-1"))
}

func TestMemoryStore_CeilingCapsLongExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(DefaultBounds)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	// A token expiring 30 days out is stored for at most 7 days.
	require.True(t, s.Revoke(ctx, "jti-long", base.Add(30*24*time.Hour), "u1", "compromise"))
	s.now = func() time.Time { return base.Add(7*24*time.Hour + time.Minute) }
	assert.False(t, s.IsRevoked(ctx, "jti-long"))
}

func TestMemoryStore_Cleanup(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(DefaultBounds)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	s.Revoke(ctx, "a", base.Add(time.Minute), "", "")
	s.Revoke(ctx, "b", base.Add(time.Hour), "", "")

	s.now = func() time.Time { return base.Add(10 * time.Minute) }
	require.NoError(t, s.Cleanup(ctx))

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.NotContains(t, s.entries, "a")
	assert.Contains(t, s.entries, "b")
}

func TestRedisStore_UnreachableBackend(t *testing.T) {
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:1",
		DialTimeout:  100 * time.Millisecond,
		ReadTimeout:  100 * time.Millisecond,
		WriteTimeout: 100 * time.Millisecond,
		MaxRetries:   -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	s := NewRedisStore(client, DefaultBounds, zerolog.Nop())

	// Checks fail open: an outage must not lock everyone out.
	assert.False(t, s.IsRevoked(ctx, "jti-1"))

	// Writes fail closed as a boolean: the caller's flow continues.
	assert.False(t, s.Revoke(ctx, "jti-1", time.Now().Add(time.Hour), "u1", "logout"))
	assert.NoError(t, s.Cleanup(ctx))
}
