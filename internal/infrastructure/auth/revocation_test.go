package auth

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestMemoryRevocations_Token(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	r := NewMemoryRevocations()
	r.now = c.now

	require.NoError(t, r.RevokeToken(ctx, "jti-1", time.Minute))
	require.NoError(t, r.RevokeToken(ctx, "jti-expired", 0))

	revoked, err := r.Revoked(ctx, "jti-1", "", c.t)
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = r.Revoked(ctx, "jti-expired", "", c.t)
	require.NoError(t, err)
	assert.False(t, revoked, "zero ttl is a no-op")

	c.t = c.t.Add(time.Minute)
	revoked, err = r.Revoked(ctx, "jti-1", "", c.t)
	require.NoError(t, err)
	assert.False(t, revoked)
	assert.NotContains(t, r.tokens, "jti-1")
}

func TestMemoryRevocations_User(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	r := NewMemoryRevocations()
	r.now = c.now

	issued := c.t.Add(-time.Hour)
	revoked, err := r.Revoked(ctx, "", "user-1", issued)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, r.RevokeUser(ctx, "user-1", time.Hour))

	tests := []struct {
		name     string
		userID   string
		issuedAt time.Time
		want     bool
	}{
		{"issued before", "user-1", issued, true},
		{"issued in the same second", "user-1", c.t.Add(500 * time.Millisecond), true},
		{"issued after", "user-1", c.t.Add(2 * time.Second), false},
		{"other user", "user-2", issued, false},
		{"no user", "", issued, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Revoked(ctx, "jti-unknown", tt.userID, tt.issuedAt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRedisRevocations_Keys(t *testing.T) {
	r := NewRedisRevocations(nil)
	assert.Equal(t, "auth:revoked:jti:abc", r.tokenKey("abc"))
	assert.Equal(t, "auth:revoked:user:42", r.userKey("42"))
}

func TestRedisRevocations_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	t.Cleanup(func() { _ = client.Close() })
	r := NewRedisRevocations(client)
	ctx := context.Background()

	revoked, err := r.Revoked(ctx, "jti", "user", time.Now())
	require.Error(t, err)
	assert.False(t, revoked)

	assert.Error(t, r.RevokeToken(ctx, "jti", time.Minute))
	assert.Error(t, r.RevokeUser(ctx, "user", time.Minute))

	revoked, err = r.Revoked(ctx, "", "", time.Now())
	require.NoError(t, err, "nothing to look up")
	assert.False(t, revoked)
}
