package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revocations invalidates JWTs before they expire. Single tokens are revoked
// on logout; every token of a user is revoked when the account is deactivated.
type Revocations interface {
	// RevokeToken rejects one token by its jti for the rest of its lifetime
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	// RevokeUser rejects every token of the user issued up to now
	RevokeUser(ctx context.Context, userID string, ttl time.Duration) error
	// Revoked reports whether a token was revoked directly or through its
	// user. An empty jti or userID skips that check.
	Revoked(ctx context.Context, jti, userID string, issuedAt time.Time) (bool, error)
}

const revocationKeyPrefix = "auth:revoked:"

// RedisRevocations shares revocations between the IAM service and the
// back-office server.
type RedisRevocations struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisRevocations(client redis.UniversalClient) *RedisRevocations {
	return &RedisRevocations{client: client, prefix: revocationKeyPrefix, now: time.Now}
}

func (r *RedisRevocations) tokenKey(jti string) string   { return r.prefix + "jti:" + jti }
func (r *RedisRevocations) userKey(userID string) string { return r.prefix + "user:" + userID }

func (r *RedisRevocations) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, r.tokenKey(jti), 1, ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// RevokeUser stores the revocation time in Unix seconds, the precision of
// the iat claim.
func (r *RedisRevocations) RevokeUser(ctx context.Context, userID string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.userKey(userID), r.now().Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}
	return nil
}

// Revoked answers both lookups in one round trip.
func (r *RedisRevocations) Revoked(ctx context.Context, jti, userID string, issuedAt time.Time) (bool, error) {
	if jti == "" && userID == "" {
		return false, nil
	}
	var (
		token *redis.IntCmd
		user  *redis.StringCmd
	)
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		if jti != "" {
			token = p.Exists(ctx, r.tokenKey(jti))
		}
		if userID != "" {
			user = p.Get(ctx, r.userKey(userID))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("check revocations: %w", err)
	}

	if token != nil && token.Val() > 0 {
		return true, nil
	}
	if user == nil {
		return false, nil
	}
	raw, err := user.Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check user revocation: %w", err)
	}
	revokedAt, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, fmt.Errorf("parse user revocation %q: %w", raw, err)
	}
	return issuedAt.Unix() <= revokedAt, nil
}

// MemoryRevocations keeps revocations in process memory. Used when Redis is
// not configured; the IAM service and the server do not see each other's
// revocations in that mode.
type MemoryRevocations struct {
	mu     sync.Mutex
	tokens map[string]time.Time // jti -> expiry
	users  map[string]int64     // userID -> unix seconds
	now    func() time.Time
}

func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{
		tokens: make(map[string]time.Time),
		users:  make(map[string]int64),
		now:    time.Now,
	}
}

func (m *MemoryRevocations) RevokeToken(_ context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	m.tokens[jti] = m.now().Add(ttl)
	m.mu.Unlock()
	return nil
}

func (m *MemoryRevocations) RevokeUser(_ context.Context, userID string, _ time.Duration) error {
	m.mu.Lock()
	m.users[userID] = m.now().Unix()
	m.mu.Unlock()
	return nil
}

func (m *MemoryRevocations) Revoked(_ context.Context, jti, userID string, issuedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if expiry, ok := m.tokens[jti]; ok && jti != "" {
		if m.now().Before(expiry) {
			return true, nil
		}
		delete(m.tokens, jti)
	}
	if revokedAt, ok := m.users[userID]; ok && userID != "" {
		return issuedAt.Unix() <= revokedAt, nil
	}
	return false, nil
}

var (
	_ Revocations = (*RedisRevocations)(nil)
	_ Revocations = (*MemoryRevocations)(nil)
)
