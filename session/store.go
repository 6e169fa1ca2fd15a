package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every cache failure.
var ErrRedisUnavailable = errors.New("session: redis unavailable")

// ErrRefreshNotFound is returned when a refresh jti is absent: already
// rotated, revoked, expired or never issued.
var ErrRefreshNotFound = errors.New("session: refresh token not found")

// advanceMarkerLua sets KEYS[1] to ARGV[1] unless it already holds a later
// timestamp, and refreshes the TTL either way.
// ARGV[1] = unix millis, ARGV[2] = ttl ms
var advanceMarkerLua = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local at = tonumber(ARGV[1])
if at > current then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
  return at
end
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return current
`)

// Store is safe for concurrent use.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore builds a Store. An empty prefix selects "ac".
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "ac"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

// SaveRefresh records jti as live for subject.
func (s *Store) SaveRefresh(ctx context.Context, jti, subject string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.refreshKey(jti), subject, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ConsumeRefresh atomically removes jti and returns its subject.
func (s *Store) ConsumeRefresh(ctx context.Context, jti string) (string, error) {
	subject, err := s.redis.GetDel(ctx, s.refreshKey(jti)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrRefreshNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return subject, nil
}

// DeleteRefresh removes jti. Deleting an absent jti is not an error.
func (s *Store) DeleteRefresh(ctx context.Context, jti string) error {
	if err := s.redis.Del(ctx, s.refreshKey(jti)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RevokeAccess flags an access jti for its remaining lifetime. A token that
// has already expired needs no flag.
func (s *Store) RevokeAccess(ctx context.Context, jti string, remaining time.Duration) error {
	if remaining <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, s.revokeKey(jti), "1", remaining).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// IsAccessRevoked reports whether jti carries a revocation flag.
func (s *Store) IsAccessRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.revokeKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// RevokeSubjectSince marks every token of subject issued at or before at as
// revoked, for ttl.
func (s *Store) RevokeSubjectSince(ctx context.Context, subject string, at time.Time, ttl time.Duration) error {
	err := advanceMarkerLua.Run(ctx, s.redis, []string{s.markerKey(subject)}, at.UnixMilli(), ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RevokedSince returns the subject's mass-revocation marker, if any.
func (s *Store) RevokedSince(ctx context.Context, subject string) (time.Time, bool, error) {
	raw, err := s.redis.Get(ctx, s.markerKey(subject)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: corrupt marker", ErrRedisUnavailable)
	}
	return time.UnixMilli(ms), true, nil
}

// IsRevokedAt reports whether a token issued at issuedAtMs predates the
// subject's marker.
func (s *Store) IsRevokedAt(ctx context.Context, subject string, issuedAtMs int64) (bool, error) {
	since, ok, err := s.RevokedSince(ctx, subject)
	if err != nil || !ok {
		return false, err
	}
	return issuedAtMs <= since.UnixMilli(), nil
}

func (s *Store) refreshKey(jti string) string {
	return s.prefix + ":refresh:" + jti
}

func (s *Store) revokeKey(jti string) string {
	return s.prefix + ":revoke:jti:" + jti
}

func (s *Store) markerKey(subject string) string {
	return s.prefix + ":revoked_since:" + subject
}
