package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrResetNotFound         = errors.New("reset token not found")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

// issueResetLua replaces the identity's active token.
// KEYS[1] = new token key, KEYS[2] = active pointer key
// ARGV[1] = auth id, ARGV[2] = new token, ARGV[3] = ttl ms, ARGV[4] = token key prefix
var issueResetLua = redis.NewScript(`
local previous = redis.call("GET", KEYS[2])
if previous then
  redis.call("DEL", ARGV[4] .. previous)
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`)

// consumeResetLua removes a token and, if it is still the active one, the
// identity's pointer. Returns the auth id or nil.
// KEYS[1] = token key
// ARGV[1] = token, ARGV[2] = active pointer key prefix
var consumeResetLua = redis.NewScript(`
local owner = redis.call("GET", KEYS[1])
if not owner then
  return false
end
redis.call("DEL", KEYS[1])
local pointer = ARGV[2] .. owner
if redis.call("GET", pointer) == ARGV[1] then
  redis.call("DEL", pointer)
end
return owner
`)

// PasswordResetStore keeps reset tokens and active-token pointers.
type PasswordResetStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewPasswordResetStore(redisClient redis.UniversalClient, prefix string) *PasswordResetStore {
	if prefix == "" {
		prefix = "ac"
	}
	return &PasswordResetStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

// Issue makes token the only valid reset token for authID.
func (s *PasswordResetStore) Issue(ctx context.Context, authID, token string, ttl time.Duration) error {
	err := issueResetLua.Run(ctx, s.redis,
		[]string{s.tokenKey(token), s.activeKey(authID)},
		authID, token, ttl.Milliseconds(), s.tokenKey(""),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return nil
}

// Consume deletes token and returns the auth id it was issued for.
func (s *PasswordResetStore) Consume(ctx context.Context, token string) (string, error) {
	owner, err := consumeResetLua.Run(ctx, s.redis,
		[]string{s.tokenKey(token)},
		token, s.activeKey(""),
	).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrResetNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return owner, nil
}

// Active returns the identity's current token, if any.
func (s *PasswordResetStore) Active(ctx context.Context, authID string) (string, error) {
	token, err := s.redis.Get(ctx, s.activeKey(authID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrResetNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return token, nil
}

func (s *PasswordResetStore) tokenKey(token string) string {
	return s.prefix + ":reset:token:" + token
}

func (s *PasswordResetStore) activeKey(authID string) string {
	return s.prefix + ":reset:active:" + authID
}
