package otp

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rutapp/authcore/internal"
)

const codeDigits = 6

var (
	// ErrInvalidFormat is returned for input that is not six ASCII digits.
	ErrInvalidFormat = errors.New("otp: invalid code format")
	// ErrExpired is returned when no code is outstanding for the subject.
	ErrExpired = errors.New("otp: code expired or not issued")
	// ErrMaxAttempts is returned when the attempt budget is exhausted.
	ErrMaxAttempts = errors.New("otp: maximum attempts reached")
	// ErrResendLimit is returned when the subject has used every resend.
	ErrResendLimit = errors.New("otp: resend limit reached")
	// ErrUnavailable wraps cache failures.
	ErrUnavailable = errors.New("otp: cache unavailable")
)

// MismatchError reports a wrong code with attempts still available.
type MismatchError struct {
	AttemptsLeft int
}

func (e *MismatchError) Error() string {
	return "otp: code mismatch, " + strconv.Itoa(e.AttemptsLeft) + " attempts left"
}

// Config tunes code lifetime and counters.
type Config struct {
	TTL          time.Duration
	MaxAttempts  int
	MaxResends   int
	ResendWindow time.Duration
	KeyPrefix    string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		TTL:          15 * time.Minute,
		MaxAttempts:  3,
		MaxResends:   3,
		ResendWindow: 24 * time.Hour,
		KeyPrefix:    "ac",
	}
}

// Validate checks that every limit is usable.
func (c Config) Validate() error {
	if c.TTL < time.Minute {
		return errors.New("otp TTL must be >= 1m")
	}
	if c.MaxAttempts <= 0 {
		return errors.New("otp MaxAttempts must be > 0")
	}
	if c.MaxResends <= 0 {
		return errors.New("otp MaxResends must be > 0")
	}
	if c.ResendWindow <= 0 {
		return errors.New("otp ResendWindow must be > 0")
	}
	return nil
}

// Issued is the result of Send.
type Issued struct {
	Code             string
	ExpiresInMinutes int
}

// sendLua stores a fresh code unless the resend budget is spent.
// KEYS[1] = code, KEYS[2] = attempts, KEYS[3] = resend counter
// ARGV[1] = code, ARGV[2] = code ttl ms, ARGV[3] = resend window ms, ARGV[4] = max resends
// Returns the new resend count, or -1 when the limit is reached.
var sendLua = redis.NewScript(`
local sent = tonumber(redis.call("GET", KEYS[3]) or "0")
if sent >= tonumber(ARGV[4]) then
  return -1
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
redis.call("DEL", KEYS[2])
local n = redis.call("INCR", KEYS[3])
if n == 1 then
  redis.call("PEXPIRE", KEYS[3], ARGV[3])
end
return n
`)

// failLua counts a wrong submission and burns the code at the limit.
// KEYS[1] = code, KEYS[2] = attempts
// ARGV[1] = attempts ttl ms, ARGV[2] = max attempts
// Returns the attempt count after increment.
var failLua = redis.NewScript(`
local n = redis.call("INCR", KEYS[2])
if n == 1 then
  redis.call("PEXPIRE", KEYS[2], ARGV[1])
end
if n >= tonumber(ARGV[2]) then
  redis.call("DEL", KEYS[1], KEYS[2])
end
return n
`)

// consumeLua deletes the code and attempts only if the code still matches,
// so one of several concurrent correct submissions wins.
// KEYS[1] = code, KEYS[2] = attempts, ARGV[1] = expected code
var consumeLua = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  redis.call("DEL", KEYS[1], KEYS[2])
  return 1
end
return 0
`)

// Engine issues and verifies email-verification codes.
type Engine struct {
	redis  redis.UniversalClient
	config Config
}

// NewEngine builds an Engine backed by redisClient.
func NewEngine(redisClient redis.UniversalClient, cfg Config) (*Engine, error) {
	if redisClient == nil {
		return nil, errors.New("otp: redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "ac"
	}
	return &Engine{
		redis:  redisClient,
		config: cfg,
	}, nil
}

// Send issues a new code for subjectID, replacing any outstanding one.
func (e *Engine) Send(ctx context.Context, subjectID string) (*Issued, error) {
	code, err := internal.NewNumericCode(codeDigits)
	if err != nil {
		return nil, err
	}

	n, err := sendLua.Run(ctx, e.redis,
		[]string{e.codeKey(subjectID), e.attemptsKey(subjectID), e.resendKey(subjectID)},
		code,
		e.config.TTL.Milliseconds(),
		e.config.ResendWindow.Milliseconds(),
		e.config.MaxResends,
	).Int64()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n < 0 {
		return nil, ErrResendLimit
	}

	return &Issued{
		Code:             code,
		ExpiresInMinutes: int(e.config.TTL / time.Minute),
	}, nil
}

// Validate checks code against the outstanding one and consumes it on match.
func (e *Engine) Validate(ctx context.Context, subjectID, code string) error {
	if !ValidFormat(code) {
		return ErrInvalidFormat
	}

	stored, err := e.redis.Get(ctx, e.codeKey(subjectID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrExpired
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		attempts, err := failLua.Run(ctx, e.redis,
			[]string{e.codeKey(subjectID), e.attemptsKey(subjectID)},
			e.config.TTL.Milliseconds(),
			e.config.MaxAttempts,
		).Int64()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if attempts >= int64(e.config.MaxAttempts) {
			return ErrMaxAttempts
		}
		return &MismatchError{AttemptsLeft: e.config.MaxAttempts - int(attempts)}
	}

	won, err := consumeLua.Run(ctx, e.redis,
		[]string{e.codeKey(subjectID), e.attemptsKey(subjectID)},
		stored,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if won != 1 {
		return ErrExpired
	}
	return nil
}

// RemainingAttempts returns how many wrong submissions the subject may still make.
func (e *Engine) RemainingAttempts(ctx context.Context, subjectID string) (int, error) {
	used, err := e.redis.Get(ctx, e.attemptsKey(subjectID)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	left := e.config.MaxAttempts - used
	if left < 0 {
		left = 0
	}
	return left, nil
}

// Invalidate clears the code and both counters.
func (e *Engine) Invalidate(ctx context.Context, subjectID string) error {
	err := e.redis.Del(ctx, e.codeKey(subjectID), e.attemptsKey(subjectID), e.resendKey(subjectID)).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (e *Engine) codeKey(subjectID string) string {
	return e.config.KeyPrefix + ":otp:verify:" + subjectID
}

func (e *Engine) attemptsKey(subjectID string) string {
	return e.config.KeyPrefix + ":otp:verify:attempts:" + subjectID
}

func (e *Engine) resendKey(subjectID string) string {
	return e.config.KeyPrefix + ":otp:verify:resend:" + subjectID
}

// ValidFormat reports whether code is exactly six ASCII digits.
func ValidFormat(code string) bool {
	if len(code) != codeDigits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
