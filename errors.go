package authcore

import (
	"errors"
	"fmt"
	"strconv"
)

// Kind classifies every error the engine returns. Adapters map kinds to
// transport status codes.
type Kind int

const (
	KindNone Kind = iota
	KindInvalidInput
	KindInvalidCredentials
	KindAccountLocked
	KindNotFound
	KindConflict
	KindRateLimited
	KindInvalidToken
	KindSessionRevoked
	KindOtpExpired
	KindOtpMismatch
	KindOtpLockedOut
	KindInternal
)

var kindNames = [...]string{
	KindNone:               "none",
	KindInvalidInput:       "invalid_input",
	KindInvalidCredentials: "invalid_credentials",
	KindAccountLocked:      "account_locked",
	KindNotFound:           "not_found",
	KindConflict:           "conflict",
	KindRateLimited:        "rate_limited",
	KindInvalidToken:       "invalid_token",
	KindSessionRevoked:     "session_revoked",
	KindOtpExpired:         "otp_expired",
	KindOtpMismatch:        "otp_mismatch",
	KindOtpLockedOut:       "otp_locked_out",
	KindInternal:           "internal",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

var (
	// ErrInvalidInput is returned for malformed requests: bad email, password
	// confirmation mismatch, policy violations.
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is matched by *AccountLockedError.
	ErrAccountLocked = errors.New("account locked")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrRateLimited   = errors.New("rate limited")
	ErrInvalidToken  = errors.New("invalid token")
	// ErrSessionRevoked is returned for tokens invalidated by logout or by a
	// password change or reset.
	ErrSessionRevoked = errors.New("session revoked")
	ErrOtpExpired     = errors.New("verification code expired")
	// ErrOtpMismatch is matched by *OtpMismatchError.
	ErrOtpMismatch  = errors.New("verification code mismatch")
	ErrOtpLockedOut = errors.New("verification attempts exhausted")
	ErrInternal     = errors.New("internal error")
)

// Refinements. Each matches its own sentinel and the kind it wraps.
var (
	ErrAccountUnverified = refine("account unverified", ErrInvalidInput)
	ErrAlreadyVerified   = refine("account already verified", ErrConflict)
	ErrEmailTaken        = refine("email already registered", ErrConflict)
	ErrPasswordPolicy    = refine("password policy violation", ErrInvalidInput)
	ErrPasswordReuse     = refine("new password must differ from the current one", ErrInvalidInput)
	ErrPasswordMismatch  = refine("passwords do not match", ErrInvalidInput)
	ErrInvalidEmail      = refine("invalid email address", ErrInvalidInput)
	ErrInvalidCode       = refine("verification code must be six digits", ErrInvalidInput)
	ErrConcurrentUpdate  = refine("account changed concurrently, retry", ErrConflict)
)

type refinement struct {
	msg  string
	kind error
}

func refine(msg string, kind error) error {
	return &refinement{msg: msg, kind: kind}
}

func (r *refinement) Error() string { return r.msg }
func (r *refinement) Unwrap() error { return r.kind }

// AccountLockedError carries the minutes left on an active lock.
type AccountLockedError struct {
	RemainingMinutes int
}

func (e *AccountLockedError) Error() string {
	return "account locked, try again in " + strconv.Itoa(e.RemainingMinutes) + " minutes"
}

func (e *AccountLockedError) Is(target error) bool { return target == ErrAccountLocked }

// OtpMismatchError carries the submissions left before lockout.
type OtpMismatchError struct {
	AttemptsLeft int
}

func (e *OtpMismatchError) Error() string {
	return "verification code mismatch, " + strconv.Itoa(e.AttemptsLeft) + " attempts left"
}

func (e *OtpMismatchError) Is(target error) bool { return target == ErrOtpMismatch }

// KindOf maps err to its taxonomy kind. Unknown errors are Internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInternal):
		return KindInternal
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return KindAccountLocked
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrInvalidToken):
		return KindInvalidToken
	case errors.Is(err, ErrSessionRevoked):
		return KindSessionRevoked
	case errors.Is(err, ErrOtpExpired):
		return KindOtpExpired
	case errors.Is(err, ErrOtpMismatch):
		return KindOtpMismatch
	case errors.Is(err, ErrOtpLockedOut):
		return KindOtpLockedOut
	default:
		return KindInternal
	}
}

// internalError hides cause behind ErrInternal; the cause text is kept for
// logs but cannot be matched by callers.
func internalError(op string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrInternal, op, cause)
}
