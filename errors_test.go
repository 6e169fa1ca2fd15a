package authcore

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, KindNone},
		{ErrInvalidCredentials, KindInvalidCredentials},
		{&AccountLockedError{RemainingMinutes: 3}, KindAccountLocked},
		{ErrNotFound, KindNotFound},
		{ErrEmailTaken, KindConflict},
		{ErrAlreadyVerified, KindConflict},
		{ErrConcurrentUpdate, KindConflict},
		{ErrRateLimited, KindRateLimited},
		{ErrInvalidToken, KindInvalidToken},
		{ErrSessionRevoked, KindSessionRevoked},
		{ErrOtpExpired, KindOtpExpired},
		{&OtpMismatchError{AttemptsLeft: 1}, KindOtpMismatch},
		{ErrOtpLockedOut, KindOtpLockedOut},
		{ErrPasswordPolicy, KindInvalidInput},
		{ErrAccountUnverified, KindInvalidInput},
		{fmt.Errorf("wrapped: %w", ErrPasswordReuse), KindInvalidInput},
		{errors.New("unknown"), KindInternal},
		{internalError("op", ErrNotFound), KindInternal},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Fatalf("KindOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestInternalErrorHidesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := internalError("login", cause)

	if !errors.Is(err, ErrInternal) {
		t.Fatal("expected ErrInternal")
	}
	if errors.Is(err, cause) {
		t.Fatal("cause must not be matchable")
	}
}

func TestRefinementsMatchThemselvesOnly(t *testing.T) {
	if !errors.Is(ErrEmailTaken, ErrEmailTaken) || !errors.Is(ErrEmailTaken, ErrConflict) {
		t.Fatal("ErrEmailTaken must match itself and ErrConflict")
	}
	if errors.Is(ErrEmailTaken, ErrAlreadyVerified) {
		t.Fatal("sibling refinements must not match")
	}
}

func TestTypedErrorMessages(t *testing.T) {
	locked := &AccountLockedError{RemainingMinutes: 12}
	if locked.Error() != "account locked, try again in 12 minutes" {
		t.Fatalf("unexpected message %q", locked.Error())
	}
	mismatch := &OtpMismatchError{AttemptsLeft: 2}
	if mismatch.Error() != "verification code mismatch, 2 attempts left" {
		t.Fatalf("unexpected message %q", mismatch.Error())
	}
	if KindOtpLockedOut.String() != "otp_locked_out" || Kind(99).String() != "kind(99)" {
		t.Fatal("unexpected kind names")
	}
}
