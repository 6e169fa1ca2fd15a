package authcore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rutapp/authcore/identity"
)

func wrongCode(code string) string {
	if code == "123456" {
		return "654321"
	}
	return "123456"
}

func TestVerificationFlow(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	reg := h.register(t, "ana@example.com")

	dispatch, err := h.engine.SendVerification(ctx, reg.BusinessID)
	if err != nil {
		t.Fatalf("SendVerification failed: %v", err)
	}
	if dispatch.ExpiresInMinutes != 15 {
		t.Fatalf("expected 15 minutes, got %d", dispatch.ExpiresInMinutes)
	}
	msg, ok := h.mail.LastVerification()
	if !ok || msg.To != "ana@example.com" || msg.Alias != reg.Alias || len(msg.Code) != 6 {
		t.Fatalf("unexpected verification email: %+v", msg)
	}

	err = h.engine.ConfirmVerification(ctx, reg.BusinessID, wrongCode(msg.Code))
	var mismatch *OtpMismatchError
	if !errors.As(err, &mismatch) || mismatch.AttemptsLeft != 2 {
		t.Fatalf("expected mismatch with 2 attempts left, got %v", err)
	}

	if err := h.engine.ConfirmVerification(ctx, reg.BusinessID, " "+msg.Code+" "); err != nil {
		t.Fatalf("ConfirmVerification failed: %v", err)
	}

	ident, err := h.engine.identities.FindByID(ctx, h.authID(t, reg.BusinessID))
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if !ident.Verified() || ident.Role != "passenger" {
		t.Fatalf("expected verified passenger, got state=%s role=%s", ident.VerificationState, ident.Role)
	}

	if _, err := h.engine.SendVerification(ctx, reg.BusinessID); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("expected ErrAlreadyVerified, got %v", err)
	}
	if err := h.engine.ConfirmVerification(ctx, reg.BusinessID, msg.Code); !errors.Is(err, ErrAlreadyVerified) || !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrAlreadyVerified conflict, got %v", err)
	}
}

func TestVerificationLocksOutAfterMaxAttempts(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	reg := h.register(t, "ana@example.com")

	if _, err := h.engine.SendVerification(ctx, reg.BusinessID); err != nil {
		t.Fatalf("SendVerification failed: %v", err)
	}
	msg, _ := h.mail.LastVerification()
	bad := wrongCode(msg.Code)

	for i := 0; i < 2; i++ {
		if err := h.engine.ConfirmVerification(ctx, reg.BusinessID, bad); !errors.Is(err, ErrOtpMismatch) {
			t.Fatalf("attempt %d: expected ErrOtpMismatch, got %v", i+1, err)
		}
	}
	if err := h.engine.ConfirmVerification(ctx, reg.BusinessID, bad); !errors.Is(err, ErrOtpLockedOut) {
		t.Fatalf("expected ErrOtpLockedOut, got %v", err)
	}
	// the code is burned once the attempts are spent
	if err := h.engine.ConfirmVerification(ctx, reg.BusinessID, msg.Code); !errors.Is(err, ErrOtpExpired) {
		t.Fatalf("expected ErrOtpExpired, got %v", err)
	}
}

func TestVerificationCodeExpires(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	reg := h.register(t, "ana@example.com")

	if _, err := h.engine.SendVerification(ctx, reg.BusinessID); err != nil {
		t.Fatalf("SendVerification failed: %v", err)
	}
	msg, _ := h.mail.LastVerification()

	h.mr.FastForward(16 * time.Minute)
	if err := h.engine.ConfirmVerification(ctx, reg.BusinessID, msg.Code); !errors.Is(err, ErrOtpExpired) {
		t.Fatalf("expected ErrOtpExpired, got %v", err)
	}
}

func TestVerificationResendLimit(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	reg := h.register(t, "ana@example.com")

	for i := 0; i < 3; i++ {
		if _, err := h.engine.SendVerification(ctx, reg.BusinessID); err != nil {
			t.Fatalf("send %d failed: %v", i+1, err)
		}
	}
	if _, err := h.engine.SendVerification(ctx, reg.BusinessID); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if n := h.mail.Count(); n != 3 {
		t.Fatalf("expected 3 emails, got %d", n)
	}
}

func TestVerificationInputChecks(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	reg := h.register(t, "ana@example.com")

	if err := h.engine.ConfirmVerification(ctx, reg.BusinessID, "12ab56"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	if _, err := h.engine.SendVerification(ctx, "not-a-uuid"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := h.engine.SendVerification(ctx, "7f1d0a8e-4d55-4c1b-9a64-2b1f7c3e9d10"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestVerifyUserIsIdempotent(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	reg := h.register(t, "ana@example.com")
	authID := h.authID(t, reg.BusinessID)

	for i := 0; i < 2; i++ {
		if err := h.engine.VerifyUser(ctx, authID); err != nil {
			t.Fatalf("VerifyUser call %d failed: %v", i+1, err)
		}
	}
	if err := h.engine.VerifyUser(ctx, "7f1d0a8e-4d55-4c1b-9a64-2b1f7c3e9d10"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEraseIdentity(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	reg := h.register(t, "ana@example.com")
	res := h.login(t, "ana@example.com", testPassword)

	if err := h.engine.EraseIdentity(ctx, reg.BusinessID); err != nil {
		t.Fatalf("EraseIdentity failed: %v", err)
	}

	if _, err := h.engine.resolver.ResolveAuthID(ctx, reg.BusinessID); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected mapping gone, got %v", err)
	}
	if _, err := h.engine.ValidateAccess(ctx, res.AccessToken); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("expected sessions revoked, got %v", err)
	}
	if err := h.engine.EraseIdentity(ctx, reg.BusinessID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second erase, got %v", err)
	}
	if err := h.engine.EraseIdentity(ctx, "nope"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	ev := h.waitForAudit(t, auditActionIdentityErased)
	if ev.SubjectID != reg.BusinessID {
		t.Fatalf("unexpected erase audit subject %q", ev.SubjectID)
	}
}
