package authcore

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rutapp/authcore/database"
	"github.com/rutapp/authcore/internal/authdb"
	"github.com/rutapp/authcore/otp"
	"go.uber.org/zap"
)

// SendVerification emails a fresh six-digit code to the identity behind
// businessID. The returned dispatch never carries the code.
func (e *Engine) SendVerification(ctx context.Context, businessID string) (*VerificationDispatch, error) {
	ident, err := e.verificationTarget(ctx, businessID)
	if err != nil {
		return nil, err
	}

	issued, err := e.otp.Send(ctx, ident.ID)
	if err != nil {
		mapped := mapOTPError("send verification", err)
		e.emitAudit(ctx, auditActionVerificationSent, businessID, mapped, nil)
		return nil, mapped
	}

	alias := ""
	if prof, err := e.profiles.FindByID(ctx, businessID); err != nil {
		e.logger.Warn("profile unavailable for verification email", zap.Error(err))
	} else if prof != nil {
		alias = prof.Alias
	}

	err = e.mailer.SendVerificationEmail(ctx, VerificationEmail{
		To:               ident.Email,
		Alias:            alias,
		Code:             issued.Code,
		ExpiresInMinutes: issued.ExpiresInMinutes,
	})
	if err != nil {
		e.emitAudit(ctx, auditActionVerificationSent, businessID, ErrInternal, nil)
		return nil, internalError("send verification email", err)
	}

	e.emitAudit(ctx, auditActionVerificationSent, businessID, nil, nil)
	return &VerificationDispatch{ExpiresInMinutes: issued.ExpiresInMinutes}, nil
}

// ConfirmVerification describes the confirmverification operation and its observable behavior.
//
// A matching code is consumed, the identity is promoted to the verified
// role and the code counters are cleared. Wrong codes report the attempts
// left until the code is burned.
func (e *Engine) ConfirmVerification(ctx context.Context, businessID, code string) error {
	code = strings.TrimSpace(code)
	if !otp.ValidFormat(code) {
		return ErrInvalidCode
	}

	ident, err := e.verificationTarget(ctx, businessID)
	if err != nil {
		return err
	}

	if err := e.otp.Validate(ctx, ident.ID, code); err != nil {
		mapped := mapOTPError("confirm verification", err)
		e.emitAudit(ctx, auditActionVerificationConfirm, businessID, mapped, nil)
		return mapped
	}

	if err := e.VerifyUser(ctx, ident.ID); err != nil {
		return err
	}
	if err := e.otp.Invalidate(ctx, ident.ID); err != nil {
		e.logger.Warn("verification counters not cleared", zap.Error(err))
	}

	e.emitAudit(ctx, auditActionVerificationConfirm, businessID, nil, nil)
	return nil
}

// VerifyUser marks the auth identity verified and grants the verified role.
// Calling it for an already verified identity is a no-op.
func (e *Engine) VerifyUser(ctx context.Context, authID string) error {
	ident, err := e.identities.FindByID(ctx, authID)
	if err != nil {
		if errors.Is(err, authdb.ErrNotFound) {
			return ErrNotFound
		}
		return internalError("verify user", err)
	}
	if ident.Verified() {
		return nil
	}

	err = database.WithTx(ctx, e.db, func(tx *sqlx.Tx) error {
		return e.identities.MarkVerified(ctx, tx, authID, e.config.Roles.Verified, e.now())
	})
	if err != nil {
		if errors.Is(err, authdb.ErrNotFound) {
			return ErrNotFound
		}
		return internalError("verify user", err)
	}
	return nil
}

// EraseIdentity removes the mapping between the auth and business
// identities and revokes every session. Afterwards the business id no
// longer resolves and nothing links the two records.
func (e *Engine) EraseIdentity(ctx context.Context, businessID string) error {
	if uuid.Validate(businessID) != nil {
		return ErrInvalidInput
	}
	authID, err := e.resolver.ResolveAuthID(ctx, businessID)
	if err != nil {
		return e.mapResolveError("erase identity", err)
	}

	err = database.WithTx(ctx, e.db, func(tx *sqlx.Tx) error {
		return e.resolver.DeleteMapping(ctx, tx, authID)
	})
	if err != nil {
		return e.mapResolveError("erase identity", err)
	}

	if err := e.revokeAllSessions(ctx, businessID); err != nil {
		return internalError("erase identity", err)
	}

	e.emitAudit(ctx, auditActionIdentityErased, businessID, nil, nil)
	return nil
}

func (e *Engine) verificationTarget(ctx context.Context, businessID string) (*authdb.Identity, error) {
	if uuid.Validate(businessID) != nil {
		return nil, ErrInvalidInput
	}
	ident, err := e.loadByBusinessID(ctx, "verification", businessID)
	if err != nil {
		return nil, err
	}
	if ident.Verified() {
		return nil, ErrAlreadyVerified
	}
	return ident, nil
}

func mapOTPError(op string, err error) error {
	var mismatch *otp.MismatchError
	switch {
	case errors.As(err, &mismatch):
		return &OtpMismatchError{AttemptsLeft: mismatch.AttemptsLeft}
	case errors.Is(err, otp.ErrInvalidFormat):
		return ErrInvalidCode
	case errors.Is(err, otp.ErrExpired):
		return ErrOtpExpired
	case errors.Is(err, otp.ErrMaxAttempts):
		return ErrOtpLockedOut
	case errors.Is(err, otp.ErrResendLimit):
		return ErrRateLimited
	default:
		return internalError(op, err)
	}
}
