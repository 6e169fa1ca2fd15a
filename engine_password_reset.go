package authcore

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/rutapp/authcore/identity"
	"github.com/rutapp/authcore/internal"
	"github.com/rutapp/authcore/internal/authdb"
	"github.com/rutapp/authcore/internal/limiters"
	"github.com/rutapp/authcore/internal/stores"
	"go.uber.org/zap"
)

// ForgotPassword describes the forgotpassword operation and its observable behavior.
//
// In production mode unknown and unverified accounts receive the same notice
// as a successful request. Outside production mode they are reported as
// ErrNotFound and ErrAccountUnverified. A new token replaces any outstanding
// one for the same identity.
func (e *Engine) ForgotPassword(ctx context.Context, email string) (*Notice, error) {
	generic := &Notice{Message: noticeResetEmailSent}
	prod := e.config.Security.ProductionMode

	email = identity.NormalizeEmail(email)
	if !validEmail(email) {
		return nil, ErrInvalidEmail
	}

	ident, err := e.identities.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, authdb.ErrNotFound) {
			e.emitAudit(ctx, auditActionPasswordResetRequest, "", ErrNotFound, nil)
			if prod {
				return generic, nil
			}
			return nil, ErrNotFound
		}
		return nil, internalError("forgot password", err)
	}

	// An erased identity keeps its auth row but no longer has a mapping.
	businessID, err := e.resolver.ResolveBusinessID(ctx, ident.ID)
	if err != nil {
		if err = e.mapResolveError("forgot password", err); errors.Is(err, ErrNotFound) {
			e.emitAudit(ctx, auditActionPasswordResetRequest, "", ErrNotFound, nil)
			if prod {
				return generic, nil
			}
		}
		return nil, err
	}

	subject := e.auditSubject(ctx, ident.ID)
	if !ident.Verified() {
		e.emitAudit(ctx, auditActionPasswordResetRequest, subject, ErrAccountUnverified, nil)
		if prod {
			return generic, nil
		}
		return nil, ErrAccountUnverified
	}

	if err := e.resetLimiter.Reserve(ctx, ident.ID); err != nil {
		if errors.Is(err, limiters.ErrResetRateLimited) {
			e.emitAudit(ctx, auditActionPasswordResetRequest, subject, ErrRateLimited, nil)
			return nil, ErrRateLimited
		}
		return nil, internalError("forgot password", err)
	}

	token := internal.NewTokenID()
	if err := e.resets.Issue(ctx, ident.ID, token, e.config.PasswordReset.TokenTTL); err != nil {
		if relErr := e.resetLimiter.Release(ctx, ident.ID); relErr != nil {
			e.logger.Warn("reset request slot not released", zap.Error(relErr))
		}
		return nil, internalError("forgot password", err)
	}

	name, err := e.profiles.DisplayName(ctx, businessID)
	if err != nil {
		e.logger.Warn("display name unavailable for reset email", zap.Error(err))
		name = ""
	}

	err = e.mailer.SendResetPasswordEmail(ctx, ResetPasswordEmail{
		To:       ident.Email,
		Name:     name,
		ResetURL: e.resetURL(token),
	})
	if err != nil {
		e.emitAudit(ctx, auditActionPasswordResetRequest, subject, ErrInternal, nil)
		return nil, internalError("send reset email", err)
	}

	e.emitAudit(ctx, auditActionPasswordResetRequest, subject, nil, nil)
	return generic, nil
}

// ResetPassword consumes a reset token and sets a new password. Every
// outstanding session of the identity is revoked and the lockout cleared.
// A token is usable once.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) (*Notice, error) {
	err := e.resetPassword(ctx, token, newPassword)
	if err == nil {
		return &Notice{Message: noticePasswordReset}, nil
	}

	if e.config.Security.ProductionMode && KindOf(err) != KindInvalidInput {
		if KindOf(err) == KindInternal {
			e.logger.Error("password reset failed", zap.Error(err))
		}
		return nil, ErrInvalidToken
	}
	return nil, err
}

func (e *Engine) resetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if !internal.IsTokenID(token) {
		return ErrInvalidToken
	}
	if err := e.passwords.CheckPolicy(newPassword); err != nil {
		return ErrPasswordPolicy
	}

	authID, err := e.resets.Consume(ctx, token)
	if err != nil {
		if errors.Is(err, stores.ErrResetNotFound) {
			e.emitAudit(ctx, auditActionPasswordResetComplete, "", ErrInvalidToken, nil)
			return ErrInvalidToken
		}
		return internalError("reset password", err)
	}

	businessID, err := e.resolver.ResolveBusinessID(ctx, authID)
	if err != nil {
		if err = e.mapResolveError("reset password", err); errors.Is(err, ErrNotFound) {
			e.emitAudit(ctx, auditActionPasswordResetComplete, "", ErrInvalidToken, nil)
			return ErrInvalidToken
		}
		return err
	}

	hash, err := e.passwords.Hash(newPassword)
	if err != nil {
		return internalError("reset password", err)
	}

	// One reload on a concurrent version bump; the token is already spent.
	for attempt := 0; ; attempt++ {
		ident, err := e.identities.FindByID(ctx, authID)
		if err != nil {
			if errors.Is(err, authdb.ErrNotFound) {
				return ErrNotFound
			}
			return internalError("reset password", err)
		}
		err = e.identities.UpdatePassword(ctx, authID, ident.Version, hash, e.now())
		if err == nil {
			break
		}
		if errors.Is(err, authdb.ErrStale) && attempt == 0 {
			continue
		}
		if errors.Is(err, authdb.ErrStale) {
			return ErrConcurrentUpdate
		}
		return internalError("reset password", err)
	}

	if err := e.revokeAllSessions(ctx, businessID); err != nil {
		return internalError("reset password", err)
	}
	if err := e.identities.ResetLockout(ctx, authID, e.now()); err != nil {
		e.logger.Warn("lockout not cleared after reset", zap.Error(err))
	}

	e.emitAudit(ctx, auditActionPasswordResetComplete, e.auditSubject(ctx, authID), nil, nil)
	return nil
}

func (e *Engine) resetURL(token string) string {
	base := strings.TrimRight(e.config.PasswordReset.FrontendURL, "/")
	return base + "/reset-password?token=" + url.QueryEscape(token)
}
