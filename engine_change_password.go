package authcore

import (
	"context"
	"errors"

	"github.com/rutapp/authcore/internal/authdb"
)

// ChangePassword describes the changepassword operation and its observable behavior.
//
// Only verified identities may change their password. The update is
// conditional on the version read at the start, so a concurrent change
// yields ErrConcurrentUpdate instead of silently overwriting it. On success
// every session issued so far, including the caller's, is revoked.
func (e *Engine) ChangePassword(ctx context.Context, businessID, current, next string) error {
	ident, err := e.loadByBusinessID(ctx, "change password", businessID)
	if err != nil {
		return err
	}
	if !ident.Verified() {
		return ErrAccountUnverified
	}

	ok, err := e.passwords.Verify(current, ident.PasswordHash)
	if err != nil {
		return internalError("change password", err)
	}
	if !ok {
		e.emitAudit(ctx, auditActionPasswordChange, businessID, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}
	if current == next {
		return ErrPasswordReuse
	}
	if err := e.passwords.CheckPolicy(next); err != nil {
		return ErrPasswordPolicy
	}

	hash, err := e.passwords.Hash(next)
	if err != nil {
		return internalError("change password", err)
	}
	if err := e.identities.UpdatePassword(ctx, ident.ID, ident.Version, hash, e.now()); err != nil {
		if errors.Is(err, authdb.ErrStale) {
			return ErrConcurrentUpdate
		}
		return internalError("change password", err)
	}

	if err := e.revokeAllSessions(ctx, businessID); err != nil {
		return internalError("change password", err)
	}

	e.emitAudit(ctx, auditActionPasswordChange, businessID, nil, nil)
	return nil
}
