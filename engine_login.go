package authcore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rutapp/authcore/identity"
	"github.com/rutapp/authcore/internal/authdb"
	"go.uber.org/zap"
)

var errProfileMissing = errors.New("business identity missing for mapped auth identity")

// Login describes the login operation and its observable behavior.
//
// A locked identity is rejected before the password is examined. Each wrong
// password is counted atomically; the failure that reaches the threshold
// locks the identity and returns *AccountLockedError. A correct password
// clears every lockout field and returns a fresh token pair.
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = identity.NormalizeEmail(email)
	ident, err := e.identities.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, authdb.ErrNotFound) {
			e.emitAudit(ctx, auditActionLoginFailure, "", ErrInvalidCredentials, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, internalError("login", err)
	}

	now := e.now()
	if ident.LockedAt(now) {
		lockErr := &AccountLockedError{RemainingMinutes: remainingMinutes(ident.LockedUntil.Time, now)}
		e.emitAudit(ctx, auditActionLoginLocked, e.auditSubject(ctx, ident.ID), lockErr, nil)
		return nil, lockErr
	}

	ok, err := e.passwords.Verify(password, ident.PasswordHash)
	if err != nil {
		return nil, internalError("login", err)
	}
	if !ok {
		return nil, e.recordLoginFailure(ctx, ident, now)
	}

	// Erased identities keep their auth row; without a mapping there is no
	// account to sign in to.
	businessID, err := e.resolver.ResolveBusinessID(ctx, ident.ID)
	if err != nil {
		if err = e.mapResolveError("login", err); errors.Is(err, ErrNotFound) {
			e.emitAudit(ctx, auditActionLoginFailure, "", ErrInvalidCredentials, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if ident.FailedAttempts > 0 || ident.LockedUntil.Valid || ident.LastFailedAttempt.Valid {
		if err := e.identities.ResetLockout(ctx, ident.ID, now); err != nil {
			return nil, internalError("login", err)
		}
	}
	e.upgradeHash(ctx, ident, password)

	prof, err := e.profiles.FindByID(ctx, businessID)
	if err != nil {
		return nil, internalError("login", err)
	}
	if prof == nil {
		return nil, internalError("login", errProfileMissing)
	}

	pair, err := e.issueTokenPair(ctx, businessID, ident, prof)
	if err != nil {
		return nil, err
	}

	e.emitAudit(ctx, auditActionLoginSuccess, e.auditSubject(ctx, ident.ID), nil, func() map[string]string {
		return map[string]string{"role": ident.Role}
	})

	return &LoginResult{
		Role:      ident.Role,
		TokenPair: *pair,
	}, nil
}

func (e *Engine) recordLoginFailure(ctx context.Context, ident *authdb.Identity, now time.Time) error {
	state, err := e.identities.RecordFailedLogin(ctx, ident.ID, now,
		e.config.Lockout.MaxFailedAttempts, e.config.Lockout.BlockDuration)
	if err != nil {
		return internalError("login", err)
	}

	subject := e.auditSubject(ctx, ident.ID)
	if state.Locked {
		lockErr := &AccountLockedError{RemainingMinutes: remainingMinutes(state.LockedUntil, now)}
		e.emitAudit(ctx, auditActionLoginLocked, subject, lockErr, nil)
		e.logger.Warn("identity locked after repeated failures",
			zap.String("subject", subject),
			zap.Duration("block", e.config.Lockout.BlockDuration),
		)
		return lockErr
	}

	e.emitAudit(ctx, auditActionLoginFailure, subject, ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"failed_attempts": strconv.Itoa(state.FailedAttempts)}
	})
	return ErrInvalidCredentials
}

// upgradeHash replaces legacy or weaker hashes after a successful
// verification. Failure leaves the old hash in place.
func (e *Engine) upgradeHash(ctx context.Context, ident *authdb.Identity, password string) {
	needs, err := e.passwords.NeedsUpgrade(ident.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := e.passwords.Hash(password)
	if err != nil {
		e.logger.Warn("password rehash failed", zap.Error(err))
		return
	}
	if err := e.identities.UpdatePassword(ctx, ident.ID, ident.Version, hash, e.now()); err != nil {
		e.logger.Warn("password rehash not stored", zap.Error(err))
		return
	}
	ident.Version++
}

// remainingMinutes rounds up so a lock never reports zero minutes left.
func remainingMinutes(until, now time.Time) int {
	left := until.Sub(now)
	if left <= 0 {
		return 0
	}
	minutes := int(left / time.Minute)
	if left%time.Minute != 0 {
		minutes++
	}
	return minutes
}
