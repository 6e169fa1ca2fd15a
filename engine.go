package authcore

import (
	"context"
	"errors"
	"net/mail"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/rutapp/authcore/identity"
	internalaudit "github.com/rutapp/authcore/internal/audit"
	"github.com/rutapp/authcore/internal/authdb"
	"github.com/rutapp/authcore/internal/limiters"
	"github.com/rutapp/authcore/internal/stores"
	"github.com/rutapp/authcore/jwt"
	"github.com/rutapp/authcore/otp"
	"github.com/rutapp/authcore/password"
	"github.com/rutapp/authcore/session"
	"go.uber.org/zap"
)

// Engine runs the authentication use cases. It is safe for concurrent use
// once built; every method may be called from many request goroutines.
type Engine struct {
	config Config

	db           *sqlx.DB
	identities   *authdb.Repository
	resolver     *identity.Resolver
	otp          *otp.Engine
	tokens       *jwt.Manager
	sessions     *session.Store
	resets       *stores.PasswordResetStore
	resetLimiter *limiters.ResetRequestLimiter
	passwords    *password.Hasher

	profiles ProfileStore
	mailer   Mailer
	audit    *internalaudit.Dispatcher

	clock  clockwork.Clock
	logger *zap.Logger
}

// Close flushes pending audit events. The engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// EnsureSchema creates the auth_identities and identity_mappings tables.
// Business tables belong to the profile store.
func (e *Engine) EnsureSchema(ctx context.Context) error {
	return EnsureSchema(ctx, e.db)
}

// EnsureSchema creates the engine's tables on db without building an
// engine. It is idempotent.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if err := authdb.NewRepository(db).EnsureSchema(ctx); err != nil {
		return err
	}
	return identity.EnsureSchema(ctx, db)
}

// DeterministicHash exposes the correlation hash for audit and recovery
// tooling that already holds the immutable attributes.
func (e *Engine) DeterministicHash(email string, createdAt time.Time) string {
	return e.resolver.Hasher().DeterministicHash(identity.Attributes{Email: email, CreatedAt: createdAt})
}

func (e *Engine) now() time.Time {
	return e.clock.Now().UTC()
}

// loadByBusinessID resolves businessID through the mapping and loads the
// auth identity.
func (e *Engine) loadByBusinessID(ctx context.Context, op, businessID string) (*authdb.Identity, error) {
	authID, err := e.resolver.ResolveAuthID(ctx, businessID)
	if err != nil {
		return nil, e.mapResolveError(op, err)
	}
	ident, err := e.identities.FindByID(ctx, authID)
	if err != nil {
		if errors.Is(err, authdb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, internalError(op, err)
	}
	return ident, nil
}

// auditSubject returns the deterministic hash for authID, or "" when it
// cannot be resolved. Audit never fails the caller.
func (e *Engine) auditSubject(ctx context.Context, authID string) string {
	hash, err := e.resolver.DeterministicHashFor(ctx, authID)
	if err != nil {
		e.logger.Debug("audit subject unresolved", zap.Error(err))
		return ""
	}
	return hash
}

func (e *Engine) mapResolveError(op string, err error) error {
	if errors.Is(err, identity.ErrNotFound) {
		return ErrNotFound
	}
	return internalError(op, err)
}

// revokeAllSessions sets the subject's revoked-since marker to now for the
// longest refresh lifetime.
func (e *Engine) revokeAllSessions(ctx context.Context, businessID string) error {
	return e.sessions.RevokeSubjectSince(ctx, businessID, e.now(), e.config.Token.RefreshTTL)
}

func validEmail(email string) bool {
	if email == "" || len(email) > 320 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}
