package authcore

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rutapp/authcore/database"
	"github.com/rutapp/authcore/identity"
	"github.com/rutapp/authcore/internal/authdb"
	"go.uber.org/zap"
)

var errNoProfile = errors.New("profile store returned no profile")

// Register creates the auth identity, the business identity and their
// mapping in one transaction. Either all three rows exist afterwards or
// none do.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	email := identity.NormalizeEmail(req.Email)
	if !validEmail(email) {
		return nil, ErrInvalidEmail
	}
	if req.Password != req.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}
	if err := e.passwords.CheckPolicy(req.Password); err != nil {
		return nil, ErrPasswordPolicy
	}

	exists, err := e.identities.EmailExists(ctx, email)
	if err != nil {
		return nil, internalError("register", err)
	}
	if exists {
		e.emitAudit(ctx, auditActionRegister, "", ErrEmailTaken, nil)
		return nil, ErrEmailTaken
	}

	// Hashing is slow; keep it outside the transaction.
	hash, err := e.passwords.Hash(req.Password)
	if err != nil {
		return nil, internalError("register", err)
	}

	now := identity.CanonicalTimestamp(e.now())
	authID := uuid.NewString()

	var (
		created *Profile
		mapping *identity.Mapping
	)
	err = database.WithTx(ctx, e.db, func(tx *sqlx.Tx) error {
		err := e.identities.Insert(ctx, tx, &authdb.Identity{
			ID:                authID,
			Email:             email,
			PasswordHash:      hash,
			Role:              e.config.Roles.Default,
			VerificationState: authdb.StateUnverified,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
		if err != nil {
			return err
		}

		created, err = e.profiles.CreateProfile(ctx, tx, ProfileAttributes{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Phone:     req.Phone,
		})
		if err != nil {
			return err
		}
		if created == nil {
			return errNoProfile
		}

		mapping, err = e.resolver.CreateMapping(ctx, tx, authID, created.ID, identity.Attributes{
			Email:     email,
			CreatedAt: now,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, authdb.ErrConflict) || errors.Is(err, identity.ErrConflict) || database.IsUniqueViolation(err) {
			e.emitAudit(ctx, auditActionRegister, "", ErrEmailTaken, nil)
			return nil, ErrEmailTaken
		}
		e.logger.Error("registration rolled back", zap.Error(err))
		return nil, internalError("register", err)
	}

	e.emitAudit(ctx, auditActionRegister, mapping.DeterministicHash, nil, func() map[string]string {
		return map[string]string{"public_id": created.PublicID}
	})
	e.logger.Info("identity registered", zap.String("public_id", created.PublicID))

	return &RegisterResult{
		BusinessID: created.ID,
		PublicID:   created.PublicID,
		Alias:      created.Alias,
	}, nil
}
