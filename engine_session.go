package authcore

import (
	"context"
	"errors"

	"github.com/rutapp/authcore/internal/authdb"
	"github.com/rutapp/authcore/jwt"
	"github.com/rutapp/authcore/session"
	"go.uber.org/zap"
)

// issueTokenPair creates an access token and a refresh token pointing back
// at it, and records the refresh jti as live.
func (e *Engine) issueTokenPair(ctx context.Context, businessID string, ident *authdb.Identity, prof *Profile) (*TokenPair, error) {
	access, accessClaims, err := e.tokens.CreateAccess(jwt.AccessInput{
		Subject:  businessID,
		Role:     ident.Role,
		Verified: ident.Verified(),
		Alias:    prof.Alias,
		PublicID: prof.PublicID,
	})
	if err != nil {
		return nil, internalError("issue tokens", err)
	}

	refresh, refreshClaims, err := e.tokens.CreateRefresh(businessID, accessClaims.ID)
	if err != nil {
		return nil, internalError("issue tokens", err)
	}

	if err := e.sessions.SaveRefresh(ctx, refreshClaims.ID, businessID, e.tokens.RefreshTTL()); err != nil {
		return nil, internalError("issue tokens", err)
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		ExpiresIn:        e.tokens.AccessTTL(),
		RefreshExpiresIn: e.tokens.RefreshTTL(),
	}, nil
}

// RefreshTokens describes the refreshtokens operation and its observable behavior.
//
// The refresh jti is removed with a single atomic delete before anything
// else, so of two concurrent calls with the same token exactly one proceeds.
// A token issued at or before the subject's revocation marker fails with
// ErrSessionRevoked; every other rejection is ErrInvalidToken.
func (e *Engine) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := e.tokens.ParseRefresh(refreshToken)
	if err != nil {
		e.emitAudit(ctx, auditActionRefresh, "", ErrInvalidToken, nil)
		return nil, ErrInvalidToken
	}
	subject := claims.Subject

	owner, err := e.sessions.ConsumeRefresh(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, session.ErrRefreshNotFound) {
			e.emitAudit(ctx, auditActionRefresh, subject, ErrInvalidToken, nil)
			return nil, ErrInvalidToken
		}
		return nil, internalError("refresh", err)
	}
	if owner != subject {
		e.emitAudit(ctx, auditActionRefresh, subject, ErrInvalidToken, nil)
		return nil, ErrInvalidToken
	}

	revoked, err := e.sessions.IsRevokedAt(ctx, subject, claims.IssuedAtMs)
	if err != nil {
		return nil, internalError("refresh", err)
	}
	if revoked {
		e.emitAudit(ctx, auditActionRefresh, subject, ErrSessionRevoked, nil)
		return nil, ErrSessionRevoked
	}

	prof, err := e.profiles.FindByID(ctx, subject)
	if err != nil {
		return nil, internalError("refresh", err)
	}
	if prof == nil {
		e.emitAudit(ctx, auditActionRefresh, subject, ErrNotFound, nil)
		return nil, ErrNotFound
	}

	// Role and verification state are reloaded; they may have changed since
	// the previous pair.
	ident, err := e.loadByBusinessID(ctx, "refresh", subject)
	if err != nil {
		return nil, err
	}

	pair, err := e.issueTokenPair(ctx, subject, ident, prof)
	if err != nil {
		return nil, err
	}
	e.emitAudit(ctx, auditActionRefresh, subject, nil, nil)
	return pair, nil
}

// Logout revokes the access token for exactly its remaining lifetime and,
// when present, deletes the refresh token. An unreadable refresh token is
// ignored.
func (e *Engine) Logout(ctx context.Context, req LogoutRequest) error {
	claims, err := e.tokens.ParseAccess(req.AccessToken)
	if err != nil {
		return ErrInvalidToken
	}

	remaining := claims.ExpiresAt.Time.Sub(e.now())
	if err := e.sessions.RevokeAccess(ctx, claims.ID, remaining); err != nil {
		return internalError("logout", err)
	}

	if req.RefreshToken != "" {
		refreshClaims, err := e.tokens.ParseRefresh(req.RefreshToken)
		switch {
		case err != nil:
			e.logger.Debug("unreadable refresh token at logout")
		case refreshClaims.Subject != claims.Subject:
			e.logger.Debug("refresh token subject differs from access token at logout")
		default:
			if err := e.sessions.DeleteRefresh(ctx, refreshClaims.ID); err != nil {
				e.logger.Warn("refresh token not deleted at logout", zap.Error(err))
			}
		}
	}

	e.emitAudit(ctx, auditActionLogout, claims.Subject, nil, nil)
	return nil
}

// ValidateAccess opens an access token and checks both revocation paths:
// the per-jti flag set by Logout and the subject marker set by password
// changes.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*AccessPrincipal, error) {
	claims, err := e.tokens.ParseAccess(accessToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	revoked, err := e.sessions.IsAccessRevoked(ctx, claims.ID)
	if err != nil {
		return nil, internalError("validate access", err)
	}
	if revoked {
		return nil, ErrSessionRevoked
	}

	revoked, err = e.sessions.IsRevokedAt(ctx, claims.Subject, claims.IssuedAtMs)
	if err != nil {
		return nil, internalError("validate access", err)
	}
	if revoked {
		return nil, ErrSessionRevoked
	}

	return &AccessPrincipal{
		BusinessID: claims.Subject,
		Role:       claims.Role,
		Verified:   claims.Verified,
		Alias:      claims.Alias,
		PublicID:   claims.PublicID,
		TokenID:    claims.ID,
		IssuedAt:   claims.IssuedAt.Time,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}
