package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rutapp/authcore"
)

// Validator is the part of authcore.Engine the guards need.
type Validator interface {
	ValidateAccess(ctx context.Context, accessToken string) (*authcore.AccessPrincipal, error)
}

type principalContextKey struct{}

// PrincipalFromContext returns the principal stored by Guard.
func PrincipalFromContext(ctx context.Context) (*authcore.AccessPrincipal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*authcore.AccessPrincipal)
	return p, ok
}

// Guard rejects requests without a valid, unrevoked access token.
func Guard(v Validator) func(http.Handler) http.Handler {
	return guard(v, false)
}

// RequireVerified is Guard plus a verified-email requirement.
func RequireVerified(v Validator) func(http.Handler) http.Handler {
	return guard(v, true)
}

func guard(v Validator, verified bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := authcore.WithClientIP(r.Context(), clientIP(r))
			ctx = authcore.WithUserAgent(ctx, r.UserAgent())

			principal, err := v.ValidateAccess(ctx, token)
			if err != nil {
				status := StatusFor(err)
				http.Error(w, http.StatusText(status), status)
				return
			}
			if verified && !principal.Verified {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			ctx = context.WithValue(ctx, principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StatusFor maps an engine error to an HTTP status code.
func StatusFor(err error) int {
	switch authcore.KindOf(err) {
	case authcore.KindNone:
		return http.StatusOK
	case authcore.KindInvalidInput, authcore.KindOtpMismatch, authcore.KindOtpExpired:
		return http.StatusBadRequest
	case authcore.KindInvalidCredentials, authcore.KindInvalidToken, authcore.KindSessionRevoked:
		return http.StatusUnauthorized
	case authcore.KindAccountLocked:
		return http.StatusLocked
	case authcore.KindNotFound:
		return http.StatusNotFound
	case authcore.KindConflict:
		return http.StatusConflict
	case authcore.KindRateLimited, authcore.KindOtpLockedOut:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func clientIP(r *http.Request) string {
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i > 0 {
		host = host[:i]
	}
	return strings.Trim(host, "[]")
}
