package authcore

import (
	"context"
	"io"
	"time"

	"github.com/jmoiron/sqlx"
	internalaudit "github.com/rutapp/authcore/internal/audit"
	"github.com/rutapp/authcore/mailer"
	"github.com/rutapp/authcore/profile"
	"go.uber.org/zap"
)

/*
====================================
COLLABORATORS
====================================
*/

// ProfileAttributes are the business fields collected at registration.
type ProfileAttributes = profile.Attributes

// Profile is the business identity as seen by the engine.
type Profile = profile.Profile

// ProfileStore owns business identities. CreateProfile must write through q,
// the registration transaction, so a failed registration leaves no profile.
type ProfileStore interface {
	CreateProfile(ctx context.Context, q sqlx.ExtContext, attrs ProfileAttributes) (*Profile, error)
	// FindByID returns nil, nil for absent or soft-deleted profiles.
	FindByID(ctx context.Context, businessID string) (*Profile, error)
	DisplayName(ctx context.Context, businessID string) (string, error)
}

type ResetPasswordEmail = mailer.ResetPasswordEmail

type VerificationEmail = mailer.VerificationEmail

// Mailer delivers outbound messages.
type Mailer interface {
	SendResetPasswordEmail(ctx context.Context, msg ResetPasswordEmail) error
	SendVerificationEmail(ctx context.Context, msg VerificationEmail) error
}

// AuditEvent is one security-relevant outcome.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = internalaudit.Sink

// NoOpSink discards every event.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink forwards events to a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// ZapAuditSink writes events as structured log entries.
type ZapAuditSink = internalaudit.ZapSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewZapAuditSink(logger *zap.Logger) *ZapAuditSink {
	return internalaudit.NewZapSink(logger)
}

/*
====================================
REQUESTS AND RESULTS
====================================
*/

type RegisterRequest struct {
	Email           string
	Password        string
	ConfirmPassword string
	FirstName       string
	LastName        string
	Phone           string
}

// RegisterResult identifies the new business identity. The auth id never
// leaves the engine.
type RegisterResult struct {
	BusinessID string
	PublicID   string
	Alias      string
}

// TokenPair is an access token and its refresh token.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	ExpiresIn        time.Duration
	RefreshExpiresIn time.Duration
}

type LoginResult struct {
	Role string
	TokenPair
}

// Notice is a user-facing confirmation.
type Notice struct {
	Message string
}

const (
	noticeResetEmailSent   = "If the account exists, a password reset email has been sent."
	noticePasswordReset    = "Password updated. Please sign in again."
	noticeResetTokenFailed = "The reset link is invalid or has expired."
)

// LogoutRequest carries the tokens to revoke. RefreshToken is optional.
type LogoutRequest struct {
	AccessToken  string
	RefreshToken string
}

// AccessPrincipal is the validated content of an access token.
type AccessPrincipal struct {
	BusinessID string
	Role       string
	Verified   bool
	Alias      string
	PublicID   string
	TokenID    string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// VerificationDispatch reports a sent verification code without the code.
type VerificationDispatch struct {
	ExpiresInMinutes int
}
