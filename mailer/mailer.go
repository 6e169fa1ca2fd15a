package mailer

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ResetPasswordEmail carries a password-reset link.
type ResetPasswordEmail struct {
	To       string
	Name     string
	ResetURL string
}

// VerificationEmail carries an email-verification code.
type VerificationEmail struct {
	To               string
	Alias            string
	Code             string
	ExpiresInMinutes int
}

// LogMailer writes messages to a zap logger instead of delivering them.
// Codes and links are redacted unless Reveal is set.
type LogMailer struct {
	logger *zap.Logger
	Reveal bool
}

func NewLogMailer(logger *zap.Logger, reveal bool) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger.Named("mailer"), Reveal: reveal}
}

func (m *LogMailer) SendResetPasswordEmail(_ context.Context, msg ResetPasswordEmail) error {
	m.logger.Info("reset password email",
		zap.String("to", maskAddress(msg.To)),
		zap.String("name", msg.Name),
		zap.String("reset_url", m.redact(msg.ResetURL)),
	)
	return nil
}

func (m *LogMailer) SendVerificationEmail(_ context.Context, msg VerificationEmail) error {
	m.logger.Info("verification email",
		zap.String("to", maskAddress(msg.To)),
		zap.String("alias", msg.Alias),
		zap.String("code", m.redact(msg.Code)),
		zap.Int("expires_in_minutes", msg.ExpiresInMinutes),
	)
	return nil
}

func (m *LogMailer) redact(s string) string {
	if m.Reveal {
		return s
	}
	return "[redacted]"
}

// maskAddress keeps the first character of the local part and the domain.
func maskAddress(addr string) string {
	at := strings.LastIndexByte(addr, '@')
	if at <= 0 {
		return "***"
	}
	return addr[:1] + "***" + addr[at:]
}

// ErrDeliveryFailed is returned by a Recorder whose Fail flag is set.
var ErrDeliveryFailed = errors.New("mailer: delivery failed")

// Recorder keeps every message in memory. It backs the smoke command and
// tests that need to read codes and links back.
type Recorder struct {
	mu     sync.Mutex
	resets []ResetPasswordEmail
	codes  []VerificationEmail
	fail   bool
}

// SetFail makes subsequent sends return ErrDeliveryFailed.
func (r *Recorder) SetFail(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = fail
}

func (r *Recorder) SendResetPasswordEmail(_ context.Context, msg ResetPasswordEmail) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return ErrDeliveryFailed
	}
	r.resets = append(r.resets, msg)
	return nil
}

func (r *Recorder) SendVerificationEmail(_ context.Context, msg VerificationEmail) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return ErrDeliveryFailed
	}
	r.codes = append(r.codes, msg)
	return nil
}

// LastReset returns the most recent reset message.
func (r *Recorder) LastReset() (ResetPasswordEmail, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.resets) == 0 {
		return ResetPasswordEmail{}, false
	}
	return r.resets[len(r.resets)-1], true
}

// LastVerification returns the most recent verification message.
func (r *Recorder) LastVerification() (VerificationEmail, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.codes) == 0 {
		return VerificationEmail{}, false
	}
	return r.codes[len(r.codes)-1], true
}

// Count returns how many messages of both kinds were accepted.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.resets) + len(r.codes)
}
