package authcore

import (
	"context"

	internalaudit "github.com/rutapp/authcore/internal/audit"
)

const (
	auditActionRegister              = "register"
	auditActionLoginSuccess          = "login_success"
	auditActionLoginFailure          = "login_failure"
	auditActionLoginLocked           = "login_locked"
	auditActionRefresh               = "token_refresh"
	auditActionLogout                = "logout"
	auditActionPasswordResetRequest  = "password_reset_request"
	auditActionPasswordResetComplete = "password_reset_complete"
	auditActionPasswordChange        = "password_change"
	auditActionVerificationSent      = "verification_code_sent"
	auditActionVerificationConfirm   = "verification_confirm"
	auditActionIdentityErased        = "identity_erased"
)

// emitAudit queues an event. SubjectID is a business id or a deterministic
// hash, never an auth id or an email.
func (e *Engine) emitAudit(
	ctx context.Context,
	action string,
	subjectID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now(),
		Action:    action,
		SubjectID: subjectID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Result:    internalaudit.ResultSuccess,
		Metadata:  metadata,
	}
	if err != nil {
		event.Result = internalaudit.ResultFailure
		event.Error = auditErrorCode(err)
	}

	e.audit.Emit(ctx, event)
}

// auditErrorCode is the taxonomy kind; error text can carry backend detail
// and stays out of audit records.
func auditErrorCode(err error) string {
	if err == nil {
		return ""
	}
	return KindOf(err).String()
}
