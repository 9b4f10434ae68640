package restauth

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLogout                = "logout"
	auditEventPasswordChangeSuccess = "password_change_success"
	auditEventPasswordChangeFailure = "password_change_failure"
	auditEventTokenIssued           = "token_issued"
	auditEventTokenInvalidated      = "token_invalidated"
	auditEventInvalidateAll         = "invalidate_all"
	auditEventIdentityCreated       = "identity_created"
	auditEventRolesLinked           = "roles_linked"
	auditEventTOTPFailure           = "totp_failure"
	auditEventTOTPSuccess           = "totp_success"
)

// AuditErrorCode is the stable error tag recorded in audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrAccountInactive    AuditErrorCode = "account_inactive"
	auditErrAccountDisabled    AuditErrorCode = "account_disabled"
	auditErrSecondFactor       AuditErrorCode = "totp_invalid"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrPasswordConfirm    AuditErrorCode = "password_confirmation"
	auditErrPasswordExpired    AuditErrorCode = "password_expired"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

type auditRecord struct {
	identityID string
	login      string
	jti        string
	metadata   map[string]string
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, rec auditRecord, err error) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp:  e.now().UTC(),
		EventType:  eventType,
		IdentityID: rec.identityID,
		Login:      rec.login,
		TokenID:    rec.jti,
		IP:         ClientIPFromContext(ctx),
		Success:    success,
		Metadata:   rec.metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountInactive):
		return auditErrAccountInactive
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrInvalidSecondFactor):
		return auditErrSecondFactor
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordConfirmation):
		return auditErrPasswordConfirm
	case errors.Is(err, ErrPasswordChangeRequired),
		errors.Is(err, ErrPasswordExpired):
		return auditErrPasswordExpired
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
