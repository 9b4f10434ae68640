package restauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/MrEthical07/restauth/metrics"
	"github.com/MrEthical07/restauth/password"
	"github.com/sirupsen/logrus"
)

// ChangePassword replaces the identity's password.
//
// When current is given it must verify against the stored digest. The new
// password must equal confirm and, if strength verification is enabled,
// satisfy the password policy with current (or the stored digest) as the
// baseline for reuse detection. On success every token of the identity is
// deleted and its validation key rotated, so the caller has to log in again.
func (e *Engine) ChangePassword(ctx context.Context, identity *Identity, current *string, newPassword, confirm string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if identity == nil {
		return errInvalidCredentials()
	}

	if current != nil && !e.passwordMatches(*current, identity) {
		err := errInvalidCredentials()
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, auditRecord{identityID: identity.ID}, err)
		return err
	}

	return e.changePassword(ctx, identity, current, newPassword, confirm)
}

func (e *Engine) changePassword(ctx context.Context, identity *Identity, current *string, newPassword, confirm string) error {
	err := e.applyPasswordChange(ctx, identity, current, newPassword, confirm)
	if err != nil {
		e.metricInc(metrics.PasswordChangeRejected)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, auditRecord{identityID: identity.ID}, err)
		return err
	}
	e.metricInc(metrics.PasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, auditRecord{identityID: identity.ID}, nil)
	return nil
}

func (e *Engine) applyPasswordChange(ctx context.Context, identity *Identity, current *string, newPassword, confirm string) error {
	if newPassword != confirm {
		return newError(ErrPasswordConfirmation, http.StatusConflict, MsgPasswordConfirmation)
	}

	if e.config.Security.VerifyPasswordStrength {
		if err := e.policy.Evaluate(newPassword, current, identity.PasswordHash); err != nil {
			var pe *password.PolicyError
			if errors.As(err, &pe) {
				return newError(ErrPasswordPolicy, http.StatusConflict, pe.Reason)
			}
			return err
		}
	}

	digest, err := e.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	previous := identity.PasswordHash
	previousChange := identity.LastPasswordChange
	now := e.now()
	identity.PasswordHash = digest
	identity.LastPasswordChange = &now
	if err := e.store.SaveIdentity(ctx, identity); err != nil {
		identity.PasswordHash = previous
		identity.LastPasswordChange = previousChange
		return e.storeFailure("save identity", err, logrus.Fields{"identity": identity.ID})
	}

	tokens, err := e.store.TokensOf(ctx, identity.ID)
	if err != nil && !isNotFound(err) {
		return e.storeFailure("list tokens", err, logrus.Fields{"identity": identity.ID})
	}
	for _, token := range tokens {
		if err := e.store.DeleteToken(ctx, token.JTI); err != nil && !isNotFound(err) {
			return e.storeFailure("delete token", err, logrus.Fields{"jti": token.JTI})
		}
	}

	return e.InvalidateAll(ctx, identity)
}
