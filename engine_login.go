package restauth

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/restauth/metrics"
	"github.com/MrEthical07/restauth/password"
	"github.com/sirupsen/logrus"
)

// Login authenticates req and issues an access token.
//
// Checks run in a fixed order: credentials present, identity exists,
// failed-login lockout, password, inactivity, active flag, second factor,
// optional inline password change, password expiry. The lockout check runs
// before the password is verified, so a locked account is refused even
// with the correct password. Unknown names go through the same lockout
// gate as existing ones. Unknown names, missing credentials, wrong
// passwords and wrong TOTP codes count as failed logins when registration
// is enabled.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	login := strings.ToLower(strings.TrimSpace(req.Username))
	result, err := e.login(ctx, login, req)
	if err != nil {
		e.metricInc(metrics.LoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, auditRecord{login: login}, err)
		return nil, err
	}

	e.metricInc(metrics.LoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, auditRecord{
		identityID: result.Identity.ID,
		login:      login,
	}, nil)
	return result, nil
}

func (e *Engine) login(ctx context.Context, login string, req LoginRequest) (*LoginResult, error) {
	if login == "" || req.Password == nil || *req.Password == "" {
		return nil, e.failLogin(ctx, login, errInvalidCredentials())
	}

	identity, err := e.store.GetIdentityByEmail(ctx, login)
	if isNotFound(err) {
		e.logger.WithField("login", login).Info("Login attempt for an unknown username")
		if err := e.checkFailedLogins(ctx, login); err != nil {
			return nil, err
		}
		return nil, e.failLogin(ctx, login, errInvalidCredentials())
	}
	if err != nil {
		return nil, e.storeFailure("get identity", err, logrus.Fields{"login": login})
	}

	if err := e.checkFailedLogins(ctx, login); err != nil {
		return nil, err
	}

	if !e.passwordMatches(*req.Password, identity) {
		return nil, e.failLogin(ctx, login, errInvalidCredentials())
	}

	now := e.now()
	if err := e.checkInactivity(identity, now); err != nil {
		return nil, err
	}
	if err := e.checkActive(identity); err != nil {
		return nil, err
	}

	if e.config.Security.TOTPEnabled() {
		if err := e.verifySecondFactor(ctx, login, identity, req.TOTPCode); err != nil {
			return nil, err
		}
	}

	if req.NewPassword != "" && req.PasswordConfirm != "" {
		if err := e.changePassword(ctx, identity, req.Password, req.NewPassword, req.PasswordConfirm); err != nil {
			return nil, err
		}
	}

	if err := e.checkPasswordExpiry(identity, now); err != nil {
		return nil, err
	}

	if err := e.resetFailedLogins(ctx, login); err != nil {
		return nil, err
	}

	if err := e.store.TouchLogin(ctx, identity.ID, now); err != nil {
		if isNotFound(err) {
			return nil, errInvalidCredentials()
		}
		return nil, e.storeFailure("touch login", err, logrus.Fields{"identity": identity.ID})
	}
	identity.LastLogin = &now

	token, err := e.IssueToken(ctx, identity, TokenTypeAccess)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Token:      token.Token,
		Identity:   identity,
		Expiration: token.Expiration,
	}, nil
}

// passwordMatches treats an unreadable stored digest as a mismatch.
func (e *Engine) passwordMatches(candidate string, identity *Identity) bool {
	ok, err := e.hasher.Verify(candidate, identity.PasswordHash)
	if err != nil {
		entry := e.logger.WithField("identity", identity.ID)
		if errors.Is(err, password.ErrMalformedDigest) {
			entry.Warn("Stored password digest is malformed")
		} else {
			entry.WithError(err).Error("Password verification failed")
		}
		return false
	}
	return ok
}

// Logout invalidates the presented bearer string. An unknown bearer is not
// an error.
func (e *Engine) Logout(ctx context.Context, bearer string) error {
	removed, err := e.InvalidateToken(ctx, bearer)
	if err != nil {
		return err
	}
	if removed {
		e.emitAudit(ctx, auditEventLogout, true, auditRecord{}, nil)
	}
	return nil
}
