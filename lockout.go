package restauth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/restauth/metrics"
	"github.com/sirupsen/logrus"
)

// FailureCounter counts failed logins per login name. Implementations live
// in internal/limiters; Increment must be atomic.
type FailureCounter interface {
	Increment(ctx context.Context, login string) (int, error)
	Count(ctx context.Context, login string) (int, error)
	Reset(ctx context.Context, login string) error
}

const day = 24 * time.Hour

// checkFailedLogins rejects a login name whose failure count reached the
// configured maximum. The check runs even when the password is correct.
func (e *Engine) checkFailedLogins(ctx context.Context, login string) error {
	sec := e.config.Security
	if !sec.LockoutEnabled() {
		return nil
	}

	count, err := e.counter.Count(ctx, login)
	if err != nil {
		return e.storeFailure("count failed logins", err, logrus.Fields{"login": login})
	}
	if count < sec.MaxLoginAttempts {
		return nil
	}

	e.logger.WithFields(logrus.Fields{
		"login":    login,
		"failures": count,
	}).Info("Login refused, too many failed attempts")
	e.metricInc(metrics.LoginLocked)
	return errAccountLocked(sec.MaxLoginAttempts)
}

func (e *Engine) registerFailedLogin(ctx context.Context, login string) error {
	if !e.config.Security.RegisterFailedLogin {
		return nil
	}
	if _, err := e.counter.Increment(ctx, login); err != nil {
		return e.storeFailure("register failed login", err, logrus.Fields{"login": login})
	}
	return nil
}

func (e *Engine) resetFailedLogins(ctx context.Context, login string) error {
	if !e.config.Security.RegisterFailedLogin {
		return nil
	}
	if err := e.counter.Reset(ctx, login); err != nil {
		return e.storeFailure("reset failed logins", err, logrus.Fields{"login": login})
	}
	return nil
}

// failLogin registers a failure for login and returns cause, unless the
// registration itself failed.
func (e *Engine) failLogin(ctx context.Context, login string, cause error) error {
	if err := e.registerFailedLogin(ctx, login); err != nil {
		return err
	}
	return cause
}

func (e *Engine) checkInactivity(identity *Identity, now time.Time) error {
	days := e.config.Security.DisableUnusedCredentialsAfter
	if days <= 0 || identity.LastLogin == nil {
		return nil
	}
	if identity.LastLogin.Add(time.Duration(days) * day).Before(now) {
		e.metricInc(metrics.LoginInactive)
		return newError(ErrAccountInactive, http.StatusUnauthorized, MsgAccountInactive)
	}
	return nil
}

func (e *Engine) checkActive(identity *Identity) error {
	if identity.IsActive == nil {
		e.logger.WithField("identity", identity.ID).Warn("Found a user with undefined active flag")
		return nil
	}
	if !*identity.IsActive {
		e.metricInc(metrics.LoginDisabled)
		return newError(ErrAccountDisabled, http.StatusUnauthorized, MsgAccountNotActive)
	}
	return nil
}

func (e *Engine) checkPasswordExpiry(identity *Identity, now time.Time) error {
	sec := e.config.Security
	if sec.ForceFirstPasswordChange && identity.LastPasswordChange == nil {
		e.metricInc(metrics.LoginPasswordExpired)
		return newError(ErrPasswordChangeRequired, http.StatusForbidden, MsgPasswordChangeRequired)
	}
	if sec.MaxPasswordValidity > 0 && identity.LastPasswordChange != nil {
		validUntil := identity.LastPasswordChange.Add(time.Duration(sec.MaxPasswordValidity) * day)
		if validUntil.Before(now) {
			e.metricInc(metrics.LoginPasswordExpired)
			return newError(ErrPasswordExpired, http.StatusForbidden, MsgPasswordExpired)
		}
	}
	return nil
}

// isNotFound reports the store's does-not-exist signal.
func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
