package restauth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/MrEthical07/restauth/metrics"
	"github.com/sirupsen/logrus"
	qrcode "github.com/skip2/go-qrcode"
)

// TOTPSetup is what an authenticator app needs to enroll an identity.
type TOTPSetup struct {
	SecretBase32 string `json:"secret"`
	URI          string `json:"uri"`
}

func errTOTPDisabled() *Error {
	return newError(ErrTOTPDisabled, http.StatusBadRequest, MsgTOTPDisabled)
}

// TOTPSecret returns the base32 secret of identity. Secrets are derived from
// TOTP.SecretKey and the identity ID, so they survive password changes and
// key rotations.
func (e *Engine) TOTPSecret(identity *Identity) (string, error) {
	if !e.config.Security.TOTPEnabled() {
		return "", errTOTPDisabled()
	}
	if identity == nil || identity.ID == "" {
		return "", errInvalidCredentials()
	}
	return encodeSecret(e.totp.deriveSecret(identity.ID)), nil
}

// TOTPEnrollment returns the secret and otpauth URI of identity.
func (e *Engine) TOTPEnrollment(identity *Identity) (*TOTPSetup, error) {
	secret, err := e.TOTPSecret(identity)
	if err != nil {
		return nil, err
	}
	return &TOTPSetup{
		SecretBase32: secret,
		URI:          e.totp.ProvisionURI(secret, identity.Email),
	}, nil
}

// TOTPProvisioning renders the otpauth URI of identity as a PNG QR code.
func (e *Engine) TOTPProvisioning(identity *Identity) ([]byte, error) {
	setup, err := e.TOTPEnrollment(identity)
	if err != nil {
		return nil, err
	}
	size := e.config.TOTP.QRSize
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(setup.URI, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("render totp qr code: %w", err)
	}
	return png, nil
}

// verifySecondFactor rejects a missing or wrong code. Only a wrong code
// counts as a failed login.
func (e *Engine) verifySecondFactor(ctx context.Context, login string, identity *Identity, code string) error {
	if code == "" {
		e.metricInc(metrics.TOTPFailure)
		return newError(ErrInvalidSecondFactor, http.StatusUnauthorized, MsgInvalidSecondFactor)
	}

	ok, _, err := e.totp.VerifyCode(e.totp.deriveSecret(identity.ID), code, e.now())
	if err != nil {
		e.logger.WithError(err).WithField("identity", identity.ID).Error("TOTP verification failed")
	}
	if err != nil || !ok {
		e.metricInc(metrics.TOTPFailure)
		e.emitAudit(ctx, auditEventTOTPFailure, false, auditRecord{identityID: identity.ID, login: login}, ErrInvalidSecondFactor)
		return e.failLogin(ctx, login, newError(ErrInvalidSecondFactor, http.StatusUnauthorized, MsgInvalidSecondFactor))
	}

	e.metricInc(metrics.TOTPSuccess)
	e.emitAudit(ctx, auditEventTOTPSuccess, true, auditRecord{identityID: identity.ID, login: login}, nil)
	e.logger.WithFields(logrus.Fields{"identity": identity.ID}).Debug("Second factor accepted")
	return nil
}
