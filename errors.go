package restauth

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel kinds. Every error returned by an Engine operation that a client
// should see is an *Error whose kind is one of these, so callers can use
// errors.Is without inspecting messages.
var (
	// ErrInvalidCredentials reports an unknown login name, a missing
	// credential or a wrong password. The three cases are indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked reports that the failed-login threshold was reached.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountInactive reports credentials unused for longer than the
	// configured inactivity window.
	ErrAccountInactive = errors.New("account inactive")
	// ErrAccountDisabled reports an identity whose active flag is false.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrInvalidSecondFactor reports a missing or wrong TOTP code.
	ErrInvalidSecondFactor = errors.New("invalid second factor")
	// ErrPasswordPolicy reports a candidate password rejected by the policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordConfirmation reports a new password that differs from its confirmation.
	ErrPasswordConfirmation = errors.New("password confirmation mismatch")
	// ErrPasswordChangeRequired reports a temporary password that must be replaced before login.
	ErrPasswordChangeRequired = errors.New("password change required")
	// ErrPasswordExpired reports a password older than the configured validity.
	ErrPasswordExpired = errors.New("password expired")
	// ErrInvalidToken reports a bearer string that is malformed, expired,
	// revoked or bound to a rotated identity key.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidScheme reports an Authorization header with a scheme other than Bearer.
	ErrInvalidScheme = errors.New("invalid authorization scheme")
	// ErrInsufficientPrivileges reports an identity lacking the required roles.
	ErrInsufficientPrivileges = errors.New("insufficient privileges")
	// ErrStoreUnavailable reports a transient failure of the backing store or
	// the failed-login counter.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrTOTPDisabled reports a TOTP operation while the second factor is off.
	ErrTOTPDisabled = errors.New("totp second factor disabled")
	// ErrEngineNotReady reports a nil or half-built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Client-facing messages.
const (
	MsgInvalidCredentials = "Invalid username or password"
	MsgAccountInactive    = "Sorry, this account is blocked for inactivity"
	// MsgAccountNotActive is a fixed contract: clients match on it.
	MsgAccountNotActive       = "Sorry, this account is not active"
	MsgInvalidSecondFactor    = "Invalid verification code"
	MsgPasswordConfirmation   = "Your password doesn't match the confirmation"
	MsgPasswordChangeRequired = "Please change your temporary password"
	MsgPasswordExpired        = "Your password is expired, please change it"
	MsgInvalidScheme          = "Valid credentials have to be provided inside Headers, e.g. Authorization: 'Bearer TOKEN'"
	MsgInsufficientPrivileges = "You are not authorized: missing privileges"
	MsgStoreUnavailable       = "Authentication service temporarily unavailable"
	MsgTOTPDisabled           = "Second factor authentication is not enabled"
)

// Error is a client-facing failure carrying the HTTP status it maps to.
type Error struct {
	Status  int
	Message string
	kind    error
}

func (e *Error) Error() string { return e.Message }

// Unwrap exposes the sentinel kind to errors.Is.
func (e *Error) Unwrap() error { return e.kind }

func newError(kind error, status int, message string) *Error {
	return &Error{Status: status, Message: message, kind: kind}
}

func errInvalidCredentials() *Error {
	return newError(ErrInvalidCredentials, http.StatusUnauthorized, MsgInvalidCredentials)
}

func errAccountLocked(maxAttempts int) *Error {
	return newError(ErrAccountLocked, http.StatusUnauthorized, fmt.Sprintf(
		"Sorry, this account is temporarily blocked due to more than %d failed login attempts. Try again later",
		maxAttempts,
	))
}

func errInvalidToken(token string) *Error {
	return newError(ErrInvalidToken, http.StatusUnauthorized, fmt.Sprintf("Invalid token received '%s'", token))
}

// ErrorForInvalidToken builds the error reported for an unusable bearer string.
func ErrorForInvalidToken(token string) *Error { return errInvalidToken(token) }

// ErrorForInvalidScheme builds the error reported for a non-Bearer Authorization header.
func ErrorForInvalidScheme() *Error {
	return newError(ErrInvalidScheme, http.StatusUnauthorized, MsgInvalidScheme)
}

// ErrorForInsufficientPrivileges builds the error reported by role checks.
func ErrorForInsufficientPrivileges() *Error {
	return newError(ErrInsufficientPrivileges, http.StatusUnauthorized, MsgInsufficientPrivileges)
}

func errStoreUnavailable() *Error {
	return newError(ErrStoreUnavailable, http.StatusServiceUnavailable, MsgStoreUnavailable)
}

// StatusCode returns the HTTP status for err: the Status of a wrapped *Error,
// 503 for a bare store outage and 500 otherwise.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Message returns the client-facing message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return MsgStoreUnavailable
	}
	return http.StatusText(http.StatusInternalServerError)
}
