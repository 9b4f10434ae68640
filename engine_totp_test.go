package restauth_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/restauth"
)

func totpConfig(cfg *restauth.Config) {
	cfg.Security.SecondFactor = restauth.SecondFactorTOTP
	cfg.TOTP.SecretKey = "totp-key"
	cfg.TOTP.Issuer = "Test Project"
}

func totpCode(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(at.Unix()/30))
	mac := hmac.New(sha1.New, key)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)
	offset := sum[len(sum)-1] & 0x0f
	bin := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff
	return fmt.Sprintf("%06d", bin%1000000)
}

func (h *harness) loginWithCode(pw, code string) (*restauth.LoginResult, error) {
	return h.engine.Login(context.Background(), restauth.LoginRequest{
		Username: testEmail,
		Password: &pw,
		TOTPCode: code,
	})
}

func TestTOTPLogin(t *testing.T) {
	h := newHarness(t, totpConfig)
	identity := h.createIdentity(t, testEmail, testPassword)

	secret, err := h.engine.TOTPSecret(identity)
	if err != nil {
		t.Fatalf("TOTPSecret failed: %v", err)
	}

	_, err = h.loginWithCode(testPassword, "")
	expectKind(t, err, restauth.ErrInvalidSecondFactor, 401)
	if restauth.Message(err) != "Invalid verification code" {
		t.Fatalf("unexpected message %q", restauth.Message(err))
	}

	if _, err := h.loginWithCode(testPassword, totpCode(t, secret, h.clock.Now())); err != nil {
		t.Fatalf("Login with valid code failed: %v", err)
	}
}

func TestTOTPWrongCodeCountsAsFailedLogin(t *testing.T) {
	h := newHarness(t, func(cfg *restauth.Config) {
		totpConfig(cfg)
		cfg.Security.RegisterFailedLogin = true
		cfg.Security.MaxLoginAttempts = 2
	})
	identity := h.createIdentity(t, testEmail, testPassword)
	secret, err := h.engine.TOTPSecret(identity)
	if err != nil {
		t.Fatalf("TOTPSecret failed: %v", err)
	}

	// A missing code is rejected without being counted.
	for i := 0; i < 3; i++ {
		_, err := h.loginWithCode(testPassword, "")
		expectKind(t, err, restauth.ErrInvalidSecondFactor, 401)
	}

	// Codes from ten minutes ago are outside the skew window.
	stale := totpCode(t, secret, h.clock.Now().Add(-10*time.Minute))
	for i := 0; i < 2; i++ {
		_, err := h.loginWithCode(testPassword, stale)
		expectKind(t, err, restauth.ErrInvalidSecondFactor, 401)
	}

	_, err = h.loginWithCode(testPassword, totpCode(t, secret, h.clock.Now()))
	expectKind(t, err, restauth.ErrAccountLocked, 401)
}

func TestTOTPProvisioning(t *testing.T) {
	h := newHarness(t, totpConfig)
	identity := h.createIdentity(t, testEmail, testPassword)

	setup, err := h.engine.TOTPEnrollment(identity)
	if err != nil {
		t.Fatalf("TOTPEnrollment failed: %v", err)
	}
	if !strings.HasPrefix(setup.URI, "otpauth://totp/Test%20Project:"+testEmail) {
		t.Fatalf("unexpected uri %q", setup.URI)
	}
	if !strings.Contains(setup.URI, "secret="+setup.SecretBase32) {
		t.Fatalf("uri %q does not carry the secret", setup.URI)
	}

	png, err := h.engine.TOTPProvisioning(identity)
	if err != nil {
		t.Fatalf("TOTPProvisioning failed: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatal("expected a PNG image")
	}
}

func TestTOTPSecretSurvivesKeyRotation(t *testing.T) {
	h := newHarness(t, totpConfig)
	identity := h.createIdentity(t, testEmail, testPassword)

	before, err := h.engine.TOTPSecret(identity)
	if err != nil {
		t.Fatalf("TOTPSecret failed: %v", err)
	}
	if err := h.engine.InvalidateAll(context.Background(), identity); err != nil {
		t.Fatalf("InvalidateAll failed: %v", err)
	}
	after, err := h.engine.TOTPSecret(identity)
	if err != nil {
		t.Fatalf("TOTPSecret failed: %v", err)
	}
	if before != after {
		t.Fatal("expected the secret to depend on the stable identity ID only")
	}
}

func TestTOTPDisabled(t *testing.T) {
	h := newHarness(t, nil)
	identity := h.createIdentity(t, testEmail, testPassword)

	_, err := h.engine.TOTPSecret(identity)
	expectKind(t, err, restauth.ErrTOTPDisabled, 400)
	_, err = h.engine.TOTPProvisioning(identity)
	expectKind(t, err, restauth.ErrTOTPDisabled, 400)
}
