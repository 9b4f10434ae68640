package restauth_test

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/restauth"
	"github.com/MrEthical07/restauth/password"
)

func strPtr(v string) *string { return &v }

func TestChangePasswordConfirmationMismatchKeepsDigest(t *testing.T) {
	h := newHarness(t, nil)
	identity := h.createIdentity(t, testEmail, testPassword)
	before := identity.PasswordHash

	err := h.engine.ChangePassword(context.Background(), identity, strPtr(testPassword), "Bb2+cccc", "Bb2+cccd")
	expectKind(t, err, restauth.ErrPasswordConfirmation, 409)
	if restauth.Message(err) != restauth.MsgPasswordConfirmation {
		t.Fatalf("unexpected message %q", restauth.Message(err))
	}

	stored, err := h.store.GetIdentityByID(context.Background(), identity.ID)
	if err != nil {
		t.Fatalf("GetIdentityByID failed: %v", err)
	}
	if stored.PasswordHash != before || identity.PasswordHash != before {
		t.Fatal("expected digest to be unchanged")
	}
}

func TestChangePasswordStrengthRules(t *testing.T) {
	h := newHarness(t, func(cfg *restauth.Config) {
		cfg.Security.VerifyPasswordStrength = true
	})
	identity := h.createIdentity(t, testEmail, testPassword)

	cases := []struct {
		name      string
		current   *string
		candidate string
		reason    string
	}{
		{"reuse of current", strPtr(testPassword), testPassword, password.ReasonReuse},
		{"reuse of stored digest", nil, testPassword, password.ReasonReuse},
		{"too short", strPtr(testPassword), "Aa1+b", "Password is too short, use at least 8 characters"},
		{"no special", strPtr(testPassword), "Aa1bbbbbb", password.ReasonMissingSpecial},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := h.engine.ChangePassword(context.Background(), identity, tc.current, tc.candidate, tc.candidate)
			expectKind(t, err, restauth.ErrPasswordPolicy, 409)
			if restauth.Message(err) != tc.reason {
				t.Fatalf("expected %q, got %q", tc.reason, restauth.Message(err))
			}
		})
	}
}

func TestChangePasswordWithoutStrengthCheckAcceptsWeakPassword(t *testing.T) {
	h := newHarness(t, nil)
	identity := h.createIdentity(t, testEmail, testPassword)

	if err := h.engine.ChangePassword(context.Background(), identity, strPtr(testPassword), "weak", "weak"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	h.mustLogin(t, testEmail, "weak")
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	h := newHarness(t, nil)
	identity := h.createIdentity(t, testEmail, testPassword)

	err := h.engine.ChangePassword(context.Background(), identity, strPtr("Zz9+zzzz"), "Bb2+cccc", "Bb2+cccc")
	expectKind(t, err, restauth.ErrInvalidCredentials, 401)
}

func TestChangePasswordRevokesTokens(t *testing.T) {
	h := newHarness(t, func(cfg *restauth.Config) {
		cfg.Security.VerifyPasswordStrength = true
	})
	h.createIdentity(t, testEmail, testPassword)
	first := h.mustLogin(t, testEmail, testPassword)
	second := h.mustLogin(t, testEmail, testPassword)

	identity, err := h.engine.Validate(context.Background(), second.Token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	h.clock.Advance(time.Minute)
	if err := h.engine.ChangePassword(context.Background(), identity, strPtr(testPassword), "Bb2+cccc", "Bb2+cccc"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if identity.LastPasswordChange == nil || !identity.LastPasswordChange.Equal(h.clock.Now()) {
		t.Fatalf("expected LastPasswordChange to be now, got %v", identity.LastPasswordChange)
	}

	for _, bearer := range []string{first.Token, second.Token} {
		_, err := h.engine.Validate(context.Background(), bearer)
		expectKind(t, err, restauth.ErrInvalidToken, 401)
	}
	views, err := h.engine.Tokens(context.Background(), restauth.TokenFilter{IdentityID: identity.ID})
	if err != nil || len(views) != 0 {
		t.Fatalf("expected every token to be deleted, got %d (%v)", len(views), err)
	}

	_, err = h.login(testEmail, testPassword)
	expectKind(t, err, restauth.ErrInvalidCredentials, 401)
	h.mustLogin(t, testEmail, "Bb2+cccc")
}

func TestForcedFirstPasswordChange(t *testing.T) {
	h := newHarness(t, func(cfg *restauth.Config) {
		cfg.Security.ForceFirstPasswordChange = true
	})
	_, err := h.engine.CreateIdentity(context.Background(), restauth.NewIdentity{
		Email:           testEmail,
		Password:        testPassword,
		ExpiredPassword: true,
	}, nil)
	if err != nil {
		t.Fatalf("CreateIdentity failed: %v", err)
	}

	_, err = h.login(testEmail, testPassword)
	expectKind(t, err, restauth.ErrPasswordChangeRequired, 403)

	pw := testPassword
	result, err := h.engine.Login(context.Background(), restauth.LoginRequest{
		Username:        testEmail,
		Password:        &pw,
		NewPassword:     "Bb2+cccc",
		PasswordConfirm: "Bb2+cccc",
	})
	if err != nil {
		t.Fatalf("Login with inline change failed: %v", err)
	}
	if _, err := h.engine.Validate(context.Background(), result.Token); err != nil {
		t.Fatalf("token issued after inline change does not validate: %v", err)
	}

	_, err = h.login(testEmail, testPassword)
	expectKind(t, err, restauth.ErrInvalidCredentials, 401)
	h.mustLogin(t, testEmail, "Bb2+cccc")
}

func TestInlinePasswordChangeMismatch(t *testing.T) {
	h := newHarness(t, nil)
	h.createIdentity(t, testEmail, testPassword)

	pw := testPassword
	_, err := h.engine.Login(context.Background(), restauth.LoginRequest{
		Username:        testEmail,
		Password:        &pw,
		NewPassword:     "Bb2+cccc",
		PasswordConfirm: "Cc3+dddd",
	})
	expectKind(t, err, restauth.ErrPasswordConfirmation, 409)
	h.mustLogin(t, testEmail, testPassword)
}

func TestPasswordExpiresAfterMaxValidity(t *testing.T) {
	h := newHarness(t, func(cfg *restauth.Config) {
		cfg.Security.MaxPasswordValidity = 10
	})
	h.createIdentity(t, testEmail, testPassword)

	h.clock.Advance(9 * 24 * time.Hour)
	h.mustLogin(t, testEmail, testPassword)

	h.clock.Advance(2 * 24 * time.Hour)
	_, err := h.login(testEmail, testPassword)
	expectKind(t, err, restauth.ErrPasswordExpired, 403)
	if restauth.Message(err) != restauth.MsgPasswordExpired {
		t.Fatalf("unexpected message %q", restauth.Message(err))
	}
}
