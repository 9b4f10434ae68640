package restauth

import (
	"bytes"
	"net/url"
	"strings"
	"testing"
	"time"
)

type rfcVector struct {
	ts   int64
	code string
}

func verifyVectors(t *testing.T, algorithm string, secret []byte, cases []rfcVector) {
	t.Helper()
	m := newTOTPManager(TOTPConfig{
		Issuer:    "restauth",
		Digits:    8,
		Period:    30,
		Algorithm: algorithm,
		Skew:      0,
	})
	for _, tc := range cases {
		ok, _, err := m.VerifyCode(secret, tc.code, time.Unix(tc.ts, 0))
		if err != nil || !ok {
			t.Fatalf("%s vector failed at t=%d, ok=%v err=%v", algorithm, tc.ts, ok, err)
		}
	}
}

func TestTOTPVerifyRFCVectorsSHA1(t *testing.T) {
	verifyVectors(t, "SHA1", []byte("12345678901234567890"), []rfcVector{
		{59, "94287082"},
		{1111111109, "07081804"},
		{1111111111, "14050471"},
		{1234567890, "89005924"},
		{2000000000, "69279037"},
		{20000000000, "65353130"},
	})
}

func TestTOTPVerifyRFCVectorsSHA256(t *testing.T) {
	verifyVectors(t, "SHA256", []byte("12345678901234567890123456789012"), []rfcVector{
		{59, "46119246"},
		{1111111109, "68084774"},
		{1111111111, "67062674"},
		{1234567890, "91819424"},
		{2000000000, "90698825"},
		{20000000000, "77737706"},
	})
}

func TestTOTPVerifyRFCVectorsSHA512(t *testing.T) {
	verifyVectors(t, "SHA512", []byte("1234567890123456789012345678901234567890123456789012345678901234"), []rfcVector{
		{59, "90693936"},
		{1111111109, "25091201"},
		{1111111111, "99943326"},
		{1234567890, "93441116"},
		{2000000000, "38618901"},
		{20000000000, "47863826"},
	})
}

func TestTOTPDriftWindowAcceptsAdjacentStep(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Digits: 6, Period: 30, Algorithm: "SHA1", Skew: 1})
	secret := []byte("12345678901234567890")
	now := time.Unix(1234567890, 0)
	prevCounter := (now.Unix() / 30) - 1
	code, err := hotpCode(secret, prevCounter, 6, "SHA1")
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}

	ok, counter, err := m.VerifyCode(secret, code, now)
	if err != nil || !ok {
		t.Fatalf("expected skew code accepted, ok=%v err=%v", ok, err)
	}
	if counter != prevCounter {
		t.Fatalf("expected counter %d, got %d", prevCounter, counter)
	}
}

func TestTOTPOutsideSkewRejected(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Digits: 6, Period: 30, Algorithm: "SHA1", Skew: 1})
	secret := []byte("12345678901234567890")
	now := time.Unix(1234567890, 0)
	code, err := hotpCode(secret, (now.Unix()/30)-3, 6, "SHA1")
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}
	if ok, _, _ := m.VerifyCode(secret, code, now); ok {
		t.Fatal("expected code three steps old to be rejected")
	}
}

func TestTOTPWrongDigitsRejected(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Digits: 6, Period: 30, Algorithm: "SHA1", Skew: 1})
	secret := []byte("12345678901234567890")
	for _, code := range []string{"12345678", "", "12a456"} {
		ok, _, err := m.VerifyCode(secret, code, time.Now())
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", code, err)
		}
		if ok {
			t.Fatalf("expected %q to be rejected", code)
		}
	}
}

func TestTOTPDerivedSecretIsStablePerIdentity(t *testing.T) {
	m := newTOTPManager(TOTPConfig{SecretKey: "k1"})
	a1 := m.deriveSecret("id-a")
	a2 := m.deriveSecret("id-a")
	b := m.deriveSecret("id-b")
	if len(a1) != 20 {
		t.Fatalf("expected 20 byte secret, got %d", len(a1))
	}
	if !bytes.Equal(a1, a2) {
		t.Fatal("expected same identity to derive the same secret")
	}
	if bytes.Equal(a1, b) {
		t.Fatal("expected different identities to derive different secrets")
	}

	other := newTOTPManager(TOTPConfig{SecretKey: "k2"})
	if bytes.Equal(a1, other.deriveSecret("id-a")) {
		t.Fatal("expected a different key to derive a different secret")
	}
}

func TestTOTPProvisionURI(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Issuer: "My Project", Digits: 6, Period: 30, Algorithm: "sha1"})
	uri := m.ProvisionURI("ABCDEF", "alice@example.org")
	if !strings.HasPrefix(uri, "otpauth://totp/") {
		t.Fatalf("unexpected uri %q", uri)
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		t.Fatalf("parse uri: %v", err)
	}
	q := parsed.Query()
	if q.Get("secret") != "ABCDEF" || q.Get("issuer") != "My Project" || q.Get("algorithm") != "SHA1" {
		t.Fatalf("unexpected query %v", q)
	}
	if parsed.Path != "/My Project:alice@example.org" {
		t.Fatalf("unexpected label %q", parsed.Path)
	}
}
