package password

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHashAndVerify(t *testing.T) {
	hasher, err := NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt error: %v", err)
	}

	hash, err := hasher.Hash("Aa1+bbbb")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if ok, err := hasher.Verify("Aa1+bbbb", hash); err != nil || !ok {
		t.Fatalf("expected match: ok=%v err=%v", ok, err)
	}
	if ok, err := hasher.Verify("Aa1+cccc", hash); err != nil || ok {
		t.Fatalf("expected mismatch: ok=%v err=%v", ok, err)
	}
}

func TestBcryptMalformedDigest(t *testing.T) {
	hasher, err := NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt error: %v", err)
	}

	_, err = hasher.Verify("pw", "garbage")
	if !errors.Is(err, ErrMalformedDigest) {
		t.Fatalf("expected ErrMalformedDigest, got %v", err)
	}
}

func TestNewBcryptCostBounds(t *testing.T) {
	if _, err := NewBcrypt(bcrypt.MaxCost + 1); err == nil {
		t.Fatal("expected cost above max to be rejected")
	}
	h, err := NewBcrypt(0)
	if err != nil {
		t.Fatalf("NewBcrypt(0) error: %v", err)
	}
	if h.cost != bcrypt.DefaultCost {
		t.Fatalf("expected default cost, got %d", h.cost)
	}
}

func TestNewSelectsAlgorithm(t *testing.T) {
	cfg := Config{Algorithm: "BCRYPT", BcryptCost: bcrypt.MinCost}
	h, err := New(cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if _, ok := h.(*Bcrypt); !ok {
		t.Fatalf("expected *Bcrypt, got %T", h)
	}

	cfg = Config{Argon2: fastArgon2Config()}
	h, err = New(cfg)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if _, ok := h.(*Argon2); !ok {
		t.Fatalf("expected *Argon2, got %T", h)
	}

	if _, err := New(Config{Algorithm: "md5"}); err == nil {
		t.Fatal("expected unknown algorithm to be rejected")
	}
}
