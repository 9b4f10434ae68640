package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/restauth"
	"github.com/MrEthical07/restauth/store/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) restauth.Store { return New() })
}

func TestCancelledContextIsTransient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().GetIdentityByEmail(ctx, "alice@example.org")
	if !errors.Is(err, restauth.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestReturnedIdentityDoesNotAliasStore(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreateIdentity(ctx, &restauth.Identity{ID: "1", UUID: "u1", Email: "a@b.c"}); err != nil {
		t.Fatalf("CreateIdentity: %v", err)
	}

	got, err := s.GetIdentityByID(ctx, "1")
	if err != nil {
		t.Fatalf("GetIdentityByID: %v", err)
	}
	got.UUID = "changed"

	again, err := s.GetIdentityByID(ctx, "1")
	if err != nil {
		t.Fatalf("GetIdentityByID: %v", err)
	}
	if again.UUID != "u1" {
		t.Fatalf("stored identity was mutated through a returned copy: %q", again.UUID)
	}
}
