package restauth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/restauth"
)

func identityWithRoles(names ...string) *restauth.Identity {
	identity := &restauth.Identity{ID: "id"}
	for _, name := range names {
		identity.Roles = append(identity.Roles, restauth.Role{Name: name})
	}
	return identity
}

func TestVerifyRoles(t *testing.T) {
	cases := []struct {
		name     string
		held     []string
		required []string
		policy   restauth.RolePolicy
		want     bool
	}{
		{"all missing", []string{"admin"}, []string{"user"}, restauth.RolesAll, false},
		{"all partial", []string{"admin"}, []string{"admin", "user"}, restauth.RolesAll, false},
		{"all held", []string{"admin", "user"}, []string{"admin", "user"}, restauth.RolesAll, true},
		{"any one held", []string{"admin"}, []string{"user", "admin"}, restauth.RolesAny, true},
		{"any none held", []string{"guest"}, []string{"user", "admin"}, restauth.RolesAny, false},
		{"nothing required", nil, nil, restauth.RolesAll, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := restauth.VerifyRoles(identityWithRoles(tc.held...), tc.required, tc.policy)
			if got != tc.want {
				t.Fatalf("VerifyRoles(%v, %v, %s) = %v, want %v", tc.held, tc.required, tc.policy, got, tc.want)
			}
		})
	}
}

func TestAuthorizeInsufficientPrivileges(t *testing.T) {
	h := newHarness(t, nil)
	err := h.engine.Authorize(identityWithRoles("admin"), []string{"user"}, restauth.RolesAll)
	expectKind(t, err, restauth.ErrInsufficientPrivileges, 401)
	if restauth.Message(err) != restauth.MsgInsufficientPrivileges {
		t.Fatalf("unexpected message %q", restauth.Message(err))
	}
	if err := h.engine.Authorize(identityWithRoles("user"), []string{"user"}, restauth.RolesAll); err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
}

func TestCreateIdentityDefaults(t *testing.T) {
	h := newHarness(t, nil)
	identity := h.createIdentity(t, " Alice@Example.org", testPassword)

	if identity.Email != testEmail {
		t.Fatalf("expected normalized email, got %q", identity.Email)
	}
	if identity.AuthMethod != restauth.AuthMethodCredentials {
		t.Fatalf("unexpected auth method %q", identity.AuthMethod)
	}
	if identity.IsActive == nil || !*identity.IsActive {
		t.Fatal("expected identity to be active")
	}
	if identity.LastPasswordChange == nil {
		t.Fatal("expected LastPasswordChange to be set")
	}
	if got := identity.RoleNames(); len(got) != 1 || got[0] != "normal_user" {
		t.Fatalf("expected default role, got %v", got)
	}
	if identity.PasswordHash == testPassword {
		t.Fatal("password stored in clear")
	}

	_, err := h.engine.CreateIdentity(context.Background(), restauth.NewIdentity{Email: testEmail, Password: testPassword}, nil)
	expectKind(t, err, restauth.ErrAlreadyExists, 409)
}

func TestCreateIdentityUnknownRoleStoresNothing(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.engine.CreateIdentity(ctx, restauth.NewIdentity{Email: testEmail, Password: testPassword}, []string{"staff_user", "ghost"})
	expectKind(t, err, restauth.ErrNotFound, 400)
	if n, _ := h.store.CountIdentities(ctx); n != 0 {
		t.Fatalf("expected nothing stored, got %d identities", n)
	}

	identity := h.createIdentity(t, testEmail, testPassword, "staff_user")
	if !identity.HasRole("staff_user") {
		t.Fatalf("retry did not link the role, got %v", identity.RoleNames())
	}
}

func TestLinkRolesReplacesRoles(t *testing.T) {
	h := newHarness(t, nil)
	identity := h.createIdentity(t, testEmail, testPassword, "admin_root", "staff_user")

	if err := h.engine.LinkRoles(context.Background(), identity, []string{"staff_user"}); err != nil {
		t.Fatalf("LinkRoles failed: %v", err)
	}
	stored, err := h.store.GetIdentityByID(context.Background(), identity.ID)
	if err != nil {
		t.Fatalf("GetIdentityByID failed: %v", err)
	}
	if got := stored.RoleNames(); len(got) != 1 || got[0] != "staff_user" {
		t.Fatalf("expected only staff_user, got %v", got)
	}

	err = h.engine.LinkRoles(context.Background(), identity, []string{"ghost"})
	if !errors.Is(err, restauth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown role, got %v", err)
	}
}

func TestInitInjectsDefaultUser(t *testing.T) {
	h := newHarness(t, func(cfg *restauth.Config) {
		cfg.Roles.DefaultPassword = "Dd4+eeee"
	})

	roles, err := h.store.ListRoles(context.Background())
	if err != nil {
		t.Fatalf("ListRoles failed: %v", err)
	}
	if len(roles) != 3 {
		t.Fatalf("expected three default roles, got %v", roles)
	}

	identity, err := h.store.GetIdentityByEmail(context.Background(), "user@nomail.org")
	if err != nil {
		t.Fatalf("default user missing: %v", err)
	}
	if identity.Name != "Default" || identity.Surname != "User" {
		t.Fatalf("unexpected default user %q %q", identity.Name, identity.Surname)
	}
	for _, role := range []string{"admin_root", "staff_user", "normal_user"} {
		if !identity.HasRole(role) {
			t.Fatalf("default user lacks %s", role)
		}
	}

	if err := h.engine.Init(context.Background()); err != nil {
		t.Fatalf("second Init failed: %v", err)
	}
	if n, _ := h.store.CountIdentities(context.Background()); n != 1 {
		t.Fatalf("expected Init to be idempotent, got %d identities", n)
	}
	h.mustLogin(t, "user@nomail.org", "Dd4+eeee")
}

func TestInitWithoutDefaultPasswordSkipsUser(t *testing.T) {
	h := newHarness(t, nil)
	if n, _ := h.store.CountIdentities(context.Background()); n != 0 {
		t.Fatalf("expected no identity, got %d", n)
	}
}
