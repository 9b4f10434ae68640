// Package storetest holds behaviour checks shared by every restauth.Store
// backend that can run without external services.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/restauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises a fresh store returned by newStore in every subtest.
func Run(t *testing.T, newStore func(t *testing.T) restauth.Store) {
	t.Run("IdentityLookups", func(t *testing.T) { testIdentityLookups(t, newStore(t)) })
	t.Run("SaveIdentityRotatesKey", func(t *testing.T) { testSaveIdentityRotatesKey(t, newStore(t)) })
	t.Run("TouchLogin", func(t *testing.T) { testTouchLogin(t, newStore(t)) })
	t.Run("DuplicateEmail", func(t *testing.T) { testDuplicateEmail(t, newStore(t)) })
	t.Run("Roles", func(t *testing.T) { testRoles(t, newStore(t)) })
	t.Run("LinkRolesReplaces", func(t *testing.T) { testLinkRolesReplaces(t, newStore(t)) })
	t.Run("Tokens", func(t *testing.T) { testTokens(t, newStore(t)) })
	t.Run("TouchDeletedToken", func(t *testing.T) { testTouchDeletedToken(t, newStore(t)) })
}

func boolPtr(v bool) *bool { return &v }

func sampleIdentity(id, email string) *restauth.Identity {
	lastLogin := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &restauth.Identity{
		ID:           id,
		UUID:         "uuid-" + id,
		Email:        email,
		Name:         "Alice",
		Surname:      "Liddell",
		PasswordHash: "digest",
		IsActive:     boolPtr(true),
		LastLogin:    &lastLogin,
		AuthMethod:   restauth.AuthMethodCredentials,
		Properties:   map[string]string{"team": "blue"},
	}
}

func testTouchLogin(t *testing.T, s restauth.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateIdentity(ctx, sampleIdentity("id-1", "alice@example.org")))

	changed, err := s.GetIdentityByID(ctx, "id-1")
	require.NoError(t, err)
	changed.PasswordHash = "new-digest"
	changed.UUID = "uuid-rotated"
	require.NoError(t, s.SaveIdentity(ctx, changed))

	at := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.TouchLogin(ctx, "id-1", at))

	got, err := s.GetIdentityByID(ctx, "id-1")
	require.NoError(t, err)
	require.NotNil(t, got.LastLogin)
	assert.True(t, got.LastLogin.Equal(at))
	assert.Equal(t, "new-digest", got.PasswordHash)
	assert.Equal(t, "uuid-rotated", got.UUID)

	err = s.TouchLogin(ctx, "missing", at)
	assert.True(t, errors.Is(err, restauth.ErrNotFound), "got %v", err)
}

func testIdentityLookups(t *testing.T, s restauth.Store) {
	ctx := context.Background()
	in := sampleIdentity("id-1", "alice@example.org")
	require.NoError(t, s.CreateIdentity(ctx, in))

	byEmail, err := s.GetIdentityByEmail(ctx, "alice@example.org")
	require.NoError(t, err)
	assert.Equal(t, "id-1", byEmail.ID)
	assert.Equal(t, "Alice", byEmail.Name)
	require.NotNil(t, byEmail.IsActive)
	assert.True(t, *byEmail.IsActive)
	require.NotNil(t, byEmail.LastLogin)
	assert.True(t, byEmail.LastLogin.Equal(*in.LastLogin))
	assert.Nil(t, byEmail.LastPasswordChange)
	assert.Equal(t, "blue", byEmail.Properties["team"])

	byUUID, err := s.GetIdentityByUUID(ctx, "uuid-id-1")
	require.NoError(t, err)
	assert.Equal(t, "id-1", byUUID.ID)

	byID, err := s.GetIdentityByID(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.org", byID.Email)

	_, err = s.GetIdentityByEmail(ctx, "bob@example.org")
	assert.True(t, errors.Is(err, restauth.ErrNotFound), "got %v", err)

	n, err := s.CountIdentities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testSaveIdentityRotatesKey(t *testing.T, s restauth.Store) {
	ctx := context.Background()
	in := sampleIdentity("id-1", "alice@example.org")
	require.NoError(t, s.CreateIdentity(ctx, in))

	in.UUID = "uuid-rotated"
	in.IsActive = nil
	require.NoError(t, s.SaveIdentity(ctx, in))

	_, err := s.GetIdentityByUUID(ctx, "uuid-id-1")
	assert.True(t, errors.Is(err, restauth.ErrNotFound), "old key still resolves: %v", err)

	got, err := s.GetIdentityByUUID(ctx, "uuid-rotated")
	require.NoError(t, err)
	assert.Equal(t, "id-1", got.ID)
	assert.Nil(t, got.IsActive)

	err = s.SaveIdentity(ctx, sampleIdentity("missing", "x@example.org"))
	assert.True(t, errors.Is(err, restauth.ErrNotFound), "got %v", err)
}

func testDuplicateEmail(t *testing.T, s restauth.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateIdentity(ctx, sampleIdentity("id-1", "alice@example.org")))
	err := s.CreateIdentity(ctx, sampleIdentity("id-2", "alice@example.org"))
	assert.True(t, errors.Is(err, restauth.ErrAlreadyExists), "got %v", err)
}

func testRoles(t *testing.T, s restauth.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateRole(ctx, restauth.Role{Name: "staff", Description: "Staff"}))
	require.NoError(t, s.CreateRole(ctx, restauth.Role{Name: "admin", Description: "Admin"}))
	assert.True(t, errors.Is(s.CreateRole(ctx, restauth.Role{Name: "admin"}), restauth.ErrAlreadyExists))

	role, err := s.GetRole(ctx, "staff")
	require.NoError(t, err)
	assert.Equal(t, "Staff", role.Description)

	roles, err := s.ListRoles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []restauth.Role{{Name: "admin", Description: "Admin"}, {Name: "staff", Description: "Staff"}}, roles)

	require.NoError(t, s.DeleteRole(ctx, "staff"))
	_, err = s.GetRole(ctx, "staff")
	assert.True(t, errors.Is(err, restauth.ErrNotFound), "got %v", err)
}

func testLinkRolesReplaces(t *testing.T, s restauth.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateIdentity(ctx, sampleIdentity("id-1", "alice@example.org")))
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, s.CreateRole(ctx, restauth.Role{Name: name}))
	}

	require.NoError(t, s.LinkRoles(ctx, "id-1", []string{"a", "b"}))
	require.NoError(t, s.LinkRoles(ctx, "id-1", []string{"c"}))

	roles, err := s.RolesOf(ctx, "id-1")
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "c", roles[0].Name)

	got, err := s.GetIdentityByEmail(ctx, "alice@example.org")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, got.RoleNames())

	err = s.LinkRoles(ctx, "id-1", []string{"missing"})
	assert.True(t, errors.Is(err, restauth.ErrNotFound), "got %v", err)
}

func sampleToken(jti, identityID string, created time.Time) *restauth.Token {
	return &restauth.Token{
		JTI:        jti,
		Token:      "bearer-" + jti,
		Type:       restauth.TokenTypeAccess,
		Creation:   created,
		LastAccess: created,
		Expiration: created.Add(time.Hour),
		IP:         "10.0.0.1",
		Location:   "private network",
		IdentityID: identityID,
	}
}

func testTokens(t *testing.T, s restauth.Store) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateIdentity(ctx, sampleIdentity("id-1", "alice@example.org")))
	require.NoError(t, s.SaveToken(ctx, sampleToken("j1", "id-1", base)))
	require.NoError(t, s.SaveToken(ctx, sampleToken("j2", "id-1", base.Add(time.Minute))))

	got, err := s.GetTokenByJTI(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "bearer-j1", got.Token)
	assert.Equal(t, "id-1", got.IdentityID)
	assert.True(t, got.Expiration.Equal(base.Add(time.Hour)))
	assert.Equal(t, "10.0.0.1", got.IP)

	byValue, err := s.GetTokenByValue(ctx, "bearer-j2")
	require.NoError(t, err)
	assert.Equal(t, "j2", byValue.JTI)

	touched := base.Add(30 * time.Minute)
	require.NoError(t, s.TouchToken(ctx, "j1", touched, touched.Add(2*time.Hour)))
	got, err = s.GetTokenByJTI(ctx, "j1")
	require.NoError(t, err)
	assert.True(t, got.LastAccess.Equal(touched))
	assert.True(t, got.Expiration.Equal(touched.Add(2*time.Hour)))

	list, err := s.TokensOf(ctx, "id-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "j1", list[0].JTI)
	assert.Equal(t, "j2", list[1].JTI)

	require.NoError(t, s.DeleteToken(ctx, "j1"))
	_, err = s.GetTokenByJTI(ctx, "j1")
	assert.True(t, errors.Is(err, restauth.ErrNotFound), "got %v", err)
	_, err = s.GetTokenByValue(ctx, "bearer-j1")
	assert.True(t, errors.Is(err, restauth.ErrNotFound), "got %v", err)
	assert.True(t, errors.Is(s.DeleteToken(ctx, "j1"), restauth.ErrNotFound))

	list, err = s.TokensOf(ctx, "id-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testTouchDeletedToken(t *testing.T, s restauth.Store) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := s.TouchToken(ctx, "gone", now, now.Add(time.Hour))
	assert.True(t, errors.Is(err, restauth.ErrNotFound), "got %v", err)
}
