package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrEthical07/restauth"
	"github.com/MrEthical07/restauth/password"
	"github.com/MrEthical07/restauth/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireRolesAll(t *testing.T) {
	engine := newFakeEngine()
	h := Guard(engine, Options{})(RequireRoles(engine, restauth.RolesAll, "user")(okHandler(t)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := serve(h, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Header().Get("WWW-Authenticate"))
	assert.Equal(t, []string{restauth.MsgInsufficientPrivileges}, decodeErrors(t, rec))
}

func TestRequireRolesAny(t *testing.T) {
	engine := newFakeEngine()
	h := Guard(engine, Options{})(RequireRoles(engine, restauth.RolesAny, "user", "admin")(okHandler(t)))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	assert.Equal(t, http.StatusNoContent, serve(h, req).Code)
}

func TestRequireRolesWithoutRolesOrEngine(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusNoContent, serve(RequireRoles(nil, restauth.RolesAll)(okHandler(t)), req).Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec := serve(RequireRoles(nil, restauth.RolesAll, "admin")(okHandler(t)), req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "no identity in context")

	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	assert.Equal(t, http.StatusNoContent, serve(RequireRoles(nil, restauth.RolesAll, "admin")(okHandler(t)), req).Code)
}

func TestClientIP(t *testing.T) {
	var seen string
	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = restauth.ClientIPFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.1, 10.0.0.1")

	ClientIP(false)(capture).ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "198.51.100.7", seen)

	ClientIP(true)(capture).ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "203.0.113.1", seen)
}

func TestGuardWithEngine(t *testing.T) {
	ctx := context.Background()
	cfg := restauth.DefaultConfig()
	cfg.Token.Secret = "middleware-secret"

	cfg.Location.Enabled = false
	hasher, err := password.NewBcrypt(4)
	require.NoError(t, err)

	engine, err := restauth.New().
		WithConfig(cfg).
		WithStore(memory.New()).
		WithHasher(hasher).
		WithClock(func() time.Time { return time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC) }).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	require.NoError(t, engine.Init(ctx))

	_, err = engine.CreateIdentity(ctx, restauth.NewIdentity{Email: "bob@example.org", Password: "Aa1+bbbb"}, nil)
	require.NoError(t, err)
	pw := "Aa1+bbbb"
	result, err := engine.Login(ctx, restauth.LoginRequest{Username: "bob@example.org", Password: &pw})
	require.NoError(t, err)

	h := Guard(engine, Options{})(RequireRoles(engine, restauth.RolesAll, "normal_user")(okHandler(t)))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+result.Token)
	assert.Equal(t, http.StatusNoContent, serve(h, req).Code)

	h = Guard(engine, Options{})(RequireRoles(engine, restauth.RolesAll, "admin_root")(okHandler(t)))
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+result.Token)
	assert.Equal(t, http.StatusUnauthorized, serve(h, req).Code)
}
