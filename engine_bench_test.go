package restauth_test

import (
	"context"
	"io"
	"testing"

	"github.com/MrEthical07/restauth"
	"github.com/MrEthical07/restauth/password"
	"github.com/MrEthical07/restauth/store/memory"
	"github.com/MrEthical07/restauth/store/redisstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func newBenchmarkEngine(b *testing.B, useRedis bool) *restauth.Engine {
	b.Helper()

	cfg := restauth.DefaultConfig()
	cfg.Token.Secret = "bench-secret"
	cfg.Location.Enabled = false
	cfg.Security.RegisterFailedLogin = true
	cfg.Security.MaxLoginAttempts = 5

	hasher, err := password.NewBcrypt(4)
	if err != nil {
		b.Fatalf("NewBcrypt failed: %v", err)
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	builder := restauth.New().WithConfig(cfg).WithHasher(hasher).WithLogger(logger)
	if useRedis {
		mr, err := miniredis.Run()
		if err != nil {
			b.Fatalf("miniredis: %v", err)
		}
		b.Cleanup(mr.Close)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		b.Cleanup(func() { _ = rdb.Close() })
		builder.WithStore(redisstore.New(rdb, "")).WithRedis(rdb)
	} else {
		builder.WithStore(memory.New())
	}

	engine, err := builder.Build()
	if err != nil {
		b.Fatalf("Build failed: %v", err)
	}
	b.Cleanup(engine.Close)

	ctx := context.Background()
	if err := engine.Init(ctx); err != nil {
		b.Fatalf("Init failed: %v", err)
	}
	if _, err := engine.CreateIdentity(ctx, restauth.NewIdentity{Email: testEmail, Password: testPassword}, nil); err != nil {
		b.Fatalf("CreateIdentity failed: %v", err)
	}
	return engine
}

func benchLogin(b *testing.B, engine *restauth.Engine) *restauth.LoginResult {
	b.Helper()
	pw := testPassword
	result, err := engine.Login(context.Background(), restauth.LoginRequest{Username: testEmail, Password: &pw})
	if err != nil {
		b.Fatalf("login failed: %v", err)
	}
	return result
}

func benchmarkValidate(b *testing.B, useRedis bool) {
	engine := newBenchmarkEngine(b, useRedis)
	bearer := benchLogin(b, engine).Token

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Validate(context.Background(), bearer); err != nil {
			b.Fatalf("validate failed: %v", err)
		}
	}
}

func BenchmarkValidateMemory(b *testing.B) { benchmarkValidate(b, false) }

func BenchmarkValidateRedis(b *testing.B) { benchmarkValidate(b, true) }

func BenchmarkRefreshToken(b *testing.B) {
	engine := newBenchmarkEngine(b, true)
	bearer := benchLogin(b, engine).Token
	views, err := engine.Tokens(context.Background(), restauth.TokenFilter{IdentityID: mustValidate(b, engine, bearer).ID})
	if err != nil || len(views) != 1 {
		b.Fatalf("expected one token, got %d (%v)", len(views), err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ok, err := engine.RefreshToken(context.Background(), views[0].ID)
		if err != nil || !ok {
			b.Fatalf("refresh failed: %v", err)
		}
	}
}

func BenchmarkLoginLogout(b *testing.B) {
	engine := newBenchmarkEngine(b, true)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		result := benchLogin(b, engine)
		if err := engine.Logout(context.Background(), result.Token); err != nil {
			b.Fatalf("logout failed: %v", err)
		}
	}
}

func mustValidate(b *testing.B, engine *restauth.Engine, bearer string) *restauth.Identity {
	b.Helper()
	identity, err := engine.Validate(context.Background(), bearer)
	if err != nil {
		b.Fatalf("validate failed: %v", err)
	}
	return identity
}
