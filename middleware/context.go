package middleware

import (
	"context"

	"github.com/MrEthical07/restauth"
)

type identityContextKey struct{}

type authenticated struct {
	identity *restauth.Identity
	bearer   string
}

func withIdentity(ctx context.Context, identity *restauth.Identity, bearer string) context.Context {
	return context.WithValue(ctx, identityContextKey{}, authenticated{identity: identity, bearer: bearer})
}

// IdentityFromContext returns the identity validated by Guard.
func IdentityFromContext(ctx context.Context) (*restauth.Identity, bool) {
	a, ok := ctx.Value(identityContextKey{}).(authenticated)
	if !ok || a.identity == nil {
		return nil, false
	}
	return a.identity, true
}

// BearerFromContext returns the bearer string validated by Guard.
func BearerFromContext(ctx context.Context) (string, bool) {
	a, ok := ctx.Value(identityContextKey{}).(authenticated)
	if !ok || a.bearer == "" {
		return "", false
	}
	return a.bearer, true
}
