package middleware

import (
	"net/http"

	"github.com/MrEthical07/restauth"
)

// RequireRoles rejects requests whose identity does not satisfy roles under
// policy. It must run after Guard. With no roles it lets everything through,
// and OPTIONS requests are never checked.
func RequireRoles(engine Engine, policy restauth.RolePolicy, roles ...string) func(http.Handler) http.Handler {
	required := append([]string(nil), roles...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			identity, _ := IdentityFromContext(r.Context())
			var err error
			if engine != nil {
				err = engine.Authorize(identity, required, policy)
			} else if !restauth.VerifyRoles(identity, required, policy) {
				err = restauth.ErrorForInsufficientPrivileges()
			}
			if err != nil {
				WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
