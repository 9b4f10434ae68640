package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MrEthical07/restauth"
	"github.com/sirupsen/logrus"
)

const (
	// Scheme is the only accepted Authorization scheme.
	Scheme = "Bearer"
	// DefaultRealm is announced in WWW-Authenticate challenges.
	DefaultRealm = "Authentication Required"
	// EmptyToken stands for a missing bearer string.
	EmptyToken = "EMPTY"

	accessTokenParam = "access_token"
)

// Engine is the part of *restauth.Engine the middleware needs.
type Engine interface {
	Validate(ctx context.Context, bearer string) (*restauth.Identity, error)
	Authorize(identity *restauth.Identity, required []string, policy restauth.RolePolicy) error
}

// Options configures Guard.
type Options struct {
	// AllowAccessTokenParameter accepts ?access_token=<token> as an implicit
	// Bearer credential when no usable Authorization header is sent.
	AllowAccessTokenParameter bool
	Realm                     string
	Logger                    logrus.FieldLogger
}

// Guard authenticates every request with engine.
//
// A request whose credential scheme is not Bearer is rejected before the
// token is looked at. OPTIONS requests that pass the scheme check skip token
// validation. The validated identity and bearer string are stored in the
// request context.
func Guard(engine Engine, opts Options) func(http.Handler) http.Handler {
	realm := opts.Realm
	if realm == "" {
		realm = DefaultRealm
	}
	challenge := fmt.Sprintf("%s realm=%q", Scheme, realm)
	logger := opts.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token := AuthorizationToken(r, opts.AllowAccessTokenParameter)

			if !strings.EqualFold(scheme, Scheme) {
				w.Header().Set("WWW-Authenticate", challenge)
				WriteError(w, restauth.ErrorForInvalidScheme())
				return
			}

			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			if engine == nil {
				WriteError(w, restauth.ErrEngineNotReady)
				return
			}

			identity, err := engine.Validate(r.Context(), token)
			if err != nil {
				if errors.Is(err, restauth.ErrInvalidToken) {
					w.Header().Set("WWW-Authenticate", challenge)
				}
				logger.WithFields(logrus.Fields{
					"path":   r.URL.Path,
					"status": restauth.StatusCode(err),
				}).Debug("Request rejected by authentication guard")
				WriteError(w, err)
				return
			}

			ctx := withIdentity(r.Context(), identity, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AuthorizationToken extracts the credential of r as (scheme, token).
//
// Basic credentials are refused outright and yield an empty scheme. A header
// without a token falls back to the access_token query parameter when
// allowQuery is set; that parameter is always treated as Bearer. When no
// token is found at all the token is EmptyToken.
func AuthorizationToken(r *http.Request, allowQuery bool) (string, string) {
	if _, _, ok := r.BasicAuth(); ok {
		return "", EmptyToken
	}

	if header := r.Header.Get("Authorization"); header != "" {
		if scheme, token, ok := splitAuthorization(header); ok {
			return scheme, token
		}
	}

	if !allowQuery {
		return "", EmptyToken
	}
	token := r.URL.Query().Get(accessTokenParam)
	if token == "" {
		return "", EmptyToken
	}
	return Scheme, token
}

func splitAuthorization(value string) (string, string, bool) {
	value = strings.TrimSpace(value)
	i := strings.IndexAny(value, " \t")
	if i < 0 {
		return "", "", false
	}
	return value[:i], strings.TrimLeft(value[i+1:], " \t"), true
}

type errorBody struct {
	Errors []string `json:"errors"`
}

// WriteError writes err as a JSON error body with the status it maps to.
func WriteError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(restauth.StatusCode(err))
	_ = json.NewEncoder(w).Encode(errorBody{Errors: []string{restauth.Message(err)}})
}
