// Package httpapi exposes an Engine over HTTP for the reference server.
package httpapi

import (
	"io"
	"net/http"

	"github.com/MrEthical07/restauth"
	"github.com/MrEthical07/restauth/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Options configures NewRouter.
type Options struct {
	Logger logrus.FieldLogger
	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// Handler serves the authentication routes of one Engine.
type Handler struct {
	engine *restauth.Engine
	logger logrus.FieldLogger
}

// NewRouter registers every route on a chi router.
func NewRouter(engine *restauth.Engine, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	h := &Handler{engine: engine, logger: logger}
	cfg := engine.Config()

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(logger))
	r.Use(middleware.ClientIP(opts.TrustProxy))

	r.Get("/healthz", h.healthz)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Post("/login", h.login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Guard(engine, middleware.Options{
			AllowAccessTokenParameter: cfg.Security.AllowAccessTokenParameter,
			Logger:                    logger,
		}))

		r.Post("/logout", h.logout)
		r.Get("/profile", h.profile)
		r.Post("/profile/password", h.changePassword)
		r.Get("/tokens", h.listTokens)
		r.Delete("/tokens/{jti}", h.revokeToken)
		r.Get("/totp", h.totpEnrollment)
		r.Get("/totp/qr", h.totpQR)

		r.With(middleware.RequireRoles(engine, restauth.RolesAll, cfg.Roles.AdminRole)).
			Get("/admin", h.admin)
	})

	return r
}
