package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/MrEthical07/restauth"
	"github.com/MrEthical07/restauth/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 16

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest("Malformed request body")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return badRequest("Request body must contain a single JSON value")
	}
	return nil
}

func badRequest(msg string) error {
	return &restauth.Error{Status: http.StatusBadRequest, Message: msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type loginResponse struct {
	Token      string `json:"token"`
	Expiration int64  `json:"expiration"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req restauth.LoginRequest
	if err := decodeBody(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}

	result, err := h.engine.Login(r.Context(), req)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: result.Token, Expiration: result.Expiration.Unix()})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	bearer, _ := middleware.BearerFromContext(r.Context())
	if err := h.engine.Logout(r.Context(), bearer); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type profileResponse struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	Name      string   `json:"name"`
	Surname   string   `json:"surname"`
	Roles     []string `json:"roles"`
	LastLogin *int64   `json:"last_login,omitempty"`
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())
	resp := profileResponse{
		ID:      identity.ID,
		Email:   identity.Email,
		Name:    identity.Name,
		Surname: identity.Surname,
		Roles:   identity.RoleNames(),
	}
	if identity.LastLogin != nil {
		v := identity.LastLogin.Unix()
		resp.LastLogin = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

type changePasswordRequest struct {
	CurrentPassword *string `json:"current_password"`
	NewPassword     string  `json:"new_password"`
	PasswordConfirm string  `json:"password_confirm"`
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeBody(r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if req.CurrentPassword == nil {
		middleware.WriteError(w, badRequest("The current password is required"))
		return
	}

	identity, _ := middleware.IdentityFromContext(r.Context())
	if err := h.engine.ChangePassword(r.Context(), identity, req.CurrentPassword, req.NewPassword, req.PasswordConfirm); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listTokens(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())
	views, err := h.engine.Tokens(r.Context(), restauth.TokenFilter{IdentityID: identity.ID})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) revokeToken(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())
	jti := chi.URLParam(r, "jti")

	linked, err := h.engine.VerifyTokenLink(r.Context(), jti, identity)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if !linked {
		middleware.WriteError(w, &restauth.Error{Status: http.StatusNotFound, Message: "Token not found"})
		return
	}

	views, err := h.engine.Tokens(r.Context(), restauth.TokenFilter{IdentityID: identity.ID, JTI: jti})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	for _, view := range views {
		if _, err := h.engine.InvalidateToken(r.Context(), view.Token); err != nil {
			middleware.WriteError(w, err)
			return
		}
	}
	h.logger.WithFields(logrus.Fields{"identity": identity.ID, "jti": jti}).Info("Token revoked by its owner")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) totpEnrollment(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())
	setup, err := h.engine.TOTPEnrollment(identity)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, setup)
}

func (h *Handler) totpQR(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())
	png, err := h.engine.TOTPProvisioning(identity)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handler) admin(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"identity": identity.Email,
		"time":     time.Now().UTC().Unix(),
	})
}
