package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/pantry/internal/auth"
	"github.com/dukerupert/pantry/internal/metrics"
	"github.com/dukerupert/pantry/internal/middleware"
	"github.com/dukerupert/pantry/internal/model"
)

type AuthHandler struct {
	service *auth.Service
	cookie  middleware.SessionCookie
	metrics *metrics.Auth
	logger  *slog.Logger
}

func NewAuthHandler(svc *auth.Service, cookie middleware.SessionCookie, m *metrics.Auth, logger *slog.Logger) *AuthHandler {
	if m == nil {
		m = metrics.Discard()
	}
	return &AuthHandler{
		service: svc,
		cookie:  cookie,
		metrics: m,
		logger:  logger,
	}
}

type loginResponse struct {
	Message string      `json:"message"`
	User    *model.User `json:"user"`
}

type validationResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var creds auth.Credentials
	if err := decodeJSON(w, r, &creds); err != nil {
		h.metrics.Logins.WithLabelValues(metrics.ResultInvalid).Inc()
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	user, sess, err := h.service.Login(r.Context(), creds)
	var verr *auth.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &verr):
		h.metrics.Logins.WithLabelValues(metrics.ResultInvalid).Inc()
		writeJSON(w, http.StatusBadRequest, validationResponse{
			Error:  "Username/email and password are required",
			Fields: verr.Fields,
		})
		return
	case errors.Is(err, auth.ErrAuthentication):
		h.metrics.Logins.WithLabelValues(metrics.ResultUnauthorized).Inc()
		h.logger.Info("login rejected", "remote", middleware.RemoteIP(r))
		writeError(w, http.StatusUnauthorized, auth.MsgInvalidCredentials)
		return
	default:
		h.metrics.Logins.WithLabelValues(metrics.ResultError).Inc()
		h.logger.Error("login", "error", err)
		writeError(w, http.StatusInternalServerError, auth.MsgInternal)
		return
	}

	h.metrics.Logins.WithLabelValues(metrics.ResultOK).Inc()
	h.logger.Info("login", "user_id", user.ID, "remote", middleware.RemoteIP(r))
	h.cookie.Set(w, sess.Token, sess.ExpiresAt)
	writeJSON(w, http.StatusOK, loginResponse{Message: "Login successful", User: user})
}

// Logout always succeeds from the caller's point of view. Store failures are
// logged and the cookie is cleared regardless.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.metrics.Logouts.Inc()
	if err := h.service.Logout(r.Context(), h.cookie.Token(r)); err != nil {
		h.logger.Error("logout", "error", err)
	}
	h.cookie.Clear(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// CurrentUser is mounted behind WithAuth, so user is never nil.
func (h *AuthHandler) CurrentUser(user *model.User, w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]*model.User{"user": user})
}

// CurrentUserPublic is mounted behind WithOptionalAuth and reports a null
// user for anonymous callers.
func (h *AuthHandler) CurrentUserPublic(user *model.User, w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]*model.User{"user": user})
}

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
