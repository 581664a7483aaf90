package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukerupert/pantry/internal/auth"
	"github.com/dukerupert/pantry/internal/metrics"
	"github.com/dukerupert/pantry/internal/model"
)

const tracerName = "github.com/dukerupert/pantry/internal/middleware"

// Resolution modes, used as the auth.mode span attribute and metric label.
const (
	ModeRequired = "required"
	ModeOptional = "optional"
)

// AuthedHandlerFunc receives the resolved user as its first argument. The
// user is nil only under WithOptionalAuth for anonymous callers.
type AuthedHandlerFunc func(user *model.User, w http.ResponseWriter, r *http.Request)

// Resolver maps a session token to its user. auth.Service implements it.
type Resolver interface {
	Resolve(ctx context.Context, token string) (*model.User, *model.Session, error)
}

// Authenticator wraps handlers with identity resolution from the session
// cookie. Resolution always finishes before the wrapped handler starts.
type Authenticator struct {
	resolver Resolver
	cookie   SessionCookie
	metrics  *metrics.Auth
	tracer   trace.Tracer
	logger   *slog.Logger
}

func NewAuthenticator(resolver Resolver, cookie SessionCookie, m *metrics.Auth, logger *slog.Logger) *Authenticator {
	if m == nil {
		m = metrics.Discard()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		resolver: resolver,
		cookie:   cookie,
		metrics:  m,
		tracer:   otel.Tracer(tracerName),
		logger:   logger,
	}
}

// WithAuth rejects unauthenticated requests with 401 and store failures with
// 500. h never runs on either path.
func (a *Authenticator) WithAuth(h AuthedHandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, token, err := a.resolve(r, ModeRequired)
		switch {
		case err == nil:
		case errors.Is(err, auth.ErrAuthentication):
			if token != "" {
				a.cookie.Clear(w)
			}
			writeError(w, http.StatusUnauthorized, auth.MsgAuthRequired)
			return
		default:
			a.logger.ErrorContext(r.Context(), "resolve session", "error", err, "path", r.URL.Path)
			writeError(w, http.StatusInternalServerError, auth.MsgInternal)
			return
		}
		h(user, w, r.WithContext(auth.WithUser(r.Context(), user)))
	})
}

// WithOptionalAuth runs h exactly once per request, with a nil user for
// anonymous callers. Store failures degrade to anonymous.
func (a *Authenticator) WithOptionalAuth(h AuthedHandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, err := a.resolve(r, ModeOptional)
		if err != nil {
			if !errors.Is(err, auth.ErrAuthentication) {
				a.logger.WarnContext(r.Context(), "optional auth degraded to anonymous", "error", err, "path", r.URL.Path)
			}
			user = nil
		}
		if user != nil {
			r = r.WithContext(auth.WithUser(r.Context(), user))
		}
		h(user, w, r)
	})
}

// RequireAuth adapts WithAuth to plain http.Handler chains.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return a.WithAuth(func(_ *model.User, w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) resolve(r *http.Request, mode string) (*model.User, string, error) {
	ctx, span := a.tracer.Start(r.Context(), "auth.resolve",
		trace.WithAttributes(attribute.String("auth.mode", mode)))
	defer span.End()

	token := a.cookie.Token(r)
	user, _, err := a.resolver.Resolve(ctx, token)

	var result string
	switch {
	case err == nil:
		result = metrics.ResultAuthenticated
	case errors.Is(err, auth.ErrAuthentication) && mode == ModeOptional:
		result = metrics.ResultAnonymous
	case errors.Is(err, auth.ErrAuthentication):
		result = metrics.ResultUnauthorized
	default:
		result = metrics.ResultError
		span.RecordError(err)
		span.SetStatus(codes.Error, "session resolution failed")
	}
	span.SetAttributes(attribute.String("auth.result", result))
	a.metrics.Resolutions.WithLabelValues(mode, result).Inc()

	return user, token, err
}
