package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/pantry/internal/auth"
	"github.com/dukerupert/pantry/internal/config"
	"github.com/dukerupert/pantry/internal/handler"
	"github.com/dukerupert/pantry/internal/metrics"
	"github.com/dukerupert/pantry/internal/middleware"
	"github.com/dukerupert/pantry/internal/store"
	ws "github.com/dukerupert/pantry/internal/websocket"
)

type Server struct {
	cfg          *config.Config
	hub          *ws.Hub
	authH        *handler.AuthHandler
	recipeH      *handler.RecipeHandler
	authn        *middleware.Authenticator
	userStore    *store.UserStore
	sessionStore *store.SessionStore
	rateLimiter  *middleware.RateLimiter
	clientIP     *middleware.ClientIP
	registry     *prometheus.Registry
	metrics      *metrics.Auth
	logger       *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, logger *slog.Logger) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	hub := ws.NewHub(m, logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db, cfg.SessionTTL)
	recipeStore := store.NewRecipeStore(db)

	authLogger := logger.With("component", "auth")
	svc := auth.NewService(userStore, sessionStore,
		auth.WithSingleSession(cfg.SingleSession),
		auth.WithSessionListener(hub),
		auth.WithLogger(authLogger),
	)
	cookie := middleware.SessionCookie{Name: cfg.CookieName, Secure: cfg.CookieSecure}

	return &Server{
		cfg:          cfg,
		hub:          hub,
		authH:        handler.NewAuthHandler(svc, cookie, m, authLogger),
		recipeH:      handler.NewRecipeHandler(recipeStore, logger.With("component", "recipe")),
		authn:        middleware.NewAuthenticator(svc, cookie, m, authLogger),
		userStore:    userStore,
		sessionStore: sessionStore,
		rateLimiter:  middleware.NewRateLimiter(),
		clientIP:     middleware.NewClientIP(cfg.TrustedProxies),
		registry:     registry,
		metrics:      m,
		logger:       logger,
	}
}

// UserStore returns the user store for account administration.
func (s *Server) UserStore() *store.UserStore {
	return s.userStore
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Hub returns the session event hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// Housekeep deletes expired sessions and stale rate limiter windows.
func (s *Server) Housekeep(ctx context.Context) {
	if n, err := s.sessionStore.DeleteExpired(ctx); err != nil {
		s.logger.Error("cleanup expired sessions", "error", err)
	} else if n > 0 {
		s.logger.Info("cleaned up expired sessions", "count", n)
	}
	if n := s.rateLimiter.Cleanup(); n > 0 {
		s.logger.Debug("cleaned up rate limiter windows", "count", n)
	}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /login", s.rateLimitedHandler(s.authH.Login))
	mux.HandleFunc("POST /logout", s.authH.Logout)
	mux.Handle("GET /current-user", s.authn.WithAuth(s.authH.CurrentUser))
	mux.Handle("GET /current-user/public", s.authn.WithOptionalAuth(s.authH.CurrentUserPublic))
	mux.Handle("GET /api/recipes", s.authn.WithOptionalAuth(s.recipeH.List))
	mux.Handle("GET /ws/session", s.authn.WithAuth(ws.HandleSession(s.hub, s.logger.With("component", "websocket"))))

	deprecated := middleware.Deprecated(middleware.DeprecationInfo{
		NewBackend:    s.cfg.NewBackendURL,
		MigrationDate: s.cfg.MigrationDate,
		Documentation: s.cfg.DeprecationDocs,
	}, s.metrics)
	mux.Handle("POST /api/auth/login", deprecated)
	mux.Handle("GET /api/auth/user", deprecated)
	mux.Handle("POST /api/auth/logout", deprecated)

	mux.HandleFunc("GET /health", handler.Health)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return s.clientIP.Middleware(middleware.RequestLogger(s.logger.With("component", "http"))(mux))
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.RemoteIP, s.cfg.LoginRateLimit, s.cfg.LoginRateWindow)
	return rl(h).ServeHTTP
}
