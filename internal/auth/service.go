package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/dukerupert/pantry/internal/model"
)

// UserStore is the credential validator. Both methods return (nil, nil) when
// nothing matches.
type UserStore interface {
	Verify(ctx context.Context, identifier, secret string) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// SessionStore issues and checks opaque session tokens. Validate returns
// (nil, nil) for unknown or expired tokens.
type SessionStore interface {
	Create(ctx context.Context, userID string) (*model.Session, error)
	Validate(ctx context.Context, token string) (*model.Session, error)
	Invalidate(ctx context.Context, token string) error
}

// SessionReplacer is implemented by session stores that can drop a user's
// existing sessions and issue a new one in a single transaction.
type SessionReplacer interface {
	Replace(ctx context.Context, userID string) (*model.Session, error)
}

// SessionListener is told when sessions of a user stop being valid.
type SessionListener interface {
	SessionEnded(userID string)
}

// Credentials is the login payload.
type Credentials struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Password        string `json:"password"`
}

// Validate checks both fields are present. The identifier is trimmed first.
func (c *Credentials) Validate() error {
	c.UsernameOrEmail = strings.TrimSpace(c.UsernameOrEmail)
	return newValidationError(validation.ValidateStruct(c,
		validation.Field(&c.UsernameOrEmail, validation.Required),
		validation.Field(&c.Password, validation.Required),
	))
}

// Service runs the login flow and resolves request identities.
type Service struct {
	users         UserStore
	sessions      SessionStore
	listener      SessionListener
	singleSession bool
	logger        *slog.Logger
}

type Option func(*Service)

// WithSingleSession makes a successful login end the user's other sessions.
// The session store must implement SessionReplacer.
func WithSingleSession(on bool) Option {
	return func(s *Service) { s.singleSession = on }
}

func WithSessionListener(l SessionListener) Option {
	return func(s *Service) { s.listener = l }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(users UserStore, sessions SessionStore, opts ...Option) *Service {
	s := &Service{
		users:    users,
		sessions: sessions,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login verifies creds and issues a session. A session exists only if the
// returned error is nil.
func (s *Service) Login(ctx context.Context, creds Credentials) (*model.User, *model.Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, nil, err
	}

	user, err := s.users.Verify(ctx, creds.UsernameOrEmail, creds.Password)
	if err != nil {
		return nil, nil, internal("verify credentials", err)
	}
	if user == nil {
		s.logger.DebugContext(ctx, "credentials rejected")
		return nil, nil, ErrAuthentication
	}

	sess, err := s.issue(ctx, user.ID)
	if err != nil {
		return nil, nil, internal("create session", err)
	}
	return user, sess, nil
}

func (s *Service) issue(ctx context.Context, userID string) (*model.Session, error) {
	if !s.singleSession {
		return s.sessions.Create(ctx, userID)
	}
	r, ok := s.sessions.(SessionReplacer)
	if !ok {
		return nil, errors.New("single-session policy needs a SessionReplacer store")
	}
	sess, err := r.Replace(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.notify(userID)
	return sess, nil
}

// Resolve maps a session token to its user. Every "not authenticated" outcome
// is ErrAuthentication; store failures are *InternalError.
func (s *Service) Resolve(ctx context.Context, token string) (*model.User, *model.Session, error) {
	if token == "" {
		return nil, nil, ErrAuthentication
	}

	sess, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return nil, nil, internal("validate session", err)
	}
	if sess == nil {
		return nil, nil, ErrAuthentication
	}

	user, err := s.users.FindByID(ctx, sess.UserID)
	if err != nil {
		return nil, nil, internal("load user", err)
	}
	if user == nil {
		return nil, nil, ErrAuthentication
	}
	return user, sess, nil
}

// Logout invalidates token. Unknown or already invalid tokens are not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	sess, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return internal("validate session", err)
	}
	if err := s.sessions.Invalidate(ctx, token); err != nil {
		return internal("invalidate session", err)
	}
	if sess == nil {
		s.logger.DebugContext(ctx, "logout for unknown or expired session")
		return nil
	}
	s.notify(sess.UserID)
	return nil
}

func (s *Service) notify(userID string) {
	if s.listener != nil {
		s.listener.SessionEnded(userID)
	}
}
