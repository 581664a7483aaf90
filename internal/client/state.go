package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/dukerupert/pantry/internal/model"
)

type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseLoading
	PhaseAuthenticated
	PhaseAnonymous
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseLoading:
		return "loading"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// State is a snapshot of the client's view of its session.
// IsAuthenticated is always User != nil. SessionError annotates the last
// settled status and never replaces it.
type State struct {
	User            *model.User
	IsAuthenticated bool
	IsLoading       bool
	SessionError    string
	Phase           Phase
}

// Settled reports whether the initial resolve and any in-flight login have
// finished.
func (s State) Settled() bool {
	return s.Phase == PhaseAuthenticated || s.Phase == PhaseAnonymous
}

func authenticated(u *model.User) State {
	return State{User: u, IsAuthenticated: true, Phase: PhaseAuthenticated}
}

func anonymous(sessionError string) State {
	return State{SessionError: sessionError, Phase: PhaseAnonymous}
}

// Store owns the client auth state. Transitions (Init, Login, Logout,
// Refresh) run one at a time; subscribers see every state in order.
//
// Subscribers run on the goroutine performing the transition and must not
// start another transition synchronously.
type Store struct {
	backend Backend
	logger  *slog.Logger

	transition sync.Mutex

	mu     sync.RWMutex
	state  State
	subs   map[int]func(State)
	nextID int
	closed bool
}

func NewStore(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend: backend,
		logger:  logger,
		subs:    make(map[int]func(State)),
	}
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn for every subsequent state. The returned function
// unsubscribes and may be called more than once.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Teardown drops every subscriber. Later transitions fail with
// ErrStoreClosed.
func (s *Store) Teardown() {
	s.mu.Lock()
	s.closed = true
	s.subs = make(map[int]func(State))
	s.mu.Unlock()
}

func (s *Store) set(next State) {
	s.mu.Lock()
	s.state = next
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
}

func (s *Store) begin() error {
	s.transition.Lock()
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		s.transition.Unlock()
		return ErrStoreClosed
	}
	return nil
}

// Init resolves the current session once. Later calls are no-ops.
func (s *Store) Init(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.transition.Unlock()

	if s.State().Phase != PhaseUninitialized {
		return nil
	}
	s.set(State{IsLoading: true, Phase: PhaseLoading})

	user, err := s.backend.CurrentUser(ctx)
	switch {
	case err == nil:
		s.set(authenticated(user))
		return nil
	case errors.Is(err, ErrAuthentication):
		s.set(anonymous(""))
		return nil
	default:
		s.logger.Warn("initial session check failed", "error", err)
		s.set(anonymous(userMessage(err)))
		return err
	}
}

// Login authenticates. On failure the previous status is restored with
// SessionError set, and the error is returned.
func (s *Store) Login(ctx context.Context, usernameOrEmail, password string) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.transition.Unlock()

	prev := s.State()
	loading := prev
	loading.IsLoading = true
	loading.Phase = PhaseLoading
	s.set(loading)

	user, err := s.backend.Login(ctx, usernameOrEmail, password)
	if err == nil && user == nil {
		err = ErrAuthentication
	}
	if err != nil {
		restored := prev
		if restored.Phase == PhaseUninitialized {
			restored = anonymous("")
		}
		restored.IsLoading = false
		restored.SessionError = userMessage(err)
		s.set(restored)
		return err
	}
	s.set(authenticated(user))
	return nil
}

// Logout switches to Anonymous immediately and then asks the server to drop
// the session. Server failures are logged only. Logging out while already
// Anonymous does nothing.
func (s *Store) Logout(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.transition.Unlock()

	if s.State().Phase == PhaseAnonymous {
		return nil
	}
	s.set(anonymous(""))

	if err := s.backend.Logout(ctx); err != nil {
		s.logger.Warn("server logout failed", "error", err)
	}
	return nil
}

// Refresh re-checks the session with the server. Only an authentication
// failure demotes the caller; transport and server errors keep the previous
// status and set SessionError.
func (s *Store) Refresh(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.transition.Unlock()

	prev := s.State()
	user, err := s.backend.CurrentUser(ctx)
	switch {
	case err == nil:
		s.set(authenticated(user))
		return nil
	case errors.Is(err, ErrAuthentication):
		msg := ""
		if prev.IsAuthenticated {
			msg = MsgSessionExpired
		}
		s.set(anonymous(msg))
		return nil
	default:
		next := prev
		if next.Phase == PhaseUninitialized {
			next = anonymous("")
		}
		next.SessionError = userMessage(err)
		s.set(next)
		return err
	}
}

// Probe asks the server whether the session is still valid without changing
// state.
func (s *Store) Probe(ctx context.Context) (*model.User, error) {
	return s.backend.CurrentUser(ctx)
}
