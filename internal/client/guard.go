package client

import (
	"net/url"
	"strings"
	"sync"

	"github.com/dukerupert/pantry/internal/model"
)

// Navigator abstracts where the client currently is and how it moves.
type Navigator interface {
	CurrentPath() string
	Navigate(path string)
}

// History is an in-memory Navigator.
type History struct {
	mu      sync.Mutex
	entries []string
}

var _ Navigator = (*History)(nil)

func NewHistory(start string) *History {
	return &History{entries: []string{start}}
}

func (h *History) CurrentPath() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[len(h.entries)-1]
}

func (h *History) Navigate(path string) {
	h.mu.Lock()
	h.entries = append(h.entries, path)
	h.mu.Unlock()
}

// Back pops the current entry. The first entry is never removed.
func (h *History) Back() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) > 1 {
		h.entries = h.entries[:len(h.entries)-1]
	}
	return h.entries[len(h.entries)-1]
}

func (h *History) Entries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.entries...)
}

// Guard is a subscription that enforces a navigation policy for the page
// that was current when it was created. It stops acting once the navigator
// leaves that page.
type Guard struct {
	store *Store
	nav   Navigator
	page  string
	act   func(State)

	once  sync.Once
	unsub func()
}

func newGuard(store *Store, nav Navigator, act func(State)) *Guard {
	g := &Guard{store: store, nav: nav, page: nav.CurrentPath(), act: act}
	g.unsub = store.Subscribe(g.evaluate)
	g.evaluate(store.State())
	return g
}

func (g *Guard) evaluate(s State) {
	if !s.Settled() || g.nav.CurrentPath() != g.page {
		return
	}
	g.act(s)
}

// Stop unsubscribes. It is safe to call more than once.
func (g *Guard) Stop() {
	g.once.Do(g.unsub)
}

// AuthGuard sends anonymous callers to redirectTo. Nothing happens until the
// state has settled.
func AuthGuard(store *Store, nav Navigator, redirectTo string) *Guard {
	return newGuard(store, nav, func(s State) {
		if s.Phase == PhaseAnonymous {
			nav.Navigate(redirectTo)
		}
	})
}

// GuestGuard sends authenticated callers away from guest-only pages such as
// the login page.
func GuestGuard(store *Store, nav Navigator, redirectTo string) *Guard {
	return newGuard(store, nav, func(s State) {
		if s.Phase == PhaseAuthenticated {
			nav.Navigate(redirectTo)
		}
	})
}

type ProtectedRouteOptions struct {
	RequireAuth bool
	// RedirectTo defaults to /login.
	RedirectTo string
	// OnUnauthorized replaces the default redirect.
	OnUnauthorized func(State)
}

type Protected struct {
	*Guard
	opts ProtectedRouteOptions
}

// ProtectedRoute guards the current page. By default an unauthorized caller
// is sent to RedirectTo with the current path in the redirect parameter.
func ProtectedRoute(store *Store, nav Navigator, opts ProtectedRouteOptions) *Protected {
	if opts.RedirectTo == "" {
		opts.RedirectTo = "/login"
	}
	p := &Protected{opts: opts}
	p.Guard = newGuard(store, nav, func(s State) {
		if !opts.RequireAuth || s.IsAuthenticated {
			return
		}
		if opts.OnUnauthorized != nil {
			opts.OnUnauthorized(s)
			return
		}
		nav.Navigate(LoginRedirect(opts.RedirectTo, nav.CurrentPath()))
	})
	return p
}

// CanAccess is for callers that render a fallback instead of navigating.
func (p *Protected) CanAccess() bool {
	return !p.opts.RequireAuth || p.store.State().IsAuthenticated
}

// LoginRedirect appends from as the redirect query parameter of loginPath.
func LoginRedirect(loginPath, from string) string {
	sep := "?"
	if strings.Contains(loginPath, "?") {
		sep = "&"
	}
	return loginPath + sep + "redirect=" + url.QueryEscape(from)
}

// RedirectTarget returns the redirect parameter from a raw query when it is
// a safe same-site path, and fallback otherwise.
func RedirectTarget(rawQuery, fallback string) string {
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return fallback
	}
	target := q.Get("redirect")
	if !isSafeRedirect(target) {
		return fallback
	}
	return target
}

func isSafeRedirect(target string) bool {
	return strings.HasPrefix(target, "/") &&
		!strings.HasPrefix(target, "//") &&
		!strings.Contains(target, "://") &&
		!strings.Contains(target, `\`)
}

type AuthStatus int

const (
	StatusPending AuthStatus = iota
	StatusAuthenticated
	StatusUnauthenticated
)

func (s AuthStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// AuthResult is RequireAuth's answer. User is set only when Status is
// StatusAuthenticated.
type AuthResult struct {
	Status AuthStatus
	User   *model.User
}

func RequireAuth(store *Store) AuthResult {
	s := store.State()
	switch {
	case !s.Settled():
		return AuthResult{Status: StatusPending}
	case s.IsAuthenticated:
		return AuthResult{Status: StatusAuthenticated, User: s.User}
	default:
		return AuthResult{Status: StatusUnauthenticated}
	}
}

// MustUser is for code that only runs behind a guard. It returns nil while
// the state is still pending and panics if the settled caller is anonymous.
func MustUser(store *Store) *model.User {
	r := RequireAuth(store)
	if r.Status == StatusUnauthenticated {
		panic("client: MustUser called without an authenticated session")
	}
	return r.User
}
