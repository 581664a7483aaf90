package client

import (
	"context"
	"sync"
	"time"

	"github.com/dukerupert/pantry/internal/logging"
	"github.com/dukerupert/pantry/internal/model"
)

var alice = &model.User{ID: "u1", Username: "alice", Email: "alice@example.com"}

// fakeBackend is an in-memory Backend. When gate is non-nil, calls block
// until it is closed.
type fakeBackend struct {
	mu           sync.Mutex
	user         *model.User
	loginErr     error
	currentErr   error
	logoutErr    error
	loginCalls   int
	currentCalls int
	logoutCalls  int
	gate         chan struct{}
	onLogout     func()
}

func (f *fakeBackend) wait(ctx context.Context) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate == nil {
		return
	}
	select {
	case <-gate:
	case <-ctx.Done():
	}
}

func (f *fakeBackend) Login(ctx context.Context, id, password string) (*model.User, error) {
	f.mu.Lock()
	f.loginCalls++
	f.mu.Unlock()
	f.wait(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	f.user = alice
	return alice, nil
}

func (f *fakeBackend) CurrentUser(ctx context.Context) (*model.User, error) {
	f.mu.Lock()
	f.currentCalls++
	f.mu.Unlock()
	f.wait(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.currentErr != nil {
		return nil, f.currentErr
	}
	if f.user == nil {
		return nil, ErrAuthentication
	}
	return f.user, nil
}

func (f *fakeBackend) Logout(ctx context.Context) error {
	f.mu.Lock()
	f.logoutCalls++
	hook := f.onLogout
	f.user = nil
	err := f.logoutErr
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (f *fakeBackend) set(fn func(f *fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeBackend) calls() (login, current, logout int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls, f.currentCalls, f.logoutCalls
}

func newTestStore(b *fakeBackend) *Store {
	return NewStore(b, logging.Discard())
}

// recorder collects every state a store publishes.
type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) record(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func (r *recorder) phases() []Phase {
	var out []Phase
	for _, s := range r.all() {
		out = append(out, s.Phase)
	}
	return out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
