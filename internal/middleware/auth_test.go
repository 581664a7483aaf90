package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/dukerupert/pantry/internal/auth"
	"github.com/dukerupert/pantry/internal/metrics"
	"github.com/dukerupert/pantry/internal/model"
)

const testCookie = "pantry_session"

type fakeResolver struct {
	users map[string]*model.User
	err   error
}

func (f *fakeResolver) Resolve(_ context.Context, token string) (*model.User, *model.Session, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	u, ok := f.users[token]
	if !ok {
		return nil, nil, auth.ErrAuthentication
	}
	return u, &model.Session{Token: token, UserID: u.ID}, nil
}

func newTestAuthenticator(r Resolver) (*Authenticator, *metrics.Auth) {
	m := metrics.Discard()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAuthenticator(r, SessionCookie{Name: testCookie, Secure: true}, m, logger), m
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

var alice = &model.User{ID: "u1", Username: "alice", Email: "alice@example.com"}

func TestWithAuthRejectsWithoutCallingHandler(t *testing.T) {
	tests := []struct {
		name        string
		cookie      string
		resolverErr error
		wantStatus  int
		wantMsg     string
		wantCleared bool
	}{
		{"no cookie", "", nil, http.StatusUnauthorized, auth.MsgAuthRequired, false},
		{"unknown token", "stale", nil, http.StatusUnauthorized, auth.MsgAuthRequired, true},
		{"store failure", "tok", &auth.InternalError{Op: "validate session", Err: errors.New("disk I/O")}, http.StatusInternalServerError, auth.MsgInternal, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestAuthenticator(&fakeResolver{users: map[string]*model.User{"good": alice}, err: tt.resolverErr})

			calls := 0
			h := a.WithAuth(func(user *model.User, w http.ResponseWriter, r *http.Request) {
				calls++
				w.Write([]byte(`{"secret":"protected"}`))
			})

			req := httptest.NewRequest("GET", "/current-user", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: testCookie, Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if calls != 0 {
				t.Fatalf("handler called %d times, want 0", calls)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if strings.Contains(rec.Body.String(), "protected") {
				t.Error("response leaked protected data")
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] != tt.wantMsg {
				t.Errorf("error = %q, want %q", body["error"], tt.wantMsg)
			}

			cleared := false
			for _, c := range rec.Result().Cookies() {
				if c.Name == testCookie && c.MaxAge < 0 {
					cleared = true
				}
			}
			if cleared != tt.wantCleared {
				t.Errorf("cookie cleared = %v, want %v", cleared, tt.wantCleared)
			}
		})
	}
}

func TestWithAuthPassesUser(t *testing.T) {
	a, m := newTestAuthenticator(&fakeResolver{users: map[string]*model.User{"good": alice}})

	calls := 0
	h := a.WithAuth(func(user *model.User, w http.ResponseWriter, r *http.Request) {
		calls++
		if user == nil || user.ID != "u1" {
			t.Errorf("user = %v, want u1", user)
		}
		if got := auth.UserID(r.Context()); got != "u1" {
			t.Errorf("context user = %q, want u1", got)
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/current-user", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "good"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if calls != 1 {
		t.Errorf("handler called %d times, want 1", calls)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if got := counterValue(t, m.Resolutions.WithLabelValues(ModeRequired, metrics.ResultAuthenticated)); got != 1 {
		t.Errorf("resolutions = %v, want 1", got)
	}
}

func TestWithOptionalAuthCallsHandlerOnce(t *testing.T) {
	tests := []struct {
		name        string
		cookie      string
		resolverErr error
		wantUser    bool
	}{
		{"anonymous", "", nil, false},
		{"stale token", "stale", nil, false},
		{"authenticated", "good", nil, true},
		{"store failure", "good", &auth.InternalError{Op: "load user", Err: errors.New("boom")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := newTestAuthenticator(&fakeResolver{users: map[string]*model.User{"good": alice}, err: tt.resolverErr})

			calls := 0
			var got *model.User
			h := a.WithOptionalAuth(func(user *model.User, w http.ResponseWriter, r *http.Request) {
				calls++
				got = user
				if auth.IsAuthenticated(r.Context()) != (user != nil) {
					t.Error("context and argument disagree")
				}
			})

			req := httptest.NewRequest("GET", "/api/recipes", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: testCookie, Value: tt.cookie})
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if calls != 1 {
				t.Fatalf("handler called %d times, want 1", calls)
			}
			if (got != nil) != tt.wantUser {
				t.Errorf("user = %v, wantUser %v", got, tt.wantUser)
			}
		})
	}
}

func TestRequireAuthAdapter(t *testing.T) {
	a, _ := newTestAuthenticator(&fakeResolver{users: map[string]*model.User{"good": alice}})

	calls := 0
	h := a.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/ws/session", nil))
	if calls != 0 {
		t.Error("handler should not run without a session")
	}

	req := httptest.NewRequest("GET", "/ws/session", nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "good"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestSessionCookieSetAndClear(t *testing.T) {
	c := SessionCookie{Name: testCookie, Secure: true}

	rec := httptest.NewRecorder()
	c.Set(rec, "abc", alice.CreatedAt)
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %d, want 1", len(cookies))
	}
	got := cookies[0]
	if got.Value != "abc" || !got.HttpOnly || !got.Secure || got.SameSite != http.SameSiteLaxMode || got.Path != "/" {
		t.Errorf("unexpected cookie %+v", got)
	}

	rec = httptest.NewRecorder()
	c.Clear(rec)
	if cleared := rec.Result().Cookies()[0]; cleared.MaxAge >= 0 || cleared.Value != "" {
		t.Errorf("expected cleared cookie, got %+v", cleared)
	}
}
