package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/pantry/internal/config"
	"github.com/dukerupert/pantry/internal/database"
	"github.com/dukerupert/pantry/internal/logging"
	"github.com/dukerupert/pantry/internal/store"
)

func setupServer(t *testing.T, mutate func(*config.Config)) (*Server, *httptest.Server) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.CookieSecure = false
	if mutate != nil {
		mutate(cfg)
	}

	srv := New(db, cfg, logging.Discard())
	if _, err := srv.UserStore().Create(context.Background(), store.NewUser{
		ID: "u1", Username: "alice", Email: "alice@example.com", Password: "correct",
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &http.Client{Jar: jar, Timeout: 5 * time.Second}
}

func post(t *testing.T, c *http.Client, url, body string) *http.Response {
	t.Helper()
	resp, err := c.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, c *http.Client, url string) *http.Response {
	t.Helper()
	resp, err := c.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

const aliceLogin = `{"usernameOrEmail":"alice","password":"correct"}`

func TestLoginCurrentUserLogout(t *testing.T) {
	_, ts := setupServer(t, nil)
	c := newClient(t)

	if resp := get(t, c, ts.URL+"/current-user"); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous current-user: status = %d", resp.StatusCode)
	}
	if resp := post(t, c, ts.URL+"/login", aliceLogin); resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status = %d", resp.StatusCode)
	}

	resp := get(t, c, ts.URL+"/current-user")
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"id":"u1"`) {
		t.Fatalf("current-user: status = %d body = %s", resp.StatusCode, body)
	}

	if resp := post(t, c, ts.URL+"/logout", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: status = %d", resp.StatusCode)
	}
	if resp := get(t, c, ts.URL+"/current-user"); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("after logout: status = %d, want 401", resp.StatusCode)
	}
}

func TestLoginRateLimited(t *testing.T) {
	_, ts := setupServer(t, func(c *config.Config) { c.LoginRateLimit = 2 })
	c := newClient(t)

	for i := 0; i < 2; i++ {
		resp := post(t, c, ts.URL+"/login", `{"usernameOrEmail":"alice","password":"wrong"}`)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want 401", i+1, resp.StatusCode)
		}
	}
	if resp := post(t, c, ts.URL+"/login", aliceLogin); resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("3rd attempt: status = %d, want 429", resp.StatusCode)
	}
}

func TestLoginRateLimitIgnoresSpoofedForwarding(t *testing.T) {
	_, ts := setupServer(t, func(c *config.Config) { c.LoginRateLimit = 3 })
	c := newClient(t)

	var limited int
	for i := 0; i < 20; i++ {
		req, err := http.NewRequest("POST", ts.URL+"/login", strings.NewReader(`{"usernameOrEmail":"alice","password":"wrong"}`))
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		resp, err := c.Do(req)
		if err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited != 17 {
		t.Errorf("limited = %d of 20, want 17", limited)
	}
}

func TestDeprecatedRoutes(t *testing.T) {
	_, ts := setupServer(t, nil)
	c := newClient(t)

	for _, r := range []struct{ method, path string }{
		{"POST", "/api/auth/login"},
		{"GET", "/api/auth/user"},
		{"POST", "/api/auth/logout"},
	} {
		req, _ := http.NewRequest(r.method, ts.URL+r.path, nil)
		resp, err := c.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", r.method, r.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusGone {
			t.Errorf("%s %s: status = %d, want 410", r.method, r.path, resp.StatusCode)
		}
		if resp.Header.Get("X-API-Deprecated") != "true" {
			t.Errorf("%s %s: missing X-API-Deprecated", r.method, r.path)
		}
	}
}

func TestHealthAndMetrics(t *testing.T) {
	_, ts := setupServer(t, nil)
	c := newClient(t)

	if resp := get(t, c, ts.URL+"/health"); resp.StatusCode != http.StatusOK {
		t.Errorf("health: status = %d", resp.StatusCode)
	}

	post(t, c, ts.URL+"/login", aliceLogin)
	get(t, c, ts.URL+"/current-user")

	resp := get(t, c, ts.URL+"/metrics")
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`pantry_auth_logins_total{result="ok"} 1`,
		`pantry_auth_resolutions_total{mode="required",result="authenticated"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestSingleSessionEndsOtherSessions(t *testing.T) {
	srv, ts := setupServer(t, func(c *config.Config) { c.SingleSession = true })
	first := newClient(t)
	second := newClient(t)

	post(t, first, ts.URL+"/login", aliceLogin)

	// Open a session event stream for the first login.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/session", &ws.DialOptions{HTTPClient: &http.Client{Jar: first.Jar}})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Hub().UserClientCount("u1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("event stream never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	post(t, second, ts.URL+"/login", aliceLogin)

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	if string(data) != `{"type":"session_ended"}` {
		t.Errorf("event = %s", data)
	}

	if resp := get(t, first, ts.URL+"/current-user"); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("first session: status = %d, want 401", resp.StatusCode)
	}
	if resp := get(t, second, ts.URL+"/current-user"); resp.StatusCode != http.StatusOK {
		t.Errorf("second session: status = %d, want 200", resp.StatusCode)
	}
}

func TestHousekeep(t *testing.T) {
	srv, ts := setupServer(t, func(c *config.Config) { c.SessionTTL = time.Millisecond })
	c := newClient(t)

	post(t, c, ts.URL+"/login", aliceLogin)
	time.Sleep(5 * time.Millisecond)

	srv.Housekeep(context.Background())
	if n, _ := srv.SessionStore().CountByUserID(context.Background(), "u1"); n != 0 {
		t.Errorf("sessions after housekeeping = %d, want 0", n)
	}
}
