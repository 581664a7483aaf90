package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/dukerupert/pantry/internal/model"
)

// Backend is the slice of the server API the Store depends on.
type Backend interface {
	Login(ctx context.Context, usernameOrEmail, password string) (*model.User, error)
	CurrentUser(ctx context.Context) (*model.User, error)
	Logout(ctx context.Context) error
}

var _ Backend = (*API)(nil)

const defaultTimeout = 10 * time.Second

// API talks JSON to a pantry server. The session cookie lives in the HTTP
// client's jar.
type API struct {
	base *url.URL
	http *http.Client
}

// NewAPI builds a client for baseURL. A nil httpClient gets a fresh cookie
// jar and a 10s timeout.
func NewAPI(baseURL string, httpClient *http.Client) (*API, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		httpClient = &http.Client{Jar: jar, Timeout: defaultTimeout}
	}
	return &API{base: u, http: httpClient}, nil
}

func (a *API) BaseURL() *url.URL {
	u := *a.base
	return &u
}

// Cookie returns the named cookie the jar would send to the server.
func (a *API) Cookie(name string) (*http.Cookie, bool) {
	if a.http.Jar == nil {
		return nil, false
	}
	for _, c := range a.http.Jar.Cookies(a.base) {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// SetCookie seeds the jar, e.g. with a session token saved by a previous run.
func (a *API) SetCookie(c *http.Cookie) {
	if a.http.Jar != nil {
		a.http.Jar.SetCookies(a.base, []*http.Cookie{c})
	}
}

// SessionEventsURL is the websocket endpoint for session events.
func (a *API) SessionEventsURL() string {
	u := a.BaseURL()
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/session"
	return u.String()
}

// StreamClient shares the cookie jar and transport but has no overall
// timeout, for long-lived connections.
func (a *API) StreamClient() *http.Client {
	return &http.Client{Jar: a.http.Jar, Transport: a.http.Transport}
}

func (a *API) Login(ctx context.Context, usernameOrEmail, password string) (*model.User, error) {
	var out struct {
		User *model.User `json:"user"`
	}
	body := map[string]string{"usernameOrEmail": usernameOrEmail, "password": password}
	if err := a.do(ctx, http.MethodPost, "/login", body, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

func (a *API) CurrentUser(ctx context.Context) (*model.User, error) {
	var out struct {
		User *model.User `json:"user"`
	}
	if err := a.do(ctx, http.MethodGet, "/current-user", nil, &out); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, ErrAuthentication
	}
	return out.User, nil
}

func (a *API) Logout(ctx context.Context) error {
	return a.do(ctx, http.MethodPost, "/logout", nil, nil)
}

// Recipes lists recipes visible to the current caller, anonymous or not.
func (a *API) Recipes(ctx context.Context) ([]model.Recipe, error) {
	var out struct {
		Recipes []model.Recipe `json:"recipes"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/recipes", nil, &out); err != nil {
		return nil, err
	}
	return out.Recipes, nil
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func (a *API) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	u := a.BaseURL()
	u.Path = strings.TrimRight(u.Path, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	op := method + " " + path
	resp, err := a.http.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &NetworkError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
		return nil
	}

	var eb errorBody
	json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&eb)
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return ErrAuthentication
	case http.StatusBadRequest:
		msg := eb.Error
		if msg == "" {
			msg = "invalid request"
		}
		return &ValidationError{Message: msg, Fields: eb.Fields}
	default:
		msg := eb.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &ServerError{Status: resp.StatusCode, Message: msg}
	}
}
