// Package config holds server settings read from PANTRY_* environment
// variables on top of development defaults.
package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime settings for the pantry server.
//
// Fields:
//   - Port / BaseURL: listen port and public URL.
//   - DBPath: sqlite file path (":memory:" works for throwaway runs).
//   - CookieName / CookieSecure: session cookie name and its Secure flag.
//     Keep CookieSecure on anywhere but plain-http local development.
//   - SessionTTL: lifetime of a newly issued session.
//   - SingleSession: when set, logging in drops the user's other sessions.
//   - LoginRateLimit / LoginRateWindow: per-IP login attempts per window.
//   - TrustedProxies: peers whose X-Forwarded-For, X-Real-IP and
//     CF-Connecting-IP headers are believed. Empty means none.
//   - NewBackendURL / MigrationDate / DeprecationDocs: details advertised
//     by the retired /api/auth/* routes.
type Config struct {
	Port            string
	BaseURL         string
	DBPath          string
	LogLevel        string
	LogFormat       string
	CookieName      string
	CookieSecure    bool
	SessionTTL      time.Duration
	SingleSession   bool
	LoginRateLimit  int
	LoginRateWindow time.Duration
	TrustedProxies  []netip.Prefix
	NewBackendURL   string
	MigrationDate   string
	DeprecationDocs string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.Port = "8080"
	c.BaseURL = "http://localhost:8080"
	c.DBPath = "pantry.db"
	c.LogLevel = "info"
	c.LogFormat = "text"
	c.CookieName = "pantry_session"
	c.CookieSecure = true
	c.SessionTTL = 30 * 24 * time.Hour
	c.SingleSession = false
	c.LoginRateLimit = 10
	c.LoginRateWindow = time.Minute
	c.NewBackendURL = "http://localhost:8080"
	c.MigrationDate = "2025-01-15"
	c.DeprecationDocs = "/docs/migration"
}

// Load reads the process environment.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom applies defaults and then overlays every PANTRY_* variable that
// getenv reports as non-empty.
func LoadFrom(getenv func(string) string) (*Config, error) {
	c := &Config{}
	c.LoadDefaults()

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	str("PANTRY_PORT", &c.Port)
	str("PANTRY_DB_PATH", &c.DBPath)
	str("PANTRY_LOG_LEVEL", &c.LogLevel)
	str("PANTRY_LOG_FORMAT", &c.LogFormat)
	str("PANTRY_COOKIE_NAME", &c.CookieName)
	str("PANTRY_NEW_BACKEND_URL", &c.NewBackendURL)
	str("PANTRY_MIGRATION_DATE", &c.MigrationDate)
	str("PANTRY_DEPRECATION_DOCS", &c.DeprecationDocs)

	if v := strings.TrimSpace(getenv("PANTRY_BASE_URL")); v != "" {
		c.BaseURL = v
	} else {
		c.BaseURL = "http://localhost:" + c.Port
	}

	var err error
	if c.CookieSecure, err = boolVar(getenv, "PANTRY_COOKIE_SECURE", c.CookieSecure); err != nil {
		return nil, err
	}
	if c.SingleSession, err = boolVar(getenv, "PANTRY_SINGLE_SESSION", c.SingleSession); err != nil {
		return nil, err
	}
	if c.SessionTTL, err = durationVar(getenv, "PANTRY_SESSION_TTL", c.SessionTTL); err != nil {
		return nil, err
	}
	if c.LoginRateWindow, err = durationVar(getenv, "PANTRY_LOGIN_RATE_WINDOW", c.LoginRateWindow); err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(getenv("PANTRY_LOGIN_RATE_LIMIT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("PANTRY_LOGIN_RATE_LIMIT: want a positive integer, got %q", v)
		}
		c.LoginRateLimit = n
	}

	if v := strings.TrimSpace(getenv("PANTRY_TRUSTED_PROXIES")); v != "" {
		if c.TrustedProxies, err = ParsePrefixes(v); err != nil {
			return nil, fmt.Errorf("PANTRY_TRUSTED_PROXIES: %w", err)
		}
	}

	if c.SessionTTL <= 0 {
		return nil, fmt.Errorf("PANTRY_SESSION_TTL: must be positive")
	}
	return c, nil
}

func boolVar(getenv func(string) string, key string, def bool) (bool, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func durationVar(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// ParsePrefixes reads a comma-separated list of CIDRs or single addresses.
func ParsePrefixes(list string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if p, err := netip.ParsePrefix(item); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			return nil, fmt.Errorf("%q is neither an address nor a CIDR", item)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}
