package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/pantry/internal/cli"
	"github.com/dukerupert/pantry/internal/client"
	"github.com/dukerupert/pantry/internal/logging"
)

const sessionCookie = "pantry_session"

// errSessionNotKept means the server authenticated us but its cookie is
// unusable from here, almost always a Secure cookie over plain http.
var errSessionNotKept = errors.New("signed in, but the session cookie cannot be kept over plain http; " +
	"use an https --server or run the server with PANTRY_COOKIE_SECURE=false")

type rootOptions struct {
	server      string
	sessionPath string
	logLevel    string
	idleTimeout time.Duration
	warning     time.Duration
}

// env is the client side of one invocation: API, auth store and the saved
// session token.
type env struct {
	api     *client.API
	store   *client.Store
	session cli.SessionFile
	logger  *slog.Logger
}

func newEnv(opts *rootOptions) (*env, error) {
	logger := logging.New(os.Stderr, opts.logLevel, "text")

	api, err := client.NewAPI(opts.server, nil)
	if err != nil {
		return nil, err
	}

	path := opts.sessionPath
	if path == "" {
		if path, err = cli.DefaultSessionPath(); err != nil {
			return nil, err
		}
	}
	session := cli.SessionFile{Path: path}
	token, err := session.Load()
	if err != nil {
		return nil, err
	}
	if token != "" {
		api.SetCookie(&http.Cookie{Name: sessionCookie, Value: token, Path: "/"})
	}

	return &env{
		api:     api,
		store:   client.NewStore(api, logger),
		session: session,
		logger:  logger,
	}, nil
}

// persist mirrors the jar's session cookie into the session file. The file
// is kept when the server could not be asked.
func (e *env) persist() error {
	s := e.store.State()
	if s.IsAuthenticated {
		if c, ok := e.api.Cookie(sessionCookie); ok && c.Value != "" {
			return e.session.Save(c.Value)
		}
		return errSessionNotKept
	}
	if s.SessionError == client.MsgUnreachable || s.SessionError == client.MsgServer {
		return nil
	}
	return e.session.Clear()
}

func main() {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "pantryctl",
		Short: "Command-line client for a pantry server",
		Long: `pantryctl signs in to a pantry server and keeps the session between
invocations. "pantryctl shell" opens an interactive session with route
guards, idle logout and live session events.

The server marks its session cookie Secure by default, which an http
--server cannot keep. Point --server at https, or start a local development
server with PANTRY_COOKIE_SECURE=false.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultServer := os.Getenv("PANTRY_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	cfg := client.DefaultMonitorConfig()

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.server, "server", defaultServer, "pantry server base URL (env PANTRY_SERVER)")
	pf.StringVar(&opts.sessionPath, "session-file", "", "where the session token is kept (default <config dir>/pantry/session)")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	pf.DurationVar(&opts.idleTimeout, "timeout", cfg.Timeout, "shell: log out after this long without input")
	pf.DurationVar(&opts.warning, "warning", cfg.WarningWindow, "shell: warn this long before the idle logout")

	rootCmd.AddCommand(
		loginCmd(opts),
		whoamiCmd(opts),
		logoutCmd(opts),
		recipesCmd(opts),
		shellCmd(opts),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
