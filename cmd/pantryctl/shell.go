package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/pantry/internal/client"
)

const shellHelp = `commands:
  go <path>   open a page: /, /recipes, /account, /login
  back        return to the previous page
  login       sign in (redirects to ?redirect= when present)
  logout      sign out
  whoami      show the signed-in user
  recipes     list recipes visible to you
  extend      keep an expiring session alive
  status      show session and idle timer
  help        this text
  quit        leave the shell`

// shell is an interactive session. Pages are guarded the same way a browser
// client would guard its routes.
type shell struct {
	e       *env
	cmd     *cobra.Command
	in      *bufio.Reader
	out     io.Writer
	history *client.History
	monitor *client.Monitor
	events  *client.Emitter

	mu    sync.Mutex
	guard interface{ Stop() }
	page  string

	// The reader goroutine reads only when asked, so commands such as login
	// can prompt on in directly while no request is outstanding.
	want    chan struct{}
	results chan readResult
	pending bool
	readErr error
}

type readResult struct {
	line string
	err  error
}

func newShell(e *env, cmd *cobra.Command, in io.Reader, cfg client.MonitorConfig) *shell {
	sh := &shell{
		e:       e,
		cmd:     cmd,
		in:      bufio.NewReader(in),
		out:     cmd.OutOrStdout(),
		history: client.NewHistory("/"),
		events:  client.NewEmitter(),
		want:    make(chan struct{}),
		results: make(chan readResult, 1),
	}
	sh.monitor = client.NewMonitor(e.store, sh.events, cfg, client.WithMonitorLogger(e.logger))
	return sh
}

func shellCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive session with idle logout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			cfg := client.DefaultMonitorConfig()
			cfg.Timeout = opts.idleTimeout
			cfg.WarningWindow = opts.warning
			if cfg.WarningWindow >= cfg.Timeout {
				return errors.New("--warning must be shorter than --timeout")
			}

			cmd.SetContext(ctx)
			return newShell(e, cmd, os.Stdin, cfg).run(ctx)
		},
	}
}

func (sh *shell) run(ctx context.Context) error {
	defer sh.e.store.Teardown()

	unsub := sh.e.store.Subscribe(sh.stateChanged())
	defer unsub()

	if err := sh.e.store.Init(ctx); err != nil {
		fmt.Fprintf(sh.out, "warning: %s\n", sh.e.store.State().SessionError)
	}
	if err := sh.e.persist(); err != nil {
		return err
	}

	sh.monitor.OnChange(sh.timeoutChanged)
	sh.monitor.Start(ctx)
	defer sh.monitor.Stop()

	listener := client.NewListener(sh.e.store, sh.e.api.SessionEventsURL(), sh.e.api.StreamClient(), sh.e.logger)
	listener.Start(ctx)
	defer listener.Stop()

	sh.enter()
	printUser(sh.out, sh.e.store.State())

	go sh.readLoop()
	defer close(sh.want)

	for {
		sh.enter()
		fmt.Fprintf(sh.out, "pantry %s> ", sh.history.CurrentPath())

		line, err := sh.readLine(ctx)
		switch {
		case ctx.Err() != nil:
			fmt.Fprintln(sh.out)
			return nil
		case errors.Is(err, io.EOF):
			fmt.Fprintln(sh.out)
			return nil
		case err != nil:
			return err
		}

		sh.events.Emit(client.KeyPress)
		if quit := sh.exec(ctx, line); quit {
			return nil
		}
	}
}

// readLoop reads one line from in per request on want.
func (sh *shell) readLoop() {
	for range sh.want {
		line, err := sh.in.ReadString('\n')
		if errors.Is(err, io.EOF) && line != "" {
			err = nil
		}
		sh.results <- readResult{line: strings.TrimSpace(line), err: err}
		if err != nil {
			return
		}
	}
}

// readLine waits for the next input line. A line still being read when ctx
// ends is delivered to the next call.
func (sh *shell) readLine(ctx context.Context) (string, error) {
	if sh.readErr != nil {
		return "", sh.readErr
	}
	if !sh.pending {
		sh.want <- struct{}{}
		sh.pending = true
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-sh.results:
		sh.pending = false
		if res.err != nil {
			sh.readErr = res.err
		}
		return res.line, res.err
	}
}

// enter installs the guard for the current page when it has changed, either
// by a command or by a guard redirect.
func (sh *shell) enter() {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	for path := sh.history.CurrentPath(); path != sh.page; path = sh.history.CurrentPath() {
		if sh.guard != nil {
			sh.guard.Stop()
			sh.guard = nil
		}
		sh.page = path
		sh.guard = guardFor(sh.e.store, sh.history, path)
	}
}

// guardFor picks the policy for a page. Guards evaluate immediately, so a
// redirect may already have happened when this returns.
func guardFor(store *client.Store, nav client.Navigator, path string) interface{ Stop() } {
	route, _, _ := strings.Cut(path, "?")
	switch route {
	case "/login":
		_, query, _ := strings.Cut(path, "?")
		return client.GuestGuard(store, nav, client.RedirectTarget(query, "/"))
	case "/account":
		return client.ProtectedRoute(store, nav, client.ProtectedRouteOptions{RequireAuth: true})
	case "/":
		return client.AuthGuard(store, nav, "/login")
	default:
		return client.ProtectedRoute(store, nav, client.ProtectedRouteOptions{})
	}
}

func (sh *shell) exec(ctx context.Context, line string) (quit bool) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "":
	case "quit", "exit":
		return true
	case "help":
		fmt.Fprintln(sh.out, shellHelp)
	case "go":
		if !strings.HasPrefix(arg, "/") {
			fmt.Fprintln(sh.out, "usage: go /path")
			break
		}
		sh.history.Navigate(arg)
	case "back":
		sh.history.Back()
	case "login":
		if sh.e.store.State().IsAuthenticated {
			fmt.Fprintln(sh.out, "already logged in")
			break
		}
		if !strings.HasPrefix(sh.history.CurrentPath(), "/login") {
			sh.history.Navigate(client.LoginRedirect("/login", sh.history.CurrentPath()))
			sh.enter()
		}
		if err := login(sh.cmd, sh.e, sh.in, ""); err != nil {
			fmt.Fprintf(sh.out, "login: %s\n", err)
		}
	case "logout":
		sh.e.store.Logout(ctx)
	case "whoami", "account":
		if name == "account" {
			sh.history.Navigate("/account")
			sh.enter()
		}
		printUser(sh.out, sh.e.store.State())
	case "recipes":
		recipes, err := sh.e.api.Recipes(ctx)
		if err != nil {
			fmt.Fprintf(sh.out, "error: %s\n", err)
			break
		}
		printRecipes(sh.out, recipes)
	case "extend":
		if err := sh.monitor.ExtendSession(ctx); err != nil {
			fmt.Fprintln(sh.out, "session could not be extended")
			break
		}
		fmt.Fprintln(sh.out, "session extended")
	case "status":
		sh.printStatus()
	default:
		fmt.Fprintf(sh.out, "unknown command %q, try help\n", name)
	}
	return false
}

func (sh *shell) printStatus() {
	s := sh.e.store.State()
	info := sh.monitor.Info()
	fmt.Fprintf(sh.out, "phase: %s\n", s.Phase)
	if s.SessionError != "" {
		fmt.Fprintf(sh.out, "last error: %s\n", s.SessionError)
	}
	if info.TimeRemaining != nil {
		fmt.Fprintf(sh.out, "idle logout in: %s\n", info.TimeRemaining.Round(time.Second))
	}
}

// stateChanged keeps the session file in sync and reports logouts the user
// did not ask for.
func (sh *shell) stateChanged() func(client.State) {
	var prev client.State
	return func(s client.State) {
		if !s.Settled() {
			return
		}
		if err := sh.e.persist(); err != nil {
			sh.e.logger.Warn("could not save session", "error", err)
		}
		if prev.IsAuthenticated && !s.IsAuthenticated && s.SessionError != "" {
			fmt.Fprintf(sh.out, "\nsigned out: %s\n", s.SessionError)
		}
		prev = s
	}
}

func (sh *shell) timeoutChanged(t client.TimeoutState) {
	switch {
	case t.TimedOut:
		fmt.Fprintln(sh.out, "\nsigned out after inactivity")
	case t.ShowWarning && t.SecondsLeft%60 == 0:
		fmt.Fprintf(sh.out, "\nsession expires in %d minute(s), type extend to stay signed in\n", t.SecondsLeft/60)
	case t.ShowWarning && t.SecondsLeft <= 10:
		fmt.Fprintf(sh.out, "\nsession expires in %ds\n", t.SecondsLeft)
	}
}
