package client

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type MonitorConfig struct {
	Timeout       time.Duration
	WarningWindow time.Duration
	CheckInterval time.Duration
}

func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Timeout:       30 * time.Minute,
		WarningWindow: 5 * time.Minute,
		CheckInterval: time.Second,
	}
}

// TimeoutState is what a UI needs to render the idle warning.
type TimeoutState struct {
	ShowWarning bool
	// SecondsLeft counts down while ShowWarning is set.
	SecondsLeft int
	TimedOut    bool
}

// SessionInfo is derived from the store and recent activity. It is never
// persisted.
type SessionInfo struct {
	IsActive      bool
	LastActivity  *time.Time
	TimeRemaining *time.Duration
}

type MonitorOption func(*Monitor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

func WithMonitorLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Monitor logs the user out after a period without activity, with a warning
// window before the deadline.
type Monitor struct {
	store  *Store
	source ActivitySource
	cfg    MonitorConfig
	now    func() time.Time
	logger *slog.Logger

	mu            sync.Mutex
	lastActivity  time.Time
	state         TimeoutState
	onChange      func(TimeoutState)
	running       bool
	cancel        context.CancelFunc
	done          chan struct{}
	unsubActivity func()
	unsubStore    func()
}

func NewMonitor(store *Store, source ActivitySource, cfg MonitorConfig, opts ...MonitorOption) *Monitor {
	def := DefaultMonitorConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.WarningWindow < 0 || cfg.WarningWindow > cfg.Timeout {
		cfg.WarningWindow = 0
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	m := &Monitor{
		store:  store,
		source: source,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnChange registers fn to be called whenever TimeoutState changes. It
// replaces any earlier callback.
func (m *Monitor) OnChange(fn func(TimeoutState)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Start subscribes to activity and the store and begins periodic checks.
// Calling Start on a running monitor does nothing.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	m.lastActivity = m.now()
	m.state = TimeoutState{}
	m.unsubActivity = m.source.Subscribe(m.recordActivity)
	m.unsubStore = m.store.Subscribe(m.storeChanged)

	go m.loop(ctx, m.done)
}

// Stop releases every subscription and waits for the check loop to exit.
// It is safe to call more than once.
func (m *Monitor) Stop() {
	if done := m.shutdown(); done != nil {
		<-done
	}
}

// shutdown releases resources without waiting, so the check loop can call it.
func (m *Monitor) shutdown() chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	m.running = false
	m.cancel()
	m.unsubActivity()
	m.unsubStore()
	return m.done
}

func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// recordActivity runs on the activity source's goroutine and must stay cheap.
func (m *Monitor) recordActivity(kind ActivityKind) {
	if !kind.Tracked() {
		return
	}
	m.mu.Lock()
	m.lastActivity = m.now()
	m.mu.Unlock()
}

func (m *Monitor) storeChanged(s State) {
	switch s.Phase {
	case PhaseAuthenticated:
		if s.IsLoading {
			return
		}
		m.mu.Lock()
		m.lastActivity = m.now()
		m.mu.Unlock()
	case PhaseAnonymous:
		// A logout from anywhere cancels a pending countdown.
		m.mu.Lock()
		warning := m.state.ShowWarning
		m.mu.Unlock()
		if warning {
			m.setState(TimeoutState{})
		}
	}
}

func (m *Monitor) setState(next TimeoutState) {
	m.mu.Lock()
	fn, changed := m.swapStateLocked(next)
	m.mu.Unlock()

	if changed && fn != nil {
		fn(next)
	}
}

// swapStateLocked must be called with mu held. The caller invokes the
// returned callback after unlocking.
func (m *Monitor) swapStateLocked(next TimeoutState) (func(TimeoutState), bool) {
	changed := next != m.state
	m.state = next
	return m.onChange, changed
}

// Check runs one idle evaluation. The check loop calls it every
// CheckInterval.
func (m *Monitor) Check(ctx context.Context) {
	authed := m.store.State().IsAuthenticated

	// Idle time and the state derived from it are committed under one lock
	// so a concurrent ExtendSession cannot be overwritten by a stale reading.
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	idle := m.now().Sub(m.lastActivity)
	var next TimeoutState
	if authed {
		next = m.evaluate(idle)
	}
	fn, changed := m.swapStateLocked(next)
	m.mu.Unlock()

	if changed && fn != nil {
		fn(next)
	}

	if next.TimedOut {
		m.logger.Info("session idle timeout", "idle", idle.Round(time.Second))
		m.store.Logout(ctx)
		m.shutdown()
	}
}

func (m *Monitor) evaluate(idle time.Duration) TimeoutState {
	switch {
	case idle >= m.cfg.Timeout:
		return TimeoutState{TimedOut: true}
	case idle >= m.cfg.Timeout-m.cfg.WarningWindow:
		left := m.cfg.Timeout - idle
		secs := int((left + time.Second - 1) / time.Second)
		return TimeoutState{ShowWarning: true, SecondsLeft: secs}
	default:
		return TimeoutState{}
	}
}

func (m *Monitor) Timeout() TimeoutState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) Info() SessionInfo {
	s := m.store.State()
	m.mu.Lock()
	defer m.mu.Unlock()

	if !s.IsAuthenticated || !m.running {
		return SessionInfo{IsActive: s.IsAuthenticated}
	}
	last := m.lastActivity
	remaining := m.cfg.Timeout - m.now().Sub(last)
	if remaining < 0 {
		remaining = 0
	}
	return SessionInfo{IsActive: true, LastActivity: &last, TimeRemaining: &remaining}
}

// ExtendSession probes the server. On success the idle timer restarts and
// any warning is dismissed. On any failure the session is treated as gone
// and the store logs out.
func (m *Monitor) ExtendSession(ctx context.Context) error {
	if _, err := m.store.Probe(ctx); err != nil {
		m.logger.Info("session extension failed, logging out", "error", err)
		m.store.Logout(ctx)
		return err
	}
	m.mu.Lock()
	m.lastActivity = m.now()
	fn, changed := m.swapStateLocked(TimeoutState{})
	m.mu.Unlock()

	if changed && fn != nil {
		fn(TimeoutState{})
	}
	return nil
}
