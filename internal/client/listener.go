package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ws "github.com/coder/websocket"
)

const defaultReconnectDelay = 5 * time.Second

// Listener holds a session event stream open while the store is
// authenticated. Any event, and any loss of the stream, triggers
// Store.Refresh; the event payload itself is never trusted.
type Listener struct {
	store      *Store
	url        string
	httpClient *http.Client
	delay      time.Duration
	logger     *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewListener streams from url (ws:// or wss://) using httpClient's cookie
// jar. httpClient must not carry an overall timeout.
func NewListener(store *Store, url string, httpClient *http.Client, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		store:      store,
		url:        url,
		httpClient: httpClient,
		delay:      defaultReconnectDelay,
		logger:     logger,
	}
}

// SetReconnectDelay changes the pause between reconnect attempts.
func (l *Listener) SetReconnectDelay(d time.Duration) {
	l.mu.Lock()
	l.delay = d
	l.mu.Unlock()
}

// Start is a no-op when already running.
func (l *Listener) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})

	authed := make(chan struct{}, 1)
	unsub := l.store.Subscribe(func(s State) {
		if s.IsAuthenticated {
			select {
			case authed <- struct{}{}:
			default:
			}
		}
	})
	go func(done chan struct{}, delay time.Duration) {
		defer close(done)
		defer unsub()
		l.run(ctx, authed, delay)
	}(l.done, l.delay)
}

// Stop closes the stream and waits for the goroutine to exit.
func (l *Listener) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (l *Listener) run(ctx context.Context, authed <-chan struct{}, delay time.Duration) {
	for {
		if !l.store.State().IsAuthenticated {
			select {
			case <-authed:
				continue
			case <-ctx.Done():
				return
			}
		}

		err := l.stream(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			l.logger.Debug("session stream lost", "error", err)
			l.store.Refresh(ctx)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

type sessionEvent struct {
	Type string `json:"type"`
}

func (l *Listener) stream(ctx context.Context) error {
	conn, _, err := ws.Dial(ctx, l.url, &ws.DialOptions{HTTPClient: l.httpClient})
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var ev sessionEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			l.logger.Warn("malformed session event", "error", err)
		}
		l.logger.Debug("session event", "type", ev.Type)
		l.store.Refresh(ctx)
		if !l.store.State().IsAuthenticated {
			conn.Close(ws.StatusNormalClosure, "")
			return nil
		}
	}
}
