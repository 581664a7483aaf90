package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/dukerupert/pantry/internal/auth"
	"github.com/dukerupert/pantry/internal/metrics"
)

var _ auth.SessionListener = (*Hub)(nil)

// Message types pushed to session event subscribers.
const TypeSessionEnded = "session_ended"

// Message is a session event. It carries no identity data; receivers must
// re-check their session with the server.
type Message struct {
	Type string `json:"type"`
}

// Hub tracks open session event connections per user.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	metrics *metrics.Auth
	logger  *slog.Logger
}

func NewHub(m *metrics.Auth, logger *slog.Logger) *Hub {
	if m == nil {
		m = metrics.Discard()
	}
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		metrics: m,
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	h.metrics.Connections.Inc()
}

// Unregister removes c and closes its send channel. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	set := h.clients[c.userID]
	_, ok := set[c]
	if ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
		close(c.send)
	}
	h.mu.Unlock()
	if ok {
		h.metrics.Connections.Dec()
	}
}

// Publish sends msg to every connection of userID. Slow clients drop it.
func (h *Hub) Publish(userID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal session event", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[userID] {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("session event dropped", "user_id", userID)
		}
	}
}

// SessionEnded notifies userID's connections that one of their sessions was
// invalidated.
func (h *Hub) SessionEnded(userID string) {
	h.Publish(userID, Message{Type: TypeSessionEnded})
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

func (h *Hub) UserClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}
