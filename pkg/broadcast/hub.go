package broadcast

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/meridianswap/points-middleware/internal/metrics"
)

const (
	// sendBuffer is the per-client outbound queue. A client that cannot keep
	// up loses its connection rather than blocking the publishing mutation.
	sendBuffer = 16

	writeWait = 10 * time.Second
)

// Hub is the process-scoped broadcast channel. It is constructed once in the
// composition root and passed by reference to every component that publishes;
// there is no package-level handle.
type Hub struct {
	logger *zap.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// Publish delivers ev to every currently connected subscriber. It never
// blocks and never returns an error: marshal or delivery failures are logged
// and the triggering mutation proceeds regardless.
func (h *Hub) Publish(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast event",
			zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// Slow consumer: drop the connection, not the mutation.
			h.dropLocked(c)
		}
	}

	metrics.EventsPublished.WithLabelValues(string(ev.Type)).Inc()
	h.logger.Debug("Broadcast event published",
		zap.String("type", string(ev.Type)),
		zap.String("event_id", ev.ID))
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all subscribers and rejects future registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.dropLocked(c)
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	metrics.WSClients.Set(float64(len(h.clients)))
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

// dropLocked removes a client; callers hold h.mu.
func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	metrics.WSClients.Set(float64(len(h.clients)))
}

func (c *client) writePump(conn *websocket.Conn) {
	defer func() { _ = conn.Close() }()
	for payload := range c.send {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
