package broadcast

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The testnet UI is served from a different origin than the API.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// ServeWS upgrades the request to a websocket connection and registers it as
// a broadcast subscriber. The subscriber lifecycle ends when the peer closes
// the connection or falls too far behind.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.register(c) {
		_ = conn.Close()
		return
	}

	go c.writePump(conn)
	go h.readPump(c, conn)
}

// readPump discards inbound frames; the channel is push-only. Its job is to
// notice the peer going away and unregister the client.
func (h *Hub) readPump(c *client, conn *websocket.Conn) {
	defer h.unregister(c)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
