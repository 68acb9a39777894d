// ABOUTME: WebSocket endpoint streaming the session feed
// ABOUTME: One writer goroutine per connection drains the hub outbox
package feed

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	outboxSize    = 16
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	// Browsers on the LAN load the feed from arbitrary origins
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler upgrades the request and streams hub messages until either side closes
func WSHandler(h *Hub, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("feed.ws")

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug("WebSocket upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		outbox := make(chan []byte, outboxSize)
		id, ok := h.Subscribe(outbox)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeDeadline))
			return
		}

		log.Debug("Feed subscriber connected", zap.String("subscriber", id), zap.String("remote", r.RemoteAddr))

		done := make(chan struct{})
		go func() {
			defer close(done)
			writeLoop(conn, outbox, h.Done())
		}()

		// Subscribers do not send anything; reading only detects close
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug("Feed subscriber read error", zap.String("subscriber", id), zap.Error(err))
				}
				break
			}
		}

		h.Unsubscribe(id)
		conn.Close()
		<-done
	}
}

func writeLoop(conn *websocket.Conn, outbox <-chan []byte, hubDone <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-outbox:
			if !ok {
				// dropped or shut down
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeDeadline))
				conn.Close()
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				conn.Close()
				return
			}

		case <-hubDone:
			conn.Close()
			return

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				conn.Close()
				return
			}
		}
	}
}
