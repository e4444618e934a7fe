package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// StatusWebSocket streams status snapshots over a WebSocket. Consumers use
// this to watch a failover progress without polling; the version field lets
// them invalidate cached routing.
func (h *FailoverHandlers) StatusWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", err, nil)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	if err := conn.WriteJSON(h.statusSnapshot()); err != nil {
		return
	}

	for {
		select {
		case <-ticker.C:
			if err := conn.WriteJSON(h.statusSnapshot()); err != nil {
				h.logger.Debug("Status WebSocket closed", map[string]interface{}{"error": err.Error()})
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
