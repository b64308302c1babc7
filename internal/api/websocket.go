package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crewkit/crewkit/internal/eventlog"
	"github.com/crewkit/crewkit/internal/team"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings with this period; the peer must answer within writeWait.
	pingPeriod = 30 * time.Second
)

// wsHandler streams event log entries to WebSocket clients. Each connection
// subscribes to one task id (or all entries by default) via the `task` query
// parameter.
type wsHandler struct {
	team     *team.Team
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func newWSHandler(tm *team.Team, logger *slog.Logger) *wsHandler {
	return &wsHandler{
		team:   tm,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *wsHandler) handleConnect(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("task")
	if taskID == "" {
		taskID = eventlog.GlobalTaskID
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	entries := h.team.Subscribe(taskID)
	defer h.team.Unsubscribe(taskID, entries)
	defer conn.Close()

	// Reader goroutine: only there to notice the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(entry); err != nil {
				h.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
