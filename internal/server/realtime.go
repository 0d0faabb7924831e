package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/notesync/internal/gateway"
	"github.com/roach88/notesync/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// realtime upgrades to a WebSocket and streams changes for ?table=&user_id=.
// An empty or "*" table streams every table.
func (s *Server) realtime(w http.ResponseWriter, r *http.Request) {
	topic := model.Topic{OwnerID: r.URL.Query().Get("user_id")}
	if t := r.URL.Query().Get("table"); t != "" && t != "*" {
		table, err := model.ParseTable(t)
		if err != nil {
			writeError(w, gateway.Invalid("subscribe", err.Error()))
			return
		}
		topic.Table = table
	}

	sub, err := s.gw.Subscribe(r.Context(), topic)
	if err != nil {
		writeError(w, err)
		return
	}
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade", "error", err)
		return
	}
	defer conn.Close()
	slog.Debug("realtime stream opened", "topic", topic.Pattern())

	// The client never sends data frames; reading surfaces its close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case c, ok := <-sub.Changes():
			if !ok {
				closeConn(conn, websocket.CloseGoingAway, "stream ended")
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(c); err != nil {
				slog.Warn("failed to send change", "topic", topic.Pattern(), "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-gone:
			slog.Debug("realtime stream closed by client", "topic", topic.Pattern())
			return
		case <-r.Context().Done():
			closeConn(conn, websocket.CloseGoingAway, "server shutting down")
			return
		}
	}
}

func closeConn(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
