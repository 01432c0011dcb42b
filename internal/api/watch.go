package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gyaneshwarpardhi/never2/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// GET /v1/scene/watch: websocket stream of session events, starting with
// the current scene.
func (h *Handler) watchScene(w http.ResponseWriter, r *http.Request) {
	events, cancel := h.sess.Subscribe(32)
	defer cancel()
	snap, err := h.sess.Snapshot(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer ws.Close()

	// The client sends nothing; reading detects when it goes away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(v interface{}) bool {
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteJSON(v); err != nil {
			slog.Debug("websocket write failed", "err", err)
			return false
		}
		return true
	}
	if !send(session.Event{Command: "snapshot", Scene: &snap}) {
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok || !send(ev) {
				return
			}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-gone:
			return
		case <-h.sess.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "session stopped"), time.Now().Add(writeWait))
			return
		}
	}
}
