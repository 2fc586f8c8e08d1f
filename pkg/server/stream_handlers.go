package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"botsim/pkg/fleet"
	"botsim/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	socketWriteWait  = 10 * time.Second
	socketPongWait   = 60 * time.Second
	socketPingPeriod = 50 * time.Second
	eventBuffer      = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleBotLogsStream pushes new log lines as server-sent events.
func (s *Server) handleBotLogsStream(w http.ResponseWriter, r *http.Request) {
	b, ok := s.botFromPath(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, cancel := s.fleet.Subscribe(eventBuffer)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			if ev.BotID != b.ID {
				continue
			}
			switch ev.Type {
			case fleet.EventLog:
				fmt.Fprintf(w, "data: %s\n\n", strings.ReplaceAll(ev.Log, "\n", " "))
				flusher.Flush()
			case fleet.EventDeleted:
				fmt.Fprintf(w, "event: deleted\ndata: %s\n\n", b.ID)
				flusher.Flush()
				return
			}
		}
	}
}

// handleBotSocket streams a snapshot followed by every event for one bot.
func (s *Server) handleBotSocket(w http.ResponseWriter, r *http.Request) {
	b, ok := s.botFromPath(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnCF("server", "Websocket upgrade failed", map[string]interface{}{
			logger.FieldBotID: b.ID,
			logger.FieldError: err.Error(),
		})
		return
	}
	defer conn.Close()

	events, cancel := s.fleet.Subscribe(eventBuffer)
	defer cancel()

	// The read side only handles control frames; it ends when the peer leaves.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(4096)
		_ = conn.SetReadDeadline(time.Now().Add(socketPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(socketPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(v interface{}) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
		return conn.WriteJSON(v) == nil
	}

	if current, err := s.fleet.Get(b.ID); err == nil {
		if !send(map[string]interface{}{"type": "snapshot", "bot_id": b.ID, "bot": current}) {
			return
		}
	}

	ping := time.NewTicker(socketPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case ev, open := <-events:
			if !open {
				return
			}
			if ev.BotID != b.ID {
				continue
			}
			if !send(ev) {
				return
			}
			if ev.Type == fleet.EventDeleted {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bot deleted"),
					time.Now().Add(socketWriteWait))
				return
			}
		}
	}
}
