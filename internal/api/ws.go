// internal/api/ws.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"league-notifications/internal/notifications/realtime"

	"github.com/gorilla/websocket"
)

// Inbound socket message types.
const (
	ClientVisibility   = "visibility"
	ClientDismissToast = "dismiss_toast"
)

// ClientMessage is what a browser sends over its socket.
type ClientMessage struct {
	Type    string `json:"type"`
	Signal  string `json:"signal,omitempty"`
	ToastID string `json:"toast_id,omitempty"`
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ServeWS attaches the socket to the user's session for as long as it stays open.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeBadRequest(w, "user_id is required")
		return
	}

	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", map[string]interface{}{"error": err})
		return
	}

	ctx := context.WithoutCancel(r.Context())
	sess, err := s.sessions.Attach(ctx, userID)
	if err != nil {
		s.logger.Error("failed to attach session", map[string]interface{}{"user_id": userID, "error": err})
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable"))
		_ = conn.Close()
		return
	}

	c := s.hub.add(userID, conn)
	defer func() {
		s.hub.remove(c)
		s.sessions.Detach(ctx, userID)
	}()

	// current view for the new socket
	_ = s.hub.Send(userID, MessageInbox, sess.Inbox().State())

	conn.SetReadLimit(maxReadBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("socket closed unexpectedly", map[string]interface{}{"user_id": userID, "error": err})
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("ignoring malformed client message", map[string]interface{}{"user_id": userID})
			continue
		}

		switch msg.Type {
		case ClientVisibility:
			signal, err := realtime.ParseSignal(msg.Signal)
			if err != nil {
				s.logger.Debug("ignoring unknown signal", map[string]interface{}{"signal": msg.Signal})
				continue
			}
			sess.Visibility(ctx, signal)
		case ClientDismissToast:
			sess.Toasts().Remove(msg.ToastID)
		}
	}
}
