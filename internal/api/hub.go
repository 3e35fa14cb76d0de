// internal/api/hub.go
package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"league-notifications/internal/common/logger"
	"league-notifications/internal/models"
	"league-notifications/internal/notifications/delivery"
	"league-notifications/internal/notifications/inbox"
	"league-notifications/internal/notifications/sound"

	"github.com/gorilla/websocket"
)

// Outbound socket message types.
const (
	MessageToasts = "toasts"
	MessageInbox  = "inbox"
	MessagePush   = "push"
	MessageSound  = "sound"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	sendBuffer   = 64
	maxReadBytes = 4096
)

// Envelope is every message written to a client socket.
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub tracks the sockets of every attached user. It is the session presenter,
// the websocket push forwarder and the sound cue sink.
type Hub struct {
	logger logger.Logger

	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		logger:  logger.Component(log, "hub"),
		clients: make(map[string]map[*client]struct{}),
	}
}

func (h *Hub) add(userID string, conn *websocket.Conn) *client {
	c := &client{userID: userID, conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if _, ok := h.clients[userID]; !ok {
		h.clients[userID] = make(map[*client]struct{})
	}
	h.clients[userID][c] = struct{}{}
	total := len(h.clients[userID])
	h.mu.Unlock()

	h.logger.Info("socket connected", map[string]interface{}{"user_id": userID, "sockets": total})
	go h.writePump(c)
	return c
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if conns, ok := h.clients[c.userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()

	c.close()
	h.logger.Info("socket disconnected", map[string]interface{}{"user_id": c.userID})
}

// Connected returns the number of sockets attached for userID.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Send writes one envelope to every socket of userID. It returns
// delivery.ErrNoController when the user has none.
func (h *Hub) Send(userID, msgType string, payload interface{}) error {
	data, err := json.Marshal(Envelope{Type: msgType, Payload: payload})
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	conns := h.clients[userID]
	if len(conns) == 0 {
		return delivery.ErrNoController
	}
	for c := range conns {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("socket send buffer full, dropping message", map[string]interface{}{
				"user_id": userID,
				"type":    msgType,
			})
		}
	}
	return nil
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("socket write failed", map[string]interface{}{"user_id": c.userID, "error": err})
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// PresentToasts implements session.Presenter.
func (h *Hub) PresentToasts(userID string, toasts []models.Toast) {
	_ = h.Send(userID, MessageToasts, toasts)
}

// PresentInbox implements session.Presenter.
func (h *Hub) PresentInbox(userID string, state inbox.State) {
	_ = h.Send(userID, MessageInbox, state)
}

// Forward implements delivery.PushForwarder. The client hands the message to its service worker.
func (h *Hub) Forward(_ context.Context, userID string, msg delivery.PushMessage) error {
	return h.Send(userID, MessagePush, msg)
}

// PlayCue implements sound.CueSink.
func (h *Hub) PlayCue(_ context.Context, userID string, p sound.Playback) error {
	return h.Send(userID, MessageSound, p)
}
