package handlers

import (
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/docchat/backend/internal/events"
	"github.com/docchat/backend/internal/middleware/auth"
	"github.com/docchat/backend/pkg/logger"
)

// WebSocketHandler pushes subscription and document lifecycle events to the
// UI so it can refresh without polling.
type WebSocketHandler struct {
	hub *events.Hub
}

func NewWebSocketHandler(hub *events.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	userID, _ := c.Locals(auth.LocalsUserID).(string)
	if userID == "" {
		c.Close()
		return
	}

	logger.Info("Event stream connected", zap.String("user_id", userID))

	ch, cancel := h.hub.Subscribe(userID)
	defer cancel()
	defer c.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := c.WriteJSON(event); err != nil {
				logger.Warn("Failed to push event", zap.Error(err))
				return
			}
		case <-done:
			logger.Info("Event stream closed", zap.String("user_id", userID))
			return
		}
	}
}
