package handler

import (
	"ai-chat-be/internal/pkg/logger"
	internalWS "ai-chat-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// ChatEventsHandler upgrades to a websocket that streams timeline and turn events.
// The connection belongs to the configured client; there is no authentication.
type ChatEventsHandler struct {
	hub      *internalWS.Hub
	clientID string
	logger   logger.ILogger
}

func NewChatEventsHandler(hub *internalWS.Hub, clientID string, log logger.ILogger) *ChatEventsHandler {
	return &ChatEventsHandler{hub: hub, clientID: clientID, logger: log}
}

func (h *ChatEventsHandler) RegisterRoutes(r fiber.Router) {
	r.Get("/chat/v1/ws", h.ServeWs)
}

func (h *ChatEventsHandler) ServeWs(c *fiber.Ctx) error {
	if q := c.Query("client_id"); q != "" && q != h.clientID {
		return fiber.NewError(fiber.StatusForbidden, "unknown client")
	}

	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(conn *websocket.Conn) {
			h.logger.Info("ChatEventsHandler", "Starting WebSocket session", map[string]interface{}{"client_id": h.clientID})
			internalWS.ServeWs(h.hub, conn, h.clientID)
			h.logger.Info("ChatEventsHandler", "WebSocket session ended", map[string]interface{}{"client_id": h.clientID})
		})(c)
	}
	return fiber.ErrUpgradeRequired
}
