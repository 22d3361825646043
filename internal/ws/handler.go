package ws

import (
	"log"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gorilla/websocket"
)

// TokenVerifier checks the bearer token a websocket client passes as the
// "token" query parameter. Nil disables the check.
type TokenVerifier func(token string) error

type Handler struct {
	hub    *Hub
	verify TokenVerifier
	logger *log.Logger
}

func NewHandler(hub *Hub, verify TokenVerifier, logger *log.Logger) *Handler {
	return &Handler{hub: hub, verify: verify, logger: logger}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleTabWS serves GET /ws?tab=<id>.
func (h *Handler) HandleTabWS(c fiber.Ctx) error {
	if h == nil || h.hub == nil {
		return fiber.ErrServiceUnavailable
	}
	tabID := strings.TrimSpace(c.Query("tab"))
	if tabID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "tab is required")
	}
	if h.verify != nil {
		if err := h.verify(strings.TrimSpace(c.Query("token"))); err != nil {
			return fiber.ErrUnauthorized
		}
	}

	fiberHandler := adaptor.HTTPHandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			if h.logger != nil {
				h.logger.Printf("WS upgrade error | error=%v", err)
			}
			return
		}

		client := NewClient(h.hub, conn, tabID)
		h.hub.Register(client)
		go client.WritePump()
		go client.ReadPump()
	})

	return fiberHandler(c)
}
