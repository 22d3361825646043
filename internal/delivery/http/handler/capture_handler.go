package handler

import (
	"strings"

	"jobpilot/internal/capture"
	"jobpilot/internal/delivery/http/middleware"
	"jobpilot/internal/pkg/response"

	"github.com/gofiber/fiber/v3"
)

type CaptureSink interface {
	Dispatch(chatKey string, m capture.Message)
}

// CaptureHandler relays hook messages from a chat tab running in the
// user's own browser into the same bridge the service's tabs feed.
type CaptureHandler struct {
	sink CaptureSink
}

func NewCaptureHandler(sink CaptureSink) *CaptureHandler {
	return &CaptureHandler{sink: sink}
}

func (h *CaptureHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}

	r.Post("/:chatKey/capture", h.HandleCapture)
}

func (h *CaptureHandler) HandleCapture(c fiber.Ctx) error {
	chatKey := strings.TrimSpace(c.Params("chatKey"))
	if chatKey == "" {
		return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, nil)
	}

	var m capture.Message
	if err := c.Bind().Body(&m); err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, err)
	}
	switch m.Kind {
	case capture.KindChunk, capture.KindEnd, capture.KindAbort:
	default:
		return middleware.NewAppError(fiber.StatusBadRequest, "Unknown message kind", nil, nil)
	}
	if strings.TrimSpace(m.ID) == "" {
		return middleware.NewAppError(fiber.StatusBadRequest, "id is required", nil, nil)
	}

	h.sink.Dispatch(chatKey, m)
	return response.Accepted(c, nil)
}
