package routes

import (
	"net/http"

	"jobpilot/internal/delivery/http/handler"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
)

type Registry struct {
	Health  *handler.HealthHandler
	Tabs    *handler.TabsHandler
	Capture *handler.CaptureHandler

	// Auth guards /api and is skipped when nil.
	Auth fiber.Handler
	// WebSocket serves GET /ws; it authenticates on its own.
	WebSocket fiber.Handler
	Metrics   http.Handler
}

func (r *Registry) Register(app *fiber.App) {
	if app == nil || r == nil {
		return
	}

	r.registerOps(app)
	r.registerAPI(app)
}

func (r *Registry) registerOps(app *fiber.App) {
	if r.Health != nil {
		r.Health.RegisterRoutes(app)
	}
	if r.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(r.Metrics))
	}
	if r.WebSocket != nil {
		app.Get("/ws", r.WebSocket)
	}
}

func (r *Registry) registerAPI(app *fiber.App) {
	api := app.Group("/api")
	if r.Auth != nil {
		api = app.Group("/api", r.Auth)
	}
	v1 := api.Group("/v1")

	if r.Tabs != nil {
		r.Tabs.RegisterRoutes(v1.Group("/tabs"))
	}
	if r.Capture != nil {
		r.Capture.RegisterRoutes(v1.Group("/chat"))
	}
}
