package app

import (
	"fmt"
	"strings"

	"jobpilot/internal/config"
	"jobpilot/internal/delivery/http/handler"
	"jobpilot/internal/delivery/http/middleware"
	"jobpilot/internal/delivery/http/routes"
	"jobpilot/internal/ws"

	"github.com/gofiber/fiber/v3"
)

type App struct {
	Fiber     *fiber.App
	Container *Container
}

func New(c *Container) *App {
	f := fiber.New(fiber.Config{
		AppName:   c.Config.App.AppName,
		BodyLimit: 16 * 1024 * 1024,
	})

	registerGlobalMiddleware(f, c)
	registerRoutes(f, c)

	return &App{Fiber: f, Container: c}
}

// Bootstrap builds the container and the HTTP app; the returned cleanup
// releases everything the container owns.
func Bootstrap(cfg config.Config) (*App, func() error, error) {
	c, err := NewContainer(cfg)
	if err != nil {
		return nil, nil, err
	}
	return New(c), c.Close, nil
}

func registerGlobalMiddleware(app *fiber.App, c *Container) {
	if app == nil {
		return
	}

	app.Use(middleware.NewAccessLogMiddleware(c.Logger, c.Metrics).Middleware())
	app.Use(middleware.NewErrorMiddleware(c.Logger).Middleware())
}

func registerRoutes(app *fiber.App, c *Container) {
	if app == nil {
		return
	}

	checks := map[string]handler.Pinger{}
	if c.Redis != nil {
		checks["redis"] = c.Redis
	}
	if c.DB != nil {
		checks["database"] = c.DB
	}

	var verify ws.TokenVerifier
	reg := &routes.Registry{
		Health:  handler.NewHealthHandler(checks),
		Tabs:    handler.NewTabsHandler(c.Orchestrator, c.Extractor, c.Browser, c.Logger),
		Capture: handler.NewCaptureHandler(c.Bridge),
		Metrics: c.Metrics.Handler(),
	}
	if c.JWT != nil {
		reg.Auth = middleware.NewAuthMiddleware(c.JWT).Middleware()
		verify = c.JWT.Verify
	}
	reg.WebSocket = ws.NewHandler(c.Hub, verify, c.Logger).HandleTabWS
	reg.Register(app)
}

func ListenAddr(port string) (string, error) {
	p := strings.TrimSpace(port)
	if p == "" {
		return "", fmt.Errorf("empty HTTP port")
	}
	if strings.HasPrefix(p, ":") {
		return p, nil
	}
	return ":" + p, nil
}
