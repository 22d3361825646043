package handler

import (
	"context"
	"errors"
	"log"
	"net/url"
	"strings"
	"time"

	"jobpilot/internal/delivery/http/middleware"
	"jobpilot/internal/domain/job"
	"jobpilot/internal/extractor"
	"jobpilot/internal/pkg/response"
	"jobpilot/internal/store"

	"github.com/gofiber/fiber/v3"
)

const renderTimeout = 90 * time.Second

type Coordinator interface {
	Submit(tabID string, res job.ExtractionResult)
	State(ctx context.Context, tabID string) (store.TabState, bool, error)
	HandleTabClosed(ctx context.Context, tabID string) error
}

type PageExtractor interface {
	Extract(p extractor.Page) job.ExtractionResult
}

type PageRenderer interface {
	Render(ctx context.Context, url string) (extractor.Page, error)
}

type TabsHandler struct {
	coord    Coordinator
	extract  PageExtractor
	renderer PageRenderer
	logger   *log.Logger
}

// NewTabsHandler accepts a nil renderer; the render route then answers 503.
func NewTabsHandler(coord Coordinator, extract PageExtractor, renderer PageRenderer, logger *log.Logger) *TabsHandler {
	return &TabsHandler{coord: coord, extract: extract, renderer: renderer, logger: logger}
}

func (h *TabsHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}

	r.Post("/:tabId/extraction", h.HandleExtraction)
	r.Post("/:tabId/page", h.HandlePage)
	r.Post("/:tabId/render", h.HandleRender)
	r.Get("/:tabId", h.HandleGet)
	r.Delete("/:tabId", h.HandleClose)
}

type acceptedResponse struct {
	TabID            string `json:"tabId"`
	ExtractionMethod string `json:"extractionMethod"`
	Success          bool   `json:"success"`
}

// HandleExtraction accepts a result the extension's content script produced.
func (h *TabsHandler) HandleExtraction(c fiber.Ctx) error {
	tabID, err := tabIDParam(c)
	if err != nil {
		return err
	}

	var res job.ExtractionResult
	if err := c.Bind().Body(&res); err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, err)
	}
	if res.ExtractionMethod == "" {
		res.ExtractionMethod = job.MethodNone
	}
	if !res.ExtractionMethod.Valid() {
		return middleware.NewAppError(fiber.StatusBadRequest, "Unknown extraction method", nil, nil)
	}
	if !res.HasContent() {
		return middleware.NewAppError(fiber.StatusUnprocessableEntity, "No job content found on this page", nil, nil)
	}

	return h.accept(c, tabID, res)
}

type pageRequest struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	HTML  string `json:"html"`
}

// HandlePage extracts from a document snapshot the extension posted.
func (h *TabsHandler) HandlePage(c fiber.Ctx) error {
	tabID, err := tabIDParam(c)
	if err != nil {
		return err
	}

	var req pageRequest
	if err := c.Bind().Body(&req); err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, err)
	}
	if strings.TrimSpace(req.HTML) == "" {
		return middleware.NewAppError(fiber.StatusBadRequest, "html is required", nil, nil)
	}

	res := h.extract.Extract(extractor.Page{URL: strings.TrimSpace(req.URL), Title: req.Title, HTML: req.HTML})
	if !res.HasContent() {
		return middleware.NewAppError(fiber.StatusUnprocessableEntity, "No job content found on this page", res, nil)
	}
	return h.accept(c, tabID, res)
}

type renderRequest struct {
	URL string `json:"url"`
}

// HandleRender loads the URL in the service's own browser and extracts it.
func (h *TabsHandler) HandleRender(c fiber.Ctx) error {
	tabID, err := tabIDParam(c)
	if err != nil {
		return err
	}
	if h.renderer == nil {
		return middleware.NewAppError(fiber.StatusServiceUnavailable, "Browser not available", nil, nil)
	}

	var req renderRequest
	if err := c.Bind().Body(&req); err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, err)
	}
	u, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return middleware.NewAppError(fiber.StatusBadRequest, "url must be an absolute http(s) URL", nil, err)
	}

	ctx, cancel := context.WithTimeout(c.Context(), renderTimeout)
	defer cancel()
	page, err := h.renderer.Render(ctx, u.String())
	if err != nil {
		if h.logger != nil {
			h.logger.Printf("[HTTP] render failed | tab=%s url=%s err=%v", tabID, u, err)
		}
		return middleware.NewAppError(fiber.StatusBadGateway, "Could not load the page", nil, err)
	}

	res := h.extract.Extract(page)
	if !res.HasContent() {
		return middleware.NewAppError(fiber.StatusUnprocessableEntity, "No job content found on this page", res, nil)
	}
	return h.accept(c, tabID, res)
}

func (h *TabsHandler) accept(c fiber.Ctx, tabID string, res job.ExtractionResult) error {
	h.coord.Submit(tabID, res)
	if h.logger != nil {
		h.logger.Printf("[HTTP] extraction accepted | tab=%s method=%s", tabID, res.ExtractionMethod)
	}
	return response.Accepted(c, acceptedResponse{
		TabID:            tabID,
		ExtractionMethod: string(res.ExtractionMethod),
		Success:          res.Success,
	})
}

func (h *TabsHandler) HandleGet(c fiber.Ctx) error {
	tabID, err := tabIDParam(c)
	if err != nil {
		return err
	}
	st, ok, err := h.coord.State(c.Context(), tabID)
	if err != nil {
		return middleware.NewAppError(fiber.StatusInternalServerError, response.MessageInternalServerError, nil, err)
	}
	if !ok {
		return middleware.NewAppError(fiber.StatusNotFound, "Tab not found", nil, nil)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, st)
}

// HandleClose is called when the originating tab goes away.
func (h *TabsHandler) HandleClose(c fiber.Ctx) error {
	tabID, err := tabIDParam(c)
	if err != nil {
		return err
	}
	if err := h.coord.HandleTabClosed(c.Context(), tabID); err != nil {
		return middleware.NewAppError(fiber.StatusInternalServerError, response.MessageInternalServerError, nil, err)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, nil)
}

var errNoTabID = errors.New("missing tab id")

func tabIDParam(c fiber.Ctx) (string, error) {
	tabID := strings.TrimSpace(c.Params("tabId"))
	if tabID == "" {
		return "", middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, errNoTabID)
	}
	return tabID, nil
}
