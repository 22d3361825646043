package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"sync"
	"testing"

	"jobpilot/internal/capture"
	"jobpilot/internal/delivery/http/handler"
	"jobpilot/internal/delivery/http/middleware"
	"jobpilot/internal/delivery/http/routes"
	"jobpilot/internal/domain/job"
	"jobpilot/internal/extractor"
	"jobpilot/internal/pkg/jwt"
	"jobpilot/internal/store"

	"github.com/gofiber/fiber/v3"
)

type fakeCoordinator struct {
	mu        sync.Mutex
	submitted map[string]job.ExtractionResult
	closed    []string
	states    map[string]store.TabState
	closeErr  error
}

func (f *fakeCoordinator) Submit(tabID string, res job.ExtractionResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitted == nil {
		f.submitted = map[string]job.ExtractionResult{}
	}
	f.submitted[tabID] = res
}

func (f *fakeCoordinator) State(_ context.Context, tabID string) (store.TabState, bool, error) {
	st, ok := f.states[tabID]
	return st, ok, nil
}

func (f *fakeCoordinator) HandleTabClosed(_ context.Context, tabID string) error {
	f.closed = append(f.closed, tabID)
	return f.closeErr
}

type fakeRenderer struct {
	page extractor.Page
	err  error
	got  string
}

func (f *fakeRenderer) Render(_ context.Context, url string) (extractor.Page, error) {
	f.got = url
	return f.page, f.err
}

type fakeSink struct {
	keys []string
	msgs []capture.Message
}

func (f *fakeSink) Dispatch(chatKey string, m capture.Message) {
	f.keys = append(f.keys, chatKey)
	f.msgs = append(f.msgs, m)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

const postingHTML = `<html><head><script type="application/ld+json">` +
	`{"@type":"JobPosting","title":"ML Engineer","description":"Train and ship ranking models.","hiringOrganization":{"name":"Acme"}}` +
	`</script></head><body><p>ML Engineer</p></body></html>`

func newApp(t *testing.T, coord *fakeCoordinator, r *fakeRenderer, sink *fakeSink, auth fiber.Handler) *fiber.App {
	t.Helper()
	app := fiber.New()
	app.Use(middleware.NewErrorMiddleware(nil).Middleware())

	var renderer handler.PageRenderer
	if r != nil {
		renderer = r
	}
	reg := &routes.Registry{
		Health:  handler.NewHealthHandler(map[string]handler.Pinger{"store": pinger{}}),
		Tabs:    handler.NewTabsHandler(coord, extractor.New(extractor.Options{}, nil), renderer, nil),
		Capture: handler.NewCaptureHandler(sink),
		Auth:    auth,
	}
	reg.Register(app)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, target string, body any, header map[string]string) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, target, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestTabs_ExtractionAccepted(t *testing.T) {
	coord := &fakeCoordinator{}
	app := newApp(t, coord, nil, &fakeSink{}, nil)

	status, body := doJSON(t, app, "POST", "/api/v1/tabs/42/extraction", job.ExtractionResult{
		Success:          true,
		RawText:          "ML Engineer at Acme",
		URL:              "https://acme.example/jobs/1",
		ExtractionMethod: job.MethodPageText,
	}, nil)
	if status != fiber.StatusAccepted {
		t.Fatalf("expected 202, got %d body=%v", status, body)
	}
	if _, ok := coord.submitted["42"]; !ok {
		t.Fatalf("expected submission for tab 42")
	}
}

func TestTabs_ExtractionValidation(t *testing.T) {
	coord := &fakeCoordinator{}
	app := newApp(t, coord, nil, &fakeSink{}, nil)

	status, _ := doJSON(t, app, "POST", "/api/v1/tabs/42/extraction", map[string]any{
		"success": true, "rawText": "x", "extractionMethod": "telepathy",
	}, nil)
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for unknown method, got %d", status)
	}

	status, _ = doJSON(t, app, "POST", "/api/v1/tabs/42/extraction", job.ExtractionResult{ExtractionMethod: job.MethodNone}, nil)
	if status != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty result, got %d", status)
	}
	if len(coord.submitted) != 0 {
		t.Fatalf("nothing should be submitted")
	}
}

func TestTabs_ExtractionWithOnlyIframesAccepted(t *testing.T) {
	coord := &fakeCoordinator{}
	app := newApp(t, coord, nil, &fakeSink{}, nil)

	status, _ := doJSON(t, app, "POST", "/api/v1/tabs/9/extraction", job.ExtractionResult{
		ExtractionMethod: job.MethodNone,
		IframeURLs:       []string{"https://boards.example/embed/1"},
	}, nil)
	if status != fiber.StatusAccepted {
		t.Fatalf("expected 202, got %d", status)
	}
}

func TestTabs_PageExtractsServerSide(t *testing.T) {
	coord := &fakeCoordinator{}
	app := newApp(t, coord, nil, &fakeSink{}, nil)

	status, body := doJSON(t, app, "POST", "/api/v1/tabs/7/page", map[string]string{
		"url": "https://acme.example/jobs/1", "title": "ML Engineer", "html": postingHTML,
	}, nil)
	if status != fiber.StatusAccepted {
		t.Fatalf("expected 202, got %d body=%v", status, body)
	}
	res := coord.submitted["7"]
	if res.ExtractionMethod != job.MethodJSONLD || res.JobData == nil || res.JobData.Company != "Acme" {
		t.Fatalf("unexpected extraction: %+v", res)
	}

	status, _ = doJSON(t, app, "POST", "/api/v1/tabs/7/page", map[string]string{"url": "x"}, nil)
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 without html, got %d", status)
	}
}

func TestTabs_Render(t *testing.T) {
	coord := &fakeCoordinator{}
	r := &fakeRenderer{page: extractor.Page{URL: "https://acme.example/jobs/1", Title: "ML Engineer", HTML: postingHTML}}
	app := newApp(t, coord, r, &fakeSink{}, nil)

	status, _ := doJSON(t, app, "POST", "/api/v1/tabs/3/render", map[string]string{"url": "ftp://acme.example"}, nil)
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for non-http url, got %d", status)
	}

	status, _ = doJSON(t, app, "POST", "/api/v1/tabs/3/render", map[string]string{"url": "https://acme.example/jobs/1"}, nil)
	if status != fiber.StatusAccepted {
		t.Fatalf("expected 202, got %d", status)
	}
	if r.got != "https://acme.example/jobs/1" {
		t.Fatalf("unexpected render url %q", r.got)
	}

	r.err = errors.New("net::ERR_NAME_NOT_RESOLVED")
	status, _ = doJSON(t, app, "POST", "/api/v1/tabs/3/render", map[string]string{"url": "https://acme.example/jobs/2"}, nil)
	if status != fiber.StatusBadGateway {
		t.Fatalf("expected 502, got %d", status)
	}
}

func TestTabs_RenderWithoutBrowser(t *testing.T) {
	app := newApp(t, &fakeCoordinator{}, nil, &fakeSink{}, nil)
	status, _ := doJSON(t, app, "POST", "/api/v1/tabs/3/render", map[string]string{"url": "https://acme.example"}, nil)
	if status != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", status)
	}
}

func TestTabs_GetAndClose(t *testing.T) {
	coord := &fakeCoordinator{states: map[string]store.TabState{
		"5": {TabID: "5", Phase: store.PhaseAnalyzed},
	}}
	app := newApp(t, coord, nil, &fakeSink{}, nil)

	status, body := doJSON(t, app, "GET", "/api/v1/tabs/5", nil, nil)
	if status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	data, _ := body["data"].(map[string]any)
	if data["phase"] != string(store.PhaseAnalyzed) {
		t.Fatalf("unexpected state body: %v", body)
	}

	status, _ = doJSON(t, app, "GET", "/api/v1/tabs/6", nil, nil)
	if status != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}

	status, _ = doJSON(t, app, "DELETE", "/api/v1/tabs/5", nil, nil)
	if status != fiber.StatusOK || len(coord.closed) != 1 || coord.closed[0] != "5" {
		t.Fatalf("expected close of tab 5, got status=%d closed=%v", status, coord.closed)
	}
}

func TestCapture_RelaysMessages(t *testing.T) {
	sink := &fakeSink{}
	app := newApp(t, &fakeCoordinator{}, nil, sink, nil)

	status, _ := doJSON(t, app, "POST", "/api/v1/chat/chat-1/capture", capture.Message{
		Kind: capture.KindChunk, ID: "s1", URL: "https://claude.ai/api/x/completion", Data: "data: {}\n",
	}, nil)
	if status != fiber.StatusAccepted {
		t.Fatalf("expected 202, got %d", status)
	}
	if len(sink.keys) != 1 || sink.keys[0] != "chat-1" || sink.msgs[0].ID != "s1" {
		t.Fatalf("unexpected relay: %v %v", sink.keys, sink.msgs)
	}

	status, _ = doJSON(t, app, "POST", "/api/v1/chat/chat-1/capture", capture.Message{Kind: "noise", ID: "s1"}, nil)
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %d", status)
	}
	status, _ = doJSON(t, app, "POST", "/api/v1/chat/chat-1/capture", capture.Message{Kind: capture.KindEnd}, nil)
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 without id, got %d", status)
	}
}

func TestAuth_GuardsAPI(t *testing.T) {
	svc := jwt.NewHMACService("secret", 0)
	auth := middleware.NewAuthMiddleware(svc).Middleware()
	coord := &fakeCoordinator{states: map[string]store.TabState{"1": {TabID: "1"}}}
	app := newApp(t, coord, nil, &fakeSink{}, auth)

	status, _ := doJSON(t, app, "GET", "/api/v1/tabs/1", nil, nil)
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}
	status, _ = doJSON(t, app, "GET", "/api/v1/tabs/1", nil, map[string]string{"Authorization": "Bearer nope"})
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", status)
	}

	tok, err := svc.Issue("ext")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	status, _ = doJSON(t, app, "GET", "/api/v1/tabs/1", nil, map[string]string{"Authorization": "Bearer " + tok})
	if status != fiber.StatusOK {
		t.Fatalf("expected 200 with token, got %d", status)
	}

	status, _ = doJSON(t, app, "GET", "/health", nil, nil)
	if status != fiber.StatusOK {
		t.Fatalf("health must stay open, got %d", status)
	}
}

func TestHealth_Degraded(t *testing.T) {
	app := fiber.New()
	handler.NewHealthHandler(map[string]handler.Pinger{
		"redis": pinger{err: errors.New("redis unavailable")},
		"none":  nil,
	}).RegisterRoutes(app)

	status, body := doJSON(t, app, "GET", "/health", nil, nil)
	if status != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", status)
	}
	if body["message"] != "degraded" {
		t.Fatalf("unexpected body: %v", body)
	}
}
