package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Extraction("json-ld")
	m.Extraction("json-ld")
	m.Completion("capture")
	m.ChatRun("failed", "")

	if got := testutil.ToFloat64(m.extractions.WithLabelValues("json-ld")); got != 2 {
		t.Fatalf("extractions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.chatRuns.WithLabelValues("failed", "none")); got != 1 {
		t.Fatalf("chat runs = %v, want 1", got)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.HTTPRequest("GET", "/health", 200, 3*time.Millisecond)
	m.PDF("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{`jobpilot_http_requests_total{method="GET",route="/health",status="200"} 1`, `jobpilot_pdfs_total{outcome="ok"} 1`} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("missing %q in exposition", want)
		}
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.Extraction("none")
	m.Analysis("ok", time.Second)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("nil metrics handler should 404, got %d", rec.Code)
	}
}
