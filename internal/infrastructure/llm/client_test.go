package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"jobpilot/internal/domain/analysis"
)

const okResponse = `{"job":{"title":"Backend Engineer","company":"Acme","description":"Go services"},"analysis":{"fit_score":74,"confidence":60,"recommended_resume":"backend"}}`

type call struct {
	model string
}

type fakeGenerator struct {
	mu    sync.Mutex
	calls []call
	// responses per model, consumed in order; the last one repeats
	script map[string][]result
}

type result struct {
	text string
	err  error
}

func (g *fakeGenerator) Generate(_ context.Context, model, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call{model: model})
	rs := g.script[model]
	if len(rs) == 0 {
		return "", errors.New("no script")
	}
	r := rs[0]
	if len(rs) > 1 {
		g.script[model] = rs[1:]
	}
	return r.text, r.err
}

func newTestClient(gen generator, models ...string) (*Client, *[]time.Duration) {
	c := newClient(gen, models, time.Second, nil)
	var waits []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return c, &waits
}

func TestAnalyze_FirstModelSucceeds(t *testing.T) {
	gen := &fakeGenerator{script: map[string][]result{"flash": {{text: okResponse}}}}
	c, _ := newTestClient(gen, "flash", "pro")
	out, err := c.Analyze(context.Background(), Input{RawText: "text", KeywordScore: 55})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Analysis.FitScore != 74 || out.Analysis.RecommendedVariant != analysis.VariantBackend || out.Analysis.KeywordScore != 55 {
		t.Fatalf("unexpected outcome: %+v", out.Analysis)
	}
	if len(gen.calls) != 1 {
		t.Fatalf("expected one call, got %d", len(gen.calls))
	}
}

func TestAnalyze_FallsThroughToNextModel(t *testing.T) {
	gen := &fakeGenerator{script: map[string][]result{
		"flash": {{text: "not json"}},
		"pro":   {{text: okResponse}},
	}}
	c, waits := newTestClient(gen, "flash", "pro")
	if _, err := c.Analyze(context.Background(), Input{}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(gen.calls) != 2 || len(*waits) != 0 {
		t.Fatalf("calls=%d waits=%d", len(gen.calls), len(*waits))
	}
}

func TestAnalyze_SingleRetryOnTransientLimit(t *testing.T) {
	gen := &fakeGenerator{script: map[string][]result{
		"flash":   {{err: errors.New("googleapi: Error 429: Quota exceeded for metric generate_requests_per_day (daily limit)")}},
		"pro":     {{err: errors.New("googleapi: Error 429: Resource has been exhausted. Please retry in 17.5s.")}, {text: okResponse}},
		"flash-8": {{err: errors.New("rpc error: RESOURCE_EXHAUSTED: requests per day quota")}},
	}}
	c, waits := newTestClient(gen, "flash", "pro", "flash-8")
	out, err := c.Analyze(context.Background(), Input{})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Analysis.FitScore != 74 {
		t.Fatalf("unexpected outcome")
	}
	if len(gen.calls) != 4 {
		t.Fatalf("expected 3 first-round calls and one retry, got %d", len(gen.calls))
	}
	if gen.calls[3].model != "pro" {
		t.Fatalf("retry must target the transiently limited model, got %s", gen.calls[3].model)
	}
	if len(*waits) != 1 || (*waits)[0] != 17500*time.Millisecond {
		t.Fatalf("expected one 17.5s cooldown, got %v", *waits)
	}
}

func TestAnalyze_DailyExhaustionFailsFast(t *testing.T) {
	daily := errors.New("429 quota exceeded: daily limit reached")
	gen := &fakeGenerator{script: map[string][]result{
		"flash": {{err: daily}},
		"pro":   {{err: daily}},
	}}
	c, waits := newTestClient(gen, "flash", "pro")
	_, err := c.Analyze(context.Background(), Input{})
	if !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("expected ErrQuotaExhausted, got %v", err)
	}
	if len(gen.calls) != 2 || len(*waits) != 0 {
		t.Fatalf("must not retry: calls=%d waits=%d", len(gen.calls), len(*waits))
	}
}

func TestAnalyze_NotConfigured(t *testing.T) {
	c := newClient(nil, []string{"flash"}, 0, nil)
	if _, err := c.Analyze(context.Background(), Input{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestCooldownFrom(t *testing.T) {
	cases := map[string]time.Duration{
		"please retry in 4s":                   4 * time.Second,
		`"retryDelay": "21s"`:                  21 * time.Second,
		"retry after 600 seconds":              maxCooldown,
		"quota exceeded, no hint":              defaultCooldown,
		"Resource exhausted. Retry in 0.5s ok": 500 * time.Millisecond,
	}
	for msg, want := range cases {
		if got := cooldownFrom(errors.New(msg)); got != want {
			t.Fatalf("%q: got %s want %s", msg, got, want)
		}
	}
}

func TestBuildAnalysisPrompt(t *testing.T) {
	p := buildAnalysisPrompt(Input{RawText: "We need Go.", KeywordScore: 40, Profile: analysis.Profile{Name: "Dana"}})
	for _, want := range []string{"We need Go.", "40/100", `"name": "Dana"`, "No structured metadata", "backend"} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}
