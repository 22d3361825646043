package crawl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCleanMarkdown(t *testing.T) {
	in := "# Title\n\n![logo](https://x/logo.png)\n\n\n\nBody [](https://x) text [link](https://y)\n\n\n\nEnd"
	want := "# Title\n\nBody  text [link](https://y)\n\nEnd"
	if got := CleanMarkdown(in); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestClient_HealthAndCrawl(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/crawl":
			var req crawlRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if len(req.URLs) != 1 || req.URLs[0] != "https://jobs.example.com/1" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{"success":true,"results":[{"url":"https://jobs.example.com/1","success":true,"markdown":{"raw_markdown":"## Role\n\n![x](y)\nShip it","fit_markdown":""}}]}`))
		}
	}))
	defer srv.Close()

	c := New(srv.URL+"/", time.Second, time.Second, nil)
	if !c.Health(context.Background()) {
		t.Fatalf("expected healthy")
	}
	md, err := c.Crawl(context.Background(), "https://jobs.example.com/1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if md != "## Role\n\n\nShip it" && md != "## Role\n\nShip it" {
		t.Fatalf("unexpected markdown %q", md)
	}
}

func TestClient_StringMarkdownAndFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"markdown":"plain text"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, time.Second, nil)
	if c.Health(context.Background()) {
		t.Fatalf("expected unhealthy")
	}
	md, err := c.Crawl(context.Background(), "https://x")
	if err != nil || md != "plain text" {
		t.Fatalf("got %q %v", md, err)
	}

	var nilClient *Client
	if nilClient.Health(context.Background()) {
		t.Fatalf("nil client must report unhealthy")
	}
	if New("  ", 0, 0, nil) != nil {
		t.Fatalf("blank base url must disable the client")
	}
}
