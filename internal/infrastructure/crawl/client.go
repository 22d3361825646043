// Package crawl talks to the optional headless crawl service that renders a
// URL and returns it as markdown.
package crawl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	DefaultHealthTimeout = 2 * time.Second
	DefaultCrawlTimeout  = 45 * time.Second
)

type Client struct {
	baseURL       string
	client        *http.Client
	healthTimeout time.Duration
	crawlTimeout  time.Duration
	logger        *log.Logger
}

type crawlRequest struct {
	URLs []string `json:"urls"`
}

type crawlResult struct {
	URL      string          `json:"url"`
	Success  *bool           `json:"success"`
	Markdown json.RawMessage `json:"markdown"`
}

type crawlResponse struct {
	Success *bool         `json:"success"`
	Results []crawlResult `json:"results"`
}

// New returns nil when no base URL is configured; every method tolerates a
// nil receiver so callers can skip the enhancement without branching.
func New(baseURL string, healthTimeout, crawlTimeout time.Duration, logger *log.Logger) *Client {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil
	}
	if healthTimeout <= 0 {
		healthTimeout = DefaultHealthTimeout
	}
	if crawlTimeout <= 0 {
		crawlTimeout = DefaultCrawlTimeout
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		client:        &http.Client{},
		healthTimeout: healthTimeout,
		crawlTimeout:  crawlTimeout,
		logger:        logger,
	}
}

func (c *Client) Health(ctx context.Context) bool {
	if c == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Crawl returns cleaned markdown for pageURL, or "" when the service had
// nothing for it.
func (c *Client) Crawl(ctx context.Context, pageURL string) (string, error) {
	if c == nil {
		return "", errors.New("nil crawl client")
	}
	ctx, cancel := context.WithTimeout(ctx, c.crawlTimeout)
	defer cancel()

	endpoint := c.baseURL + "/crawl"
	b, err := json.Marshal(crawlRequest{URLs: []string{strings.TrimSpace(pageURL)}})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		bodyStr := strings.TrimSpace(string(rb))
		if c.logger != nil {
			c.logger.Printf("[Crawl] error endpoint=%s status=%d body=%q", endpoint, resp.StatusCode, bodyStr)
		}
		return "", fmt.Errorf("crawl failed: status=%d", resp.StatusCode)
	}

	var out crawlResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Results) == 0 {
		return "", nil
	}
	r := out.Results[0]
	if r.Success != nil && !*r.Success {
		return "", nil
	}
	return CleanMarkdown(markdownOf(r.Markdown)), nil
}

// markdownOf accepts either a plain string or the object form
// {"raw_markdown": ..., "fit_markdown": ...}.
func markdownOf(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Raw string `json:"raw_markdown"`
		Fit string `json:"fit_markdown"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	if obj.Raw != "" {
		return obj.Raw
	}
	return obj.Fit
}

var (
	mdImageRe     = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdEmptyLinkRe = regexp.MustCompile(`\[\s*\]\([^)]*\)`)
	blankRunRe    = regexp.MustCompile(`\n[ \t]*(?:\n[ \t]*){2,}`)
)

// CleanMarkdown drops embedded images, links without text and runs of blank
// lines.
func CleanMarkdown(md string) string {
	md = strings.ReplaceAll(md, "\r\n", "\n")
	md = mdImageRe.ReplaceAllString(md, "")
	md = mdEmptyLinkRe.ReplaceAllString(md, "")
	md = blankRunRe.ReplaceAllString(md, "\n\n")
	return strings.TrimSpace(md)
}
