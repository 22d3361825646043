package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultHTTPTimeout = 10 * time.Second

// HTTPClient speaks the dashboard REST API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTP(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  &http.Client{Timeout: timeout},
	}
}

type createResponse struct {
	ID   string `json:"id"`
	Data *struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (c *HTTPClient) CreateJob(ctx context.Context, j NewJob) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/jobs", j)
	if err != nil {
		return "", err
	}
	var out createResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}
	id := strings.TrimSpace(out.ID)
	if id == "" && out.Data != nil {
		id = strings.TrimSpace(out.Data.ID)
	}
	if id == "" {
		return "", fmt.Errorf("create response carried no id")
	}
	return id, nil
}

func (c *HTTPClient) PatchJob(ctx context.Context, id string, p Patch) error {
	_, err := c.do(ctx, http.MethodPatch, "/api/jobs/"+url.PathEscape(id), p)
	return err
}

func (c *HTTPClient) AppendEvent(ctx context.Context, jobID string, e Event) error {
	_, err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(jobID)+"/events", e)
	return err
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
