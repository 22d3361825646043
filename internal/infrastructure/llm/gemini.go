package llm

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type Config struct {
	APIKey  string
	Models  []string
	Timeout time.Duration
}

type geminiGenerator struct {
	client *genai.Client
}

func (g *geminiGenerator) Generate(ctx context.Context, model, prompt string) (string, error) {
	m := g.client.GenerativeModel(model)
	m.ResponseMIMEType = "application/json"
	m.SetTemperature(0.2)
	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		return "", errors.New("gemini returned no text")
	}
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}

// NewGemini returns a client with no generator when no key is configured;
// Analyze then reports ErrNotConfigured instead of failing at boot.
func NewGemini(ctx context.Context, cfg Config, logger *log.Logger) (*Client, func() error, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		if logger != nil {
			logger.Printf("[LLM] GEMINI_API_KEY not set, analysis disabled")
		}
		return newClient(nil, cfg.Models, cfg.Timeout, logger), func() error { return nil }, nil
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, nil, err
	}
	return newClient(&geminiGenerator{client: client}, cfg.Models, cfg.Timeout, logger), client.Close, nil
}
