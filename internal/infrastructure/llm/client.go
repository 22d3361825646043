// Package llm is the fast-analysis backend: one model call that returns a
// normalized job record and a fit analysis.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"jobpilot/internal/domain/analysis"
	"jobpilot/internal/domain/job"
)

var (
	ErrNotConfigured     = errors.New("analysis backend is not configured")
	ErrQuotaExhausted    = errors.New("analysis quota exhausted for today on every configured model; try again tomorrow or add another API key")
	ErrMalformedResponse = errors.New("analysis backend returned malformed output")
)

type generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

type Input struct {
	RawText        string
	StructuredData json.RawMessage
	Record         *job.Record
	Profile        analysis.Profile
	KeywordScore   int
}

type Client struct {
	gen     generator
	models  []string
	timeout time.Duration
	logger  *log.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

func newClient(gen generator, models []string, timeout time.Duration, logger *log.Logger) *Client {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{gen: gen, models: models, timeout: timeout, logger: logger, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) Models() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.models...)
}

type limited struct {
	model string
	kind  limitKind
	err   error
}

// Analyze tries every configured model once. If all of them are rate limited
// and at least one limit is transient, it waits that model's cooldown and
// retries exactly once on it. Daily exhaustion everywhere fails fast.
func (c *Client) Analyze(ctx context.Context, in Input) (analysis.Outcome, error) {
	if c == nil || c.gen == nil || len(c.models) == 0 {
		return analysis.Outcome{}, ErrNotConfigured
	}
	prompt := buildAnalysisPrompt(in)

	var lastErr error
	var hits []limited
	for _, model := range c.models {
		out, err := c.attempt(ctx, model, prompt, in)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return analysis.Outcome{}, ctx.Err()
		}
		if k := classifyLimit(err); k != notLimited {
			hits = append(hits, limited{model: model, kind: k, err: err})
			c.logf("[LLM] rate limited | model=%s daily=%t err=%v", model, k == limitDaily, err)
			continue
		}
		c.logf("[LLM] attempt failed | model=%s err=%v", model, err)
		lastErr = err
	}

	for _, h := range hits {
		if h.kind != limitTransient {
			continue
		}
		wait := cooldownFrom(h.err)
		c.logf("[LLM] retrying after cooldown | model=%s wait=%s", h.model, wait)
		if err := c.sleep(ctx, wait); err != nil {
			return analysis.Outcome{}, err
		}
		out, err := c.attempt(ctx, h.model, prompt, in)
		if err != nil && classifyLimit(err) == limitDaily {
			return analysis.Outcome{}, fmt.Errorf("%w: %v", ErrQuotaExhausted, err)
		}
		return out, err
	}
	if lastErr != nil {
		return analysis.Outcome{}, lastErr
	}
	return analysis.Outcome{}, fmt.Errorf("%w: %v", ErrQuotaExhausted, hits[len(hits)-1].err)
}

func (c *Client) attempt(ctx context.Context, model, prompt string, in Input) (analysis.Outcome, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	raw, err := c.gen.Generate(callCtx, model, prompt)
	if err != nil {
		return analysis.Outcome{}, err
	}
	out, err := ParseOutcome(raw)
	if err != nil {
		return analysis.Outcome{}, err
	}
	out.Analysis.KeywordScore = in.KeywordScore
	c.logf("[LLM] analysis ok | model=%s fit=%d variant=%s took=%s", model, out.Analysis.FitScore, out.Analysis.RecommendedVariant, time.Since(started).Round(time.Millisecond))
	return out, nil
}

type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	s = strings.TrimSuffix(s, "%")
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexInt(math.Round(v))
	return nil
}

type wireFit struct {
	FitScore            flexInt  `json:"fit_score"`
	Confidence          flexInt  `json:"confidence"`
	RecommendedResume   string   `json:"recommended_resume"`
	Reasoning           string   `json:"reasoning"`
	MatchedStrengths    []string `json:"matched_strengths"`
	Gaps                []string `json:"gaps"`
	GapMitigation       []string `json:"gap_mitigation"`
	TailoringPriorities []string `json:"tailoring_priorities"`
	ATSKeywords         []string `json:"ats_keywords"`
	RedFlags            []string `json:"red_flags"`
	Competition         string   `json:"competition"`
	ApplyRecommendation string   `json:"apply_recommendation"`
}

type wireOutcome struct {
	Job      *job.Record `json:"job"`
	Analysis wireFit     `json:"analysis"`
}

// ParseOutcome repairs, validates and normalizes one model response.
func ParseOutcome(raw string) (analysis.Outcome, error) {
	fixed, err := RepairJSON(raw)
	if err != nil {
		return analysis.Outcome{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := validateOutcome([]byte(fixed)); err != nil {
		return analysis.Outcome{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	var w wireOutcome
	if err := json.Unmarshal([]byte(fixed), &w); err != nil {
		return analysis.Outcome{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	variant, ok := analysis.ParseVariant(w.Analysis.RecommendedResume)
	if !ok {
		variant = analysis.VariantGeneral
	}
	fit := analysis.Fit{
		FitScore:            int(w.Analysis.FitScore),
		Confidence:          int(w.Analysis.Confidence),
		RecommendedVariant:  variant,
		Reasoning:           strings.TrimSpace(w.Analysis.Reasoning),
		MatchedStrengths:    w.Analysis.MatchedStrengths,
		Gaps:                w.Analysis.Gaps,
		GapMitigation:       w.Analysis.GapMitigation,
		TailoringPriorities: w.Analysis.TailoringPriorities,
		ATSKeywords:         w.Analysis.ATSKeywords,
		RedFlags:            w.Analysis.RedFlags,
		Competition:         w.Analysis.Competition,
		ApplyRecommendation: w.Analysis.ApplyRecommendation,
	}
	fit.Normalize()

	var rec job.Record
	if w.Job != nil {
		rec = *w.Job
	}
	rec.Normalize()
	return analysis.Outcome{Job: rec, Analysis: fit}, nil
}

func (c *Client) logf(format string, args ...any) {
	if c == nil || c.logger == nil {
		return
	}
	c.logger.Printf(format, args...)
}
