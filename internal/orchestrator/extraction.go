package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"jobpilot/internal/domain/analysis"
	"jobpilot/internal/domain/job"
	"jobpilot/internal/domain/matching"
	"jobpilot/internal/infrastructure/llm"
	"jobpilot/internal/infrastructure/tracking"
	"jobpilot/internal/prompt"
	"jobpilot/internal/scraper"
	"jobpilot/internal/store"
	"jobpilot/internal/ws"
)

// Submit runs HandleExtraction in the background; the outcome reaches the
// tab through notifications.
func (o *Orchestrator) Submit(tabID string, res job.ExtractionResult) {
	o.goSafe("extraction", func() {
		_ = o.HandleExtraction(context.Background(), tabID, res)
	})
}

// HandleExtraction takes one page extraction through enrichment and
// analysis, records it, and starts the chat run when a prompt exists.
// Hard input errors are returned after the tab has been notified.
func (o *Orchestrator) HandleExtraction(ctx context.Context, tabID string, res job.ExtractionResult) error {
	if strings.TrimSpace(tabID) == "" {
		return ErrNoTab
	}
	o.d.Metrics.Extraction(string(res.ExtractionMethod))
	o.logf("[Orchestrator] extraction received | tab=%s method=%s chars=%d iframes=%d", tabID, res.ExtractionMethod, utf8.RuneCountInString(res.RawText), len(res.IframeURLs))

	profile, err := o.d.Profile()
	if err != nil {
		o.fail(ctx, tabID, ws.EventAnalysisFailed, err)
		return err
	}

	res = o.enrich(ctx, res)
	if !res.Success || strings.TrimSpace(res.RawText) == "" {
		o.fail(ctx, tabID, ws.EventExtractionFailed, ErrNoContent)
		return ErrNoContent
	}
	extracted := res
	o.updateTab(ctx, tabID, func(st *store.TabState) {
		*st = store.TabState{TabID: tabID, Phase: store.PhaseExtracted, Extraction: &extracted}
	})

	outcome, err := o.analyze(ctx, res, profile)
	if err != nil {
		o.fail(ctx, tabID, ws.EventAnalysisFailed, err)
		return err
	}

	text, ok, err := o.buildPrompt(outcome, profile)
	if err != nil {
		o.logf("[Orchestrator] prompt build failed | tab=%s err=%v", tabID, err)
	}
	o.updateTab(ctx, tabID, func(st *store.TabState) {
		st.Phase = store.PhaseAnalyzed
		st.Outcome = &outcome
		st.Prompt = text
		st.Error = ""
	})
	o.notify(tabID, ws.EventAnalysisReady, map[string]any{
		"job":        outcome.Job,
		"analysis":   outcome.Analysis,
		"promptUsed": ok,
	})

	o.track(tabID, res, outcome)

	if ok && o.d.Chats != nil && o.d.Driver != nil {
		o.goSafe("chat", func() { o.runChat(tabID, outcome, text) })
	}
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, tabID, eventType string, err error) {
	o.logf("[Orchestrator] %s | tab=%s err=%v", eventType, tabID, err)
	o.updateTab(ctx, tabID, func(st *store.TabState) {
		st.Phase = store.PhaseFailed
		st.Error = err.Error()
	})
	o.notify(tabID, eventType, map[string]any{"error": userMessage(err)})
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, analysis.ErrNoProfile):
		return "No candidate profile configured. Run `jobpilot profile` or set PROFILE_PATH."
	case errors.Is(err, llm.ErrQuotaExhausted):
		return llm.ErrQuotaExhausted.Error()
	case errors.Is(err, llm.ErrNotConfigured):
		return "Analysis backend is not configured. Set GEMINI_API_KEY."
	case errors.Is(err, llm.ErrMalformedResponse):
		return "The analysis backend returned a response that could not be parsed."
	case errors.Is(err, context.DeadlineExceeded):
		return "Analysis timed out."
	}
	return err.Error()
}

// enrich swaps in longer text from the crawl service, or from direct iframe
// fetches when no crawl service is reachable. Failures only cost quality.
func (o *Orchestrator) enrich(ctx context.Context, res job.ExtractionResult) job.ExtractionResult {
	best := textLen(res.RawText)
	var text string
	var method job.ExtractionMethod

	if o.d.Crawler != nil && o.d.Crawler.Health(ctx) {
		targets := append([]string{res.URL}, res.IframeURLs...)
		for _, u := range targets {
			if strings.TrimSpace(u) == "" {
				continue
			}
			md, err := o.d.Crawler.Crawl(ctx, u)
			if err != nil {
				o.logf("[Orchestrator] crawl failed | url=%s err=%v", u, err)
				continue
			}
			if n := textLen(md); n > best {
				best, text = n, md
				method = job.MethodPageText
				if u != res.URL {
					method = job.MethodIframe
				}
			}
		}
	} else if len(res.IframeURLs) > 0 && o.d.Frames != nil {
		if fr, ok := scraper.Longest(o.d.Frames.FetchAll(ctx, res.IframeURLs)); ok {
			if n := textLen(fr.Text); n > best {
				best, text, method = n, fr.Text, job.MethodIframe
			}
		}
	}

	if text == "" {
		return res
	}
	o.logf("[Orchestrator] enriched | url=%s chars=%d method=%s", res.URL, best, method)
	res.RawText = text
	res.Success = true
	res.ExtractionMethod = method
	if res.JobData != nil {
		rec := *res.JobData
		rec.Description = text
		res.JobData = &rec
	}
	return res
}

func (o *Orchestrator) analyze(ctx context.Context, res job.ExtractionResult, profile analysis.Profile) (analysis.Outcome, error) {
	if o.d.Analyzer == nil {
		return analysis.Outcome{}, llm.ErrNotConfigured
	}
	var required, optional []string
	if res.JobData != nil {
		required, optional = res.JobData.Requirements, res.JobData.NiceToHaves
	}
	skills := make([]matching.UserSkill, 0, len(profile.Skills))
	for _, s := range profile.Skills {
		skills = append(skills, matching.UserSkill{Name: s.Name, YearsExperience: s.Years})
	}
	keyword := matching.Calculate(skills, profile.YearsExperience, required, optional, res.RawText)

	callCtx, cancel := context.WithTimeout(ctx, o.opts.AnalysisTimeout)
	defer cancel()
	started := o.now()
	out, err := o.d.Analyzer.Analyze(callCtx, llm.Input{
		RawText:        res.RawText,
		StructuredData: res.StructuredData,
		Record:         res.JobData,
		Profile:        profile,
		KeywordScore:   keyword.MatchScore,
	})
	took := o.now().Sub(started)
	if err != nil {
		o.d.Metrics.Analysis("failed", took)
		return analysis.Outcome{}, err
	}
	o.d.Metrics.Analysis("ok", took)

	mergeRecord(&out.Job, res)
	return out, nil
}

// mergeRecord keeps what the page itself stated over the model's reading.
func mergeRecord(rec *job.Record, res job.ExtractionResult) {
	if ex := res.JobData; ex != nil {
		pick := func(dst *string, src string) {
			if s := strings.TrimSpace(src); s != "" {
				*dst = s
			}
		}
		pick(&rec.Title, ex.Title)
		if ex.Company != "" && ex.Company != job.UnknownCompany {
			rec.Company = ex.Company
		}
		pick(&rec.Location, ex.Location)
		pick(&rec.Salary, ex.Salary)
		pick(&rec.Type, ex.Type)
		pick(&rec.URL, ex.URL)
	}
	if strings.TrimSpace(rec.URL) == "" {
		rec.URL = res.URL
	}
	if strings.TrimSpace(rec.Description) == "" {
		rec.Description = res.RawText
	}
	if rec.Source == "" || rec.Source == "other" {
		rec.Source = job.SourceFromURL(rec.URL)
	}
	rec.Normalize()
}

func (o *Orchestrator) buildPrompt(out analysis.Outcome, profile analysis.Profile) (string, bool, error) {
	if o.d.Prompts == nil {
		return "", false, nil
	}
	return o.d.Prompts.Build(out.Analysis.RecommendedVariant, prompt.Input{
		Record:  out.Job,
		Fit:     out.Analysis,
		Profile: profile,
	})
}

func (o *Orchestrator) track(tabID string, res job.ExtractionResult, out analysis.Outcome) {
	if o.d.Tracker == nil {
		return
	}
	o.d.Tracker.Create(tracking.NewJob{
		TabID:    tabID,
		Record:   out.Job,
		Analysis: out.Analysis,
		Method:   string(res.ExtractionMethod),
	}, func(id string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.d.Sessions.SetTrackingID(ctx, tabID, id); err != nil {
			o.logf("[Orchestrator] tracking id not stored | tab=%s err=%v", tabID, err)
		}
	})
}

func textLen(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}
