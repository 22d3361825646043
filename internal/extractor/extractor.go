// Package extractor turns a captured job page into a single best-effort
// extraction result without touching the network.
package extractor

import (
	"encoding/json"
	"log"
	"sort"
	"strings"

	"jobpilot/internal/domain/job"

	"github.com/PuerkitoBio/goquery"
)

const (
	DefaultMinEmbeddedChars = 200
	DefaultMinPageTextChars = 200
	DefaultMaxPageTextChars = 50000
)

// Page is a captured document as the extension or the browser manager saw it.
type Page struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	HTML  string `json:"html"`
}

type Options struct {
	MinEmbeddedChars int
	MinPageTextChars int
	MaxPageTextChars int
}

func (o Options) withDefaults() Options {
	if o.MinEmbeddedChars <= 0 {
		o.MinEmbeddedChars = DefaultMinEmbeddedChars
	}
	if o.MinPageTextChars <= 0 {
		o.MinPageTextChars = DefaultMinPageTextChars
	}
	if o.MaxPageTextChars <= 0 {
		o.MaxPageTextChars = DefaultMaxPageTextChars
	}
	return o
}

type Extractor struct {
	opts   Options
	logger *log.Logger
}

func New(opts Options, logger *log.Logger) *Extractor {
	return &Extractor{opts: opts.withDefaults(), logger: logger}
}

type candidate struct {
	source job.ExtractionMethod
	text   string
}

// Extract collects every tier independently, then lets the longest
// description win. The method tag always names the tier that supplied the
// description.
func (e *Extractor) Extract(p Page) job.ExtractionResult {
	res := job.ExtractionResult{
		URL:              p.URL,
		Title:            strings.TrimSpace(p.Title),
		ExtractionMethod: job.MethodNone,
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.HTML))
	if err != nil {
		e.logf("[Extractor] parse failed | url=%s err=%v", p.URL, err)
		return res
	}
	if res.Title == "" {
		res.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	var posting map[string]any
	e.guard("json-ld", func() { posting = findJobPosting(doc) })

	var embedded string
	e.guard("embedded", func() { embedded = findEmbeddedDescription(doc, e.opts.MinEmbeddedChars) })

	var frames []string
	e.guard("iframe", func() { frames = findIframeURLs(doc, p.URL) })

	// The expansion pass mutates the document, so it runs after the tiers
	// that read raw scripts and exactly once.
	var text string
	e.guard("page-text", func() {
		expandContent(doc)
		text = pageText(doc, e.opts.MinPageTextChars, e.opts.MaxPageTextChars)
	})

	var rec job.Record
	cands := make([]candidate, 0, 3)
	if posting != nil {
		e.guard("json-ld-record", func() { rec = recordFromPosting(posting, p.URL) })
		if b, err := json.Marshal(posting); err == nil {
			res.StructuredData = b
		}
		if rec.Description != "" {
			cands = append(cands, candidate{source: job.MethodJSONLD, text: rec.Description})
		}
	}
	if textLen(embedded) >= e.opts.MinEmbeddedChars {
		cands = append(cands, candidate{source: job.MethodEmbedded, text: embedded})
	}
	if textLen(text) >= e.opts.MinPageTextChars {
		cands = append(cands, candidate{source: job.MethodPageText, text: text})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return textLen(cands[i].text) > textLen(cands[j].text)
	})

	switch {
	case len(cands) > 0:
		winner := cands[0]
		res.Success = true
		res.RawText = winner.text
		res.ExtractionMethod = winner.source
		if posting != nil {
			rec.Description = winner.text
			rec.Normalize()
			res.JobData = &rec
		}
	case len(frames) > 0:
		res.IframeURLs = frames
	}

	e.logf("[Extractor] done | url=%s method=%s chars=%d iframes=%d", p.URL, res.ExtractionMethod, textLen(res.RawText), len(res.IframeURLs))
	return res
}

func (e *Extractor) guard(tier string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logf("[Extractor] %s tier panicked: %v", tier, r)
		}
	}()
	fn()
}

func (e *Extractor) logf(format string, args ...any) {
	if e == nil || e.logger == nil {
		return
	}
	e.logger.Printf(format, args...)
}
