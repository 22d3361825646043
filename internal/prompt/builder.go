// Package prompt renders the second-stage writing prompt from per-variant
// templates. Placeholders use {{name}}; unknown placeholders are kept as is.
package prompt

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/valyala/fasttemplate"

	"jobpilot/internal/domain/analysis"
	"jobpilot/internal/domain/job"
)

// FallbackName is used when no template exists for the recommended variant.
const FallbackName = "default"

var extensions = []string{".md", ".txt", ".tmpl"}

type Builder struct {
	fsys   fs.FS
	logger *log.Logger

	mu    sync.RWMutex
	cache map[string]*fasttemplate.Template
}

// NewDir reads templates from dir. A blank dir yields a builder with no
// templates, so every Build reports ok=false.
func NewDir(dir string, logger *log.Logger) *Builder {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return New(nil, logger)
	}
	return New(os.DirFS(dir), logger)
}

func New(fsys fs.FS, logger *log.Logger) *Builder {
	return &Builder{fsys: fsys, logger: logger, cache: map[string]*fasttemplate.Template{}}
}

// Input is everything a template can reference.
type Input struct {
	Record  job.Record
	Fit     analysis.Fit
	Profile analysis.Profile
}

// Build returns ok=false when neither the variant's template nor the
// fallback exists; that is not an error.
func (b *Builder) Build(variant analysis.Variant, in Input) (string, bool, error) {
	if b == nil || b.fsys == nil {
		return "", false, nil
	}
	t, err := b.lookup(string(variant))
	if err != nil {
		return "", false, err
	}
	if t == nil {
		if t, err = b.lookup(FallbackName); err != nil || t == nil {
			return "", false, err
		}
	}

	values := fields(in)
	out := t.ExecuteFuncString(func(w io.Writer, tag string) (int, error) {
		key := strings.ToLower(strings.TrimSpace(tag))
		if v, ok := values[key]; ok {
			return w.Write([]byte(v))
		}
		return w.Write([]byte("{{" + tag + "}}"))
	})
	return strings.TrimSpace(out), true, nil
}

// Reset drops cached templates so edits on disk are picked up.
func (b *Builder) Reset() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.cache = map[string]*fasttemplate.Template{}
	b.mu.Unlock()
}

func (b *Builder) lookup(name string) (*fasttemplate.Template, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, "/\\") {
		return nil, nil
	}
	b.mu.RLock()
	t, ok := b.cache[name]
	b.mu.RUnlock()
	if ok {
		return t, nil
	}

	for _, ext := range extensions {
		raw, err := fs.ReadFile(b.fsys, path.Clean(name+ext))
		if err != nil {
			continue
		}
		t, err := fasttemplate.NewTemplate(string(raw), "{{", "}}")
		if err != nil {
			return nil, fmt.Errorf("template %s%s: %w", name, ext, err)
		}
		b.mu.Lock()
		b.cache[name] = t
		b.mu.Unlock()
		if b.logger != nil {
			b.logger.Printf("[Prompt] template loaded | name=%s%s", name, ext)
		}
		return t, nil
	}
	return nil, nil
}

func fields(in Input) map[string]string {
	r, f := in.Record, in.Fit
	profile, _ := json.MarshalIndent(in.Profile, "", "  ")
	return map[string]string{
		"title":                r.Title,
		"company":              r.Company,
		"location":             r.Location,
		"salary":               r.Salary,
		"type":                 r.Type,
		"url":                  r.URL,
		"source":               r.Source,
		"description":          r.Description,
		"requirements":         bullets(r.Requirements),
		"nice_to_haves":        bullets(r.NiceToHaves),
		"fit_score":            strconv.Itoa(f.FitScore),
		"confidence":           strconv.Itoa(f.Confidence),
		"keyword_score":        strconv.Itoa(f.KeywordScore),
		"variant":              string(f.RecommendedVariant),
		"reasoning":            f.Reasoning,
		"matched_strengths":    bullets(f.MatchedStrengths),
		"gaps":                 bullets(f.Gaps),
		"gap_mitigation":       bullets(f.GapMitigation),
		"tailoring_priorities": bullets(f.TailoringPriorities),
		"ats_keywords":         strings.Join(f.ATSKeywords, ", "),
		"red_flags":            bullets(f.RedFlags),
		"competition":          f.Competition,
		"apply_recommendation": f.ApplyRecommendation,
		"candidate_name":       in.Profile.Name,
		"profile":              string(profile),
	}
}

func bullets(items []string) string {
	var b strings.Builder
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(it)
	}
	return b.String()
}
