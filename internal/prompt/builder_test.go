package prompt

import (
	"strings"
	"testing"
	"testing/fstest"

	"jobpilot/internal/domain/analysis"
	"jobpilot/internal/domain/job"
)

func sampleInput() Input {
	return Input{
		Record: job.Record{Title: "ML Engineer", Company: "Acme", Requirements: []string{"Python", " ", "PyTorch"}},
		Fit: analysis.Fit{
			FitScore:           83,
			RecommendedVariant: analysis.VariantML,
			ATSKeywords:        []string{"ranking", "pytorch"},
		},
		Profile: analysis.Profile{Name: "Jane"},
	}
}

func TestBuild_VariantTemplate(t *testing.T) {
	b := New(fstest.MapFS{
		"ml.md": {Data: []byte("Write for {{ title }} at {{company}} ({{fit_score}}/100)\n{{requirements}}\nKeywords: {{ats_keywords}}\n{{unknown}}\n")},
	}, nil)

	out, ok, err := b.Build(analysis.VariantML, sampleInput())
	if err != nil || !ok {
		t.Fatalf("expected prompt, ok=%v err=%v", ok, err)
	}
	want := "Write for ML Engineer at Acme (83/100)\n- Python\n- PyTorch\nKeywords: ranking, pytorch\n{{unknown}}"
	if out != want {
		t.Fatalf("got:\n%s\nwant:\n%s", out, want)
	}
}

func TestBuild_FallbackAndMissing(t *testing.T) {
	b := New(fstest.MapFS{"default.txt": {Data: []byte("Hello {{candidate_name}}")}}, nil)
	out, ok, err := b.Build(analysis.VariantData, sampleInput())
	if err != nil || !ok || out != "Hello Jane" {
		t.Fatalf("fallback: out=%q ok=%v err=%v", out, ok, err)
	}

	empty := New(fstest.MapFS{"backend.md": {Data: []byte("x")}}, nil)
	if _, ok, err := empty.Build(analysis.VariantML, sampleInput()); ok || err != nil {
		t.Fatalf("expected skip without error, ok=%v err=%v", ok, err)
	}
	if _, ok, _ := NewDir("", nil).Build(analysis.VariantML, sampleInput()); ok {
		t.Fatalf("blank dir must skip")
	}
}

func TestBuild_ProfileJSON(t *testing.T) {
	b := New(fstest.MapFS{"general.md": {Data: []byte("{{profile}}")}}, nil)
	out, _, _ := b.Build(analysis.VariantGeneral, sampleInput())
	if !strings.Contains(out, `"name": "Jane"`) {
		t.Fatalf("expected profile json, got %s", out)
	}
}
