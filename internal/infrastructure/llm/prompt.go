package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"jobpilot/internal/domain/analysis"
)

const (
	maxPromptText       = 24000
	maxPromptStructured = 8000
)

func clip(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}

func buildAnalysisPrompt(in Input) string {
	variants := make([]string, 0, len(analysis.Variants))
	for _, v := range analysis.Variants {
		variants = append(variants, string(v))
	}
	profile, _ := json.MarshalIndent(in.Profile, "", "  ")

	var b strings.Builder
	b.WriteString("You are screening a job posting for one candidate. Respond with a single JSON object and nothing else.\n\n")
	b.WriteString("Shape:\n")
	b.WriteString(`{"job":{"title":"","company":"","url":"","location":"","salary":"","type":"","description":"","requirements":[],"nice_to_haves":[],"source":""},`)
	b.WriteString(`"analysis":{"fit_score":0,"confidence":0,"recommended_resume":"","reasoning":"","matched_strengths":[],"gaps":[],"gap_mitigation":[],"tailoring_priorities":[],"ats_keywords":[],"red_flags":[],"competition":"low|medium|high","apply_recommendation":"strong_yes|yes|maybe|no"}}`)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "recommended_resume must be one of: %s.\n", strings.Join(variants, ", "))
	b.WriteString("fit_score and confidence are integers from 0 to 100.\n")
	fmt.Fprintf(&b, "A keyword-overlap prior scored this posting %d/100; use it as a hint only.\n\n", in.KeywordScore)

	if in.Record != nil && in.Record.Title != "" {
		fmt.Fprintf(&b, "Known title: %s\nKnown company: %s\n\n", in.Record.Title, in.Record.Company)
	}
	if len(in.StructuredData) > 0 {
		b.WriteString("STRUCTURED POSTING METADATA:\n")
		b.WriteString(clip(string(in.StructuredData), maxPromptStructured))
		b.WriteString("\n\n")
	} else {
		b.WriteString("No structured metadata was found; extract the job fields from the text below.\n\n")
	}
	b.WriteString("CANDIDATE PROFILE:\n")
	b.Write(profile)
	b.WriteString("\n\nPOSTING TEXT:\n")
	b.WriteString(clip(in.RawText, maxPromptText))
	b.WriteString("\n")
	return b.String()
}
