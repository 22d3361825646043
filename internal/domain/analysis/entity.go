package analysis

import (
	"strings"

	"jobpilot/internal/domain/job"
)

type Variant string

const (
	VariantGeneral   Variant = "general"
	VariantBackend   Variant = "backend"
	VariantFullstack Variant = "fullstack"
	VariantML        Variant = "ml"
	VariantData      Variant = "data"
)

var Variants = []Variant{VariantGeneral, VariantBackend, VariantFullstack, VariantML, VariantData}

// ParseVariant maps free-form model output onto the fixed variant set.
func ParseVariant(s string) (Variant, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	switch s {
	case "general", "generalist", "default":
		return VariantGeneral, true
	case "backend", "back_end", "backend_engineer":
		return VariantBackend, true
	case "fullstack", "full_stack", "fullstack_engineer":
		return VariantFullstack, true
	case "ml", "machine_learning", "ml_engineer", "ai", "ai_ml":
		return VariantML, true
	case "data", "data_science", "data_engineer", "data_scientist":
		return VariantData, true
	}
	return "", false
}

const (
	CompetitionLow    = "low"
	CompetitionMedium = "medium"
	CompetitionHigh   = "high"
)

const (
	ApplyStrongYes = "strong_yes"
	ApplyYes       = "yes"
	ApplyMaybe     = "maybe"
	ApplyNo        = "no"
)

// Fit is the scored comparison of a posting against the candidate profile.
type Fit struct {
	FitScore            int      `json:"fit_score"`
	Confidence          int      `json:"confidence"`
	RecommendedVariant  Variant  `json:"recommended_resume"`
	Reasoning           string   `json:"reasoning"`
	MatchedStrengths    []string `json:"matched_strengths"`
	Gaps                []string `json:"gaps"`
	GapMitigation       []string `json:"gap_mitigation"`
	TailoringPriorities []string `json:"tailoring_priorities"`
	ATSKeywords         []string `json:"ats_keywords"`
	RedFlags            []string `json:"red_flags"`
	Competition         string   `json:"competition"`
	ApplyRecommendation string   `json:"apply_recommendation"`
	KeywordScore        int      `json:"keyword_score"`
}

// Normalize clamps scores and replaces nil lists so formatting downstream
// never has to special-case absence.
func (f *Fit) Normalize() {
	if f == nil {
		return
	}
	f.FitScore = clamp(f.FitScore, 0, 100)
	f.Confidence = clamp(f.Confidence, 0, 100)
	lists := []*[]string{&f.MatchedStrengths, &f.Gaps, &f.GapMitigation, &f.TailoringPriorities, &f.ATSKeywords, &f.RedFlags}
	for _, l := range lists {
		if *l == nil {
			*l = []string{}
		}
	}
	switch strings.ToLower(strings.TrimSpace(f.Competition)) {
	case CompetitionLow, CompetitionMedium, CompetitionHigh:
		f.Competition = strings.ToLower(strings.TrimSpace(f.Competition))
	default:
		f.Competition = CompetitionMedium
	}
	rec := strings.ToLower(strings.TrimSpace(f.ApplyRecommendation))
	rec = strings.ReplaceAll(rec, " ", "_")
	switch rec {
	case ApplyStrongYes, ApplyYes, ApplyMaybe, ApplyNo:
		f.ApplyRecommendation = rec
	default:
		f.ApplyRecommendation = ApplyMaybe
	}
}

// Outcome is what the fast-analysis backend returns in one round trip.
type Outcome struct {
	Job      job.Record `json:"job"`
	Analysis Fit        `json:"analysis"`
}

// Profile is the candidate profile analyses are run against.
type Profile struct {
	Name            string       `json:"name"`
	Headline        string       `json:"headline"`
	Summary         string       `json:"summary"`
	Location        string       `json:"location"`
	YearsExperience int          `json:"years_experience"`
	Skills          []Skill      `json:"skills"`
	Experience      []Experience `json:"experience"`
	Education       []string     `json:"education"`
	Preferences     []string     `json:"preferences"`
}

type Skill struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
	Years int    `json:"years"`
}

type Experience struct {
	Company string   `json:"company"`
	Title   string   `json:"title"`
	Period  string   `json:"period"`
	Bullets []string `json:"bullets"`
}

func (p Profile) Empty() bool {
	return strings.TrimSpace(p.Name) == "" && len(p.Skills) == 0 && len(p.Experience) == 0
}

func (p Profile) SkillNames() []string {
	out := make([]string, 0, len(p.Skills))
	for _, s := range p.Skills {
		if n := strings.TrimSpace(s.Name); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func clamp(v, minV, maxV int) int {
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}
