package matching

import "testing"

func TestCalculate_WeightedOverlap(t *testing.T) {
	skills := []UserSkill{{Name: "Go"}, {Name: "PostgreSQL"}, {Name: "Kubernetes"}}
	required := []string{"3+ years of Go in production", "Strong PostgreSQL knowledge"}
	optional := []string{"Kubernetes experience", "Rust is a plus"}

	res := Calculate(skills, 5, required, optional, "")
	if res.MatchScore != 85 {
		t.Fatalf("expected score 85, got %d", res.MatchScore)
	}
	if len(res.MatchedSkills) != 3 {
		t.Fatalf("expected 3 matched skills, got %v", res.MatchedSkills)
	}
	if len(res.MissingOptional) != 1 || res.MissingOptional[0] != "Rust is a plus" {
		t.Fatalf("unexpected missing optional: %v", res.MissingOptional)
	}
}

func TestCalculate_ExperienceShortfall(t *testing.T) {
	res := Calculate([]UserSkill{{Name: "Python"}}, 2, []string{"8 years Python"}, nil, "")
	// 60 for the only required line, 10 * 2/8 for experience.
	if res.MatchScore != 63 {
		t.Fatalf("expected 63, got %d", res.MatchScore)
	}
}

func TestCalculate_TextFallback(t *testing.T) {
	skills := []UserSkill{{Name: "Go"}, {Name: "React"}, {Name: "SQL"}, {Name: "C"}}
	res := Calculate(skills, 0, nil, nil, "We write Go services backed by SQL. Google is our customer.")
	if res.MatchScore != 50 {
		t.Fatalf("expected 50, got %d (matched=%v)", res.MatchScore, res.MatchedSkills)
	}
}

func TestContainsWord_Boundaries(t *testing.T) {
	if containsWord("django developer", "go") {
		t.Fatalf("go must not match inside django")
	}
	if !containsWord("Go/Python", "go") {
		t.Fatalf("expected go to match before slash")
	}
}

func TestCalculate_Synonyms(t *testing.T) {
	skills := []UserSkill{{Name: "Kubernetes"}, {Name: "PostgreSQL"}}
	res := Calculate(skills, 0, []string{"Operate our k8s clusters", "Tune Postgres queries"}, nil, "")
	if res.MatchScore != 70 {
		t.Fatalf("expected 70, got %d (matched=%v)", res.MatchScore, res.MatchedSkills)
	}
	if len(res.MissingRequired) != 0 {
		t.Fatalf("aliases should satisfy both lines: %v", res.MissingRequired)
	}
	if got := GetSynonyms("  Go "); len(got) != 1 || got[0] != "golang" {
		t.Fatalf("unexpected synonyms %v", got)
	}
	if got := GetSynonyms("cobol"); len(got) != 0 {
		t.Fatalf("expected none, got %v", got)
	}
}
