package matching

import "strings"

// Synonyms maps a lowercased skill to the other spellings postings use.
var Synonyms = map[string][]string{
	"go":               {"golang"},
	"golang":           {"go"},
	"postgresql":       {"postgres"},
	"postgres":         {"postgresql"},
	"kubernetes":       {"k8s"},
	"javascript":       {"js", "ecmascript"},
	"typescript":       {"ts"},
	"machine learning": {"ml"},
	"frontend":         {"front end", "front-end"},
	"backend":          {"back end", "back-end"},
	"ci/cd":            {"continuous integration", "continuous delivery"},
	"aws":              {"amazon web services"},
	"gcp":              {"google cloud"},
}

func GetSynonyms(skill string) []string {
	v, ok := Synonyms[strings.ToLower(strings.TrimSpace(skill))]
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(v))
	return append(out, v...)
}

// mentions reports whether text names skill under any known spelling.
func mentions(text, skill string) bool {
	if containsWord(text, skill) {
		return true
	}
	for _, alt := range GetSynonyms(skill) {
		if containsWord(text, alt) {
			return true
		}
	}
	return false
}
