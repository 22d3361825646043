package matching

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

type UserSkill struct {
	Name            string
	YearsExperience int
}

type Result struct {
	MatchScore      int
	MatchedSkills   []string
	MissingRequired []string
	MissingOptional []string
}

var yearsRe = regexp.MustCompile(`(?i)(\d{1,2})\s*\+?\s*(?:years|yrs)`)

// Calculate is a weighted keyword overlap between the candidate's skills and
// the posting: 60 points spread over required lines, 30 over nice-to-have
// lines and 10 for years of experience. Postings without structured lists
// fall back to the share of profile skills mentioned anywhere in the text.
func Calculate(skills []UserSkill, totalYears int, required, optional []string, fullText string) Result {
	names := make([]string, 0, len(skills))
	for _, s := range skills {
		n := strings.TrimSpace(s.Name)
		if n == "" {
			continue
		}
		names = append(names, n)
	}

	res := Result{
		MatchedSkills:   []string{},
		MissingRequired: []string{},
		MissingOptional: []string{},
	}
	if len(names) == 0 {
		return res
	}

	matchedSet := map[string]struct{}{}
	lineMatches := func(line string) bool {
		hit := false
		for _, n := range names {
			if mentions(line, n) {
				matchedSet[n] = struct{}{}
				hit = true
			}
		}
		return hit
	}

	required = nonEmpty(required)
	optional = nonEmpty(optional)

	if len(required) == 0 && len(optional) == 0 {
		for _, n := range names {
			if mentions(fullText, n) {
				matchedSet[n] = struct{}{}
			}
		}
		res.MatchedSkills = orderedMatches(names, matchedSet)
		res.MatchScore = clampInt(int(math.Round(100*float64(len(res.MatchedSkills))/float64(len(names)))), 0, 100)
		return res
	}

	var total float64
	if len(required) > 0 {
		per := 60.0 / float64(len(required))
		for _, line := range required {
			if lineMatches(line) {
				total += per
				continue
			}
			res.MissingRequired = append(res.MissingRequired, line)
		}
	} else {
		total += 60
	}

	if len(optional) > 0 {
		per := 30.0 / float64(len(optional))
		for _, line := range optional {
			if lineMatches(line) {
				total += per
				continue
			}
			res.MissingOptional = append(res.MissingOptional, line)
		}
	}

	total += 10.0 * expRatio(totalYears, strings.Join(required, "\n"))

	res.MatchedSkills = orderedMatches(names, matchedSet)
	res.MatchScore = clampInt(int(math.Round(total)), 0, 100)
	return res
}

func expRatio(have int, requirements string) float64 {
	need := 0
	for _, m := range yearsRe.FindAllStringSubmatch(requirements, -1) {
		v, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if v > need {
			need = v
		}
	}
	if need <= 0 {
		return 1
	}
	if have <= 0 {
		return 0
	}
	ratio := float64(have) / float64(need)
	if ratio > 1 {
		return 1
	}
	return ratio
}

func containsWord(text, word string) bool {
	text = strings.ToLower(text)
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return false
	}
	from := 0
	for {
		i := strings.Index(text[from:], word)
		if i < 0 {
			return false
		}
		i += from
		end := i + len(word)
		if boundary(text, i-1) && boundary(text, end) {
			return true
		}
		from = i + 1
	}
}

func boundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := s[i]
	isWord := c == '_' || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
	return !isWord
}

func orderedMatches(names []string, set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for _, n := range names {
		if _, ok := set[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func clampInt(v, minV, maxV int) int {
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}
