package extractor

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// descFieldRe matches a JSON string value under a description-like key. The
// value group keeps its quotes so it can be decoded with encoding/json.
var descFieldRe = regexp.MustCompile(`"(?:description|jobDescription|descriptionHtml|descriptionText|job_description|jobPostingDescription|descriptionPlain)"\s*:\s*("(?:[^"\\]|\\.)*")`)

func findEmbeddedDescription(doc *goquery.Document, minChars int) string {
	best := ""
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		typ := strings.ToLower(strings.TrimSpace(s.AttrOr("type", "")))
		if typ == "application/ld+json" {
			return
		}
		if typ != "" && !strings.Contains(typ, "json") && !strings.Contains(typ, "javascript") {
			return
		}
		raw := s.Text()
		if len(raw) < minChars {
			return
		}
		for _, m := range descFieldRe.FindAllStringSubmatch(raw, -1) {
			var v string
			if err := json.Unmarshal([]byte(m[1]), &v); err != nil {
				continue
			}
			text := htmlToText(v)
			if textLen(text) >= minChars && textLen(text) > textLen(best) {
				best = text
			}
		}
	})
	return best
}
