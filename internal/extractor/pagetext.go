package extractor

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var mainRegionSelectors = []string{
	"#jobDescriptionText",
	".jobs-description__content",
	".jobs-description",
	"#job-details",
	"[data-automation='jobAdDetails']",
	"#job-description",
	".job-description",
	"[class*='job-description']",
	"[class*='jobDescription']",
	"[id*='job-description']",
	"[data-testid*='description']",
	"[role='main']",
	"main",
	"article",
	"#content",
}

const noiseSelector = "script, style, noscript, template, svg, iframe, nav, header, footer, aside, form, button, select, input, " +
	"[role='navigation'], [role='banner'], [role='contentinfo'], [role='dialog'], " +
	"[aria-hidden='true'], [hidden], [id*='cookie'], [class*='cookie']"

var clampedProps = map[string]bool{
	"-webkit-line-clamp": true,
	"line-clamp":         true,
	"max-height":         true,
	"overflow":           true,
	"overflow-y":         true,
	"text-overflow":      true,
	"-webkit-box-orient": true,
}

var hiddenClassRe = regexp.MustCompile(`(?i)^(?:is-)?(?:hidden|collapsed|truncated?|clamped|line-clamp(?:-\d+)?|show-more-less-html__markup--clamp-after-\d+|read-more-hidden|expandable-hidden)$`)

// expandContent is the static half of the expansion pass. It runs over the
// parsed document so that clamped or collapsed description blocks survive
// noise stripping. Every element is handled independently.
func expandContent(doc *goquery.Document) int {
	touched := 0
	each := func(sel string, fn func(*goquery.Selection) bool) {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			func() {
				defer func() { _ = recover() }()
				if fn(s) {
					touched++
				}
			}()
		})
	}

	each("[style]", unclampStyle)
	each("[aria-expanded='false']", func(s *goquery.Selection) bool {
		s.SetAttr("aria-expanded", "true")
		if id := strings.TrimSpace(s.AttrOr("aria-controls", "")); id != "" {
			doc.Find("#" + id).RemoveAttr("hidden").RemoveAttr("aria-hidden")
		}
		return true
	})
	each("[class]", func(s *goquery.Selection) bool {
		changed := false
		for _, c := range strings.Fields(s.AttrOr("class", "")) {
			if hiddenClassRe.MatchString(c) {
				s.RemoveClass(c)
				changed = true
			}
		}
		if changed {
			s.RemoveAttr("hidden")
			s.RemoveAttr("aria-hidden")
		}
		return changed
	})
	each("details:not([open])", func(s *goquery.Selection) bool {
		s.SetAttr("open", "")
		return true
	})
	return touched
}

func unclampStyle(s *goquery.Selection) bool {
	style := s.AttrOr("style", "")
	decls := strings.Split(style, ";")
	kept := make([]string, 0, len(decls))
	changed := false
	for _, d := range decls {
		prop, val, ok := strings.Cut(d, ":")
		if !ok {
			continue
		}
		p := strings.ToLower(strings.TrimSpace(prop))
		v := strings.ToLower(strings.TrimSpace(val))
		if clampedProps[p] || (p == "display" && v == "-webkit-box") {
			changed = true
			continue
		}
		kept = append(kept, strings.TrimSpace(d))
	}
	if changed {
		s.SetAttr("style", strings.Join(kept, "; "))
	}
	return changed
}

// mainRegion picks the most specific content container whose stripped text
// is long enough, falling back to <body>.
func mainRegion(doc *goquery.Document, minChars int) *goquery.Selection {
	for _, sel := range mainRegionSelectors {
		var hit *goquery.Selection
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if textLen(strippedText(s)) >= minChars {
				hit = s
				return false
			}
			return true
		})
		if hit != nil {
			return hit
		}
	}
	body := doc.Find("body")
	if body.Length() == 0 {
		return doc.Selection
	}
	return body
}

// strippedText reads a cloned region so that removing noise never mutates
// the document other tiers may still read.
func strippedText(s *goquery.Selection) string {
	clone := s.Clone()
	clone.Find(noiseSelector).Remove()
	return SelectionText(clone)
}

func pageText(doc *goquery.Document, minRegion, maxChars int) string {
	return truncateRunes(strippedText(mainRegion(doc, minRegion)), maxChars)
}
