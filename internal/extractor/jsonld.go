package extractor

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"jobpilot/internal/domain/job"

	"github.com/PuerkitoBio/goquery"
)

const maxLDDepth = 12

// findJobPosting returns the first JobPosting object found in any LD-JSON
// block. Each block is parsed independently; malformed blocks are skipped.
func findJobPosting(doc *goquery.Document) map[string]any {
	var found map[string]any
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := cleanLDJSON(s.Text())
		if raw == "" {
			return true
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return true
		}
		if p := searchPosting(v, 0); p != nil {
			found = p
			return false
		}
		return true
	})
	return found
}

func cleanLDJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "<!--")
	s = strings.TrimSuffix(s, "-->")
	s = strings.TrimPrefix(strings.TrimSpace(s), "//<![CDATA[")
	s = strings.TrimSuffix(strings.TrimSpace(s), "//]]>")
	s = strings.TrimSpace(s)
	return strings.TrimSuffix(s, ";")
}

// searchPosting walks direct objects, @graph wrappers, bare arrays and any
// nested value.
func searchPosting(v any, depth int) map[string]any {
	if depth > maxLDDepth {
		return nil
	}
	switch t := v.(type) {
	case map[string]any:
		if isJobPosting(t) {
			return t
		}
		if g, ok := t["@graph"]; ok {
			if p := searchPosting(g, depth+1); p != nil {
				return p
			}
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			if k != "@graph" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			if p := searchPosting(t[k], depth+1); p != nil {
				return p
			}
		}
	case []any:
		for _, item := range t {
			if p := searchPosting(item, depth+1); p != nil {
				return p
			}
		}
	}
	return nil
}

func isJobPosting(m map[string]any) bool {
	typed := false
	switch t := m["@type"].(type) {
	case string:
		typed = strings.EqualFold(t, "JobPosting")
	case []any:
		for _, it := range t {
			if s, ok := it.(string); ok && strings.EqualFold(s, "JobPosting") {
				typed = true
				break
			}
		}
	}
	if !typed {
		return false
	}
	_, hasTitle := m["title"].(string)
	_, hasDesc := m["description"].(string)
	return hasTitle || hasDesc
}

func recordFromPosting(m map[string]any, pageURL string) job.Record {
	rec := job.Record{
		Title:       scalar(m["title"]),
		Company:     orgName(m["hiringOrganization"]),
		URL:         scalar(m["url"]),
		Location:    formatLocation(m["jobLocation"]),
		Salary:      formatSalary(m["baseSalary"]),
		Type:        joinList(m["employmentType"]),
		Description: htmlToText(scalar(m["description"])),
		Source:      job.SourceFromURL(pageURL),
	}
	if rec.Title == "" {
		rec.Title = scalar(m["name"])
	}
	if rec.URL == "" {
		rec.URL = pageURL
	}
	if rec.Salary == "" {
		rec.Salary = formatSalary(m["estimatedSalary"])
	}
	if strings.Contains(strings.ToUpper(joinList(m["jobLocationType"])), "TELECOMMUTE") {
		if rec.Location == "" {
			rec.Location = "Remote"
		} else {
			rec.Location += " (Remote)"
		}
	}
	rec.Requirements = append(listOf(m["qualifications"]), listOf(m["experienceRequirements"])...)
	rec.Requirements = append(rec.Requirements, listOf(m["skills"])...)
	rec.NiceToHaves = listOf(m["preferredQualifications"])
	return rec
}

func orgName(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		return scalar(t["name"])
	case []any:
		for _, it := range t {
			if n := orgName(it); n != "" {
				return n
			}
		}
	}
	return ""
}

func formatLocation(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		if addr, ok := t["address"]; ok {
			switch a := addr.(type) {
			case string:
				return strings.TrimSpace(a)
			case map[string]any:
				parts := make([]string, 0, 3)
				for _, k := range []string{"addressLocality", "addressRegion", "addressCountry"} {
					p := scalar(a[k])
					if p == "" {
						if c, ok := a[k].(map[string]any); ok {
							p = scalar(c["name"])
						}
					}
					if p != "" {
						parts = append(parts, p)
					}
				}
				if len(parts) > 0 {
					return strings.Join(parts, ", ")
				}
			}
		}
		return scalar(t["name"])
	case []any:
		seen := map[string]struct{}{}
		out := make([]string, 0, len(t))
		for _, it := range t {
			l := formatLocation(it)
			if l == "" {
				continue
			}
			if _, ok := seen[l]; ok {
				continue
			}
			seen[l] = struct{}{}
			out = append(out, l)
		}
		return strings.Join(out, " | ")
	}
	return ""
}

func formatSalary(v any) string {
	switch t := v.(type) {
	case string, float64:
		return scalar(t)
	case map[string]any:
		currency := scalar(t["currency"])
		value := ""
		unit := scalar(t["unitText"])
		switch val := t["value"].(type) {
		case map[string]any:
			value = formatRange(val)
			if u := scalar(val["unitText"]); u != "" {
				unit = u
			}
		default:
			value = scalar(val)
		}
		if value == "" {
			value = formatRange(t)
		}
		if value == "" {
			return ""
		}
		out := value
		if currency != "" {
			out = currency + " " + out
		}
		if unit != "" {
			out += " / " + strings.ToLower(unit)
		}
		return out
	}
	return ""
}

func formatRange(m map[string]any) string {
	minV := scalar(m["minValue"])
	maxV := scalar(m["maxValue"])
	switch {
	case minV != "" && maxV != "" && minV != maxV:
		return minV + "–" + maxV
	case minV != "":
		return minV
	case maxV != "":
		return maxV
	}
	return scalar(m["value"])
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return humanNumber(t)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

func humanNumber(f float64) string {
	if f != math.Trunc(f) || math.Abs(f) >= 1e15 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatInt(int64(f), 10)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

func joinList(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		out := make([]string, 0, len(t))
		for _, it := range t {
			if s := scalar(it); s != "" {
				out = append(out, s)
			}
		}
		return strings.Join(out, ", ")
	}
	return ""
}

func listOf(v any) []string {
	switch t := v.(type) {
	case string:
		text := htmlToText(t)
		out := make([]string, 0)
		for _, l := range strings.Split(text, "\n") {
			l = strings.TrimSpace(strings.TrimLeft(l, "-•* "))
			if l != "" {
				out = append(out, l)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(t))
		for _, it := range t {
			switch s := it.(type) {
			case string:
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			case map[string]any:
				if d := pickScalar(s, "description", "name"); d != "" {
					out = append(out, d)
				}
			}
		}
		return out
	case map[string]any:
		if d := pickScalar(t, "description", "name"); d != "" {
			return []string{d}
		}
	}
	return nil
}

func pickScalar(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := scalar(m[k]); s != "" {
			return s
		}
	}
	return ""
}
