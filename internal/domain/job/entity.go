package job

import (
	"encoding/json"
	"strings"
)

const UnknownCompany = "Unknown Company"

type ExtractionMethod string

const (
	MethodJSONLD   ExtractionMethod = "json-ld"
	MethodEmbedded ExtractionMethod = "embedded"
	MethodPageText ExtractionMethod = "page-text"
	MethodIframe   ExtractionMethod = "iframe"
	MethodNone     ExtractionMethod = "none"
)

func (m ExtractionMethod) Valid() bool {
	switch m {
	case MethodJSONLD, MethodEmbedded, MethodPageText, MethodIframe, MethodNone:
		return true
	default:
		return false
	}
}

// Record is a normalized job posting.
type Record struct {
	Title        string   `json:"title"`
	Company      string   `json:"company"`
	URL          string   `json:"url"`
	Location     string   `json:"location,omitempty"`
	Salary       string   `json:"salary,omitempty"`
	Type         string   `json:"type,omitempty"`
	Description  string   `json:"description"`
	Requirements []string `json:"requirements"`
	NiceToHaves  []string `json:"nice_to_haves"`
	Source       string   `json:"source,omitempty"`
}

// Usable reports whether the record carries the fields every downstream
// phase depends on.
func (r *Record) Usable() bool {
	if r == nil {
		return false
	}
	return strings.TrimSpace(r.Title) != "" && strings.TrimSpace(r.Description) != ""
}

// Normalize fills defaults in place.
func (r *Record) Normalize() {
	if r == nil {
		return
	}
	r.Title = strings.TrimSpace(r.Title)
	r.Company = strings.TrimSpace(r.Company)
	if r.Company == "" {
		r.Company = UnknownCompany
	}
	if r.Requirements == nil {
		r.Requirements = []string{}
	}
	if r.NiceToHaves == nil {
		r.NiceToHaves = []string{}
	}
}

// ExtractionResult is produced once per page visit and never mutated after
// it crosses into the orchestrator.
type ExtractionResult struct {
	Success          bool             `json:"success"`
	JobData          *Record          `json:"jobData,omitempty"`
	RawText          string           `json:"rawText"`
	StructuredData   json.RawMessage  `json:"structuredData,omitempty"`
	URL              string           `json:"url"`
	Title            string           `json:"title"`
	ExtractionMethod ExtractionMethod `json:"extractionMethod"`
	IframeURLs       []string         `json:"iframeUrls,omitempty"`
}

// HasContent reports whether anything usable (or fetchable) was found.
func (r ExtractionResult) HasContent() bool {
	return r.Success || len(r.IframeURLs) > 0
}

// SourceFromURL derives a platform tag from a posting URL.
func SourceFromURL(u string) string {
	u = strings.ToLower(u)
	known := []struct{ needle, tag string }{
		{"linkedin.com", "linkedin"},
		{"indeed.", "indeed"},
		{"greenhouse.io", "greenhouse"},
		{"lever.co", "lever"},
		{"myworkdayjobs.com", "workday"},
		{"workday.com", "workday"},
		{"ashbyhq.com", "ashby"},
		{"smartrecruiters.com", "smartrecruiters"},
		{"glassdoor.", "glassdoor"},
		{"wellfound.com", "wellfound"},
		{"ycombinator.com", "ycombinator"},
	}
	for _, k := range known {
		if strings.Contains(u, k.needle) {
			return k.tag
		}
	}
	return "other"
}
