// Package pdfhost turns a chat response into a resume PDF, either through
// the native messaging host or by printing locally with Chrome.
package pdfhost

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

var ErrGenerationFailed = errors.New("pdf generation failed")

type Request struct {
	ResponseText string `json:"responseText"`
	ChatTitle    string `json:"chatTitle,omitempty"`
}

type Response struct {
	Success      bool   `json:"success"`
	PDFPath      string `json:"pdfPath,omitempty"`
	FolderName   string `json:"folderName,omitempty"`
	LatexSource  string `json:"latexSource,omitempty"`
	PDFBase64    string `json:"pdfBase64,omitempty"`
	PDFSizeBytes int64  `json:"pdfSizeBytes,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Err folds an unsuccessful response into an error.
func (r Response) Err() error {
	if r.Success {
		return nil
	}
	msg := strings.TrimSpace(r.Error)
	if msg == "" {
		msg = "host reported failure"
	}
	return errors.Join(ErrGenerationFailed, errors.New(msg))
}

type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

var companySuffixRe = regexp.MustCompile(`\s*@\s*[^@]+$`)

// DisplayTitle drops a trailing "@ Company" from a job title when the
// company is already known, e.g. "ML Engineer @ Acme" -> "ML Engineer".
func DisplayTitle(title, company string) string {
	title = strings.TrimSpace(title)
	company = strings.TrimSpace(company)
	loc := companySuffixRe.FindStringIndex(title)
	if loc == nil || loc[0] == 0 {
		return title
	}
	suffix := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(title[loc[0]:]), "@"))
	if company != "" && !strings.EqualFold(suffix, company) {
		return title
	}
	return strings.TrimSpace(title[:loc[0]])
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	s = slugRe.ReplaceAllString(strings.ToLower(s), "-")
	s = strings.Trim(s, "-")
	if len(s) > 60 {
		s = strings.TrimRight(s[:60], "-")
	}
	return s
}
