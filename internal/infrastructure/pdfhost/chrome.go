package pdfhost

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// TabOpener hands out a fresh chromedp tab context.
type TabOpener interface {
	NewTab(ctx context.Context) (context.Context, context.CancelFunc, error)
}

// ChromeRenderer prints the response text to PDF with the shared browser
// when no native host is installed.
type ChromeRenderer struct {
	tabs      TabOpener
	outputDir string
	logger    *log.Logger
	now       func() time.Time
}

func NewChromeRenderer(tabs TabOpener, outputDir string, logger *log.Logger) *ChromeRenderer {
	outputDir = strings.TrimSpace(outputDir)
	if outputDir == "" {
		outputDir = filepath.Join(os.TempDir(), "jobpilot-resumes")
	}
	return &ChromeRenderer{tabs: tabs, outputDir: outputDir, logger: logger, now: time.Now}
}

func (c *ChromeRenderer) Generate(ctx context.Context, req Request) (Response, error) {
	if c == nil || c.tabs == nil {
		return Response{}, errors.New("renderer not configured")
	}
	if strings.TrimSpace(req.ResponseText) == "" {
		return Response{Success: false, Error: "empty response text"}, nil
	}

	tabCtx, cancel, err := c.tabs.NewTab(ctx)
	if err != nil {
		return Response{}, err
	}
	defer cancel()

	doc := renderHTML(req.ChatTitle, req.ResponseText)
	var pdf []byte
	err = chromedp.Run(tabCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, doc).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, _, err = page.PrintToPDF().WithPrintBackground(true).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				WithPreferCSSPageSize(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return Response{Success: false, Error: err.Error()}, nil
	}

	folder := folderName(req.ChatTitle, c.now())
	dir := filepath.Join(c.outputDir, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Response{}, err
	}
	out := filepath.Join(dir, "resume.pdf")
	if err := os.WriteFile(out, pdf, 0o644); err != nil {
		return Response{}, err
	}
	if c.logger != nil {
		c.logger.Printf("[PDF] rendered | path=%s bytes=%d", out, len(pdf))
	}
	return Response{
		Success:      true,
		PDFPath:      out,
		FolderName:   folder,
		PDFBase64:    base64.StdEncoding.EncodeToString(pdf),
		PDFSizeBytes: int64(len(pdf)),
	}, nil
}

func folderName(title string, at time.Time) string {
	s := slug(title)
	if s == "" {
		s = "resume"
	}
	return fmt.Sprintf("%s-%s", s, at.UTC().Format("20060102-150405"))
}

const pageStyle = `body{font-family:Helvetica,Arial,sans-serif;font-size:10.5pt;line-height:1.4;margin:18mm;color:#111}
h1{font-size:18pt;margin:0 0 8pt}h2{font-size:12.5pt;margin:14pt 0 4pt;border-bottom:1px solid #999}
h3{font-size:11pt;margin:8pt 0 2pt}ul{margin:2pt 0 6pt 14pt;padding:0}li{margin:1pt 0}p{margin:3pt 0}`

// renderHTML lays out markdown-ish chat output: #-headings, "-"/"*"
// bullets and blank-line separated paragraphs.
func renderHTML(title, text string) string {
	var b strings.Builder
	b.WriteString("<!doctype html><html><head><meta charset=\"utf-8\"><title>")
	b.WriteString(html.EscapeString(title))
	b.WriteString("</title><style>")
	b.WriteString(pageStyle)
	b.WriteString("</style></head><body>")

	inList := false
	closeList := func() {
		if inList {
			b.WriteString("</ul>")
			inList = false
		}
	}
	for _, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			closeList()
		case strings.HasPrefix(line, "### "):
			closeList()
			b.WriteString("<h3>" + inline(line[4:]) + "</h3>")
		case strings.HasPrefix(line, "## "):
			closeList()
			b.WriteString("<h2>" + inline(line[3:]) + "</h2>")
		case strings.HasPrefix(line, "# "):
			closeList()
			b.WriteString("<h1>" + inline(line[2:]) + "</h1>")
		case strings.HasPrefix(line, "- "), strings.HasPrefix(line, "* "):
			if !inList {
				b.WriteString("<ul>")
				inList = true
			}
			b.WriteString("<li>" + inline(line[2:]) + "</li>")
		default:
			closeList()
			b.WriteString("<p>" + inline(line) + "</p>")
		}
	}
	closeList()
	b.WriteString("</body></html>")
	return b.String()
}

// inline escapes the line and renders **bold** runs.
func inline(s string) string {
	parts := strings.Split(html.EscapeString(s), "**")
	if len(parts) < 3 {
		return html.EscapeString(s)
	}
	var b strings.Builder
	for i, p := range parts {
		if i%2 == 1 && i < len(parts)-1 {
			b.WriteString("<strong>" + p + "</strong>")
			continue
		}
		if i%2 == 1 {
			b.WriteString("**")
		}
		b.WriteString(p)
	}
	return b.String()
}
