// Package scraper fetches cross-origin frame documents the in-page extractor
// could not read and reduces them to plain text.
package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"jobpilot/internal/extractor"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"
)

const (
	MethodStripped    = "stripped"
	MethodReadability = "readability"
)

type FrameText struct {
	URL    string
	Text   string
	Method string
}

type FrameOptions struct {
	Timeout     time.Duration
	MaxBodySize int
	Workers     int
	RPS         int
	UserAgent   string
}

type FrameFetcher struct {
	opts   FrameOptions
	logger *log.Logger
}

func NewFrameFetcher(opts FrameOptions, logger *log.Logger) *FrameFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = 5 << 20
	}
	if opts.Workers <= 0 {
		opts.Workers = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"
	}
	return &FrameFetcher{opts: opts, logger: logger}
}

// Fetch downloads one frame and keeps the longer of two readings: the whole
// document with scripts, styles and comments stripped, and readability's
// article text.
func (f *FrameFetcher) Fetch(ctx context.Context, frameURL string) (FrameText, error) {
	if ctx.Err() != nil {
		return FrameText{}, ctx.Err()
	}
	u, err := url.Parse(frameURL)
	if err != nil || u.Host == "" {
		return FrameText{}, fmt.Errorf("invalid frame url %q", frameURL)
	}

	c := colly.NewCollector(
		colly.MaxBodySize(f.opts.MaxBodySize),
		colly.UserAgent(f.opts.UserAgent),
	)
	c.SetRequestTimeout(f.opts.Timeout)

	var body []byte
	var reqErr error
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Accept", "text/html,application/xhtml+xml")
	})
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		reqErr = err
	})

	if err := c.Visit(u.String()); err != nil {
		return FrameText{}, err
	}
	c.Wait()
	if reqErr != nil {
		return FrameText{}, reqErr
	}
	if len(body) == 0 {
		return FrameText{}, errors.New("empty frame body")
	}
	return bestReading(u, body), nil
}

func bestReading(u *url.URL, body []byte) FrameText {
	out := FrameText{URL: u.String(), Text: strippedText(body), Method: MethodStripped}
	article, err := readability.FromReader(bytes.NewReader(body), u)
	if err == nil {
		text := collapse(article.TextContent)
		if len(text) > len(out.Text) {
			out.Text = text
			out.Method = MethodReadability
		}
	}
	return out
}

func strippedText(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, template, svg, iframe, head").Remove()
	return extractor.SelectionText(doc.Selection)
}

func collapse(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// FetchAll fetches every frame through the worker pool. Failed frames are
// logged and left out.
func (f *FrameFetcher) FetchAll(ctx context.Context, urls []string) []FrameText {
	if len(urls) == 0 {
		return nil
	}
	pool := NewWorkerPool(f.opts.Workers, len(urls))
	pool.SetRateLimit(f.opts.RPS)
	results := pool.Run(ctx)
	for _, raw := range urls {
		frameURL := raw
		pool.Submit(func(ctx context.Context) (FrameText, error) {
			ft, err := f.Fetch(ctx, frameURL)
			if err != nil {
				return FrameText{URL: frameURL}, err
			}
			return ft, nil
		})
	}
	pool.Close()

	out := make([]FrameText, 0, len(urls))
	for r := range results {
		if r.Err != nil {
			if f.logger != nil {
				f.logger.Printf("[Frames] fetch failed | url=%s err=%v", r.Frame.URL, r.Err)
			}
			continue
		}
		out = append(out, r.Frame)
	}
	return out
}

// Longest returns the frame with the most text.
func Longest(frames []FrameText) (FrameText, bool) {
	var best FrameText
	found := false
	for _, fr := range frames {
		if !found || len(fr.Text) > len(best.Text) {
			best, found = fr, true
		}
	}
	return best, found
}
