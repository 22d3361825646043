package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"jobpilot/internal/browser"
	"jobpilot/internal/domain/job"
	"jobpilot/internal/extractor"
	"jobpilot/internal/scraper"

	"github.com/spf13/cobra"
)

type extractOutput struct {
	job.ExtractionResult
	Frames []scraper.FrameText `json:"frames,omitempty"`
}

func extractCMD() *cobra.Command {
	var pageURL string
	var chromeURL string
	var fetchFrames bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "extract <file.html|url>",
		Short: "Extract a job posting from a saved page or a live URL and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.New(os.Stderr, "", log.LstdFlags)
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			target := strings.TrimSpace(args[0])
			var page extractor.Page
			if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
				m := browser.New(browser.Options{RemoteURL: chromeURL, Headless: true}, nil, logger)
				defer m.Close()
				p, err := m.Render(ctx, target)
				if err != nil {
					return fmt.Errorf("render %s: %w", target, err)
				}
				page = p
			} else {
				b, err := os.ReadFile(target)
				if err != nil {
					return err
				}
				page = extractor.Page{URL: pageURL, HTML: string(b)}
			}

			out := extractOutput{ExtractionResult: extractor.New(extractor.Options{}, logger).Extract(page)}
			if fetchFrames && len(out.IframeURLs) > 0 {
				out.Frames = scraper.NewFrameFetcher(scraper.FrameOptions{}, logger).FetchAll(ctx, out.IframeURLs)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&pageURL, "url", "", "original URL of a saved page")
	cmd.Flags().StringVar(&chromeURL, "chrome", getenv("CHROME_WS_URL", ""), "DevTools websocket of a running Chrome")
	cmd.Flags().BoolVar(&fetchFrames, "frames", false, "also fetch iframe documents directly")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall timeout")
	return cmd
}
