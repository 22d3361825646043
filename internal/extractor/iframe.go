package extractor

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var jobBoardHosts = []string{
	"greenhouse.io", "lever.co", "myworkdayjobs.com", "workday.com",
	"smartrecruiters.com", "ashbyhq.com", "icims.com", "jobvite.com",
	"bamboohr.com", "recruitee.com", "workable.com", "breezy.hr",
	"applytojob.com", "teamtailor.com", "personio.de", "personio.com",
	"successfactors.com", "taleo.net", "pinpointhq.com", "comeet.co",
}

var blockedFrameHosts = []string{
	"doubleclick.net", "googlesyndication.com", "googletagmanager.com",
	"google-analytics.com", "googleadservices.com", "adsrvr.org",
	"criteo.com", "amazon-adsystem.com", "facebook.com", "facebook.net",
	"twitter.com", "x.com", "instagram.com", "tiktok.com", "linkedin.com",
	"youtube.com", "youtube-nocookie.com", "vimeo.com", "hotjar.com",
	"intercom.io", "hubspot.com", "onetrust.com", "cookielaw.org",
	"stripe.com", "recaptcha.net",
}

const minHeuristicFrameURL = 40

func hostMatches(host string, domains []string) bool {
	host = strings.ToLower(host)
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// findIframeURLs lists cross-origin frames that plausibly carry the posting.
func findIframeURLs(doc *goquery.Document, pageURL string) []string {
	base, _ := url.Parse(pageURL)
	seen := map[string]struct{}{}
	out := make([]string, 0)
	doc.Find("iframe").Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" {
			src = strings.TrimSpace(s.AttrOr("data-src", ""))
		}
		if src == "" {
			return
		}
		u, err := url.Parse(src)
		if err != nil {
			return
		}
		if base != nil {
			u = base.ResolveReference(u)
		}
		if u.Scheme != "https" || u.Host == "" {
			return
		}
		if base != nil && strings.EqualFold(u.Host, base.Host) {
			return
		}
		if strings.Contains(u.Host+u.Path, "recaptcha") {
			return
		}
		abs := u.String()
		known := hostMatches(u.Hostname(), jobBoardHosts)
		if !known && (len(abs) < minHeuristicFrameURL || hostMatches(u.Hostname(), blockedFrameHosts)) {
			return
		}
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	})
	return out
}
