package browser

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"

	"jobpilot/internal/extractor"
)

// expandScript clicks in-page "show more" controls. Links that would
// navigate away are skipped; each click is guarded on its own.
const expandScript = `(() => {
	const re = /^(show|see|read|view)\s+(more|full|all)|^more\s+details|^expand/i;
	let clicked = 0;
	for (const el of document.querySelectorAll('button, [role="button"], a, summary')) {
		if (clicked >= 10) break;
		try {
			const label = ((el.innerText || el.textContent || '') + '').trim() || el.getAttribute('aria-label') || '';
			if (!re.test(label) || label.length > 40) continue;
			if (el.tagName === 'A') {
				const href = el.getAttribute('href') || '';
				if (href && !href.startsWith('#') && !href.startsWith('javascript:')) continue;
			}
			el.click();
			clicked++;
		} catch (_) {}
	}
	return clicked;
})()`

// Render loads url in a throwaway tab, runs the live expansion pass and
// returns the resulting DOM for extraction.
func (m *Manager) Render(ctx context.Context, url string) (extractor.Page, error) {
	tabCtx, cancel, err := m.NewTab(ctx)
	if err != nil {
		return extractor.Page{}, err
	}
	defer cancel()

	runCtx, stop := context.WithTimeout(tabCtx, m.opts.NavigateTimeout)
	defer stop()

	var p extractor.Page
	var clicked int
	err = chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1500*time.Millisecond),
		chromedp.Evaluate(expandScript, &clicked),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Location(&p.URL),
		chromedp.Title(&p.Title),
		chromedp.OuterHTML("html", &p.HTML, chromedp.ByQuery),
	)
	if err != nil {
		return extractor.Page{}, err
	}
	if m.logger != nil {
		m.logger.Printf("[Browser] rendered | url=%s bytes=%d expanded=%d", p.URL, len(p.HTML), clicked)
	}
	return p, nil
}
