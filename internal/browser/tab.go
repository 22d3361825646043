package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"jobpilot/internal/chatdriver"
)

// Tab is a chat tab. It implements chatdriver.Page by evaluating small
// scripts in the page; waits are driven by DOM mutations.
type Tab struct {
	key    string
	origin string
	ctx    context.Context
	cancel context.CancelFunc
	events chan string
}

var _ chatdriver.Page = (*Tab)(nil)

func (t *Tab) Key() string { return t.key }

// bind derives a context that runs actions on this tab and ends with the
// caller's ctx, the timeout or the tab, whichever comes first.
func (t *Tab) bind(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	var runCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(t.ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(t.ctx)
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

const evalTimeout = 15 * time.Second

func (t *Tab) eval(ctx context.Context, expr string, res any) error {
	runCtx, cancel := t.bind(ctx, evalTimeout)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.Evaluate(expr, res))
}

func js(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// labelOf mirrors what a user reads on a control.
const labelOf = `const labelOf = (el) => ((el.innerText || el.textContent || '') + '').replace(/\s+/g, ' ').trim() || (el.getAttribute('aria-label') || '').trim();`

func (t *Tab) Count(ctx context.Context, selector string) (int, error) {
	var n int
	err := t.eval(ctx, fmt.Sprintf(`document.querySelectorAll(%s).length`, js(selector)), &n)
	return n, err
}

func (t *Tab) Click(ctx context.Context, selector string) error {
	var ok bool
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el || el.disabled) return false;
		el.click();
		return true;
	})()`, js(selector))
	if err := t.eval(ctx, expr, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no clickable element for %s", selector)
	}
	return nil
}

func (t *Tab) ClickText(ctx context.Context, selector, text string) (bool, error) {
	var ok bool
	expr := fmt.Sprintf(`(() => {
		%s
		const want = %s.toLowerCase();
		for (const el of document.querySelectorAll(%s)) {
			if (labelOf(el).toLowerCase() === want) { el.click(); return true; }
		}
		return false;
	})()`, labelOf, js(strings.TrimSpace(text)), js(selector))
	err := t.eval(ctx, expr, &ok)
	return ok, err
}

func (t *Tab) AttrText(ctx context.Context, selector, text, attr string) (string, bool, error) {
	var res struct {
		Found bool   `json:"found"`
		Value string `json:"value"`
	}
	expr := fmt.Sprintf(`(() => {
		%s
		const want = %s.toLowerCase();
		for (const el of document.querySelectorAll(%s)) {
			if (labelOf(el).toLowerCase() === want) return { found: true, value: el.getAttribute(%s) || '' };
		}
		return { found: false, value: '' };
	})()`, labelOf, js(strings.TrimSpace(text)), js(selector), js(attr))
	err := t.eval(ctx, expr, &res)
	return res.Value, res.Found, err
}

func (t *Tab) Text(ctx context.Context, selector string, strip []string) (string, error) {
	if strip == nil {
		strip = []string{}
	}
	var s string
	expr := fmt.Sprintf(`(() => {
		const all = document.querySelectorAll(%s);
		if (!all.length) return '';
		const clone = all[all.length - 1].cloneNode(true);
		for (const sel of %s) {
			try { clone.querySelectorAll(sel).forEach((n) => n.remove()); } catch (_) {}
		}
		return (clone.innerText || clone.textContent || '').trim();
	})()`, js(selector), js(strip))
	err := t.eval(ctx, expr, &s)
	return s, err
}

func (t *Tab) ClearInput(ctx context.Context, selector string) error {
	return t.withInput(ctx, selector, `
		if (el.isContentEditable) { el.innerHTML = ''; } else { el.value = ''; }
		el.dispatchEvent(new Event('input', { bubbles: true }));`, nil)
}

// Paste dispatches a synthetic paste, which rich editors handle like a
// real clipboard paste.
func (t *Tab) Paste(ctx context.Context, selector, text string) error {
	return t.withInput(ctx, selector, fmt.Sprintf(`
		const dt = new DataTransfer();
		dt.setData('text/plain', %s);
		el.dispatchEvent(new ClipboardEvent('paste', { clipboardData: dt, bubbles: true, cancelable: true }));`, js(text)), nil)
}

func (t *Tab) SetText(ctx context.Context, selector, text string) error {
	return t.withInput(ctx, selector, fmt.Sprintf(`
		const v = %s;
		if (el.isContentEditable) { el.innerText = v; } else { el.value = v; }
		el.dispatchEvent(new Event('input', { bubbles: true }));`, js(text)), nil)
}

func (t *Tab) InputLength(ctx context.Context, selector string) (int, error) {
	var n int
	err := t.withInput(ctx, selector, `return (el.isContentEditable ? (el.innerText || '') : (el.value || '')).trim().length;`, &n)
	return n, err
}

func (t *Tab) PressKey(ctx context.Context, selector, key string) error {
	seq, ok := keys[key]
	if !ok {
		seq = key
	}
	if selector != "" {
		if err := t.withInput(ctx, selector, "", nil); err != nil {
			return err
		}
	}
	runCtx, cancel := t.bind(ctx, evalTimeout)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.KeyEvent(seq))
}

var keys = map[string]string{
	"Enter":  kb.Enter,
	"Escape": kb.Escape,
	"Tab":    kb.Tab,
}

func (t *Tab) WaitCount(ctx context.Context, selector string, op chatdriver.CountOp, n int, timeout time.Duration) (bool, error) {
	cmp := ">="
	if op == chatdriver.AtMost {
		cmp = "<="
	}
	expr := fmt.Sprintf(`document.querySelectorAll(%s).length %s %d`, js(selector), cmp, n)

	runCtx, cancel := t.bind(ctx, timeout+5*time.Second)
	defer cancel()
	err := chromedp.Run(runCtx, chromedp.Poll(expr, nil,
		chromedp.WithPollingMutation(),
		chromedp.WithPollingTimeout(timeout),
	))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, chromedp.ErrPollingTimeout):
		return false, nil
	default:
		return false, err
	}
}

// withInput focuses the first match of selector and runs body with it
// bound to el. A missing element is an error.
func (t *Tab) withInput(ctx context.Context, selector, body string, res any) error {
	expr := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return { missing: true };
		el.focus();
		const out = (() => { %s })();
		return { missing: false, value: out === undefined ? null : out };
	})()`, js(selector), body)

	var raw struct {
		Missing bool            `json:"missing"`
		Value   json.RawMessage `json:"value"`
	}
	if err := t.eval(ctx, expr, &raw); err != nil {
		return err
	}
	if raw.Missing {
		return fmt.Errorf("no input element for %s", selector)
	}
	if res == nil || len(raw.Value) == 0 {
		return nil
	}
	return json.Unmarshal(raw.Value, res)
}
