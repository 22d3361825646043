package chatdriver

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"
)

type fakePage struct {
	mu  sync.Mutex
	loc Locators

	inputAfter int
	inputCalls int
	submit     bool
	pasteKeeps int
	value      string
	setText    int
	keys       []string
	clicked    []string

	responsesBefore int
	started         bool
	indicator       bool
	indicatorClears bool
	texts           []string
	textCalls       int

	modelLabel  string
	options     map[string]bool
	moreReveals []string
	toggles     map[string]string
}

func newFakePage(loc Locators) *fakePage {
	return &fakePage{
		loc:             loc,
		submit:          true,
		pasteKeeps:      -1,
		started:         true,
		indicator:       true,
		indicatorClears: true,
		texts:           []string{"Final answer"},
		options:         map[string]bool{},
		toggles:         map[string]string{},
	}
}

func (p *fakePage) Count(_ context.Context, selector string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch selector {
	case p.loc.Input:
		p.inputCalls++
		if p.inputCalls > p.inputAfter {
			return 1, nil
		}
		return 0, nil
	case p.loc.Submit:
		if p.submit {
			return 1, nil
		}
	case p.loc.ResponseContainer:
		return p.responsesBefore, nil
	case p.loc.ModelButton:
		if p.modelLabel != "" {
			return 1, nil
		}
	}
	return 0, nil
}

func (p *fakePage) Click(_ context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicked = append(p.clicked, selector)
	return nil
}

func (p *fakePage) ClickText(_ context.Context, _ string, text string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.toggles[text]; ok {
		p.toggles[text] = "true"
		p.clicked = append(p.clicked, "text:"+text)
		return true, nil
	}
	if p.options[text] {
		p.clicked = append(p.clicked, "text:"+text)
		return true, nil
	}
	if text == p.loc.MoreOptionsLabel && len(p.moreReveals) > 0 {
		for _, o := range p.moreReveals {
			p.options[o] = true
		}
		p.clicked = append(p.clicked, "text:"+text)
		return true, nil
	}
	return false, nil
}

func (p *fakePage) AttrText(_ context.Context, _ string, text, _ string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.toggles[text]
	return v, ok, nil
}

func (p *fakePage) Text(_ context.Context, selector string, _ []string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if selector == p.loc.ModelButton {
		return p.modelLabel, nil
	}
	i := p.textCalls
	p.textCalls++
	if i >= len(p.texts) {
		i = len(p.texts) - 1
	}
	return p.texts[i], nil
}

func (p *fakePage) ClearInput(context.Context, string) error {
	p.mu.Lock()
	p.value = ""
	p.mu.Unlock()
	return nil
}

func (p *fakePage) Paste(_ context.Context, _ string, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pasteKeeps >= 0 && p.pasteKeeps < len(text) {
		text = text[:p.pasteKeeps]
	}
	p.value = text
	return nil
}

func (p *fakePage) SetText(_ context.Context, _ string, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setText++
	p.value = text
	return nil
}

func (p *fakePage) InputLength(context.Context, string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return utf8.RuneCountInString(p.value), nil
}

func (p *fakePage) PressKey(_ context.Context, selector, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, selector+":"+key)
	return nil
}

func (p *fakePage) WaitCount(_ context.Context, selector string, op CountOp, _ int, _ time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case selector == p.loc.ResponseContainer:
		return p.started, nil
	case selector == p.loc.StreamingIndicator && op == AtLeast:
		return p.indicator, nil
	case selector == p.loc.StreamingIndicator && op == AtMost:
		return p.indicatorClears, nil
	}
	return false, nil
}

func testDriver(loc Locators) (*Driver, *int) {
	d := New(loc, nil)
	sleeps := 0
	d.sleep = func(ctx context.Context, _ time.Duration) error {
		sleeps++
		return ctx.Err()
	}
	return d, &sleeps
}

func TestDriver_Start_IndicatorPath(t *testing.T) {
	loc := ClaudeLocators()
	page := newFakePage(loc)
	page.inputAfter = 2
	d, _ := testDriver(loc)

	var states []State
	var final *Result
	for u := range d.Start(context.Background(), page, Request{ID: "r1", Prompt: "Write my resume"}) {
		states = append(states, u.State)
		if u.Result != nil {
			final = u.Result
		}
	}
	if final == nil || !final.OK || final.Text != "Final answer" || final.SettledVia != SettledByIndicator {
		t.Fatalf("unexpected result %+v", final)
	}
	if final.ID != "r1" {
		t.Fatalf("result not correlated: %q", final.ID)
	}
	want := []State{StateAwaitingInput, StatePasting, StateSent, StateAwaitingFirstTok, StateStreaming, StateSettled, StateExtracting, StateDone}
	for i, s := range want {
		if states[i] != s {
			t.Fatalf("state %d: got %s want %s (all %v)", i, states[i], s, states)
		}
	}
	if page.setText != 0 {
		t.Fatalf("full paste must not fall back")
	}
	if len(page.clicked) != 1 || page.clicked[0] != loc.Submit {
		t.Fatalf("expected submit click, got %v", page.clicked)
	}
}

func TestDriver_StabilityFallback(t *testing.T) {
	loc := ClaudeLocators()
	page := newFakePage(loc)
	page.indicator = false
	page.texts = []string{"a", "ab", "abc"}
	d, _ := testDriver(loc)

	res := d.Run(context.Background(), page, Request{ID: "r2", Prompt: "p"})
	if !res.OK || res.SettledVia != SettledByStability {
		t.Fatalf("expected stability settle, got %+v", res)
	}
	if res.Text != "abc" {
		t.Fatalf("text: %q", res.Text)
	}
	// three growing samples, two more equal ones, then one extraction read
	if page.textCalls != 6 {
		t.Fatalf("expected 6 text reads, got %d", page.textCalls)
	}
}

func TestDriver_Failures(t *testing.T) {
	cases := []struct {
		name  string
		setup func(*fakePage, *Locators)
		want  error
	}{
		{"input never appears", func(p *fakePage, l *Locators) {
			p.inputAfter = 1000
			l.InputTimeout = 2 * time.Second
		}, ErrInputNotFound},
		{"never started", func(p *fakePage, _ *Locators) { p.started = false }, ErrResponseNotStarted},
		{"never settled", func(p *fakePage, _ *Locators) { p.indicatorClears = false }, ErrResponseNotSettled},
		{"stability never reached", func(p *fakePage, l *Locators) {
			p.indicator = false
			p.texts = []string{""}
			l.StreamTimeout = 5 * time.Second
		}, ErrResponseNotSettled},
		{"empty text", func(p *fakePage, _ *Locators) { p.texts = []string{"   "} }, ErrEmptyResponse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			loc := ClaudeLocators()
			page := newFakePage(loc)
			tc.setup(page, &loc)
			page.loc = loc
			d, _ := testDriver(loc)
			res := d.Run(context.Background(), page, Request{ID: "f", Prompt: "p"})
			if res.OK || res.State != StateFailed {
				t.Fatalf("expected failure, got %+v", res)
			}
			if !errors.Is(res.Err, tc.want) {
				t.Fatalf("got %v want %v", res.Err, tc.want)
			}
		})
	}
}

func TestDriver_InputPollIsBounded(t *testing.T) {
	loc := ClaudeLocators()
	loc.InputTimeout = 2 * time.Second
	page := newFakePage(loc)
	page.inputAfter = 1000
	d, sleeps := testDriver(loc)
	_ = d.Run(context.Background(), page, Request{ID: "b", Prompt: "p"})
	if page.inputCalls != 4 || *sleeps != 4 {
		t.Fatalf("expected 4 polls, got calls=%d sleeps=%d", page.inputCalls, *sleeps)
	}
}

func TestDriver_PasteFallsBackToDirectAssignment(t *testing.T) {
	loc := ClaudeLocators()
	page := newFakePage(loc)
	page.pasteKeeps = 10
	d, _ := testDriver(loc)
	prompt := strings.Repeat("y", 100)
	res := d.Run(context.Background(), page, Request{ID: "p", Prompt: prompt})
	if !res.OK {
		t.Fatalf("unexpected failure %v", res.Err)
	}
	if page.setText != 1 || page.value != prompt {
		t.Fatalf("expected direct assignment, setText=%d len=%d", page.setText, len(page.value))
	}
}

func TestDriver_SubmitFallsBackToEnter(t *testing.T) {
	loc := ChatGPTLocators()
	page := newFakePage(loc)
	page.submit = false
	d, _ := testDriver(loc)
	res := d.Run(context.Background(), page, Request{ID: "s", Prompt: "p"})
	if !res.OK {
		t.Fatalf("unexpected failure %v", res.Err)
	}
	if len(page.keys) != 1 || page.keys[0] != loc.Input+":Enter" {
		t.Fatalf("expected enter on input, got %v", page.keys)
	}
}

func TestDriver_ConfigureSelectsThroughMoreOptions(t *testing.T) {
	loc := ClaudeLocators()
	page := newFakePage(loc)
	page.modelLabel = "Claude Sonnet 4"
	page.moreReveals = []string{"Claude Opus 4"}
	page.toggles["Extended thinking"] = "false"
	d, _ := testDriver(loc)

	res := d.Run(context.Background(), page, Request{ID: "c", Prompt: "p", Model: "Claude Opus 4", Modes: []string{"Extended thinking"}})
	if !res.OK {
		t.Fatalf("unexpected failure %v", res.Err)
	}
	got := strings.Join(page.clicked, ",")
	want := strings.Join([]string{loc.ModelButton, "text:Extended thinking", "text:More models", "text:Claude Opus 4", loc.Submit}, ",")
	if got != want {
		t.Fatalf("clicks:\n got %s\nwant %s", got, want)
	}
	if len(page.keys) != 1 || page.keys[0] != ":Escape" {
		t.Fatalf("menu must be closed, keys=%v", page.keys)
	}
}

func TestDriver_ConfigureSkipsWhenAlreadySelected(t *testing.T) {
	loc := ClaudeLocators()
	page := newFakePage(loc)
	page.modelLabel = "Claude Opus 4"
	d, _ := testDriver(loc)
	res := d.Run(context.Background(), page, Request{ID: "c2", Prompt: "p", Model: "claude opus 4"})
	if !res.OK {
		t.Fatalf("unexpected failure %v", res.Err)
	}
	if len(page.keys) != 0 || len(page.clicked) != 1 {
		t.Fatalf("menu should stay untouched, clicked=%v keys=%v", page.clicked, page.keys)
	}
}

func TestLocatorsFor(t *testing.T) {
	if l, ok := LocatorsFor("ChatGPT"); !ok || l.Name != "chatgpt" {
		t.Fatalf("chatgpt preset not resolved")
	}
	if l, ok := LocatorsFor(""); !ok || l.Name != "claude" {
		t.Fatalf("default preset should be claude")
	}
	if _, ok := LocatorsFor("bard"); ok {
		t.Fatalf("unknown preset resolved")
	}
}
