// Package chatdriver submits a prompt into a third-party chat UI and reads
// back the rendered answer using nothing but DOM operations.
package chatdriver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"
)

type State string

const (
	StateIdle             State = "idle"
	StateAwaitingInput    State = "awaiting-input-ready"
	StateConfiguring      State = "configuring"
	StatePasting          State = "pasting"
	StateSent             State = "sent"
	StateAwaitingFirstTok State = "awaiting-first-token"
	StateStreaming        State = "streaming"
	StateSettled          State = "settled"
	StateExtracting       State = "extracting"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

const (
	SettledByIndicator = "indicator"
	SettledByStability = "stability"
)

var (
	ErrInputNotFound      = errors.New("chat input never appeared (markup changed or login required)")
	ErrSubmitUnavailable  = errors.New("submit control and enter fallback both unusable")
	ErrResponseNotStarted = errors.New("response never started")
	ErrResponseNotSettled = errors.New("response started but never settled")
	ErrEmptyResponse      = errors.New("response settled but extracted text is empty")
)

// Request carries every parameter of one submission explicitly.
type Request struct {
	ID     string
	Prompt string
	Model  string
	Modes  []string
}

type Result struct {
	ID         string
	OK         bool
	Text       string
	State      State
	SettledVia string
	Err        error
}

// Update is posted on every transition; the last one carries Result.
type Update struct {
	ID     string
	State  State
	Result *Result
}

type Driver struct {
	loc    Locators
	logger *log.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func New(loc Locators, logger *log.Logger) *Driver {
	return &Driver{loc: loc, logger: logger, sleep: sleepCtx}
}

func (d *Driver) Locators() Locators {
	return d.loc
}

func sleepCtx(ctx context.Context, dur time.Duration) error {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Start runs one submission in its own goroutine. The returned channel is
// buffered for every possible transition and closed after the final result.
func (d *Driver) Start(ctx context.Context, page Page, req Request) <-chan Update {
	out := make(chan Update, 16)
	go func() {
		defer close(out)
		res := d.run(ctx, page, req, func(s State) {
			out <- Update{ID: req.ID, State: s}
		})
		out <- Update{ID: req.ID, State: res.State, Result: &res}
	}()
	return out
}

// Run is the synchronous form of Start.
func (d *Driver) Run(ctx context.Context, page Page, req Request) Result {
	return d.run(ctx, page, req, func(State) {})
}

type run struct {
	d     *Driver
	page  Page
	req   Request
	state State
	emit  func(State)
}

func (r *run) to(s State) {
	r.state = s
	r.d.logf("[ChatDriver] %s | id=%s host=%s", s, r.req.ID, r.d.loc.Name)
	r.emit(s)
}

func (r *run) fail(err error) Result {
	failedIn := r.state
	r.to(StateFailed)
	r.d.logf("[ChatDriver] failed | id=%s during=%s err=%v", r.req.ID, failedIn, err)
	return Result{ID: r.req.ID, State: StateFailed, Err: err}
}

func (d *Driver) run(ctx context.Context, page Page, req Request, emit func(State)) Result {
	r := &run{d: d, page: page, req: req, state: StateIdle, emit: emit}
	loc := d.loc

	r.to(StateAwaitingInput)
	if err := r.awaitInput(ctx); err != nil {
		return r.fail(err)
	}

	if loc.ModelButton != "" && strings.TrimSpace(req.Model) != "" {
		r.to(StateConfiguring)
		r.configure(ctx)
	}

	before, err := page.Count(ctx, loc.ResponseContainer)
	if err != nil {
		before = 0
	}

	r.to(StatePasting)
	if err := r.paste(ctx); err != nil {
		return r.fail(err)
	}

	if err := r.submit(ctx); err != nil {
		return r.fail(err)
	}
	r.to(StateSent)

	r.to(StateAwaitingFirstTok)
	started, err := page.WaitCount(ctx, loc.ResponseContainer, AtLeast, before+1, loc.FirstTokenTimeout)
	if err != nil {
		return r.fail(fmt.Errorf("%w: %v", ErrResponseNotStarted, err))
	}
	if !started {
		return r.fail(ErrResponseNotStarted)
	}

	r.to(StateStreaming)
	via, err := r.awaitSettled(ctx)
	if err != nil {
		return r.fail(err)
	}
	r.to(StateSettled)

	r.to(StateExtracting)
	text, err := r.extract(ctx)
	if err != nil {
		return r.fail(err)
	}
	r.to(StateDone)
	return Result{ID: req.ID, OK: true, Text: text, State: StateDone, SettledVia: via}
}

func pollAttempts(total, interval time.Duration) int {
	if interval <= 0 {
		return 1
	}
	n := int(total / interval)
	if n < 1 {
		return 1
	}
	return n
}

func (r *run) awaitInput(ctx context.Context) error {
	loc := r.d.loc
	for i := 0; i < pollAttempts(loc.InputTimeout, loc.InputPollInterval); i++ {
		if n, err := r.page.Count(ctx, loc.Input); err == nil && n > 0 {
			return nil
		}
		if err := r.d.sleep(ctx, loc.InputPollInterval); err != nil {
			return fmt.Errorf("%w: %v", ErrInputNotFound, err)
		}
	}
	return ErrInputNotFound
}

// configure is best effort: a model that cannot be selected leaves whatever
// the host defaulted to. The menu is always closed afterwards.
func (r *run) configure(ctx context.Context) {
	loc := r.d.loc
	if n, err := r.page.Count(ctx, loc.ModelButton); err != nil || n == 0 {
		return
	}
	current, _ := r.page.Text(ctx, loc.ModelButton, nil)
	if labelMatches(current, r.req.Model) && len(r.req.Modes) == 0 {
		return
	}
	if err := r.page.Click(ctx, loc.ModelButton); err != nil {
		r.d.logf("[ChatDriver] model menu did not open | id=%s err=%v", r.req.ID, err)
		return
	}
	defer func() {
		_ = r.page.PressKey(ctx, "", "Escape")
	}()
	_ = r.d.sleep(ctx, loc.MenuSettle)

	if loc.ModeToggle != "" {
		for _, mode := range r.req.Modes {
			checked, found, err := r.page.AttrText(ctx, loc.ModeToggle, mode, "aria-checked")
			if err != nil || !found || checked == "true" {
				continue
			}
			_, _ = r.page.ClickText(ctx, loc.ModeToggle, mode)
		}
	}

	if labelMatches(current, r.req.Model) {
		return
	}
	ok, err := r.page.ClickText(ctx, loc.ModelOption, r.req.Model)
	if err == nil && !ok && loc.MoreOptionsLabel != "" {
		if more, _ := r.page.ClickText(ctx, loc.ModelOption, loc.MoreOptionsLabel); more {
			_ = r.d.sleep(ctx, loc.MenuSettle)
			ok, err = r.page.ClickText(ctx, loc.ModelOption, r.req.Model)
		}
	}
	if err != nil || !ok {
		r.d.logf("[ChatDriver] model not selectable | id=%s model=%q err=%v", r.req.ID, r.req.Model, err)
	}
}

func labelMatches(current, want string) bool {
	return strings.EqualFold(strings.TrimSpace(current), strings.TrimSpace(want))
}

func (r *run) paste(ctx context.Context) error {
	loc := r.d.loc
	_ = r.page.ClearInput(ctx, loc.Input)
	if err := r.page.Paste(ctx, loc.Input, r.req.Prompt); err != nil {
		r.d.logf("[ChatDriver] paste failed | id=%s err=%v", r.req.ID, err)
	}
	want := utf8.RuneCountInString(r.req.Prompt)
	got, err := r.page.InputLength(ctx, loc.Input)
	if err == nil && got >= want/2 {
		return nil
	}
	r.d.logf("[ChatDriver] paste short, assigning directly | id=%s got=%d want=%d", r.req.ID, got, want)
	return r.page.SetText(ctx, loc.Input, r.req.Prompt)
}

func (r *run) submit(ctx context.Context) error {
	loc := r.d.loc
	if loc.Submit != "" {
		if n, err := r.page.Count(ctx, loc.Submit); err == nil && n > 0 {
			if err := r.page.Click(ctx, loc.Submit); err == nil {
				return nil
			}
		}
	}
	if err := r.page.PressKey(ctx, loc.Input, "Enter"); err != nil {
		return fmt.Errorf("%w: %v", ErrSubmitUnavailable, err)
	}
	return nil
}

func (r *run) awaitSettled(ctx context.Context) (string, error) {
	loc := r.d.loc
	if loc.StreamingIndicator != "" {
		seen, err := r.page.WaitCount(ctx, loc.StreamingIndicator, AtLeast, 1, loc.IndicatorGrace)
		if err == nil && seen {
			gone, err := r.page.WaitCount(ctx, loc.StreamingIndicator, AtMost, 0, loc.StreamTimeout)
			if err != nil {
				return "", fmt.Errorf("%w: %v", ErrResponseNotSettled, err)
			}
			if !gone {
				return "", ErrResponseNotSettled
			}
			return SettledByIndicator, nil
		}
	}
	return r.awaitStable(ctx)
}

// awaitStable samples the response length until it has stayed the same for
// StableSamples consecutive samples.
func (r *run) awaitStable(ctx context.Context) (string, error) {
	loc := r.d.loc
	need := loc.StableSamples
	if need < 2 {
		need = 2
	}
	prev, streak := -1, 0
	for i := 0; i < pollAttempts(loc.StreamTimeout, loc.StableInterval); i++ {
		if err := r.d.sleep(ctx, loc.StableInterval); err != nil {
			return "", fmt.Errorf("%w: %v", ErrResponseNotSettled, err)
		}
		text, err := r.page.Text(ctx, loc.ResponseContainer, loc.Noise)
		if err != nil {
			prev, streak = -1, 0
			continue
		}
		n := utf8.RuneCountInString(text)
		if n == prev {
			streak++
		} else {
			prev, streak = n, 1
		}
		if n > 0 && streak >= need {
			return SettledByStability, nil
		}
	}
	return "", ErrResponseNotSettled
}

func (r *run) extract(ctx context.Context) (string, error) {
	loc := r.d.loc
	attempts := loc.ExtractRetries
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		text, err := r.page.Text(ctx, loc.ResponseContainer, loc.Noise)
		if err == nil {
			if text = strings.TrimSpace(text); text != "" {
				return text, nil
			}
		}
		if i < attempts-1 {
			if err := r.d.sleep(ctx, loc.ExtractDelay); err != nil {
				break
			}
		}
	}
	return "", ErrEmptyResponse
}

func (d *Driver) logf(format string, args ...any) {
	if d == nil || d.logger == nil {
		return
	}
	d.logger.Printf(format, args...)
}
