// Package orchestrator sequences one job page through enrichment, analysis,
// chat automation, completion capture and PDF generation, and owns all
// tab-scoped state along the way.
package orchestrator

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"jobpilot/internal/chatdriver"
	"jobpilot/internal/domain/analysis"
	"jobpilot/internal/infrastructure/llm"
	"jobpilot/internal/infrastructure/pdfhost"
	"jobpilot/internal/infrastructure/tracking"
	"jobpilot/internal/metrics"
	"jobpilot/internal/prompt"
	"jobpilot/internal/scraper"
	"jobpilot/internal/store"
)

var (
	ErrNoContent = errors.New("no usable job content found on this page")
	ErrNoTab     = errors.New("tab id is required")

	ErrCompletionGuard = errors.New("completion state unavailable")
)

const (
	DefaultCompletionTimeout = 5 * time.Minute
	DefaultAnalysisTimeout   = 3 * time.Minute
	DefaultChatTimeout       = 15 * time.Minute
	DefaultPDFTimeout        = 4 * time.Minute
)

// Completion sources, in the order they usually race.
const (
	SourceCapture = "capture"
	SourceDOM     = "dom"
	SourceTimeout = "timeout"
)

type Crawler interface {
	Health(ctx context.Context) bool
	Crawl(ctx context.Context, url string) (string, error)
}

type FrameFetcher interface {
	FetchAll(ctx context.Context, urls []string) []scraper.FrameText
}

type Analyzer interface {
	Analyze(ctx context.Context, in llm.Input) (analysis.Outcome, error)
}

type PromptBuilder interface {
	Build(variant analysis.Variant, in prompt.Input) (string, bool, error)
}

// ChatPage is a chat tab the driver can run against.
type ChatPage interface {
	chatdriver.Page
	Key() string
}

type ChatTabs interface {
	Open(ctx context.Context, originTabID, chatURL string) (ChatPage, error)
	CurrentURL(ctx context.Context, chatKey string) (string, error)
	Close(originTabID string)
}

type ChatRunner interface {
	Start(ctx context.Context, page chatdriver.Page, req chatdriver.Request) <-chan chatdriver.Update
	Locators() chatdriver.Locators
}

type Notifier interface {
	Notify(tabID, eventType string, data any)
}

type ProfileSource func() (analysis.Profile, error)

type Deps struct {
	Tabs     *store.TabStore
	Sessions *store.SessionStore
	Polls    *store.PollStore

	Profile  ProfileSource
	Crawler  Crawler
	Frames   FrameFetcher
	Analyzer Analyzer
	Prompts  PromptBuilder
	Tracker  *tracking.Recorder
	Chats    ChatTabs
	Driver   ChatRunner
	PDF      pdfhost.Generator
	Notifier Notifier
	Metrics  *metrics.Metrics
	Logger   *log.Logger
}

type Options struct {
	// ChatURL overrides the locator set's new-chat URL.
	ChatURL           string
	Model             string
	Modes             []string
	CompletionTimeout time.Duration
	AnalysisTimeout   time.Duration
	ChatTimeout       time.Duration
	PDFTimeout        time.Duration
}

type stopper interface {
	Stop() bool
}

type Orchestrator struct {
	d    Deps
	opts Options

	now       func() time.Time
	afterFunc func(d time.Duration, f func()) stopper

	mu      sync.Mutex
	timers  map[string]stopper
	stopped bool

	// unstored holds poll states the store refused, keyed by chat key.
	unstored sync.Map

	wg sync.WaitGroup
}

func New(d Deps, opts Options) *Orchestrator {
	if opts.CompletionTimeout <= 0 {
		opts.CompletionTimeout = DefaultCompletionTimeout
	}
	if opts.AnalysisTimeout <= 0 {
		opts.AnalysisTimeout = DefaultAnalysisTimeout
	}
	if opts.ChatTimeout <= 0 {
		opts.ChatTimeout = DefaultChatTimeout
	}
	if opts.PDFTimeout <= 0 {
		opts.PDFTimeout = DefaultPDFTimeout
	}
	if d.Profile == nil {
		d.Profile = func() (analysis.Profile, error) { return analysis.Profile{}, analysis.ErrNoProfile }
	}
	return &Orchestrator{
		d:      d,
		opts:   opts,
		now:    time.Now,
		timers: map[string]stopper{},
		afterFunc: func(dur time.Duration, f func()) stopper {
			return time.AfterFunc(dur, f)
		},
	}
}

// State is the read-only view of a tab for the UI.
func (o *Orchestrator) State(ctx context.Context, tabID string) (store.TabState, bool, error) {
	return o.d.Tabs.Get(ctx, tabID)
}

// HandleTabClosed drops everything scoped to the tab, including a pending
// completion watch, so nothing fires for it afterwards.
func (o *Orchestrator) HandleTabClosed(ctx context.Context, tabID string) error {
	if strings.TrimSpace(tabID) == "" {
		return ErrNoTab
	}
	st, ok, err := o.d.Tabs.Get(ctx, tabID)
	if err != nil {
		o.logf("[Orchestrator] tab state read failed | tab=%s err=%v", tabID, err)
	}
	if ok && st.ChatKey != "" {
		if _, held := o.unstored.LoadAndDelete(st.ChatKey); held {
			o.stopTimer(st.ChatKey)
		}
		if _, taken, err := o.d.Polls.Take(ctx, st.ChatKey); err == nil && taken {
			o.stopTimer(st.ChatKey)
		}
	}
	if o.d.Chats != nil {
		o.d.Chats.Close(tabID)
	}
	var errs []error
	if err := o.d.Tabs.Clear(ctx, tabID); err != nil {
		errs = append(errs, err)
	}
	if err := o.d.Sessions.Clear(ctx, tabID); err != nil {
		errs = append(errs, err)
	}
	o.logf("[Orchestrator] tab closed | tab=%s", tabID)
	return errors.Join(errs...)
}

// Wait blocks until background work started by this orchestrator is done.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Stop disarms every pending completion timeout and waits for background
// work. Poll states stay in the store; a restarted service never resumes them.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.stopped = true
	timers := o.timers
	o.timers = map[string]stopper{}
	o.mu.Unlock()
	for _, t := range timers {
		t.Stop()
	}
	o.wg.Wait()
}

func (o *Orchestrator) goSafe(name string, fn func()) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				o.logf("[Orchestrator] panic | task=%s err=%v", name, r)
			}
		}()
		fn()
	}()
}

// runTracked runs fn on the calling goroutine as background work that Stop
// waits for. It does nothing once Stop has begun.
func (o *Orchestrator) runTracked(name string, fn func()) {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.wg.Add(1)
	o.mu.Unlock()
	defer o.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			o.logf("[Orchestrator] panic | task=%s err=%v", name, r)
		}
	}()
	fn()
}

func (o *Orchestrator) notify(tabID, eventType string, data any) {
	if o.d.Notifier == nil {
		return
	}
	o.d.Notifier.Notify(tabID, eventType, data)
}

func (o *Orchestrator) updateTab(ctx context.Context, tabID string, fn func(*store.TabState)) {
	if _, err := o.d.Tabs.Update(ctx, tabID, fn); err != nil {
		o.logf("[Orchestrator] tab state write failed | tab=%s err=%v", tabID, err)
	}
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.d.Logger != nil {
		o.d.Logger.Printf(format, args...)
	}
}
