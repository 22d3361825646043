package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"jobpilot/internal/chatdriver"
	"jobpilot/internal/domain/analysis"
	"jobpilot/internal/domain/job"
	"jobpilot/internal/infrastructure/llm"
	"jobpilot/internal/infrastructure/pdfhost"
	"jobpilot/internal/infrastructure/tracking"
	"jobpilot/internal/prompt"
	"jobpilot/internal/scraper"
	"jobpilot/internal/store"
)

type event struct {
	tab  string
	typ  string
	data map[string]any
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []event
}

func (f *fakeNotifier) Notify(tabID, eventType string, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, _ := data.(map[string]any)
	f.events = append(f.events, event{tab: tabID, typ: eventType, data: m})
}

func (f *fakeNotifier) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.typ)
	}
	return out
}

func (f *fakeNotifier) find(typ string) (event, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var last event
	n := 0
	for _, e := range f.events {
		if e.typ == typ {
			last = e
			n++
		}
	}
	return last, n
}

type fakeAnalyzer struct {
	out   analysis.Outcome
	err   error
	calls atomic.Int32
	last  llm.Input
}

func (f *fakeAnalyzer) Analyze(_ context.Context, in llm.Input) (analysis.Outcome, error) {
	f.calls.Add(1)
	f.last = in
	return f.out, f.err
}

type fakePrompts struct {
	skip bool
}

func (f fakePrompts) Build(v analysis.Variant, in prompt.Input) (string, bool, error) {
	if f.skip {
		return "", false, nil
	}
	return "Tailor for " + in.Record.Title + " as " + string(v), true, nil
}

type fakeCrawler struct {
	healthy bool
	pages   map[string]string
}

func (f fakeCrawler) Health(context.Context) bool { return f.healthy }
func (f fakeCrawler) Crawl(_ context.Context, u string) (string, error) {
	if md, ok := f.pages[u]; ok {
		return md, nil
	}
	return "", errors.New("not crawled")
}

type fakeFrames struct {
	frames []scraper.FrameText
	calls  atomic.Int32
}

func (f *fakeFrames) FetchAll(context.Context, []string) []scraper.FrameText {
	f.calls.Add(1)
	return f.frames
}

type fakePage struct{ key string }

func (p fakePage) Key() string                                           { return p.key }
func (fakePage) Count(context.Context, string) (int, error)              { return 0, nil }
func (fakePage) Click(context.Context, string) error                     { return nil }
func (fakePage) ClickText(context.Context, string, string) (bool, error) { return false, nil }
func (fakePage) AttrText(context.Context, string, string, string) (string, bool, error) {
	return "", false, nil
}
func (fakePage) Text(context.Context, string, []string) (string, error) { return "", nil }
func (fakePage) ClearInput(context.Context, string) error               { return nil }
func (fakePage) Paste(context.Context, string, string) error            { return nil }
func (fakePage) SetText(context.Context, string, string) error          { return nil }
func (fakePage) InputLength(context.Context, string) (int, error)       { return 0, nil }
func (fakePage) PressKey(context.Context, string, string) error         { return nil }
func (fakePage) WaitCount(context.Context, string, chatdriver.CountOp, int, time.Duration) (bool, error) {
	return true, nil
}

type fakeChats struct {
	mu      sync.Mutex
	opened  []string
	closed  []string
	openErr error
	url     string

	// urlEntered and urlGate, when set, hold CurrentURL until released.
	urlEntered chan struct{}
	urlGate    chan struct{}
}

func (f *fakeChats) Open(_ context.Context, originTabID, chatURL string) (ChatPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened = append(f.opened, originTabID+"@"+chatURL)
	return fakePage{key: "chat-" + originTabID}, nil
}

func (f *fakeChats) CurrentURL(context.Context, string) (string, error) {
	if f.urlGate != nil {
		f.urlEntered <- struct{}{}
		<-f.urlGate
	}
	return f.url, nil
}

func (f *fakeChats) Close(originTabID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, originTabID)
}

// fakeDriver replays a scripted run.
type fakeDriver struct {
	states []chatdriver.State
	result chatdriver.Result
	hold   chan struct{}
}

func (f *fakeDriver) Locators() chatdriver.Locators { return chatdriver.ClaudeLocators() }

func (f *fakeDriver) Start(ctx context.Context, _ chatdriver.Page, req chatdriver.Request) <-chan chatdriver.Update {
	out := make(chan chatdriver.Update, len(f.states)+1)
	go func() {
		defer close(out)
		for _, s := range f.states {
			out <- chatdriver.Update{ID: req.ID, State: s}
		}
		if f.hold != nil {
			<-f.hold
		}
		res := f.result
		res.ID = req.ID
		out <- chatdriver.Update{ID: req.ID, State: res.State, Result: &res}
	}()
	return out
}

type fakePDF struct {
	calls atomic.Int32
	mu    sync.Mutex
	reqs  []pdfhost.Request
	resp  pdfhost.Response
	err   error
}

func (f *fakePDF) Generate(_ context.Context, req pdfhost.Request) (pdfhost.Response, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return f.resp, f.err
}

type fakeTracker struct {
	mu      sync.Mutex
	created []tracking.NewJob
	patches []tracking.Patch
	events  []tracking.Event
}

func (f *fakeTracker) CreateJob(_ context.Context, j tracking.NewJob) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, j)
	return "trk-1", nil
}

func (f *fakeTracker) PatchJob(_ context.Context, _ string, p tracking.Patch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, p)
	return nil
}

func (f *fakeTracker) AppendEvent(_ context.Context, _ string, e tracking.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

// pollRefusingKV fails every poll state write and read.
type pollRefusingKV struct {
	*store.Memory
}

var errStoreDown = errors.New("store unavailable")

func (k pollRefusingKV) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	if strings.HasPrefix(key, "poll:") {
		return errStoreDown
	}
	return k.Memory.SetJSON(ctx, key, value, ttl)
}

func (k pollRefusingKV) TakeJSON(ctx context.Context, key string, out any) (bool, error) {
	if strings.HasPrefix(key, "poll:") {
		return false, errStoreDown
	}
	return k.Memory.TakeJSON(ctx, key, out)
}

type manualTimer struct {
	mu      sync.Mutex
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

// Fire runs the callback like an expiring time.AfterFunc would, unless the
// timer was stopped first.
func (t *manualTimer) Fire() {
	t.mu.Lock()
	stopped := t.stopped
	t.stopped = true
	t.mu.Unlock()
	if !stopped {
		t.fn()
	}
}

type harness struct {
	o        *Orchestrator
	kv       *store.Memory
	notes    *fakeNotifier
	analyzer *fakeAnalyzer
	chats    *fakeChats
	driver   *fakeDriver
	pdf      *fakePDF
	tracker  *fakeTracker
	recorder *tracking.Recorder
	frames   *fakeFrames

	tmu    sync.Mutex
	timers []*manualTimer
}

func sampleOutcome() analysis.Outcome {
	return analysis.Outcome{
		Job: job.Record{Title: "ML Engineer @ Acme", Company: "Acme", Description: "model text"},
		Analysis: analysis.Fit{
			FitScore:           83,
			RecommendedVariant: analysis.VariantML,
		},
	}
}

func sampleProfile() (analysis.Profile, error) {
	return analysis.Profile{Name: "Jane", YearsExperience: 6, Skills: []analysis.Skill{{Name: "Python", Years: 6}, {Name: "PyTorch", Years: 3}}}, nil
}

func newHarness() *harness {
	h := &harness{
		kv:       store.NewMemory(),
		notes:    &fakeNotifier{},
		analyzer: &fakeAnalyzer{out: sampleOutcome()},
		chats:    &fakeChats{url: "https://claude.ai/chat/abc"},
		driver: &fakeDriver{
			states: []chatdriver.State{chatdriver.StateAwaitingInput, chatdriver.StatePasting, chatdriver.StateSent, chatdriver.StateStreaming},
			result: chatdriver.Result{OK: true, Text: "Tailored resume body", State: chatdriver.StateDone, SettledVia: chatdriver.SettledByIndicator},
		},
		pdf:     &fakePDF{resp: pdfhost.Response{Success: true, PDFPath: "/out/ml/resume.pdf", FolderName: "ml", PDFSizeBytes: 2048}},
		tracker: &fakeTracker{},
		frames:  &fakeFrames{},
	}
	h.recorder = tracking.NewRecorder(h.tracker, time.Second, nil)
	h.o = New(Deps{
		Tabs:     store.NewTabStore(h.kv),
		Sessions: store.NewSessionStore(h.kv),
		Polls:    store.NewPollStore(h.kv),
		Profile:  sampleProfile,
		Frames:   h.frames,
		Analyzer: h.analyzer,
		Prompts:  fakePrompts{},
		Tracker:  h.recorder,
		Chats:    h.chats,
		Driver:   h.driver,
		PDF:      h.pdf,
		Notifier: h.notes,
	}, Options{})
	h.o.afterFunc = func(_ time.Duration, f func()) stopper {
		t := &manualTimer{fn: f}
		h.tmu.Lock()
		h.timers = append(h.timers, t)
		h.tmu.Unlock()
		return t
	}
	return h
}

func (h *harness) timer(i int) *manualTimer {
	h.tmu.Lock()
	defer h.tmu.Unlock()
	if i >= len(h.timers) {
		return nil
	}
	return h.timers[i]
}

func (h *harness) wait() {
	h.o.Wait()
	h.recorder.Wait()
}

func jsonLDResult() job.ExtractionResult {
	return job.ExtractionResult{
		Success:          true,
		JobData:          &job.Record{Title: "ML Engineer", Company: "Acme", URL: "https://boards.greenhouse.io/acme/jobs/1", Description: "Build ranking systems with Python."},
		RawText:          "Build ranking systems with Python.",
		URL:              "https://boards.greenhouse.io/acme/jobs/1",
		Title:            "ML Engineer - Acme",
		ExtractionMethod: job.MethodJSONLD,
	}
}
