// Package browser owns the shared Chrome instance: chat tabs with the
// stream capture hook installed, throwaway tabs for rendering, and page
// snapshots for server-side extraction.
package browser

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"jobpilot/internal/capture"
)

var ErrUnavailable = errors.New("browser unavailable")

const (
	DefaultNavigateTimeout = 45 * time.Second
	eventBuffer            = 1024
)

type Options struct {
	// RemoteURL attaches to an already running Chrome (ws://host:9222/...).
	RemoteURL       string
	ExecPath        string
	Headless        bool
	UserDataDir     string
	Binding         string
	NavigateTimeout time.Duration
}

type Manager struct {
	opts   Options
	bridge *capture.Bridge
	logger *log.Logger

	startMu       sync.Mutex
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc

	mu     sync.Mutex
	byKey  map[string]*Tab
	byTab  map[string]*Tab
	closed bool
}

func New(opts Options, bridge *capture.Bridge, logger *log.Logger) *Manager {
	if strings.TrimSpace(opts.Binding) == "" {
		opts.Binding = capture.DefaultBinding
	}
	if opts.NavigateTimeout <= 0 {
		opts.NavigateTimeout = DefaultNavigateTimeout
	}
	return &Manager{
		opts:   opts,
		bridge: bridge,
		logger: logger,
		byKey:  map[string]*Tab{},
		byTab:  map[string]*Tab{},
	}
}

// start launches or attaches to Chrome on first use.
func (m *Manager) start() (context.Context, error) {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	if m.closed {
		return nil, ErrUnavailable
	}
	if m.browserCtx != nil && m.browserCtx.Err() == nil {
		return m.browserCtx, nil
	}

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if u := strings.TrimSpace(m.opts.RemoteURL); u != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), u)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", m.opts.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("no-sandbox", true),
		)
		if p := strings.TrimSpace(m.opts.ExecPath); p != "" {
			opts = append(opts, chromedp.ExecPath(p))
		}
		if d := strings.TrimSpace(m.opts.UserDataDir); d != "" {
			opts = append(opts, chromedp.UserDataDir(d))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		if m.logger != nil {
			m.logger.Printf("[Browser] start failed: %v", err)
		}
		return nil, errors.Join(ErrUnavailable, err)
	}
	m.browserCtx, m.browserCancel, m.allocCancel = browserCtx, browserCancel, allocCancel
	if m.logger != nil {
		m.logger.Printf("[Browser] started | remote=%t", m.opts.RemoteURL != "")
	}
	return browserCtx, nil
}

// NewTab opens a plain tab. Cancelling the returned func closes it.
func (m *Manager) NewTab(ctx context.Context) (context.Context, context.CancelFunc, error) {
	browserCtx, err := m.start()
	if err != nil {
		return nil, nil, err
	}
	tabCtx, cancel := chromedp.NewContext(browserCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, nil, err
	}
	stop := context.AfterFunc(ctx, cancel)
	return tabCtx, func() {
		stop()
		cancel()
	}, nil
}

// ChatTab returns the chat tab serving originTabID, opening one when none
// is alive, and navigates it to chatURL for a fresh conversation. The hook
// is registered before navigation so it runs ahead of any page script.
func (m *Manager) ChatTab(ctx context.Context, originTabID, chatURL string) (*Tab, error) {
	m.mu.Lock()
	t := m.byTab[originTabID]
	m.mu.Unlock()

	if t == nil || t.ctx.Err() != nil {
		var err error
		if t, err = m.openChat(originTabID); err != nil {
			return nil, err
		}
	}

	navCtx, cancel := t.bind(ctx, m.opts.NavigateTimeout)
	defer cancel()
	if err := chromedp.Run(navCtx, chromedp.Navigate(chatURL)); err != nil {
		return nil, err
	}
	if m.logger != nil {
		m.logger.Printf("[Browser] chat tab ready | origin=%s chat=%s url=%s", originTabID, t.Key(), chatURL)
	}
	return t, nil
}

func (m *Manager) openChat(originTabID string) (*Tab, error) {
	browserCtx, err := m.start()
	if err != nil {
		return nil, err
	}
	tabCtx, cancel := chromedp.NewContext(browserCtx)
	t := &Tab{key: uuid.NewString(), origin: originTabID, ctx: tabCtx, cancel: cancel, events: make(chan string, eventBuffer)}

	chromedp.ListenTarget(tabCtx, func(ev any) {
		e, ok := ev.(*runtime.EventBindingCalled)
		if !ok || e.Name != m.opts.Binding {
			return
		}
		select {
		case t.events <- e.Payload:
		default:
			if m.logger != nil {
				m.logger.Printf("[Browser] capture event dropped | chat=%s", t.key)
			}
		}
	})
	go m.pump(t)

	script := capture.Script(m.opts.Binding)
	err = chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := runtime.AddBinding(m.opts.Binding).Do(ctx); err != nil {
			return err
		}
		_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
		return err
	}))
	if err != nil {
		cancel()
		return nil, err
	}

	m.mu.Lock()
	if old := m.byTab[originTabID]; old != nil {
		delete(m.byKey, old.key)
		old.cancel()
	}
	m.byTab[originTabID] = t
	m.byKey[t.key] = t
	m.mu.Unlock()
	return t, nil
}

// pump feeds binding payloads to the bridge in arrival order.
func (m *Manager) pump(t *Tab) {
	for {
		select {
		case <-t.ctx.Done():
			m.bridge.Drop(t.key)
			return
		case p := <-t.events:
			if err := m.bridge.HandlePayload(t.key, p); err != nil && m.logger != nil {
				m.logger.Printf("[Browser] bad capture payload | chat=%s err=%v", t.key, err)
			}
		}
	}
}

// CurrentURL reports where the chat tab is now; used as the result link
// when no capture arrived.
func (m *Manager) CurrentURL(ctx context.Context, chatKey string) (string, error) {
	m.mu.Lock()
	t := m.byKey[chatKey]
	m.mu.Unlock()
	if t == nil {
		return "", ErrUnavailable
	}
	runCtx, cancel := t.bind(ctx, 5*time.Second)
	defer cancel()
	var u string
	if err := chromedp.Run(runCtx, chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}

// CloseChat closes the chat tab opened for originTabID, if any.
func (m *Manager) CloseChat(originTabID string) {
	m.mu.Lock()
	t := m.byTab[originTabID]
	delete(m.byTab, originTabID)
	if t != nil {
		delete(m.byKey, t.key)
	}
	m.mu.Unlock()
	if t != nil {
		t.cancel()
	}
}

func (m *Manager) Close() {
	m.mu.Lock()
	for k, t := range m.byKey {
		t.cancel()
		delete(m.byKey, k)
	}
	m.byTab = map[string]*Tab{}
	m.mu.Unlock()

	m.startMu.Lock()
	defer m.startMu.Unlock()
	m.closed = true
	if m.browserCancel != nil {
		m.browserCancel()
	}
	if m.allocCancel != nil {
		m.allocCancel()
	}
}
