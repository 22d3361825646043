package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"jobpilot/internal/browser"
	"jobpilot/internal/capture"
	"jobpilot/internal/chatdriver"
	"jobpilot/internal/config"
	"jobpilot/internal/database"
	"jobpilot/internal/database/migration"
	dbpostgres "jobpilot/internal/database/postgres"
	"jobpilot/internal/domain/analysis"
	"jobpilot/internal/extractor"
	"jobpilot/internal/infrastructure/cache"
	"jobpilot/internal/infrastructure/crawl"
	"jobpilot/internal/infrastructure/llm"
	"jobpilot/internal/infrastructure/pdfhost"
	"jobpilot/internal/infrastructure/tracking"
	"jobpilot/internal/metrics"
	"jobpilot/internal/orchestrator"
	"jobpilot/internal/pkg/jwt"
	"jobpilot/internal/prompt"
	"jobpilot/internal/scraper"
	"jobpilot/internal/store"
	"jobpilot/internal/ws"
)

const trackingCallTimeout = 15 * time.Second

// Container owns every long-lived dependency of the service.
type Container struct {
	Config config.Config
	Logger *log.Logger

	DB      database.DB
	Redis   *cache.Redis
	Memory  *store.Memory
	Metrics *metrics.Metrics
	Hub     *ws.Hub
	Bridge  *capture.Bridge
	Browser *browser.Manager
	Tracker *tracking.Recorder
	JWT     *jwt.HMACService

	Extractor    *extractor.Extractor
	Orchestrator *orchestrator.Orchestrator

	closers []func() error
	hubDone chan struct{}
}

func NewContainer(cfg config.Config) (*Container, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	c := &Container{
		Config:  cfg,
		Logger:  log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds),
		Metrics: metrics.New(),
		hubDone: make(chan struct{}),
	}
	ok := false
	defer func() {
		if !ok {
			_ = c.Close()
		}
	}()

	kv, err := c.keyedStore(cfg)
	if err != nil {
		return nil, err
	}

	tracker, err := c.tracker(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.Tracker = tracking.NewRecorder(tracker, trackingCallTimeout, c.Logger)

	c.Hub = ws.NewHub(c.Logger)
	go c.Hub.Run(c.hubDone)

	// The bridge sink fires only after a chat tab exists, which needs the
	// orchestrator built below.
	c.Bridge = capture.NewBridge(func(done capture.Completion) {
		c.Orchestrator.HandleCompletion(done)
	}, c.Logger)

	c.Browser = browser.New(browser.Options{
		RemoteURL:   cfg.Browser.RemoteURL,
		ExecPath:    cfg.Browser.ExecPath,
		Headless:    cfg.Browser.Headless,
		UserDataDir: cfg.Browser.UserDataDir,
	}, c.Bridge, c.Logger)

	loc, found := chatdriver.LocatorsFor(cfg.Chat.Host)
	if !found {
		return nil, fmt.Errorf("unknown chat host %q", cfg.Chat.Host)
	}

	analyzer, closeLLM, err := llm.NewGemini(ctx, llm.Config{
		APIKey:  cfg.LLM.GeminiAPIKey,
		Models:  cfg.LLM.Models,
		Timeout: cfg.LLM.Timeout,
	}, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("init analysis backend: %w", err)
	}
	c.closers = append(c.closers, closeLLM)

	var pdf pdfhost.Generator = pdfhost.NewChromeRenderer(c.Browser, cfg.PDF.OutputDir, c.Logger)
	if cfg.PDF.HostPath != "" {
		pdf = pdfhost.NewExecHost(cfg.PDF.HostPath, nil, 0, c.Logger)
	}

	if cfg.Auth.JWTSecret != "" {
		c.JWT = jwt.NewHMACService(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)
	}

	c.Extractor = extractor.New(extractor.Options{}, c.Logger)
	c.Orchestrator = orchestrator.New(orchestrator.Deps{
		Tabs:     store.NewTabStore(kv),
		Sessions: store.NewSessionStore(kv),
		Polls:    store.NewPollStore(kv),
		Profile:  func() (analysis.Profile, error) { return analysis.LoadProfile(cfg.Profile.Path) },
		Crawler:  crawl.New(cfg.Crawl.URL, 0, 0, c.Logger),
		Frames:   scraper.NewFrameFetcher(scraper.FrameOptions{}, c.Logger),
		Analyzer: analyzer,
		Prompts:  prompt.NewDir(cfg.Profile.PromptsDir, c.Logger),
		Tracker:  c.Tracker,
		Chats:    chatTabs{m: c.Browser},
		Driver:   chatdriver.New(loc, c.Logger),
		PDF:      pdf,
		Notifier: c.Hub,
		Metrics:  c.Metrics,
		Logger:   c.Logger,
	}, orchestrator.Options{
		ChatURL:           cfg.Chat.URL,
		Model:             cfg.Chat.Model,
		Modes:             cfg.Chat.Modes,
		CompletionTimeout: cfg.Chat.CompletionTimeout,
	})

	ok = true
	return c, nil
}

// keyedStore prefers Redis and falls back to process memory swept on a
// cron schedule.
func (c *Container) keyedStore(cfg config.Config) (store.KV, error) {
	if cfg.Redis.Addr != "" {
		r := cache.NewRedis(cache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, c.Logger)
		if r.Available() {
			c.Redis = r
			c.closers = append(c.closers, r.Close)
			return r, nil
		}
		c.Logger.Printf("[Store] falling back to in-memory store")
	}

	c.Memory = store.NewMemory()
	stop, err := c.Memory.StartJanitor("@every 1m", c.Logger)
	if err != nil {
		return nil, fmt.Errorf("start store janitor: %w", err)
	}
	c.closers = append(c.closers, func() error { stop(); return nil })
	return c.Memory, nil
}

func (c *Container) tracker(ctx context.Context, cfg config.Config) (tracking.Tracker, error) {
	switch cfg.Tracking.Mode {
	case "http":
		c.Logger.Printf("[Tracking] using dashboard API | url=%s", cfg.Tracking.URL)
		return tracking.NewHTTP(cfg.Tracking.URL, cfg.Tracking.APIKey, trackingCallTimeout), nil
	case "postgres":
		db, err := dbpostgres.Connect(ctx, dbpostgres.Options{
			URL:      cfg.Database.URL,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		c.DB = db
		c.closers = append(c.closers, db.Close)
		if err := (migration.Runner{Logger: c.Logger}).Run(ctx, db.SQLDB()); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		c.Logger.Printf("[Tracking] using postgres ledger")
		return tracking.NewPostgres(db), nil
	default:
		return tracking.Noop{}, nil
	}
}

// Close stops background work and releases resources in reverse order.
func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	// Closing the browser ends chat runs still waiting on the page.
	if c.Browser != nil {
		c.Browser.Close()
	}
	if c.Orchestrator != nil {
		c.Orchestrator.Stop()
	}
	if c.Tracker != nil {
		c.Tracker.Close()
	}
	if c.hubDone != nil {
		close(c.hubDone)
		c.hubDone = nil
	}

	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

type chatTabs struct {
	m *browser.Manager
}

func (t chatTabs) Open(ctx context.Context, originTabID, chatURL string) (orchestrator.ChatPage, error) {
	tab, err := t.m.ChatTab(ctx, originTabID, chatURL)
	if err != nil {
		return nil, err
	}
	return tab, nil
}

func (t chatTabs) CurrentURL(ctx context.Context, chatKey string) (string, error) {
	return t.m.CurrentURL(ctx, chatKey)
}

func (t chatTabs) Close(originTabID string) {
	t.m.CloseChat(originTabID)
}
