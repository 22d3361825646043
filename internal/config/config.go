package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	LLM      LLMConfig
	Crawl    CrawlConfig
	Tracking TrackingConfig
	Chat     ChatConfig
	Browser  BrowserConfig
	PDF      PDFConfig
	Profile  ProfileConfig
}

type AppConfig struct {
	AppName     string
	Environment string
	HTTPPort    string
}

type DatabaseConfig struct {
	URL      string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret   string
	TokenExpiry time.Duration
}

type LLMConfig struct {
	GeminiAPIKey string
	Models       []string
	Timeout      time.Duration
}

type CrawlConfig struct {
	URL string
}

type TrackingConfig struct {
	// Mode is one of http, postgres or none.
	Mode   string
	URL    string
	APIKey string
}

type ChatConfig struct {
	// Host names a locator preset (claude, chatgpt).
	Host              string
	URL               string
	Model             string
	Modes             []string
	CompletionTimeout time.Duration
}

type BrowserConfig struct {
	RemoteURL   string
	ExecPath    string
	Headless    bool
	UserDataDir string
}

type PDFConfig struct {
	HostPath  string
	OutputDir string
}

type ProfileConfig struct {
	Path       string
	PromptsDir string
}

var (
	errMissingRequiredEnv = errors.New("missing required environment variables")
	errInvalidEnv         = errors.New("invalid environment variables")
)

// Load reads the environment, optionally layered over the file named by
// CONFIG_FILE.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	return load(v)
}

func load(v *viper.Viper) (Config, error) {
	cfg := Config{}

	var missing, invalid []string
	req := func(key string) string {
		s := strings.TrimSpace(v.GetString(key))
		if s == "" {
			missing = append(missing, key)
		}
		return s
	}
	opt := func(key string) string {
		return strings.TrimSpace(v.GetString(key))
	}
	optDefault := func(key, def string) string {
		if s := opt(key); s != "" {
			return s
		}
		return def
	}
	optDuration := func(key string, def time.Duration) time.Duration {
		s := opt(key)
		if s == "" {
			return def
		}
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			invalid = append(invalid, key)
			return def
		}
		return d
	}
	optInt := func(key string, def int) int {
		s := opt(key)
		if s == "" {
			return def
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			invalid = append(invalid, key)
			return def
		}
		return n
	}
	optBool := func(key string, def bool) bool {
		s := opt(key)
		if s == "" {
			return def
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			invalid = append(invalid, key)
			return def
		}
		return b
	}

	cfg.App = AppConfig{
		AppName:     optDefault("APP_NAME", "jobpilot"),
		Environment: optDefault("APP_ENV", "development"),
		HTTPPort:    req("HTTP_PORT"),
	}

	cfg.Database = DatabaseConfig{
		URL:      opt("DATABASE_URL"),
		MaxConns: int32(optInt("DB_MAX_CONNS", 0)),
	}

	cfg.Redis = RedisConfig{
		Addr:     opt("REDIS_ADDR"),
		Password: opt("REDIS_PASSWORD"),
		DB:       optInt("REDIS_DB", 0),
	}

	cfg.Auth = AuthConfig{
		JWTSecret:   opt("AUTH_JWT_SECRET"),
		TokenExpiry: optDuration("AUTH_TOKEN_EXPIRY", 30*24*time.Hour),
	}

	cfg.LLM = LLMConfig{
		GeminiAPIKey: opt("GEMINI_API_KEY"),
		Models:       splitList(opt("GEMINI_MODELS")),
		Timeout:      optDuration("GEMINI_TIMEOUT", 0),
	}

	cfg.Crawl = CrawlConfig{URL: opt("CRAWL_URL")}

	cfg.Tracking = TrackingConfig{
		Mode:   strings.ToLower(optDefault("TRACKING_MODE", "none")),
		URL:    opt("TRACKING_URL"),
		APIKey: opt("TRACKING_API_KEY"),
	}
	switch cfg.Tracking.Mode {
	case "none":
	case "http":
		if cfg.Tracking.URL == "" {
			missing = append(missing, "TRACKING_URL")
		}
	case "postgres":
		if cfg.Database.URL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	default:
		invalid = append(invalid, "TRACKING_MODE")
	}

	cfg.Chat = ChatConfig{
		Host:              optDefault("CHAT_HOST", "claude"),
		URL:               opt("CHAT_URL"),
		Model:             opt("CHAT_MODEL"),
		Modes:             splitList(opt("CHAT_MODES")),
		CompletionTimeout: optDuration("CHAT_COMPLETION_TIMEOUT", 0),
	}

	cfg.Browser = BrowserConfig{
		RemoteURL:   opt("CHROME_WS_URL"),
		ExecPath:    opt("CHROME_PATH"),
		Headless:    optBool("CHROME_HEADLESS", false),
		UserDataDir: opt("CHROME_USER_DATA_DIR"),
	}

	cfg.PDF = PDFConfig{
		HostPath:  opt("PDF_HOST_PATH"),
		OutputDir: optDefault("PDF_OUTPUT_DIR", "resumes"),
	}

	cfg.Profile = ProfileConfig{
		Path:       optDefault("PROFILE_PATH", "profile.json"),
		PromptsDir: optDefault("PROMPTS_DIR", "prompts"),
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("%w: %s", errMissingRequiredEnv, strings.Join(missing, ", ")))
	}
	if len(invalid) > 0 {
		errs = append(errs, fmt.Errorf("%w: %s", errInvalidEnv, strings.Join(invalid, ", ")))
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}

	return cfg, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
