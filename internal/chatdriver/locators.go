package chatdriver

import (
	"strings"
	"time"
)

// Locators is everything the driver knows about one chat host's markup and
// pacing. A host redesign should only ever touch one of these.
type Locators struct {
	Name string
	URL  string

	Input              string
	Submit             string
	ResponseContainer  string
	StreamingIndicator string
	Noise              []string

	ModelButton      string
	ModelOption      string
	MoreOptionsLabel string
	ModeToggle       string

	InputPollInterval time.Duration
	InputTimeout      time.Duration
	MenuSettle        time.Duration
	FirstTokenTimeout time.Duration
	IndicatorGrace    time.Duration
	StreamTimeout     time.Duration
	StableInterval    time.Duration
	StableSamples     int
	ExtractRetries    int
	ExtractDelay      time.Duration
}

func defaultTimings(l Locators) Locators {
	l.InputPollInterval = 500 * time.Millisecond
	l.InputTimeout = 20 * time.Second
	l.MenuSettle = 400 * time.Millisecond
	l.FirstTokenTimeout = 3 * time.Minute
	l.IndicatorGrace = 5 * time.Second
	l.StreamTimeout = 10 * time.Minute
	l.StableInterval = time.Second
	l.StableSamples = 3
	l.ExtractRetries = 3
	l.ExtractDelay = 750 * time.Millisecond
	return l
}

func ClaudeLocators() Locators {
	return defaultTimings(Locators{
		Name:               "claude",
		URL:                "https://claude.ai/new",
		Input:              `div[contenteditable="true"].ProseMirror`,
		Submit:             `button[aria-label="Send message"]`,
		ResponseContainer:  `div.font-claude-response, div.font-claude-message`,
		StreamingIndicator: `[data-is-streaming="true"]`,
		Noise: []string{
			"svg", "button", "[data-testid='citation']", "[data-testid='action-bar-copy']",
			".animate-pulse", "[role='progressbar']", ".sr-only",
		},
		ModelButton:      `button[data-testid="model-selector-dropdown"]`,
		ModelOption:      `[role="menuitem"], [role="menuitemradio"]`,
		MoreOptionsLabel: "More models",
		ModeToggle:       `[role="menuitemcheckbox"], [role="switch"]`,
	})
}

func ChatGPTLocators() Locators {
	return defaultTimings(Locators{
		Name:               "chatgpt",
		URL:                "https://chatgpt.com/",
		Input:              `#prompt-textarea`,
		Submit:             `button[data-testid="send-button"]`,
		ResponseContainer:  `[data-message-author-role="assistant"]`,
		StreamingIndicator: `button[data-testid="stop-button"]`,
		Noise: []string{
			"svg", "button", "[data-testid='webpage-citation-pill']", "[role='progressbar']",
		},
		ModelButton:      `button[data-testid="model-switcher-dropdown-button"]`,
		ModelOption:      `[role="menuitem"]`,
		MoreOptionsLabel: "More models",
	})
}

// LocatorsFor resolves a preset by name.
func LocatorsFor(name string) (Locators, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "claude":
		return ClaudeLocators(), true
	case "chatgpt", "openai":
		return ChatGPTLocators(), true
	default:
		return Locators{}, false
	}
}
