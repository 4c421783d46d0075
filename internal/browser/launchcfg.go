package browser

import (
	"fmt"
	"strings"

	"github.com/pinchtab/authbridge/internal/config"
)

// AutomationFlag is the launch flag that suppresses Chrome's
// navigator.webdriver automation signal. Every launch config must carry it.
const AutomationFlag = "--disable-blink-features=AutomationControlled"

const (
	MinViewportWidth  = 1024
	MinViewportHeight = 768
)

type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// LaunchConfig describes one persistent browser launch. Args uses raw Chrome
// flag syntax so overrides coming over the wire stay portable.
type LaunchConfig struct {
	UserDataDir string   `json:"userDataDir"`
	Viewport    Viewport `json:"viewport"`
	UserAgent   string   `json:"userAgent"`
	Args        []string `json:"args"`
}

func defaultArgs() []string {
	return []string{
		AutomationFlag,
		"--exclude-switches=enable-automation",
		"--disable-infobars",
		"--disable-dev-shm-usage",
		"--disable-session-crashed-bubble",
		"--hide-crash-restore-bubble",
		"--disable-sync",
		"--disable-default-apps",
		"--disable-hang-monitor",
		"--disable-prompt-on-repost",
		"--disable-client-side-phishing-detection",
		"--disable-popup-blocking",
		"--no-first-run",
		"--no-default-browser-check",
	}
}

// BuildConfig merges caller overrides onto the configured defaults. Pure:
// no filesystem access, the profile dir is created later at launch.
func BuildConfig(cfg *config.RuntimeConfig, overrides *LaunchConfig) LaunchConfig {
	lc := LaunchConfig{
		UserDataDir: cfg.ProfileDir,
		Viewport:    Viewport{Width: cfg.ViewportWidth, Height: cfg.ViewportHeight},
		UserAgent:   cfg.UserAgent,
		Args:        defaultArgs(),
	}
	if lc.Viewport.Width == 0 {
		lc.Viewport.Width = 1920
	}
	if lc.Viewport.Height == 0 {
		lc.Viewport.Height = 1080
	}
	if lc.UserAgent == "" {
		lc.UserAgent = config.DefaultUserAgent()
	}

	if overrides == nil {
		return lc
	}
	if overrides.UserDataDir != "" {
		lc.UserDataDir = overrides.UserDataDir
	}
	if overrides.Viewport.Width > 0 {
		lc.Viewport.Width = overrides.Viewport.Width
	}
	if overrides.Viewport.Height > 0 {
		lc.Viewport.Height = overrides.Viewport.Height
	}
	if overrides.UserAgent != "" {
		lc.UserAgent = overrides.UserAgent
	}
	if overrides.Args != nil {
		lc.Args = overrides.Args
	}
	return lc
}

type ValidationResult struct {
	Valid  bool
	Errors []string
}

// ValidateConfig accumulates every violation instead of stopping at the
// first, so a bad override reports all its problems in one round trip.
func ValidateConfig(lc LaunchConfig) ValidationResult {
	var errs []string

	if strings.TrimSpace(lc.UserDataDir) == "" {
		errs = append(errs, "userDataDir must be a non-empty path")
	}

	if lc.Viewport.Width < MinViewportWidth || lc.Viewport.Height < MinViewportHeight {
		errs = append(errs, fmt.Sprintf("viewport must be at least %dx%d, got %dx%d",
			MinViewportWidth, MinViewportHeight, lc.Viewport.Width, lc.Viewport.Height))
	}

	switch {
	case lc.UserAgent == "":
		errs = append(errs, "userAgent must not be empty")
	case !strings.Contains(lc.UserAgent, "Mozilla/5.0"):
		errs = append(errs, "userAgent must contain the Mozilla/5.0 engine token")
	case !strings.Contains(lc.UserAgent, "Chrome/") && !strings.Contains(lc.UserAgent, "Chromium/"):
		errs = append(errs, "userAgent must contain a Chrome or Chromium token")
	}

	if lc.Args == nil {
		errs = append(errs, "args must be a flag list")
	} else if !hasFlag(lc.Args, AutomationFlag) {
		errs = append(errs, "args must include the anti-detection flag "+AutomationFlag)
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

func hasFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}
