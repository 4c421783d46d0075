package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type RuntimeConfig struct {
	StateDir           string
	ProfileDir         string
	CdpURL             string
	ChromeBinary       string
	ChromeExtraFlags   string
	ChromeVersion      string
	Headless           bool
	Timezone           string
	Locale             string
	ViewportWidth      int
	ViewportHeight     int
	UserAgent          string
	LoginTimeout       time.Duration
	NavigateTimeout    time.Duration
	ChromeStartTimeout time.Duration
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func envBoolOr(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func homeDir() string {
	h, _ := os.UserHomeDir()
	return h
}

// DefaultUserAgent returns a current-Chrome user agent for the running OS.
// The version segment should track the newest build in the browser package's
// bundled list.
func DefaultUserAgent() string {
	const chromeVersion = "144.0.0.0"
	switch runtime.GOOS {
	case "darwin":
		return "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/" + chromeVersion + " Safari/537.36"
	case "windows":
		return "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/" + chromeVersion + " Safari/537.36"
	default:
		return "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/" + chromeVersion + " Safari/537.36"
	}
}

type FileConfig struct {
	StateDir       string `json:"stateDir"`
	ProfileDir     string `json:"profileDir"`
	CdpURL         string `json:"cdpUrl,omitempty"`
	ChromeBinary   string `json:"chromeBinary,omitempty"`
	Headless       *bool  `json:"headless,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
	Locale         string `json:"locale,omitempty"`
	LoginSec       int    `json:"loginSec,omitempty"`
	NavigateSec    int    `json:"navigateSec,omitempty"`
	ViewportWidth  int    `json:"viewportWidth,omitempty"`
	ViewportHeight int    `json:"viewportHeight,omitempty"`
}

func Load() *RuntimeConfig {
	// A .env next to the binary is convenient during development; a missing
	// file is fine.
	_ = godotenv.Load()

	cfg := &RuntimeConfig{
		StateDir:           envOr("AUTHBRIDGE_STATE_DIR", filepath.Join(homeDir(), ".authbridge")),
		ProfileDir:         envOr("AUTHBRIDGE_PROFILE", filepath.Join(homeDir(), ".authbridge", "chrome-profile")),
		CdpURL:             os.Getenv("AUTHBRIDGE_CDP_URL"),
		ChromeBinary:       os.Getenv("AUTHBRIDGE_CHROME_BINARY"),
		ChromeExtraFlags:   os.Getenv("AUTHBRIDGE_CHROME_FLAGS"),
		ChromeVersion:      envOr("AUTHBRIDGE_CHROME_VERSION", "144.0.7559.133"),
		Headless:           envBoolOr("AUTHBRIDGE_HEADLESS", false),
		Timezone:           os.Getenv("AUTHBRIDGE_TIMEZONE"),
		Locale:             envOr("AUTHBRIDGE_LOCALE", "en-US"),
		ViewportWidth:      envIntOr("AUTHBRIDGE_VIEWPORT_WIDTH", 1920),
		ViewportHeight:     envIntOr("AUTHBRIDGE_VIEWPORT_HEIGHT", 1080),
		UserAgent:          envOr("AUTHBRIDGE_USER_AGENT", DefaultUserAgent()),
		LoginTimeout:       time.Duration(envIntOr("AUTHBRIDGE_LOGIN_TIMEOUT", 300)) * time.Second,
		NavigateTimeout:    30 * time.Second,
		ChromeStartTimeout: 15 * time.Second,
	}

	configPath := envOr("AUTHBRIDGE_CONFIG", filepath.Join(homeDir(), ".authbridge", "config.json"))

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg
	}

	var fc FileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return cfg
	}

	if fc.StateDir != "" && os.Getenv("AUTHBRIDGE_STATE_DIR") == "" {
		cfg.StateDir = fc.StateDir
	}
	if fc.ProfileDir != "" && os.Getenv("AUTHBRIDGE_PROFILE") == "" {
		cfg.ProfileDir = fc.ProfileDir
	}
	if fc.CdpURL != "" && os.Getenv("AUTHBRIDGE_CDP_URL") == "" {
		cfg.CdpURL = fc.CdpURL
	}
	if fc.ChromeBinary != "" && os.Getenv("AUTHBRIDGE_CHROME_BINARY") == "" {
		cfg.ChromeBinary = fc.ChromeBinary
	}
	if fc.Headless != nil && os.Getenv("AUTHBRIDGE_HEADLESS") == "" {
		cfg.Headless = *fc.Headless
	}
	if fc.Timezone != "" && os.Getenv("AUTHBRIDGE_TIMEZONE") == "" {
		cfg.Timezone = fc.Timezone
	}
	if fc.Locale != "" && os.Getenv("AUTHBRIDGE_LOCALE") == "" {
		cfg.Locale = fc.Locale
	}
	if fc.LoginSec > 0 && os.Getenv("AUTHBRIDGE_LOGIN_TIMEOUT") == "" {
		cfg.LoginTimeout = time.Duration(fc.LoginSec) * time.Second
	}
	if fc.NavigateSec > 0 {
		cfg.NavigateTimeout = time.Duration(fc.NavigateSec) * time.Second
	}
	if fc.ViewportWidth > 0 && os.Getenv("AUTHBRIDGE_VIEWPORT_WIDTH") == "" {
		cfg.ViewportWidth = fc.ViewportWidth
	}
	if fc.ViewportHeight > 0 && os.Getenv("AUTHBRIDGE_VIEWPORT_HEIGHT") == "" {
		cfg.ViewportHeight = fc.ViewportHeight
	}

	return cfg
}

func DefaultFileConfig() FileConfig {
	h := false
	return FileConfig{
		StateDir:    filepath.Join(homeDir(), ".authbridge"),
		ProfileDir:  filepath.Join(homeDir(), ".authbridge", "chrome-profile"),
		Headless:    &h,
		LoginSec:    300,
		NavigateSec: 30,
	}
}

func HandleConfigCommand(cfg *RuntimeConfig) {
	if len(os.Args) < 3 {
		fmt.Println("Usage: authbridge config <command>")
		fmt.Println("Commands:")
		fmt.Println("  init    - Create default config file")
		fmt.Println("  show    - Show current configuration")
		return
	}

	switch os.Args[2] {
	case "init":
		configPath := filepath.Join(homeDir(), ".authbridge", "config.json")

		if _, err := os.Stat(configPath); err == nil {
			fmt.Printf("Config file already exists at %s\n", configPath)
			fmt.Print("Overwrite? (y/N): ")
			var response string
			_, _ = fmt.Scanln(&response)
			if response != "y" && response != "Y" {
				return
			}
		}

		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			fmt.Printf("Error creating directory: %v\n", err)
			os.Exit(1)
		}

		fc := DefaultFileConfig()
		data, _ := json.MarshalIndent(fc, "", "  ")
		if err := os.WriteFile(configPath, data, 0644); err != nil {
			fmt.Printf("Error writing config: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Config file created at %s\n", configPath)

	case "show":
		fmt.Println("Current configuration:")
		fmt.Printf("  State Dir:  %s\n", cfg.StateDir)
		fmt.Printf("  Profile:    %s\n", cfg.ProfileDir)
		fmt.Printf("  CDP URL:    %s\n", cfg.CdpURL)
		fmt.Printf("  Headless:   %v\n", cfg.Headless)
		fmt.Printf("  Locale:     %s\n", cfg.Locale)
		fmt.Printf("  Viewport:   %dx%d\n", cfg.ViewportWidth, cfg.ViewportHeight)
		fmt.Printf("  Timeouts:   login=%v navigate=%v\n", cfg.LoginTimeout, cfg.NavigateTimeout)

	default:
		fmt.Printf("Unknown command: %s\n", os.Args[2])
		os.Exit(1)
	}
}
