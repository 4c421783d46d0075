package browser

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
)

const (
	SourceSystem  = "system"
	SourceBundled = "bundled"
)

// Binary is a resolved browser executable.
type Binary struct {
	Path   string
	Source string
}

// bundledBuilds lists known Chromium build ids installed under
// <stateDir>/browsers, newest first. Unknown builds are still picked up by
// the directory scan fallback.
var bundledBuilds = []string{
	"144.0.7559.133",
	"143.0.7499.40",
	"140.0.7339.82",
	"139.0.7258.68",
}

// Locator resolves a usable browser binary: an explicit override first, then
// system installations, then bundled Chromium builds. The stat/lookPath seams
// exist so tests can fake installations without touching the real filesystem.
type Locator struct {
	binaryOverride string
	stateDir       string

	stat     func(string) (os.FileInfo, error)
	lookPath func(string) (string, error)
	glob     func(string) ([]string, error)
}

func NewLocator(binaryOverride, stateDir string) *Locator {
	return &Locator{
		binaryOverride: binaryOverride,
		stateDir:       stateDir,
		stat:           os.Stat,
		lookPath:       exec.LookPath,
		glob:           filepath.Glob,
	}
}

// Locate returns the first usable binary or an error telling the user how to
// fix their setup.
func (l *Locator) Locate() (*Binary, error) {
	if l.binaryOverride != "" {
		if _, err := l.stat(l.binaryOverride); err != nil {
			return nil, fmt.Errorf("configured browser binary %s not found: %w", l.binaryOverride, err)
		}
		return &Binary{Path: l.binaryOverride, Source: SourceSystem}, nil
	}

	for _, p := range systemPaths() {
		if _, err := l.stat(p); err == nil {
			return &Binary{Path: p, Source: SourceSystem}, nil
		}
	}

	if runtime.GOOS == "linux" {
		for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"} {
			if p, err := l.lookPath(name); err == nil {
				return &Binary{Path: p, Source: SourceSystem}, nil
			}
		}
	}

	if b := l.locateBundled(); b != nil {
		return b, nil
	}

	return nil, fmt.Errorf("no Chrome or Chromium installation found; install Google Chrome or set AUTHBRIDGE_CHROME_BINARY")
}

func (l *Locator) locateBundled() *Binary {
	if l.stateDir == "" {
		return nil
	}
	browsersDir := filepath.Join(l.stateDir, "browsers")

	for _, build := range bundledBuilds {
		p := bundledExePath(filepath.Join(browsersDir, "chromium-"+build))
		if _, err := l.stat(p); err == nil {
			return &Binary{Path: p, Source: SourceBundled}
		}
	}

	// Unknown builds: scan and take the lexically newest.
	dirs, err := l.glob(filepath.Join(browsersDir, "chromium-*"))
	if err != nil || len(dirs) == 0 {
		return nil
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, dir := range dirs {
		p := bundledExePath(dir)
		if _, err := l.stat(p); err == nil {
			return &Binary{Path: p, Source: SourceBundled}
		}
	}
	return nil
}

func bundledExePath(dir string) string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(dir, "Chromium.app", "Contents", "MacOS", "Chromium")
	case "windows":
		return filepath.Join(dir, "chrome.exe")
	default:
		return filepath.Join(dir, "chrome")
	}
}

func systemPaths() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
			"/Applications/Brave Browser.app/Contents/MacOS/Brave Browser",
		}
	case "windows":
		paths := []string{}
		for _, root := range []string{os.Getenv("ProgramFiles"), os.Getenv("ProgramFiles(x86)"), os.Getenv("LocalAppData")} {
			if root == "" {
				continue
			}
			paths = append(paths,
				filepath.Join(root, "Google", "Chrome", "Application", "chrome.exe"),
				filepath.Join(root, "Microsoft", "Edge", "Application", "msedge.exe"),
			)
		}
		return paths
	default:
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
			"/opt/google/chrome/chrome",
		}
	}
}
